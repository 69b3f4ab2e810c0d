package database

import (
	"context"
	"edutest_backend/internal/config"
	"edutest_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 5,
	})

	ctx := context.Background()
	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}

	log.Println("Redis connection established")
	return rdb, nil
}

// RedisBackend keeps each key in a hash and announces writes on a pub/sub
// channel, so every instance attached to the same redis sees them.
type RedisBackend struct {
	rdb       *redis.Client
	namespace string
	channel   string
}

func NewRedisBackend(rdb *redis.Client, namespace, channel string) *RedisBackend {
	return &RedisBackend{rdb: rdb, namespace: namespace, channel: channel}
}

func (b *RedisBackend) entryKey(key string) string {
	return fmt.Sprintf("%s:entry:%s", b.namespace, key)
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := b.rdb.HGetAll(ctx, b.entryKey(key)).Result()
	if err != nil {
		return Entry{}, false, err
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}

	version, _ := strconv.ParseInt(fields["version"], 10, 64)
	nanos, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	return Entry{
		Key:       key,
		Value:     []byte(fields["value"]),
		Version:   version,
		Origin:    fields["origin"],
		UpdatedAt: time.Unix(0, nanos),
	}, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte, origin string) (Entry, error) {
	now := time.Now()
	var incr *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, b.entryKey(key), "version", 1)
		pipe.HSet(ctx, b.entryKey(key),
			"value", value,
			"origin", origin,
			"updated_at", now.UnixNano(),
		)
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Key:       key,
		Value:     value,
		Version:   incr.Val(),
		Origin:    origin,
		UpdatedAt: now,
	}

	payload, _ := json.Marshal(Change{Key: key, Version: entry.Version, Origin: origin})
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		// The value is stored; peers pick it up on their next notice.
		logger.Log.Warn("store change publish failed", zap.String("key", key), zap.Error(err))
	}
	return entry, nil
}

func (b *RedisBackend) Watch(ctx context.Context) (<-chan Change, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	s := newSubscriber()
	go s.run(ctx, func() { pubsub.Close() })
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					logger.Log.Error("store change unmarshal error", zap.Error(err))
					continue
				}
				s.offer(c)
			}
		}
	}()
	return s.out, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
