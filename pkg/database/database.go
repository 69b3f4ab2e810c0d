package database

import (
	"context"
	"edutest_backend/internal/config"
	"edutest_backend/pkg/logger"
	"errors"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/clause"
)

// StoreEntry is the relational row behind one shared-store key.
type StoreEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:64"`
	Value     []byte    `gorm:"type:longblob"`
	Version   int64     `gorm:"not null;default:0"`
	Origin    string    `gorm:"size:64"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (StoreEntry) TableName() string {
	return "store_entries"
}

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if err := db.AutoMigrate(&StoreEntry{}); err != nil {
		return nil, err
	}

	log.Println("Database migration completed")
	return db, nil
}

// GormBackend stores entries in store_entries. Writes from this process are
// announced in-process; writes from other processes are found by polling
// versions every poll interval.
type GormBackend struct {
	db           *gorm.DB
	pollInterval time.Duration
	hub          *notifier
}

func NewGormBackend(db *gorm.DB, pollInterval time.Duration) *GormBackend {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &GormBackend{db: db, pollInterval: pollInterval, hub: newNotifier()}
}

func (b *GormBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	var row StoreEntry
	err := b.db.WithContext(ctx).Where("entry_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Key:       row.Key,
		Value:     row.Value,
		Version:   row.Version,
		Origin:    row.Origin,
		UpdatedAt: row.UpdatedAt,
	}, true, nil
}

func (b *GormBackend) Put(ctx context.Context, key string, value []byte, origin string) (Entry, error) {
	var row StoreEntry
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A first write to a key has no row to lock yet, so one is inserted
		// at version 0 and concurrent inserts of the same key are ignored.
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&StoreEntry{Key: key, UpdatedAt: time.Now()}).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entry_key = ?", key).
			First(&row).Error; err != nil {
			return err
		}
		row.Value = value
		row.Version++
		row.Origin = origin
		row.UpdatedAt = time.Now()
		return tx.Save(&row).Error
	})
	if err != nil {
		return Entry{}, err
	}

	b.hub.publish(Change{Key: key, Version: row.Version, Origin: origin})
	return Entry{
		Key:       key,
		Value:     value,
		Version:   row.Version,
		Origin:    origin,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

type versionRow struct {
	Key     string `gorm:"column:entry_key"`
	Version int64
	Origin  string
}

func (b *GormBackend) versions(ctx context.Context) ([]versionRow, error) {
	var rows []versionRow
	err := b.db.WithContext(ctx).Model(&StoreEntry{}).
		Select("entry_key, version, origin").
		Scan(&rows).Error
	return rows, err
}

func (b *GormBackend) Watch(ctx context.Context) (<-chan Change, error) {
	seen := make(map[string]int64)
	rows, err := b.versions(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		seen[r.Key] = r.Version
	}

	s := newSubscriber()
	local := b.hub.watch(ctx)
	go s.run(ctx, nil)
	go func() {
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-local:
				if !ok {
					return
				}
				if c.Version > seen[c.Key] {
					seen[c.Key] = c.Version
				}
				s.offer(c)
			case <-ticker.C:
				rows, err := b.versions(ctx)
				if err != nil {
					logger.Log.Warn("store version poll failed", zap.Error(err))
					continue
				}
				for _, r := range rows {
					if r.Version > seen[r.Key] {
						seen[r.Key] = r.Version
						s.offer(Change{Key: r.Key, Version: r.Version, Origin: r.Origin})
					}
				}
			}
		}
	}()
	return s.out, nil
}

func (b *GormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the underlying connection is usable.
func (b *GormBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
