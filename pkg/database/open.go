package database

import (
	"edutest_backend/internal/config"
	"edutest_backend/internal/util"
	"fmt"
)

// Open builds the backend selected by cfg.Store.Driver.
func Open(cfg *config.Config) (Backend, error) {
	switch cfg.Store.Driver {
	case util.StoreMemory:
		return NewMemoryBackend(), nil
	case util.StoreBolt:
		return OpenBolt(cfg.Bolt.Path)
	case util.StoreRedis:
		rdb, err := InitRedis(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(rdb, cfg.Store.Namespace, cfg.Redis.Channel), nil
	case util.StoreMySQL:
		db, err := InitDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewGormBackend(db, cfg.Store.PollInterval), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
