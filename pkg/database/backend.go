package database

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("store backend closed")

// Entry is the stored state of one logical key.
type Entry struct {
	Key       string
	Value     []byte
	Version   int64
	Origin    string
	UpdatedAt time.Time
}

// Change announces that Key reached Version through a write by Origin.
// It carries no value: receivers re-read the key so they always observe
// the latest write.
type Change struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
	Origin  string `json:"origin"`
}

// Backend is a versioned key-value medium shared by every client of one
// deployment. Concurrent writers are not arbitrated: the last physical Put
// wins.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, value []byte, origin string) (Entry, error)
	// Watch delivers changes until ctx is done, then closes the channel.
	Watch(ctx context.Context) (<-chan Change, error)
	Close() error
}
