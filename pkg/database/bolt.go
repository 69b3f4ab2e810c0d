package database

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var storeBucket = []byte("Store")

type boltRecord struct {
	Value     []byte    `json:"value"`
	Version   int64     `json:"version"`
	Origin    string    `json:"origin"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoltBackend persists entries in a single bbolt file. bbolt holds an
// exclusive file lock, so every client of the file must share this value
// within one process; change notification is in-process.
type BoltBackend struct {
	db  *bbolt.DB
	hub *notifier
}

// OpenBolt opens (or creates) the database file at path.
func OpenBolt(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(storeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBackend{db: db, hub: newNotifier()}, nil
}

func (b *BoltBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	var (
		rec   boltRecord
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(storeBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil || !found {
		return Entry{}, false, err
	}
	return Entry{
		Key:       key,
		Value:     rec.Value,
		Version:   rec.Version,
		Origin:    rec.Origin,
		UpdatedAt: rec.UpdatedAt,
	}, true, nil
}

func (b *BoltBackend) Put(_ context.Context, key string, value []byte, origin string) (Entry, error) {
	rec := boltRecord{
		Value:     value,
		Origin:    origin,
		UpdatedAt: time.Now(),
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(storeBucket)
		if prev := bucket.Get([]byte(key)); prev != nil {
			var old boltRecord
			if err := json.Unmarshal(prev, &old); err != nil {
				return err
			}
			rec.Version = old.Version
		}
		rec.Version++
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
	if err != nil {
		return Entry{}, err
	}

	b.hub.publish(Change{Key: key, Version: rec.Version, Origin: origin})
	return Entry{
		Key:       key,
		Value:     value,
		Version:   rec.Version,
		Origin:    origin,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (b *BoltBackend) Watch(ctx context.Context) (<-chan Change, error) {
	return b.hub.watch(ctx), nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
