package database

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps entries in process memory. Several shared-store
// clients may use one MemoryBackend to simulate separate open views.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
	hub     *notifier
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]Entry),
		hub:     newNotifier(),
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Entry{}, false, ErrClosed
	}
	e, ok := b.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	e.Value = append([]byte(nil), e.Value...)
	return e, true, nil
}

func (b *MemoryBackend) Put(_ context.Context, key string, value []byte, origin string) (Entry, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Entry{}, ErrClosed
	}
	e := Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Version:   b.entries[key].Version + 1,
		Origin:    origin,
		UpdatedAt: time.Now(),
	}
	b.entries[key] = e
	b.mu.Unlock()

	b.hub.publish(Change{Key: key, Version: e.Version, Origin: origin})
	return e, nil
}

func (b *MemoryBackend) Watch(ctx context.Context) (<-chan Change, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return b.hub.watch(ctx), nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
