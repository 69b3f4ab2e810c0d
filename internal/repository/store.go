package repository

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/database"
	"edutest_backend/pkg/logger"
	"edutest_backend/pkg/monitoring"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Handler receives the full latest value of a key written by another client.
type Handler func(value []byte)

type subscription struct {
	id int
	fn Handler
}

// SharedStore is one client of a shared versioned key-value backend. Writes
// made through it are tagged with its origin, and Subscribe only reports
// writes from other origins.
type SharedStore struct {
	backend database.Backend
	origin  string

	mu       sync.Mutex
	handlers map[string][]subscription
	versions map[string]int64
	nextID   int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSharedStore(backend database.Backend) *SharedStore {
	return &SharedStore{
		backend:  backend,
		origin:   model.GenerateUUID(),
		handlers: make(map[string][]subscription),
		versions: make(map[string]int64),
	}
}

func (s *SharedStore) Origin() string {
	return s.origin
}

// Start begins applying changes from other clients. Handlers run one at a
// time on the watch goroutine, in observed order.
func (s *SharedStore) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.backend.Watch(ctx)
	if err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for c := range changes {
			s.apply(ctx, c)
		}
	}()
	return nil
}

// Stop ends the watch loop. It does not close the backend.
func (s *SharedStore) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *SharedStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, &util.PersistenceError{Key: key, Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	s.seen(key, entry.Version)
	return entry.Value, true, nil
}

// Write replaces the value of key. A failure leaves the backend unchanged
// and is reported as *util.PersistenceError.
func (s *SharedStore) Write(ctx context.Context, key string, value []byte) error {
	entry, err := s.backend.Put(ctx, key, value, s.origin)
	if err != nil {
		monitoring.StoreWrites.WithLabelValues(key, "error").Inc()
		logger.Log.Error("shared store write failed", zap.String("key", key), zap.Error(err))
		return &util.PersistenceError{Key: key, Err: err}
	}
	monitoring.StoreWrites.WithLabelValues(key, "ok").Inc()
	s.seen(key, entry.Version)
	return nil
}

// Subscribe registers h for writes to key made by other clients and returns
// a function that removes it.
func (s *SharedStore) Subscribe(key string, h Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[key] = append(s.handlers[key], subscription{id: id, fn: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.handlers[key]
		for i, sub := range subs {
			if sub.id == id {
				s.handlers[key] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (s *SharedStore) seen(key string, version int64) {
	s.mu.Lock()
	if version > s.versions[key] {
		s.versions[key] = version
	}
	s.mu.Unlock()
}

func (s *SharedStore) apply(ctx context.Context, c database.Change) {
	if c.Origin == s.origin {
		s.seen(c.Key, c.Version)
		return
	}

	s.mu.Lock()
	if c.Version <= s.versions[c.Key] {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Re-read so the handler sees the newest value, not the one announced.
	entry, ok, err := s.backend.Get(ctx, c.Key)
	if err != nil {
		logger.Log.Warn("shared store re-read failed", zap.String("key", c.Key), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	s.mu.Lock()
	if entry.Version <= s.versions[c.Key] {
		s.mu.Unlock()
		return
	}
	s.versions[c.Key] = entry.Version
	subs := append([]subscription(nil), s.handlers[c.Key]...)
	s.mu.Unlock()

	if entry.Origin == s.origin {
		return
	}

	monitoring.StoreRemoteUpdates.WithLabelValues(c.Key).Inc()
	for _, sub := range subs {
		sub.fn(entry.Value)
	}
}

func readJSON[T any](ctx context.Context, s *SharedStore, key string) (T, bool, error) {
	var out T
	data, ok, err := s.Read(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, true, err
	}
	return out, true, nil
}

func writeJSON(ctx context.Context, s *SharedStore, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &util.PersistenceError{Key: key, Err: err}
	}
	return s.Write(ctx, key, data)
}
