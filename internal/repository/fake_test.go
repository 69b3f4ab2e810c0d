package repository

import (
	"context"
	"edutest_backend/pkg/database"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend down")

// flakyBackend wraps a MemoryBackend and fails writes while failPut is set.
type flakyBackend struct {
	*database.MemoryBackend

	mu      sync.Mutex
	failPut bool
	failGet bool
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryBackend: database.NewMemoryBackend()}
}

func (b *flakyBackend) setFailPut(v bool) {
	b.mu.Lock()
	b.failPut = v
	b.mu.Unlock()
}

func (b *flakyBackend) setFailGet(v bool) {
	b.mu.Lock()
	b.failGet = v
	b.mu.Unlock()
}

func (b *flakyBackend) Get(ctx context.Context, key string) (database.Entry, bool, error) {
	b.mu.Lock()
	fail := b.failGet
	b.mu.Unlock()
	if fail {
		return database.Entry{}, false, errBackendDown
	}
	return b.MemoryBackend.Get(ctx, key)
}

func (b *flakyBackend) Put(ctx context.Context, key string, value []byte, origin string) (database.Entry, error) {
	b.mu.Lock()
	fail := b.failPut
	b.mu.Unlock()
	if fail {
		return database.Entry{}, errBackendDown
	}
	return b.MemoryBackend.Put(ctx, key, value, origin)
}

func startStore(t *testing.T, backend database.Backend) *SharedStore {
	t.Helper()
	s := NewSharedStore(backend)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	return s
}
