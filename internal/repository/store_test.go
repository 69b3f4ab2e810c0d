package repository

import (
	"context"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/database"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) handle(v []byte) {
	r.mu.Lock()
	r.values = append(r.values, string(v))
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestSharedStoreDeliversOnlyForeignWrites(t *testing.T) {
	backend := database.NewMemoryBackend()
	a := startStore(t, backend)
	b := startStore(t, backend)

	var gotA, gotB recorder
	a.Subscribe("tests", gotA.handle)
	b.Subscribe("tests", gotB.handle)

	require.NoError(t, a.Write(context.Background(), "tests", []byte(`["x"]`)))

	assert.Eventually(t, func() bool {
		return len(gotB.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`["x"]`}, gotB.snapshot())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, gotA.snapshot())
}

func TestSharedStoreUnsubscribe(t *testing.T) {
	backend := database.NewMemoryBackend()
	a := startStore(t, backend)
	b := startStore(t, backend)

	var first, second recorder
	cancel := b.Subscribe("tests", first.handle)
	b.Subscribe("tests", second.handle)
	cancel()

	require.NoError(t, a.Write(context.Background(), "tests", []byte(`1`)))
	assert.Eventually(t, func() bool {
		return len(second.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, first.snapshot())
}

func TestSharedStoreDropsSeenVersions(t *testing.T) {
	backend := database.NewMemoryBackend()
	writer := NewSharedStore(backend)
	reader := NewSharedStore(backend)

	var got recorder
	reader.Subscribe("tests", got.handle)

	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, "tests", []byte(`1`)))
	change := database.Change{Key: "tests", Version: 1, Origin: writer.Origin()}

	reader.apply(ctx, change)
	reader.apply(ctx, change)
	assert.Equal(t, []string{`1`}, got.snapshot())

	// A stale notice for an older version re-reads nothing new.
	require.NoError(t, writer.Write(ctx, "tests", []byte(`2`)))
	reader.apply(ctx, database.Change{Key: "tests", Version: 2, Origin: writer.Origin()})
	reader.apply(ctx, change)
	assert.Equal(t, []string{`1`, `2`}, got.snapshot())
}

func TestSharedStoreReadsLatestOnNotice(t *testing.T) {
	backend := database.NewMemoryBackend()
	writer := NewSharedStore(backend)
	reader := NewSharedStore(backend)

	var got recorder
	reader.Subscribe("tests", got.handle)

	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, "tests", []byte(`1`)))
	require.NoError(t, writer.Write(ctx, "tests", []byte(`2`)))

	reader.apply(ctx, database.Change{Key: "tests", Version: 1, Origin: writer.Origin()})
	reader.apply(ctx, database.Change{Key: "tests", Version: 2, Origin: writer.Origin()})
	assert.Equal(t, []string{`2`}, got.snapshot())
}

func TestSharedStoreIgnoresOwnOrigin(t *testing.T) {
	backend := database.NewMemoryBackend()
	s := NewSharedStore(backend)

	var got recorder
	s.Subscribe("tests", got.handle)

	ctx := context.Background()
	_, err := backend.Put(ctx, "tests", []byte(`mine`), s.Origin())
	require.NoError(t, err)
	s.apply(ctx, database.Change{Key: "tests", Version: 1, Origin: "someone-else"})
	assert.Empty(t, got.snapshot())
}

func TestSharedStoreWriteFailure(t *testing.T) {
	backend := newFlakyBackend()
	s := NewSharedStore(backend)
	backend.setFailPut(true)

	err := s.Write(context.Background(), "tests", []byte(`1`))
	require.Error(t, err)
	assert.True(t, util.IsPersistenceError(err))
	assert.ErrorIs(t, err, errBackendDown)

	_, ok, err := s.Read(context.Background(), "tests")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSharedStoreReadFailure(t *testing.T) {
	backend := newFlakyBackend()
	backend.setFailGet(true)
	s := NewSharedStore(backend)

	_, _, err := s.Read(context.Background(), "tests")
	assert.True(t, util.IsPersistenceError(err))
}
