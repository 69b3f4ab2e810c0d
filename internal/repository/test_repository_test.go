package repository

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/database"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTest(id string) model.Test {
	return model.Test{
		ID:       id,
		Title:    "Unit " + id,
		Grade:    7,
		Topic:    "Hobbies",
		Duration: 10,
		Questions: []model.Question{{
			ID:            id + "-q1",
			Type:          "Ngữ pháp",
			Difficulty:    model.Application,
			Content:       "I enjoy ______ stamps.",
			Options:       model.Options{A: "collect", B: "collecting", C: "to collecting", D: "collected"},
			CorrectAnswer: model.OptionB,
		}},
		CreatedAt:     time.Now(),
		AssignedClass: "7A1",
	}
}

func TestLoadSeedsEmptyCatalog(t *testing.T) {
	backend := database.NewMemoryBackend()
	repo := NewTestRepository(NewSharedStore(backend))
	require.NoError(t, repo.Load(context.Background()))

	tests := repo.List()
	require.Len(t, tests, 1)
	assert.Equal(t, "mock-test-1", tests[0].ID)
	assert.Len(t, tests[0].Questions, 2)
	assert.NoError(t, tests[0].Check())

	entry, ok, err := backend.Get(context.Background(), util.KeyTests)
	require.NoError(t, err)
	require.True(t, ok)
	var stored []model.Test
	require.NoError(t, json.Unmarshal(entry.Value, &stored))
	assert.Equal(t, "mock-test-1", stored[0].ID)
}

func TestLoadKeepsEmptyStoredCatalog(t *testing.T) {
	backend := database.NewMemoryBackend()
	_, err := backend.Put(context.Background(), util.KeyTests, []byte(`[]`), "other")
	require.NoError(t, err)

	repo := NewTestRepository(NewSharedStore(backend))
	require.NoError(t, repo.Load(context.Background()))
	assert.Empty(t, repo.List())
}

func TestLoadSeedSurvivesWriteFailure(t *testing.T) {
	backend := newFlakyBackend()
	backend.setFailPut(true)
	repo := NewTestRepository(NewSharedStore(backend))

	require.NoError(t, repo.Load(context.Background()))
	assert.Len(t, repo.List(), 1)
}

func TestAddPrependsAndPersists(t *testing.T) {
	backend := database.NewMemoryBackend()
	repo := NewTestRepository(NewSharedStore(backend))
	require.NoError(t, repo.Load(context.Background()))

	var changes int32
	repo.OnChange(func() { atomic.AddInt32(&changes, 1) })

	require.NoError(t, repo.Add(context.Background(), sampleTest("t1")))
	require.NoError(t, repo.Add(context.Background(), sampleTest("t2")))

	tests := repo.List()
	require.Len(t, tests, 3)
	assert.Equal(t, "t2", tests[0].ID)
	assert.Equal(t, "t1", tests[1].ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&changes))

	other := NewTestRepository(NewSharedStore(backend))
	require.NoError(t, other.Load(context.Background()))
	assert.Equal(t, tests[0].ID, other.List()[0].ID)
}

func TestAddRejectsInvalidTest(t *testing.T) {
	repo := NewTestRepository(NewSharedStore(database.NewMemoryBackend()))

	empty := sampleTest("empty")
	empty.Questions = nil
	err := repo.Add(context.Background(), empty)
	assert.True(t, util.IsValidationError(err))

	bad := sampleTest("bad")
	bad.Questions[0].CorrectAnswer = "E"
	err = repo.Add(context.Background(), bad)
	assert.True(t, util.IsValidationError(err))

	assert.Empty(t, repo.List())
}

func TestAddKeepsTestWhenPersistFails(t *testing.T) {
	backend := newFlakyBackend()
	repo := NewTestRepository(NewSharedStore(backend))
	backend.setFailPut(true)

	err := repo.Add(context.Background(), sampleTest("t1"))
	require.Error(t, err)
	assert.True(t, util.IsPersistenceError(err))

	got, ok := repo.FindByID("t1")
	require.True(t, ok)
	assert.Equal(t, "Unit t1", got.Title)
}

func TestRemove(t *testing.T) {
	repo := NewTestRepository(NewSharedStore(database.NewMemoryBackend()))
	require.NoError(t, repo.Add(context.Background(), sampleTest("t1")))
	require.NoError(t, repo.Add(context.Background(), sampleTest("t2")))

	require.NoError(t, repo.Remove(context.Background(), "t1"))
	_, ok := repo.FindByID("t1")
	assert.False(t, ok)
	assert.Len(t, repo.List(), 1)

	assert.ErrorIs(t, repo.Remove(context.Background(), "t1"), util.ErrTestNotFound)
}

func TestListTakeableSkipsEmptyTests(t *testing.T) {
	repo := NewTestRepository(NewSharedStore(database.NewMemoryBackend()))
	empty := sampleTest("empty")
	empty.Questions = nil
	repo.replace([]model.Test{sampleTest("t1"), empty})

	takeable := repo.ListTakeable()
	require.Len(t, takeable, 1)
	assert.Equal(t, "t1", takeable[0].ID)
}

func TestRemoteCatalogReplacesLocal(t *testing.T) {
	backend := database.NewMemoryBackend()
	local := NewTestRepository(startStore(t, backend))
	remote := NewTestRepository(startStore(t, backend))
	require.NoError(t, local.Load(context.Background()))
	require.NoError(t, remote.Load(context.Background()))

	changed := make(chan struct{}, 8)
	local.OnChange(func() { changed <- struct{}{} })

	require.NoError(t, remote.Remove(context.Background(), "mock-test-1"))
	require.NoError(t, remote.Add(context.Background(), sampleTest("r1")))

	assert.Eventually(t, func() bool {
		tests := local.List()
		return len(tests) == 1 && tests[0].ID == "r1"
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, changed)
}

func TestRemoteMalformedCatalogIgnored(t *testing.T) {
	repo := NewTestRepository(NewSharedStore(database.NewMemoryBackend()))
	repo.replace([]model.Test{sampleTest("t1")})

	repo.applyRemote([]byte(`{not json`))
	assert.Len(t, repo.List(), 1)
}
