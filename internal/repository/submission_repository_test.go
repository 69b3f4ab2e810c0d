package repository

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/database"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSubmission(id string) model.Submission {
	return model.Submission{
		ID:          id,
		TestID:      "t1",
		StudentName: "An",
		StudentID:   "student-" + id,
		Answers:     model.AnswerSet{"t1-q1": "B"},
		Score:       10,
		CompletedAt: time.Now(),
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	backend := newFlakyBackend()
	repo := NewSubmissionRepository(NewSharedStore(backend))
	require.NoError(t, repo.Load(context.Background()))
	assert.Empty(t, repo.List())

	backend.setFailPut(true)
	err := repo.Append(context.Background(), sampleSubmission("s1"))
	assert.True(t, util.IsPersistenceError(err))
	assert.Len(t, repo.List(), 1)

	backend.setFailPut(false)
	require.NoError(t, repo.Append(context.Background(), sampleSubmission("s1")))
	assert.Len(t, repo.List(), 1)

	other := NewSubmissionRepository(NewSharedStore(backend))
	require.NoError(t, other.Load(context.Background()))
	require.Len(t, other.List(), 1)
	assert.Equal(t, "s1", other.List()[0].ID)
}

func TestAppendKeepsCompletionOrder(t *testing.T) {
	repo := NewSubmissionRepository(NewSharedStore(database.NewMemoryBackend()))
	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, repo.Append(context.Background(), sampleSubmission(id)))
	}
	subs := repo.List()
	require.Len(t, subs, 3)
	assert.Equal(t, "s1", subs[0].ID)
	assert.Equal(t, "s3", subs[2].ID)
}

func TestAttachFeedback(t *testing.T) {
	backend := database.NewMemoryBackend()
	repo := NewSubmissionRepository(NewSharedStore(backend))
	require.NoError(t, repo.Append(context.Background(), sampleSubmission("s1")))

	require.NoError(t, repo.AttachFeedback(context.Background(), "s1", "Làm tốt lắm"))
	got, ok := repo.FindByID("s1")
	require.True(t, ok)
	assert.Equal(t, "Làm tốt lắm", got.AIFeedback)
	assert.Equal(t, 10.0, got.Score)

	assert.ErrorIs(t, repo.AttachFeedback(context.Background(), "missing", "x"), util.ErrSubmissionNotFound)

	other := NewSubmissionRepository(NewSharedStore(backend))
	require.NoError(t, other.Load(context.Background()))
	stored, ok := other.FindByID("s1")
	require.True(t, ok)
	assert.Equal(t, "Làm tốt lắm", stored.AIFeedback)
}

func TestRemoteHistoryReplacesLocal(t *testing.T) {
	backend := database.NewMemoryBackend()
	local := NewSubmissionRepository(startStore(t, backend))
	remote := NewSubmissionRepository(startStore(t, backend))

	require.NoError(t, local.Append(context.Background(), sampleSubmission("local")))
	require.NoError(t, remote.Append(context.Background(), sampleSubmission("remote")))

	ids := func(r *SubmissionRepository) []string {
		var out []string
		for _, s := range r.List() {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Eventually(t, func() bool {
		got := ids(local)
		return len(got) > 0 && got[len(got)-1] == "remote" && assert.ObjectsAreEqual(ids(remote), got)
	}, 2*time.Second, 10*time.Millisecond)
}
