package repository

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// SubmissionRepository holds the submission history in completion order.
type SubmissionRepository struct {
	Store *SharedStore

	writeMu   sync.Mutex
	mu        sync.RWMutex
	subs      []model.Submission
	listeners []func()
}

func NewSubmissionRepository(store *SharedStore) *SubmissionRepository {
	r := &SubmissionRepository{Store: store}
	store.Subscribe(util.KeySubmissions, r.applyRemote)
	return r
}

func (r *SubmissionRepository) Load(ctx context.Context) error {
	subs, _, err := readJSON[[]model.Submission](ctx, r.Store, util.KeySubmissions)
	if err != nil {
		return err
	}
	r.replace(subs)
	return nil
}

func (r *SubmissionRepository) List() []model.Submission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Submission, len(r.subs))
	copy(out, r.subs)
	return out
}

func (r *SubmissionRepository) FindByID(id string) (model.Submission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		if s.ID == id {
			return s, true
		}
	}
	return model.Submission{}, false
}

// Append records sub and persists the history. Appending an id that is
// already present only re-persists, so a retried submit never duplicates.
func (r *SubmissionRepository) Append(ctx context.Context, sub model.Submission) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	exists := false
	for _, s := range r.subs {
		if s.ID == sub.ID {
			exists = true
			break
		}
	}
	if !exists {
		r.subs = append(r.subs, sub)
	}
	snapshot := append([]model.Submission(nil), r.subs...)
	r.mu.Unlock()

	if !exists {
		r.notify()
	}
	return writeJSON(ctx, r.Store, util.KeySubmissions, snapshot)
}

// AttachFeedback sets the feedback text of one submission and persists the
// whole history.
func (r *SubmissionRepository) AttachFeedback(ctx context.Context, id, text string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	found := false
	for i := range r.subs {
		if r.subs[i].ID == id {
			r.subs[i].AIFeedback = text
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return util.ErrSubmissionNotFound
	}
	snapshot := append([]model.Submission(nil), r.subs...)
	r.mu.Unlock()

	r.notify()
	return writeJSON(ctx, r.Store, util.KeySubmissions, snapshot)
}

func (r *SubmissionRepository) OnChange(fn func()) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *SubmissionRepository) applyRemote(value []byte) {
	var subs []model.Submission
	if err := json.Unmarshal(value, &subs); err != nil {
		logger.Log.Warn("Ignoring malformed remote submission history", zap.Error(err))
		return
	}
	r.replace(subs)
	r.notify()
}

func (r *SubmissionRepository) replace(subs []model.Submission) {
	if subs == nil {
		subs = []model.Submission{}
	}
	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()
}

func (r *SubmissionRepository) notify() {
	r.mu.RLock()
	fns := append([]func(){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
