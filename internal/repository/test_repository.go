package repository

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SeedTest is the placeholder stored when the catalog has never been written.
func SeedTest(now time.Time) model.Test {
	return model.Test{
		ID:       "mock-test-1",
		Title:    "Kiểm tra khảo sát - Unit 1: My New School",
		Grade:    6,
		Topic:    "My New School",
		Duration: 15,
		Questions: []model.Question{
			{
				ID:            "sample-1",
				Type:          "Ngữ pháp",
				Difficulty:    model.Recall,
				Content:       "My new school ______ a large playground and many modern classrooms.",
				Options:       model.Options{A: "has", B: "have", C: "is having", D: "are having"},
				CorrectAnswer: model.OptionA,
				Explanation:   "Chủ ngữ 'My new school' là danh từ số ít, nên động từ 'have' phải chia là 'has' ở thì Hiện tại đơn.",
			},
			{
				ID:            "sample-2",
				Type:          "Từ vựng",
				Difficulty:    model.Comprehension,
				Content:       "Students usually ______ their homework after dinner.",
				Options:       model.Options{A: "make", B: "do", C: "play", D: "study"},
				CorrectAnswer: model.OptionB,
				Explanation:   "Cụm từ cố định (Collocation): 'do homework' nghĩa là làm bài tập về nhà.",
			},
		},
		CreatedAt:     now,
		AssignedClass: "6A1",
	}
}

// TestRepository is the catalog, newest test first.
type TestRepository struct {
	Store *SharedStore

	writeMu   sync.Mutex
	mu        sync.RWMutex
	tests     []model.Test
	listeners []func()
}

func NewTestRepository(store *SharedStore) *TestRepository {
	r := &TestRepository{Store: store}
	store.Subscribe(util.KeyTests, r.applyRemote)
	return r
}

// Load reads the catalog from the store, seeding it when the key is absent.
func (r *TestRepository) Load(ctx context.Context) error {
	tests, ok, err := readJSON[[]model.Test](ctx, r.Store, util.KeyTests)
	if err != nil {
		return err
	}
	if ok {
		r.replace(tests)
		return nil
	}

	seed := []model.Test{SeedTest(time.Now())}
	r.replace(seed)
	if err := writeJSON(ctx, r.Store, util.KeyTests, seed); err != nil {
		logger.Log.Warn("Failed to persist seed test, keeping it in memory", zap.Error(err))
	}
	return nil
}

func (r *TestRepository) List() []model.Test {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Test(nil), r.tests...)
}

// ListTakeable returns the tests a student can start.
func (r *TestRepository) ListTakeable() []model.Test {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Test, 0, len(r.tests))
	for _, t := range r.tests {
		if len(t.Questions) > 0 {
			out = append(out, t)
		}
	}
	return out
}

func (r *TestRepository) FindByID(id string) (model.Test, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tests {
		if t.ID == id {
			return t, true
		}
	}
	return model.Test{}, false
}

// Add prepends test and persists the catalog. A persistence failure keeps
// the addition in memory.
func (r *TestRepository) Add(ctx context.Context, test model.Test) error {
	if len(test.Questions) == 0 {
		return util.NewValidationError("questions", "test has no questions")
	}
	if err := test.Check(); err != nil {
		return util.NewValidationError("test", "%v", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.tests = append([]model.Test{test}, r.tests...)
	snapshot := append([]model.Test(nil), r.tests...)
	r.mu.Unlock()

	r.notify()
	return writeJSON(ctx, r.Store, util.KeyTests, snapshot)
}

// Remove drops a test. Submissions that reference it become orphans.
func (r *TestRepository) Remove(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	idx := -1
	for i, t := range r.tests {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return util.ErrTestNotFound
	}
	r.tests = append(r.tests[:idx:idx], r.tests[idx+1:]...)
	snapshot := append([]model.Test(nil), r.tests...)
	r.mu.Unlock()

	r.notify()
	return writeJSON(ctx, r.Store, util.KeyTests, snapshot)
}

// OnChange registers fn to run after every local or remote catalog change.
func (r *TestRepository) OnChange(fn func()) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *TestRepository) applyRemote(value []byte) {
	var tests []model.Test
	if err := json.Unmarshal(value, &tests); err != nil {
		logger.Log.Warn("Ignoring malformed remote catalog", zap.Error(err))
		return
	}
	r.replace(tests)
	r.notify()
}

func (r *TestRepository) replace(tests []model.Test) {
	if tests == nil {
		tests = []model.Test{}
	}
	r.mu.Lock()
	r.tests = tests
	r.mu.Unlock()
}

func (r *TestRepository) notify() {
	r.mu.RLock()
	fns := append([]func(){}, r.listeners...)
	r.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
