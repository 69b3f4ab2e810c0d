package service

import (
	"context"
	"edutest_backend/internal/model"
	"errors"
	"fmt"
	"sync"
	"time"
)

func question(id string, d model.Difficulty, answer string) model.Question {
	return model.Question{
		ID:            id,
		Type:          "Ngữ pháp",
		Difficulty:    d,
		Content:       "Question " + id,
		Options:       model.Options{A: "a", B: "b", C: "c", D: "d"},
		CorrectAnswer: answer,
	}
}

// twoQuestionTest has correct answers q1:A and q2:B.
func twoQuestionTest() model.Test {
	return model.Test{
		ID:       "t1",
		Title:    "Unit 1",
		Grade:    6,
		Topic:    "My New School",
		Duration: 1,
		Questions: []model.Question{
			question("q1", model.Recall, model.OptionA),
			question("q2", model.Comprehension, model.OptionB),
		},
		CreatedAt:     time.Now(),
		AssignedClass: "6A1",
	}
}

// tieredTest has one question per tier plus a second recall question.
func tieredTest(id string) model.Test {
	return model.Test{
		ID:       id,
		Title:    "Test " + id,
		Grade:    7,
		Topic:    "Hobbies",
		Duration: 15,
		Questions: []model.Question{
			question(id+"-1", model.Recall, model.OptionA),
			question(id+"-2", model.Recall, model.OptionB),
			question(id+"-3", model.Comprehension, model.OptionC),
			question(id+"-4", model.Application, model.OptionD),
			question(id+"-5", model.HighApplication, model.OptionA),
		},
	}
}

type fakeCatalog map[string]model.Test

func (c fakeCatalog) FindByID(id string) (model.Test, bool) {
	t, ok := c[id]
	return t, ok
}

func (c fakeCatalog) List() []model.Test {
	out := make([]model.Test, 0, len(c))
	for _, t := range c {
		out = append(out, t)
	}
	return out
}

var errStoreDown = errors.New("store down")

// memorySubmissions is an in-memory submission history that can be told to
// fail writes.
type memorySubmissions struct {
	mu      sync.Mutex
	subs    []model.Submission
	fail    bool
	appends int
	block   chan struct{}
}

func (m *memorySubmissions) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func (m *memorySubmissions) Append(_ context.Context, sub model.Submission) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.fail {
		return fmt.Errorf("append %s: %w", sub.ID, errStoreDown)
	}
	for _, s := range m.subs {
		if s.ID == sub.ID {
			return nil
		}
	}
	m.subs = append(m.subs, sub)
	return nil
}

func (m *memorySubmissions) AttachFeedback(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStoreDown
	}
	for i := range m.subs {
		if m.subs[i].ID == id {
			m.subs[i].AIFeedback = text
			return nil
		}
	}
	return errors.New("submission not found")
}

func (m *memorySubmissions) List() []model.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Submission(nil), m.subs...)
}

func (m *memorySubmissions) FindByID(id string) (model.Submission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return s, true
		}
	}
	return model.Submission{}, false
}

func (m *memorySubmissions) appendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}
