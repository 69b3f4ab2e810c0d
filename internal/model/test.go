package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID returns a new random id for tests, questions and submissions.
func GenerateUUID() string {
	return uuid.New().String()
}

// Test is an assessment definition. Question order defines numbering.
type Test struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Grade         int        `json:"grade"`
	Topic         string     `json:"topic"`
	Duration      int        `json:"duration"` // Minutes
	Questions     []Question `json:"questions"`
	CreatedAt     time.Time  `json:"createdAt"`
	AssignedClass string     `json:"assignedClass"`
}

func (t Test) DurationSeconds() int {
	return t.Duration * 60
}

func (t Test) HasQuestion(id string) bool {
	for _, q := range t.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// Check validates a test before it enters the catalog.
func (t Test) Check() error {
	if t.ID == "" {
		return fmt.Errorf("test id is empty")
	}
	if len(t.Questions) == 0 {
		return fmt.Errorf("test %s has no questions", t.ID)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("test %s: duration must be positive", t.ID)
	}
	seen := make(map[string]bool, len(t.Questions))
	for _, q := range t.Questions {
		if err := q.Check(); err != nil {
			return err
		}
		if seen[q.ID] {
			return fmt.Errorf("test %s: duplicate question id %s", t.ID, q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// DefaultClass mirrors the class label given to generated tests, e.g. 6A1.
func DefaultClass(grade int) string {
	return fmt.Sprintf("%dA1", grade)
}
