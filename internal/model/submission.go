package model

import "time"

// AnswerSet maps a question id to the selected option label.
type AnswerSet map[string]string

func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Submission is created once per completed session. AIFeedback is the only
// field set after creation.
type Submission struct {
	ID          string    `json:"id"`
	TestID      string    `json:"testId"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	Answers     AnswerSet `json:"answers"`
	Score       float64   `json:"score"`
	CompletedAt time.Time `json:"completedAt"`
	AIFeedback  string    `json:"aiFeedback,omitempty"`
}

type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionInProgress SessionState = "in_progress"
	SessionSubmitted  SessionState = "submitted"
)
