package service

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"
	"edutest_backend/pkg/monitoring"
	"edutest_backend/pkg/tracing"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	PathManual  = "manual"
	PathTimeout = "timeout"
)

// SubmissionSink persists a finished submission. Appending the same id twice
// must not create a second record.
type SubmissionSink interface {
	Append(ctx context.Context, sub model.Submission) error
}

// Session is one student's attempt at one test.
type Session struct {
	Student model.User

	sink     SubmissionSink
	interval time.Duration
	now      func() time.Time

	// OnSubmitted is called after a submission is persisted. It must not block.
	OnSubmitted func(sub model.Submission, test model.Test)

	mu         sync.Mutex
	state      model.SessionState
	test       model.Test
	answers    model.AnswerSet
	remaining  int
	pending    *model.Submission
	persisting bool
	result     *model.Submission
	lastErr    error

	stop     chan struct{}
	stopOnce *sync.Once
}

func NewSession(student model.User, sink SubmissionSink, interval time.Duration) *Session {
	if interval <= 0 {
		interval = time.Second
	}
	return &Session{
		Student:  student,
		sink:     sink,
		interval: interval,
		now:      time.Now,
		state:    model.SessionIdle,
		answers:  model.AnswerSet{},
	}
}

// Start begins the countdown. It is a no-op while a test is in progress.
func (s *Session) Start(test model.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case model.SessionInProgress:
		return nil
	case model.SessionSubmitted:
		return util.ErrAlreadySubmitted
	}
	if test.DurationSeconds() <= 0 {
		return util.NewValidationError("duration", "test %s has no time limit", test.ID)
	}

	s.test = test
	s.answers = model.AnswerSet{}
	s.remaining = test.DurationSeconds()
	s.state = model.SessionInProgress
	s.stop = make(chan struct{})
	s.stopOnce = &sync.Once{}
	monitoring.ActiveSessions.Inc()

	go s.run(s.stop)
	return nil
}

func (s *Session) run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// stopTicker must be called with mu held.
func (s *Session) stopTicker() {
	if s.stopOnce != nil {
		s.stopOnce.Do(func() { close(s.stop) })
	}
}

// Answer records one selection, replacing any earlier one for the question.
func (s *Session) Answer(questionID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != model.SessionInProgress {
		return util.ErrSessionNotInProgress
	}
	if !model.ValidOption(label) {
		return util.NewValidationError("option", "%q is not one of A-D", label)
	}
	if !s.test.HasQuestion(questionID) {
		return util.NewValidationError("questionId", "question %s is not part of test %s", questionID, s.test.ID)
	}
	s.answers[questionID] = label
	return nil
}

// Tick advances the countdown by one second and submits when time runs out.
func (s *Session) Tick() {
	s.mu.Lock()
	if s.state != model.SessionInProgress {
		s.mu.Unlock()
		return
	}
	s.remaining--
	expired := s.remaining <= 0
	if expired {
		s.remaining = 0
	}
	s.mu.Unlock()

	if !expired {
		return
	}
	sub, err := s.submit(context.Background(), PathTimeout)
	if err != nil {
		logger.Log.Warn("Timed-out submission failed",
			zap.String("student", s.Student.ID),
			zap.Error(err))
		return
	}
	logger.Log.Info("Test auto-submitted on timeout",
		zap.String("student", s.Student.ID),
		zap.String("submission", sub.ID),
		zap.Float64("score", sub.Score))
}

// Submit grades and persists the attempt. Only the first call moves the
// session out of progress; later calls return ErrAlreadySubmitted unless a
// previous attempt failed to persist, in which case the same submission is
// persisted again.
func (s *Session) Submit(ctx context.Context) (model.Submission, error) {
	return s.submit(ctx, PathManual)
}

func (s *Session) submit(ctx context.Context, path string) (model.Submission, error) {
	ctx, span := tracing.Start(ctx, "session.submit")
	defer span.End()
	span.SetAttributes(attribute.String("path", path))

	s.mu.Lock()
	switch s.state {
	case model.SessionIdle:
		s.mu.Unlock()
		return model.Submission{}, util.ErrSessionNotInProgress
	case model.SessionSubmitted:
		if s.pending == nil || s.persisting {
			s.mu.Unlock()
			return model.Submission{}, util.ErrAlreadySubmitted
		}
	case model.SessionInProgress:
		s.state = model.SessionSubmitted
		s.stopTicker()
		monitoring.ActiveSessions.Dec()
		sub := s.build()
		s.pending = &sub
	}
	sub := *s.pending
	test := s.test
	s.persisting = true
	s.mu.Unlock()

	err := s.sink.Append(ctx, sub)

	s.mu.Lock()
	s.persisting = false
	s.lastErr = err
	if err == nil {
		s.pending = nil
		s.result = &sub
	}
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		return sub, err
	}

	monitoring.Submissions.WithLabelValues(path).Inc()
	if s.OnSubmitted != nil {
		s.OnSubmitted(sub, test)
	}
	return sub, nil
}

// build must be called with mu held.
func (s *Session) build() model.Submission {
	score, err := Score(s.test, s.answers)
	if err != nil {
		logger.Log.Warn("Scoring degraded to 0", zap.String("test", s.test.ID), zap.Error(err))
	}
	return model.Submission{
		ID:          model.GenerateUUID(),
		TestID:      s.test.ID,
		StudentName: s.Student.Name,
		StudentID:   s.Student.ID,
		Answers:     s.answers.Clone(),
		Score:       score,
		CompletedAt: s.now(),
	}
}

// Discard stops the countdown without persisting anything.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == model.SessionInProgress {
		s.state = model.SessionIdle
		monitoring.ActiveSessions.Dec()
	}
	s.stopTicker()
}

type SessionStatus struct {
	State            model.SessionState `json:"state"`
	TestID           string             `json:"testId,omitempty"`
	RemainingSeconds int                `json:"remainingSeconds"`
	Answers          model.AnswerSet    `json:"answers"`
	Result           *model.Submission  `json:"result,omitempty"`
	Pending          bool               `json:"pending"`
	Error            string             `json:"error,omitempty"`
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionStatus{
		State:            s.state,
		TestID:           s.test.ID,
		RemainingSeconds: s.remaining,
		Answers:          s.answers.Clone(),
		Pending:          s.pending != nil,
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done reports whether the session is submitted and saved.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == model.SessionSubmitted && s.pending == nil && !s.persisting
}

// Pending reports whether a submission is waiting to be persisted again.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
