package service

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/pkg/logger"
	"edutest_backend/pkg/monitoring"
	"edutest_backend/pkg/tracing"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type FeedbackRequest struct {
	Score     float64          `json:"score"`
	Answers   model.AnswerSet  `json:"answers"`
	Questions []model.Question `json:"questions"`
}

// FeedbackCollaborator produces commentary for a graded attempt.
type FeedbackCollaborator interface {
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (string, error)
}

type FeedbackStore interface {
	AttachFeedback(ctx context.Context, id, text string) error
}

var errEmptyFeedback = errors.New("collaborator returned empty feedback")

// FeedbackService enriches stored submissions out of band. Failures are
// logged and never retried.
type FeedbackService struct {
	Collaborator FeedbackCollaborator
	Submissions  FeedbackStore

	mu      sync.RWMutex
	timeout time.Duration
	closed  bool
	wg      sync.WaitGroup
}

func NewFeedbackService(collab FeedbackCollaborator, subs FeedbackStore, timeout time.Duration) *FeedbackService {
	return &FeedbackService{Collaborator: collab, Submissions: subs, timeout: timeout}
}

func (s *FeedbackService) SetTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

func (s *FeedbackService) Timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.timeout <= 0 {
		return 60 * time.Second
	}
	return s.timeout
}

// Launch attaches feedback in the background, detached from any request.
// After Close it does nothing.
func (s *FeedbackService) Launch(sub model.Submission, test model.Test) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Log.Info("Feedback skipped during shutdown", zap.String("submission", sub.ID))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout())
		defer cancel()
		s.Attach(ctx, sub, test)
	}()
}

// Wait blocks until every launched attachment has finished.
func (s *FeedbackService) Wait() {
	s.wg.Wait()
}

// Close refuses further launches and waits for the ones in flight.
func (s *FeedbackService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// Attach asks the collaborator for feedback and stores it on the submission.
// It reports whether the feedback was stored.
func (s *FeedbackService) Attach(ctx context.Context, sub model.Submission, test model.Test) bool {
	ctx, span := tracing.Start(ctx, "feedback.attach")
	defer span.End()

	text, err := s.Collaborator.GenerateFeedback(ctx, FeedbackRequest{
		Score:     sub.Score,
		Answers:   sub.Answers,
		Questions: test.Questions,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyFeedback
	}
	if err != nil {
		monitoring.Feedback.WithLabelValues("collaborator_error").Inc()
		logger.Log.Warn("Feedback generation failed",
			zap.String("submission", sub.ID),
			zap.Error(err))
		return false
	}

	if err := s.Submissions.AttachFeedback(ctx, sub.ID, strings.TrimSpace(text)); err != nil {
		monitoring.Feedback.WithLabelValues("store_error").Inc()
		logger.Log.Warn("Failed to attach feedback",
			zap.String("submission", sub.ID),
			zap.Error(err))
		return false
	}
	monitoring.Feedback.WithLabelValues("ok").Inc()
	return true
}
