package service

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TestFinder resolves a test from the catalog.
type TestFinder interface {
	FindByID(id string) (model.Test, bool)
}

// SessionService keeps one session per student id.
type SessionService struct {
	Tests       TestFinder
	Submissions SubmissionSink
	Feedback    *FeedbackService

	mu           sync.Mutex
	sessions     map[string]*Session
	tickInterval time.Duration
	closed       bool
	flushes      sync.WaitGroup
}

func NewSessionService(tests TestFinder, subs SubmissionSink, feedback *FeedbackService, tickInterval time.Duration) *SessionService {
	return &SessionService{
		Tests:        tests,
		Submissions:  subs,
		Feedback:     feedback,
		sessions:     make(map[string]*Session),
		tickInterval: tickInterval,
	}
}

// Start opens a session for student on testID, or returns the one already in
// progress. A finished session is replaced by a fresh one.
func (s *SessionService) Start(ctx context.Context, student model.User, testID string) (SessionStatus, error) {
	test, ok := s.Tests.FindByID(testID)
	if !ok {
		return SessionStatus{}, util.ErrTestNotFound
	}
	if len(test.Questions) == 0 {
		return SessionStatus{}, util.NewValidationError("testId", "test %s has no questions", testID)
	}

	s.mu.Lock()
	sess, exists := s.sessions[student.ID]
	if exists && sess.Pending() {
		s.mu.Unlock()
		return sess.Status(), util.ErrSubmissionPending
	}
	if !exists || sess.Done() {
		sess = NewSession(student, s.Submissions, s.tickInterval)
		if s.Feedback != nil {
			sess.OnSubmitted = s.Feedback.Launch
		}
		s.sessions[student.ID] = sess
	}
	s.mu.Unlock()

	if err := sess.Start(test); err != nil {
		return sess.Status(), err
	}
	return sess.Status(), nil
}

func (s *SessionService) get(studentID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[studentID]
	if !ok {
		return nil, util.ErrNoActiveSession
	}
	return sess, nil
}

func (s *SessionService) Answer(studentID, questionID, label string) (SessionStatus, error) {
	sess, err := s.get(studentID)
	if err != nil {
		return SessionStatus{}, err
	}
	if err := sess.Answer(questionID, label); err != nil {
		return SessionStatus{}, err
	}
	return sess.Status(), nil
}

func (s *SessionService) Submit(ctx context.Context, studentID string) (model.Submission, error) {
	sess, err := s.get(studentID)
	if err != nil {
		return model.Submission{}, err
	}
	return sess.Submit(ctx)
}

// Status reports the student's session. A saved session is forgotten once its
// result has been read.
func (s *SessionService) Status(studentID string) (SessionStatus, error) {
	sess, err := s.get(studentID)
	if err != nil {
		return SessionStatus{}, err
	}
	st := sess.Status()
	if st.State == model.SessionSubmitted && st.Result != nil && !st.Pending {
		s.mu.Lock()
		if s.sessions[studentID] == sess {
			delete(s.sessions, studentID)
		}
		s.mu.Unlock()
	}
	return st, nil
}

// Leave abandons the student's session. Nothing is persisted and the attempt
// cannot be resumed.
func (s *SessionService) Leave(studentID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[studentID]
	delete(s.sessions, studentID)
	s.mu.Unlock()
	if !ok {
		return util.ErrNoActiveSession
	}
	sess.Discard()
	return nil
}

// Supersede drops the sessions held by earlier logins of the same student.
// An attempt still in progress is discarded without a trace; a graded
// submission that failed to save gets one more save attempt in the background.
func (s *SessionService) Supersede(student model.User) {
	identity := student.Identity()
	var stale, unsaved []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if id == student.ID || sess.Student.Identity() != identity {
			continue
		}
		delete(s.sessions, id)
		if sess.Pending() && !s.closed {
			s.flushes.Add(1)
			unsaved = append(unsaved, sess)
			continue
		}
		stale = append(stale, sess)
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Discard()
	}
	for _, sess := range unsaved {
		go s.flush(sess)
	}
}

func (s *SessionService) flush(sess *Session) {
	defer s.flushes.Done()
	if _, err := sess.Submit(context.Background()); err != nil {
		logger.Log.Warn("Dropped unsaved submission of a superseded login",
			zap.String("student", sess.Student.ID),
			zap.Error(err))
	}
}

// SetTickInterval applies to sessions started afterwards.
func (s *SessionService) SetTickInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.tickInterval = d
	s.mu.Unlock()
}

// Close stops every ticker and waits for background saves. Pending
// submissions are not persisted.
func (s *SessionService) Close() {
	s.mu.Lock()
	s.closed = true
	for id, sess := range s.sessions {
		sess.Discard()
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	s.flushes.Wait()
}
