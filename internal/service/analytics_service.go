package service

import (
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"time"
)

type TestLister interface {
	TestFinder
	List() []model.Test
}

type SubmissionReader interface {
	SubmissionLister
	FindByID(id string) (model.Submission, bool)
}

type AnalyticsService struct {
	Tests       TestLister
	Submissions SubmissionReader
}

func NewAnalyticsService(tests TestLister, subs SubmissionReader) *AnalyticsService {
	return &AnalyticsService{Tests: tests, Submissions: subs}
}

func (s *AnalyticsService) Dashboard() Dashboard {
	subs := s.Submissions.List()
	return Dashboard{
		Summary:     Summarize(subs),
		Competency:  Aggregate(subs, s.Tests),
		Recent:      RecentSubmissions(subs, s.Tests),
		TestCount:   len(s.Tests.List()),
		GeneratedAt: time.Now(),
	}
}

// Dashboard is the instructor analytics view.
type Dashboard struct {
	Summary     Summary            `json:"summary"`
	Competency  Breakdown          `json:"competency"`
	Recent      []RecentSubmission `json:"recent"`
	TestCount   int                `json:"testCount"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

type SubmissionResult struct {
	Submission model.Submission `json:"submission"`
	TestTitle  string           `json:"testTitle"`
	Orphaned   bool             `json:"orphaned"`
	Total      int              `json:"total"`
	Correct    int              `json:"correct"`
	Competency Breakdown        `json:"competency,omitempty"`
}

// Result returns one submission with its single-attempt breakdown. Students
// may only read their own.
func (s *AnalyticsService) Result(id string, viewer model.User) (SubmissionResult, error) {
	sub, ok := s.Submissions.FindByID(id)
	if !ok {
		return SubmissionResult{}, util.ErrSubmissionNotFound
	}
	if viewer.Role != model.Teacher && sub.StudentID != viewer.ID {
		return SubmissionResult{}, util.ErrPermissionDenied
	}

	res := SubmissionResult{Submission: sub, TestTitle: util.DeletedTestTitle, Orphaned: true}
	if test, ok := s.Tests.FindByID(sub.TestID); ok {
		res.TestTitle = test.Title
		res.Orphaned = false
		res.Total = len(test.Questions)
		res.Correct = CountCorrect(test, sub.Answers)
		res.Competency = ForSubmission(sub, test)
	}
	return res, nil
}

type TestDetail struct {
	Test      model.Test `json:"test"`
	Blueprint Breakdown  `json:"blueprint"`
}

func (s *AnalyticsService) TestDetail(id string) (TestDetail, error) {
	test, ok := s.Tests.FindByID(id)
	if !ok {
		return TestDetail{}, util.ErrTestNotFound
	}
	return TestDetail{Test: test, Blueprint: Blueprint(test)}, nil
}
