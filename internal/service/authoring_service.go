package service

import (
	"context"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"fmt"
	"strings"
	"time"
)

const defaultDuration = 45

// TestAuthor generates test content. Responses are already validated.
type TestAuthor interface {
	GenerateTest(ctx context.Context, req TestRequest) (GeneratedTest, error)
}

type TestCatalog interface {
	Add(ctx context.Context, test model.Test) error
}

type ManualTestRequest struct {
	Title     string           `json:"title" binding:"required"`
	Grade     int              `json:"grade" binding:"required,min=1,max=12"`
	Topic     string           `json:"topic"`
	Duration  int              `json:"duration"`
	Class     string           `json:"assignedClass"`
	Questions []model.Question `json:"questions"`
}

type AuthoringService struct {
	Author  TestAuthor
	Catalog TestCatalog
}

func NewAuthoringService(author TestAuthor, catalog TestCatalog) *AuthoringService {
	return &AuthoringService{Author: author, Catalog: catalog}
}

// Generate asks the collaborator for a test and adds it to the catalog. A
// persistence failure is returned along with the test, which stays listed.
func (s *AuthoringService) Generate(ctx context.Context, req TestRequest) (model.Test, error) {
	if req.Grade <= 0 {
		return model.Test{}, util.NewValidationError("grade", "grade must be positive")
	}
	if strings.TrimSpace(req.Topic) == "" {
		return model.Test{}, util.NewValidationError("topic", "topic is required")
	}

	gen, err := s.Author.GenerateTest(ctx, req)
	if err != nil {
		return model.Test{}, err
	}

	title := gen.Title
	if title == "" {
		title = fmt.Sprintf("Đề kiểm tra Tiếng Anh lớp %d - %s", req.Grade, req.Topic)
	}
	test := newTest(title, req.Grade, req.Topic, req.Duration, "", gen.Questions)
	return test, s.Catalog.Add(ctx, test)
}

// Create adds a hand-written test.
func (s *AuthoringService) Create(ctx context.Context, req ManualTestRequest) (model.Test, error) {
	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		if q.ID == "" {
			q.ID = model.GenerateUUID()
		}
		if d, err := model.ParseDifficulty(string(q.Difficulty)); err == nil {
			q.Difficulty = d
		}
		questions[i] = q
	}
	test := newTest(req.Title, req.Grade, req.Topic, req.Duration, req.Class, questions)
	if err := s.Catalog.Add(ctx, test); err != nil {
		if util.IsValidationError(err) {
			return model.Test{}, err
		}
		return test, err
	}
	return test, nil
}

func newTest(title string, grade int, topic string, duration int, class string, questions []model.Question) model.Test {
	if duration <= 0 {
		duration = defaultDuration
	}
	if class == "" {
		class = model.DefaultClass(grade)
	}
	return model.Test{
		ID:            model.GenerateUUID(),
		Title:         strings.TrimSpace(title),
		Grade:         grade,
		Topic:         strings.TrimSpace(topic),
		Duration:      duration,
		Questions:     questions,
		CreatedAt:     time.Now(),
		AssignedClass: class,
	}
}
