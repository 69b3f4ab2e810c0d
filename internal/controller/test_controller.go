package controller

import (
	"edutest_backend/internal/model"
	"edutest_backend/internal/repository"
	"edutest_backend/internal/service"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TestController struct {
	Tests     *repository.TestRepository
	Authoring *service.AuthoringService
	Analytics *service.AnalyticsService
}

func NewTestController(tests *repository.TestRepository, authoring *service.AuthoringService, analytics *service.AnalyticsService) *TestController {
	return &TestController{Tests: tests, Authoring: authoring, Analytics: analytics}
}

// studentQuestion hides the answer and explanation from test takers.
type studentQuestion struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Difficulty model.Difficulty `json:"difficulty"`
	Content    string           `json:"content"`
	Passage    string           `json:"passage,omitempty"`
	Options    model.Options    `json:"options"`
}

type studentTest struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Grade         int               `json:"grade"`
	Topic         string            `json:"topic"`
	Duration      int               `json:"duration"`
	AssignedClass string            `json:"assignedClass"`
	Questions     []studentQuestion `json:"questions"`
}

func toStudentTest(t model.Test) studentTest {
	out := studentTest{
		ID:            t.ID,
		Title:         t.Title,
		Grade:         t.Grade,
		Topic:         t.Topic,
		Duration:      t.Duration,
		AssignedClass: t.AssignedClass,
		Questions:     make([]studentQuestion, len(t.Questions)),
	}
	for i, q := range t.Questions {
		out.Questions[i] = studentQuestion{
			ID:         q.ID,
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Content:    q.Content,
			Passage:    q.Passage,
			Options:    q.Options,
		}
	}
	return out
}

// @Summary Tests a student can take
// @Tags student
// @Produce json
// @Router /api/tests [get]
func (c *TestController) ListForStudent(ctx *gin.Context) {
	tests := c.Tests.ListTakeable()
	out := make([]studentTest, len(tests))
	for i, t := range tests {
		out[i] = toStudentTest(t)
	}
	util.Success(ctx, out)
}

func (c *TestController) List(ctx *gin.Context) {
	util.Success(ctx, c.Tests.List())
}

// Get returns a test with its difficulty matrix.
func (c *TestController) Get(ctx *gin.Context) {
	detail, err := c.Analytics.TestDetail(ctx.Param("id"))
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// @Summary Add a hand-written test
// @Tags teacher
// @Accept json
// @Produce json
// @Router /api/teacher/tests [post]
func (c *TestController) Create(ctx *gin.Context) {
	var req service.ManualTestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Authoring.Create(ctx.Request.Context(), req)
	if err != nil {
		// The test is already listed locally; only the store write failed.
		if util.IsPersistenceError(err) {
			util.ErrorWithData(ctx, util.StatusFor(err), err.Error(), test)
			return
		}
		util.Fail(ctx, err)
		return
	}
	util.Created(ctx, test)
}

// @Summary Generate a test with the authoring collaborator
// @Tags teacher
// @Accept json
// @Produce json
// @Router /api/teacher/tests/generate [post]
func (c *TestController) Generate(ctx *gin.Context) {
	var req service.TestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	test, err := c.Authoring.Generate(ctx.Request.Context(), req)
	if err != nil {
		if util.IsCollaboratorError(err) {
			logger.Log.Warn("Test generation failed", zap.String("topic", req.Topic), zap.Error(err))
		}
		if util.IsPersistenceError(err) {
			util.ErrorWithData(ctx, util.StatusFor(err), err.Error(), test)
			return
		}
		util.Fail(ctx, err)
		return
	}
	util.Created(ctx, test)
}

func (c *TestController) Delete(ctx *gin.Context) {
	if err := c.Tests.Remove(ctx.Request.Context(), ctx.Param("id")); err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": ctx.Param("id")})
}
