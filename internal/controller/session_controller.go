package controller

import (
	"edutest_backend/internal/service"
	"edutest_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	Sessions  *service.SessionService
	Analytics *service.AnalyticsService
	Auth      *service.AuthService
}

func NewSessionController(sessions *service.SessionService, analytics *service.AnalyticsService, auth *service.AuthService) *SessionController {
	return &SessionController{Sessions: sessions, Analytics: analytics, Auth: auth}
}

type StartSessionRequest struct {
	TestID string `json:"testId" binding:"required"`
}

type AnswerRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	Option     string `json:"option" binding:"required"`
}

// @Summary Start taking a test
// @Tags student
// @Accept json
// @Produce json
// @Router /api/sessions [post]
func (c *SessionController) Start(ctx *gin.Context) {
	user := c.Auth.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	status, err := c.Sessions.Start(ctx.Request.Context(), *user, req.TestID)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, status)
}

func (c *SessionController) Answer(ctx *gin.Context) {
	user := c.Auth.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	status, err := c.Sessions.Answer(user.ID, req.QuestionID, req.Option)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// @Summary Submit the current attempt
// @Description A 503 means the result was graded but not saved; the answers are kept and the call can be retried.
// @Tags student
// @Produce json
// @Router /api/sessions/submit [post]
func (c *SessionController) Submit(ctx *gin.Context) {
	user := c.Auth.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	sub, err := c.Sessions.Submit(ctx.Request.Context(), user.ID)
	if err != nil {
		if util.IsPersistenceError(err) {
			util.ErrorWithData(ctx, http.StatusServiceUnavailable, "Submission could not be saved, please retry", sub)
			return
		}
		util.Fail(ctx, err)
		return
	}

	result, err := c.Analytics.Result(sub.ID, *user)
	if err != nil {
		util.Success(ctx, service.SubmissionResult{Submission: sub})
		return
	}
	util.Success(ctx, result)
}

func (c *SessionController) Current(ctx *gin.Context) {
	user := c.Auth.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	status, err := c.Sessions.Status(user.ID)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, status)
}

// Leave abandons the attempt without saving it.
func (c *SessionController) Leave(ctx *gin.Context) {
	user := c.Auth.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.Sessions.Leave(user.ID); err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Result returns a stored submission with its competency breakdown.
func (c *SessionController) Result(ctx *gin.Context) {
	user := c.Auth.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.Analytics.Result(ctx.Param("id"), *user)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, result)
}
