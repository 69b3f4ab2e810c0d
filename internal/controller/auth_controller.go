package controller

import (
	"edutest_backend/internal/service"
	"edutest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// Login godoc
// @Summary Log in as instructor or student
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.LoginRequest true "login"
// @Success 200 {object} util.Response{data=service.LoginResult}
// @Failure 401 {object} util.Response
// @Router /api/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req service.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AuthService.Login(req)
	if err != nil {
		util.Fail(ctx, err)
		return
	}
	util.Success(ctx, result)
}

func (c *AuthController) Me(ctx *gin.Context) {
	user := c.AuthService.GetCurrentUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	util.Success(ctx, user)
}
