package controller

import (
	"edutest_backend/internal/service"
	"edutest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DashboardController struct {
	Analytics *service.AnalyticsService
	Hub       *service.DashboardHub
}

func NewDashboardController(analytics *service.AnalyticsService, hub *service.DashboardHub) *DashboardController {
	return &DashboardController{Analytics: analytics, Hub: hub}
}

// @Summary Instructor analytics
// @Tags teacher
// @Produce json
// @Router /api/teacher/dashboard [get]
func (c *DashboardController) Get(ctx *gin.Context) {
	util.Success(ctx, c.Analytics.Dashboard())
}

// Live upgrades to a websocket that receives a snapshot on every change.
func (c *DashboardController) Live(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	service.ServeDashboardWs(c.Hub, ctx.Writer, ctx.Request, claims.UserID)
}
