package app

import (
	"edutest_backend/internal/config"
	"edutest_backend/internal/middleware"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"edutest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/me", c.auth.Me)

		// 学生接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerTeacherRoutes(authGroup, c)
	}

	if cfg.Export.Type == util.ExportLocal {
		router.Static("/exports", cfg.Export.LocalPath)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.POST("/login", c.auth.Login)
		public.GET("/health", c.health.HealthCheck)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/tests", c.test.ListForStudent)

	sessions := group.Group("/sessions")
	sessions.Use(middleware.RoleMiddleware(model.Student))
	{
		sessions.POST("", c.session.Start)
		sessions.PUT("/answers", c.session.Answer)
		sessions.POST("/submit", c.session.Submit)
		sessions.GET("/current", c.session.Current)
		sessions.DELETE("/current", c.session.Leave)
	}

	group.GET("/submissions/:id", c.session.Result)
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/tests", c.test.List)
		teacher.POST("/tests", c.test.Create)
		teacher.POST("/tests/generate", c.test.Generate)
		teacher.GET("/tests/:id", c.test.Get)
		teacher.DELETE("/tests/:id", c.test.Delete)

		teacher.GET("/dashboard", c.dashboard.Get)
		teacher.GET("/dashboard/ws", c.dashboard.Live)

		teacher.GET("/exports/submissions.csv", c.export.Download)
		teacher.POST("/exports", c.export.Publish)
	}
}
