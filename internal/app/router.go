package app

import (
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/middleware"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 学生接口
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), a.limiter.Middleware())
	{
		a.registerStudentRoutes(authGroup, c)
	}

	// 3. 管理与批改接口
	a.registerAdminRoutes(router, c, cfg)
}

func (a *App) registerStudentRoutes(r *gin.RouterGroup, c *controllers) {
	practice := r.Group("/practice-sessions")
	{
		practice.POST("", c.practice.CreateSession)
		practice.GET("/:id", c.practice.GetSession)
		practice.POST("/:id/items/:seq/answer", c.practice.SubmitAnswer)
		practice.POST("/:id/items/:seq/skip", c.practice.SkipItem)
		practice.POST("/:id/finish", c.practice.Finish)
	}

	exam := r.Group("/exam-attempts")
	{
		exam.POST("", c.exam.StartAttempt)
		exam.GET("/:id", c.exam.GetAttempt)
		exam.POST("/:id/items/:paperItemId/answer", c.exam.SubmitItem)
		exam.POST("/:id/finish", c.exam.Finish)
	}

	review := r.Group("/review")
	{
		review.GET("/due", c.review.GetDue)
		review.GET("/daily-tasks", c.review.GetDailyTasks)
	}
}

func (a *App) registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Teacher), a.limiter.Middleware())
	{
		admin.POST("/exam-timeout-scan", c.admin.ScanTimeouts)
		admin.GET("/exam-timeout-scan/last", c.admin.LastTimeoutScan)

		admin.GET("/manual-grading", c.admin.ListGradingTasks)
		admin.POST("/manual-grading/:taskId/claim", c.admin.ClaimGradingTask)
		admin.POST("/manual-grading/:taskId/submit", c.admin.SubmitGrade)
		admin.POST("/manual-grading/:taskId/reopen", c.admin.ReopenGradingTask)

		admin.POST("/review-tasks/generate", c.admin.GenerateReviewTasks)
		admin.GET("/review-tasks/export", c.admin.ExportReviewTasks)
	}
}
