package app

import (
	"fmt"
	"lsrw_console/internal/config"
	"lsrw_console/internal/middleware"
	"lsrw_console/internal/model"
	"lsrw_console/internal/util"
	"lsrw_console/pkg/monitoring"
	"lsrw_console/pkg/security"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 教师点评工作台
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerReviewRoutes(authGroup, c)
	}
}

// reviewerKey 录音分片上传频繁，按老师而不是按 IP 限流
func reviewerKey(c *gin.Context) string {
	if user := util.GetUserFromContext(c); user != nil {
		return fmt.Sprintf("reviewer:%d", user.UserID)
	}
	return c.ClientIP()
}

func (a *App) registerReviewRoutes(rg *gin.RouterGroup, c *controllers) {
	review := rg.Group("/teacher/review")
	review.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		// 课程与发布
		review.GET("/batches/:batchId/mappings", c.review.ListMappings)
		review.GET("/batches/:batchId/counts", c.review.TabCounts)
		review.POST("/mappings/:id/release", c.review.Release)

		// 提交列表
		review.GET("/lessons/:lessonId/submissions", c.review.LoadLesson)
		review.GET("/surface", c.review.View)
		review.POST("/surface/refresh", c.review.Refresh)

		// 核验与点评
		review.POST("/submissions/:id/toggle", c.review.Toggle)
		review.POST("/submissions/:id/verify", c.review.Verify)
		review.POST("/submissions/:id/feedback", c.review.SubmitFeedback)
	}

	// 录音会话，路径与 RecordingPreviewBase 一致
	recordings := rg.Group("/teacher/review/recordings")
	recordings.Use(
		middleware.RoleMiddleware(model.Teacher, model.Admin),
		security.RateLimiter(600, time.Minute, reviewerKey),
	)
	{
		recordings.GET("/:id", c.recording.Session)
		recordings.DELETE("/:id", c.recording.Discard)
		recordings.POST("/:id/start", c.recording.Start)
		recordings.POST("/:id/chunks", c.recording.AppendChunk)
		recordings.POST("/:id/stop", c.recording.Stop)
		recordings.GET("/:id/preview", c.recording.Preview)
	}
}
