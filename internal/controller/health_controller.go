package controller

import (
	"lsrw_console/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB               *gorm.DB
	Redis            *redis.Client
	CollaboratorMode string
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, collaboratorMode string) *HealthController {
	return &HealthController{DB: db, Redis: rdb, CollaboratorMode: collaboratorMode}
}

// @Summary 健康检查
// @Description 检查服务状态，未启用的组件标记为 disabled
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	components := gin.H{
		"collaborator": c.CollaboratorMode,
		"database":     "disabled",
		"redis":        "disabled",
	}

	// 只有直连数据库模式才依赖 MySQL
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			util.InternalServerError(ctx)
			return
		}
		if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
			util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
		components["database"] = "up"
	}

	// Redis 只缓存角标，不可用时降级
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx.Request.Context()).Err(); err != nil {
			components["redis"] = "down"
		} else {
			components["redis"] = "up"
		}
	}

	if _, err := util.GetFFmpegVersion(); err != nil {
		components["ffmpeg"] = "missing"
	} else {
		components["ffmpeg"] = "up"
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
