package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/metrics"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator"
)

// EnvironmentChecker 报告运行环境状态，*orchestrator.Runtime 实现该接口
type EnvironmentChecker interface {
	Environment(ctx context.Context) *orchestrator.EnvironmentStatus
}

// Pinger 数据库连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth 存活检查
// GET /health
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleReadiness 就绪检查：数据目录、数据库、命令执行器与外部服务
// GET /readiness
func HandleReadiness(env EnvironmentChecker, db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		ready := true
		database := gin.H{"ok": true}
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				ready = false
				database = gin.H{"ok": false, "error": err.Error()}
			}
		}

		var envStatus *orchestrator.EnvironmentStatus
		if env != nil {
			envStatus = env.Environment(ctx)
			ready = ready && envStatus.Ready
		}
		metrics.SetEnvironmentReady(ready)

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":       ready,
			"database":    database,
			"environment": envStatus,
		})
	}
}
