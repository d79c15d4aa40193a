package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/health"
)

// HandleTranscriberHealth 返回转写后端的健康与降级状态
// degradationCtrl / healthChecker 在禁用降级时为 nil
//
// 响应格式:
//
//	{
//	  "success": true,
//	  "data": {
//	    "implementation": "whisper-http",
//	    "is_healthy": true,
//	    "is_degraded": false,
//	    "last_check_time": "2026-10-11T02:20:00Z",
//	    "consecutive_fails": 0,
//	    "error_message": ""
//	  }
//	}
func HandleTranscriberHealth(
	degradationCtrl *degradation.DegradationController,
	healthChecker *health.HealthChecker,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if degradationCtrl == nil || healthChecker == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "transcriber health monitoring is disabled",
			})
			return
		}

		status := healthChecker.GetStatus()
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"implementation":    degradationCtrl.GetTranscriber().Name(),
				"is_healthy":        status.IsHealthy,
				"is_degraded":       degradationCtrl.IsDegraded(),
				"last_check_time":   status.LastCheckTime,
				"consecutive_fails": status.ConsecutiveFails,
				"error_message":     status.ErrorMessage,
			},
		})
	}
}
