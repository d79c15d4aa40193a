package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/health"
)

// HealthDeps 健康检查端点所需的依赖，未设置的项跳过
type HealthDeps struct {
	Env           EnvironmentChecker
	DB            Pinger
	Degradation   *degradation.DegradationController
	HealthChecker *health.HealthChecker
}

// RegisterRoutes 注册全部路由
func RegisterRoutes(r *gin.Engine, h *LessonHandler, hd HealthDeps) {
	r.GET("/health", HandleHealth())
	r.GET("/readiness", HandleReadiness(hd.Env, hd.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/lessons", h.CreateLesson)
		v1.GET("/lessons", h.ListLessons)
		v1.GET("/lessons/:id", h.GetLesson)
		v1.PATCH("/lessons/:id", h.UpdateLesson)
		v1.DELETE("/lessons/:id", h.DeleteLesson)
		v1.GET("/lessons/:id/status", h.GetStatus)
		v1.POST("/lessons/:id/stages/:stage/rerun", h.RerunStage)

		v1.GET("/lessons/:id/audio/:track", h.GetAudio)
		v1.GET("/lessons/:id/transcript", h.GetTranscript)
		v1.GET("/lessons/:id/summary", h.GetSummary)
		v1.GET("/lessons/:id/peaks/:track", h.GetPeaks)
		v1.POST("/transcribe-region", h.TranscribeRegion)

		v1.GET("/tags", h.ListTags)
		v1.GET("/services/transcriber/health", HandleTranscriberHealth(hd.Degradation, hd.HealthChecker))
	}
}

// PracticeHandlers 练习相关的处理器，nil 的处理器不注册路由
type PracticeHandlers struct {
	Licks    *LickHandler
	Journal  *JournalHandler
	Settings *SettingsHandler
}

// RegisterPracticeRoutes 注册乐句、练习日志与设置路由
func RegisterPracticeRoutes(r *gin.Engine, ph PracticeHandlers) {
	v1 := r.Group("/api/v1")
	if h := ph.Licks; h != nil {
		v1.GET("/licks", h.ListLicks)
		v1.POST("/licks", h.CreateLick)
		v1.GET("/licks/:id", h.GetLick)
		v1.PUT("/licks/:id", h.UpdateLick)
		v1.DELETE("/licks/:id", h.DeleteLick)
		v1.GET("/lessons/:id/licks", h.ListLessonLicks)
	}
	if h := ph.Journal; h != nil {
		v1.GET("/journal", h.ListEntries)
		v1.POST("/journal", h.CreateEntry)
		v1.GET("/journal/stats", h.GetStats)
		v1.GET("/journal/:id", h.GetEntry)
		v1.PUT("/journal/:id", h.UpdateEntry)
		v1.DELETE("/journal/:id", h.DeleteEntry)
	}
	if h := ph.Settings; h != nil {
		v1.GET("/settings", h.GetSettings)
		v1.POST("/settings", h.UpdateSettings)
	}
}
