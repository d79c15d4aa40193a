package api

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/domain/journal"
	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/domain/licks"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator"
	"github.com/houzhh15/refret/pkg/logger"
)

// errorResponse 返回错误响应
func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

// errorResponseWithCode 返回带错误代码的响应
func errorResponseWithCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

// notFoundResponse 返回 404 响应
func notFoundResponse(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": resource + " not found",
	})
}

// badRequestResponse 返回 400 响应
func badRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
	})
}

// internalErrorResponse 返回 500 响应，完整错误只写日志，响应中给出摘要
func internalErrorResponse(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.L().Error("request failed",
		"rid", c.GetString("request_id"),
		"path", c.Request.URL.Path,
		"error", err.Error(),
	)
	resp := gin.H{
		"error":  "internal server error",
		"detail": summarizeError(err),
	}
	if code := orchestrator.CodeOf(err); code != "" {
		resp["code"] = code
	}
	c.JSON(http.StatusInternalServerError, resp)
}

// maxDetailRunes 500 响应中错误摘要的最大长度
const maxDetailRunes = 200

func summarizeError(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxDetailRunes {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:maxDetailRunes]) + "..."
}

// writeError 将领域错误映射为 HTTP 响应
//
//	404: 课程、产物、乐句或练习记录不存在
//	409: 课程正忙，或缺少上游产物（附带 run_first）
//	400: 未知阶段、未知音轨、空上传、非法区间、乐句或练习记录校验失败
//	503: 服务正在关闭
//	500: 其他错误
func writeError(c *gin.Context, err error) {
	var missing *orchestrator.MissingUpstreamArtifact
	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"code":      orchestrator.MISSING_UPSTREAM_ARTIFACT,
			"stage":     missing.Stage,
			"run_first": missing.RunFirst,
			"artifact":  missing.Artifact,
		})
	case errors.Is(err, orchestrator.ErrLessonNotFound),
		errors.Is(err, lessons.ErrNotFound),
		errors.Is(err, licks.ErrUnknownLesson):
		notFoundResponse(c, "lesson")
	case errors.Is(err, licks.ErrNotFound):
		notFoundResponse(c, "lick")
	case errors.Is(err, journal.ErrNotFound):
		notFoundResponse(c, "journal entry")
	case errors.Is(err, orchestrator.ErrArtifactNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrLessonBusy):
		errorResponseWithCode(c, http.StatusConflict, "LESSON_BUSY", err.Error())
	case errors.Is(err, orchestrator.ErrUnknownStage),
		errors.Is(err, orchestrator.ErrUnknownTrack),
		errors.Is(err, orchestrator.ErrEmptyUpload),
		errors.Is(err, orchestrator.ErrInvalidRegion),
		errors.Is(err, licks.ErrInvalid),
		errors.Is(err, journal.ErrInvalid):
		badRequestResponse(c, err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		internalErrorResponse(c, err)
	}
}
