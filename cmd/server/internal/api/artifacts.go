package api

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
)

// GetAudio 返回音轨文件，支持 Range；?download=1 时作为附件下载
// GET /api/v1/lessons/:id/audio/:track
func (h *LessonHandler) GetAudio(c *gin.Context) {
	id := c.Param("id")
	track := c.Param("track")
	path, err := h.pipeline.AudioPath(c.Request.Context(), id, track)
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("download") == "" {
		c.File(path)
		return
	}
	title := ""
	if lesson, err := h.catalog.Get(c.Request.Context(), id); err == nil {
		title = lesson.Title
	}
	c.FileAttachment(path, downloadName(title, id, track, filepath.Ext(path)))
}

// GetTranscript 返回转写文本与分段
// GET /api/v1/lessons/:id/transcript
func (h *LessonHandler) GetTranscript(c *gin.Context) {
	tr, err := h.pipeline.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if tr.Segments == nil {
		tr.Segments = []artifact.TranscriptSegment{}
	}
	c.JSON(http.StatusOK, tr)
}

// GetSummary 返回摘要文档；摘要失败时原样返回错误文档并标记 usable=false
// GET /api/v1/lessons/:id/summary
func (h *LessonHandler) GetSummary(c *gin.Context) {
	doc, err := h.pipeline.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryBody(doc))
}

func summaryBody(doc artifact.SummaryDocument) gin.H {
	if !doc.Usable() {
		return gin.H{"error": doc.Error, "usable": false}
	}
	keyPoints := doc.KeyPoints
	if keyPoints == nil {
		keyPoints = []artifact.KeyPoint{}
	}
	chords := doc.Chords
	if chords == nil {
		chords = []string{}
	}
	return gin.H{
		"summary":    doc.Summary,
		"key_points": keyPoints,
		"chords":     chords,
		"usable":     true,
	}
}

// GetPeaks 返回波形峰值，缺失时按需生成
// GET /api/v1/lessons/:id/peaks/:track
func (h *LessonHandler) GetPeaks(c *gin.Context) {
	series, err := h.pipeline.Peaks(c.Request.Context(), c.Param("id"), c.Param("track"))
	if err != nil {
		writeError(c, err)
		return
	}
	if series.Data == nil {
		series.Data = []float64{}
	}
	c.JSON(http.StatusOK, series)
}

// RegionRequest 区间记谱请求
type RegionRequest struct {
	LessonID  string   `json:"lesson_id" binding:"required"`
	StartTime *float64 `json:"start_time" binding:"required"`
	EndTime   *float64 `json:"end_time" binding:"required"`
}

// TranscribeRegion 将伴奏音轨的一段转为 ABC 记谱
// POST /api/v1/transcribe-region
func (h *LessonHandler) TranscribeRegion(c *gin.Context) {
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	abc, err := h.pipeline.TranscribeRegion(c.Request.Context(), req.LessonID, *req.StartTime, *req.EndTime)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"abc": abc})
}
