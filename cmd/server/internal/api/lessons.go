package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/status"
)

// Pipeline 是 LessonHandler 依赖的流水线操作，*orchestrator.Orchestrator 实现该接口
type Pipeline interface {
	Submit(ctx context.Context, up orchestrator.Upload) (string, error)
	Status(ctx context.Context, id string) (status.Record, error)
	Artifacts(id string) []artifact.Name
	Stale(id string) []artifact.Name
	Rerun(ctx context.Context, id, stage string) error
	Delete(ctx context.Context, id string) error
	Busy(id string) (string, bool)

	AudioPath(ctx context.Context, id, track string) (string, error)
	Transcript(ctx context.Context, id string) (artifact.Transcript, error)
	Summary(ctx context.Context, id string) (artifact.SummaryDocument, error)
	Peaks(ctx context.Context, id, track string) (artifact.PeakSeries, error)
	TranscribeRegion(ctx context.Context, id string, start, end float64) (string, error)
}

// LessonCatalog 是课程元数据的读写接口，*lessons.Store 实现该接口
type LessonCatalog interface {
	Get(ctx context.Context, id string) (lessons.Lesson, error)
	List(ctx context.Context) ([]lessons.Lesson, error)
	Update(ctx context.Context, id string, p lessons.Patch) (lessons.Lesson, error)
	Tags(ctx context.Context) ([]string, error)
}

// LessonHandler 处理课程相关的 HTTP 请求
type LessonHandler struct {
	pipeline       Pipeline
	catalog        LessonCatalog
	maxUploadBytes int64
}

// NewLessonHandler 创建 LessonHandler；maxUploadBytes<=0 表示不限制
func NewLessonHandler(pipeline Pipeline, catalog LessonCatalog, maxUploadBytes int64) *LessonHandler {
	return &LessonHandler{
		pipeline:       pipeline,
		catalog:        catalog,
		maxUploadBytes: maxUploadBytes,
	}
}

// LessonView 课程详情：元数据、已有产物、过期产物、流水线状态
type LessonView struct {
	lessons.Lesson
	Artifacts []artifact.Name `json:"artifacts"`
	Stale     []artifact.Name `json:"stale,omitempty"` // 上游重跑后尚未重新生成的产物
	Status    *status.Record  `json:"status,omitempty"`
	Busy      string          `json:"busy,omitempty"`
}

// CreateLesson 上传录音并启动流水线
// POST /api/v1/lessons (multipart: file, title, tags, memo, created_at)
func (h *LessonHandler) CreateLesson(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorResponse(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		badRequestResponse(c, "missing multipart field \"file\"")
		return
	}

	createdAt, err := parseCreatedAt(c.PostForm("created_at"))
	if err != nil {
		badRequestResponse(c, err.Error())
		return
	}

	f, err := fh.Open()
	if err != nil {
		internalErrorResponse(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()

	id, err := h.pipeline.Submit(c.Request.Context(), orchestrator.Upload{
		Filename:  fh.Filename,
		Body:      f,
		Title:     c.PostForm("title"),
		Tags:      lessons.SplitTags(c.PostForm("tags")),
		Memo:      c.PostForm("memo"),
		CreatedAt: createdAt,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     id,
		"status": status.Queued,
	})
}

// parseCreatedAt 接受 RFC3339 或 YYYY-MM-DD，空值使用当前时间
func parseCreatedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid created_at %q: use RFC3339 or YYYY-MM-DD", raw)
}

// ListLessons 列出全部课程（新的在前）
// GET /api/v1/lessons
func (h *LessonHandler) ListLessons(c *gin.Context) {
	list, err := h.catalog.List(c.Request.Context())
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	if list == nil {
		list = []lessons.Lesson{}
	}
	c.JSON(http.StatusOK, gin.H{
		"lessons": list,
		"total":   len(list),
	})
}

// GetLesson 获取课程详情
// GET /api/v1/lessons/:id
func (h *LessonHandler) GetLesson(c *gin.Context) {
	id := c.Param("id")
	lesson, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	view := LessonView{Lesson: lesson, Artifacts: h.pipeline.Artifacts(id), Stale: h.pipeline.Stale(id)}
	if view.Artifacts == nil {
		view.Artifacts = []artifact.Name{}
	}
	if rec, err := h.pipeline.Status(c.Request.Context(), id); err == nil {
		view.Status = &rec
	}
	if activity, busy := h.pipeline.Busy(id); busy {
		view.Busy = activity
	}
	c.JSON(http.StatusOK, view)
}

// UpdateLesson 修改标题、标签、备注
// PATCH /api/v1/lessons/:id
func (h *LessonHandler) UpdateLesson(c *gin.Context) {
	var patch lessons.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if patch.Empty() {
		badRequestResponse(c, "nothing to update: set title, tags or memo")
		return
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		badRequestResponse(c, "title must not be empty")
		return
	}

	lesson, err := h.catalog.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lesson)
}

// DeleteLesson 删除课程及其全部产物
// DELETE /api/v1/lessons/:id
func (h *LessonHandler) DeleteLesson(c *gin.Context) {
	id := c.Param("id")
	if err := h.pipeline.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// GetStatus 获取流水线状态
// GET /api/v1/lessons/:id/status
func (h *LessonHandler) GetStatus(c *gin.Context) {
	rec, err := h.pipeline.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RerunStage 重跑单个阶段
// POST /api/v1/lessons/:id/stages/:stage/rerun
func (h *LessonHandler) RerunStage(c *gin.Context) {
	id := c.Param("id")
	stage := c.Param("stage")
	if err := h.pipeline.Rerun(c.Request.Context(), id, stage); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":     id,
		"stage":  stage,
		"status": status.Processing,
	})
}

// ListTags 汇总所有课程的标签
// GET /api/v1/tags
func (h *LessonHandler) ListTags(c *gin.Context) {
	tags, err := h.catalog.Tags(c.Request.Context())
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
