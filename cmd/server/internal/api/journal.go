package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/domain/journal"
)

// JournalStore 是练习日志的读写接口，*journal.Store 实现该接口
type JournalStore interface {
	Create(ctx context.Context, e journal.Entry) (journal.Entry, error)
	Get(ctx context.Context, id int64) (journal.Entry, error)
	List(ctx context.Context, start, end string) ([]journal.Entry, error)
	Update(ctx context.Context, id int64, e journal.Entry) (journal.Entry, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (journal.Stats, error)
}

// JournalHandler 处理练习日志请求
type JournalHandler struct {
	store JournalStore
}

// NewJournalHandler 创建 JournalHandler
func NewJournalHandler(store JournalStore) *JournalHandler {
	return &JournalHandler{store: store}
}

// entryRequest 客户端可写字段
type entryRequest struct {
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Notes           string   `json:"notes"`
	Tags            []string `json:"tags"`
	Sentiment       string   `json:"sentiment"`
}

func (r entryRequest) entry() journal.Entry {
	return journal.Entry{
		Date:            r.Date,
		DurationMinutes: r.DurationMinutes,
		Notes:           r.Notes,
		Tags:            r.Tags,
		Sentiment:       r.Sentiment,
	}
}

// CreateEntry 记录一次练习
// POST /api/v1/journal
func (h *JournalHandler) CreateEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	e, err := h.store.Create(c.Request.Context(), req.entry())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// ListEntries 列出练习记录，?start=&end= 为闭区间（YYYY-MM-DD）
// GET /api/v1/journal
func (h *JournalHandler) ListEntries(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": list,
		"total":   len(list),
	})
}

// GetStats 热力图、总时长与本周时长
// GET /api/v1/journal/stats
func (h *JournalHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetEntry 获取单条记录
// GET /api/v1/journal/:id
func (h *JournalHandler) GetEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	e, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// UpdateEntry 整体替换一条记录
// PUT /api/v1/journal/:id
func (h *JournalHandler) UpdateEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	e, err := h.store.Update(c.Request.Context(), id, req.entry())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DeleteEntry 删除一条记录
// DELETE /api/v1/journal/:id
func (h *JournalHandler) DeleteEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequestResponse(c, fmt.Sprintf("invalid journal id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}
