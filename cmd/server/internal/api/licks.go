package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/domain/licks"
)

// LickStore 是乐句的读写接口，*licks.Store 实现该接口
type LickStore interface {
	Create(ctx context.Context, l licks.Lick) (licks.Lick, error)
	Get(ctx context.Context, id string) (licks.Lick, error)
	List(ctx context.Context, lessonID string) ([]licks.Lick, error)
	Update(ctx context.Context, id string, p licks.Patch) (licks.Lick, error)
	Delete(ctx context.Context, id string) error
}

// LickHandler 处理乐句（课程中的片段）相关请求
type LickHandler struct {
	store LickStore
}

// NewLickHandler 创建 LickHandler
func NewLickHandler(store LickStore) *LickHandler {
	return &LickHandler{store: store}
}

// CreateLick 保存课程中的一段区间
// POST /api/v1/licks
func (h *LickHandler) CreateLick(c *gin.Context) {
	var req licks.Lick
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	l, err := h.store.Create(c.Request.Context(), licks.Lick{
		LessonID: req.LessonID,
		Title:    req.Title,
		Start:    req.Start,
		End:      req.End,
		Tags:     req.Tags,
		Memo:     req.Memo,
		ABC:      req.ABC,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// ListLicks 列出乐句，可用 ?lesson_id= 过滤
// GET /api/v1/licks
func (h *LickHandler) ListLicks(c *gin.Context) {
	h.list(c, c.Query("lesson_id"))
}

// ListLessonLicks 按播放顺序列出某课程的乐句
// GET /api/v1/lessons/:id/licks
func (h *LickHandler) ListLessonLicks(c *gin.Context) {
	h.list(c, c.Param("id"))
}

func (h *LickHandler) list(c *gin.Context, lessonID string) {
	list, err := h.store.List(c.Request.Context(), lessonID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"licks": list,
		"total": len(list),
	})
}

// GetLick 获取单个乐句
// GET /api/v1/licks/:id
func (h *LickHandler) GetLick(c *gin.Context) {
	l, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// UpdateLick 部分更新乐句
// PUT /api/v1/licks/:id
func (h *LickHandler) UpdateLick(c *gin.Context) {
	var patch licks.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if patch.Empty() {
		badRequestResponse(c, "nothing to update")
		return
	}
	l, err := h.store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// DeleteLick 删除乐句
// DELETE /api/v1/licks/:id
func (h *LickHandler) DeleteLick(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
