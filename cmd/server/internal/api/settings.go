package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/refret/cmd/server/internal/domain/settings"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/summarizer"
)

// SettingsStore 是 LLM 设置覆盖项的读写接口，*settings.Store 实现该接口
type SettingsStore interface {
	Resolve(ctx context.Context, defaults settings.Values) (settings.Values, error)
	Apply(ctx context.Context, u settings.Update, current settings.Values) error
}

// SettingsHandler 处理运行时 LLM 设置
type SettingsHandler struct {
	store    SettingsStore
	defaults settings.Values
}

// NewSettingsHandler 创建 SettingsHandler；defaults 为配置文件中的取值
func NewSettingsHandler(store SettingsStore, defaults settings.Values) *SettingsHandler {
	return &SettingsHandler{store: store, defaults: defaults}
}

// GetSettings 返回当前生效的设置，API Key 只返回掩码
// GET /api/v1/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	v, err := h.store.Resolve(c.Request.Context(), h.defaults)
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, settings.NewView(v))
}

// UpdateSettings 更新设置，下一次摘要生效；空字符串恢复默认值
// POST /api/v1/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var u settings.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequestResponse(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if u.Empty() {
		badRequestResponse(c, "nothing to update")
		return
	}
	if u.LLMProvider != nil {
		switch p := strings.TrimSpace(*u.LLMProvider); p {
		case "", summarizer.ProviderOpenAI, summarizer.ProviderOllama:
		default:
			badRequestResponse(c, fmt.Sprintf("unknown llm provider %q: use %s or %s", p, summarizer.ProviderOpenAI, summarizer.ProviderOllama))
			return
		}
	}

	ctx := c.Request.Context()
	current, err := h.store.Resolve(ctx, h.defaults)
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	if err := h.store.Apply(ctx, u, current); err != nil {
		internalErrorResponse(c, err)
		return
	}
	v, err := h.store.Resolve(ctx, h.defaults)
	if err != nil {
		internalErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "settings updated",
		"settings": settings.NewView(v),
	})
}
