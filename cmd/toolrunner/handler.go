package main

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler serves the execute and health endpoints.
type Handler struct {
	validator   *Validator
	executor    *Executor
	auditLogger *AuditLogger
	limiter     *ConcurrencyLimiter
	logger      *slog.Logger
}

// NewHandler wires the routes into a gin engine.
func NewHandler(validator *Validator, executor *Executor, auditLogger *AuditLogger, limiter *ConcurrencyLimiter, logger *slog.Logger) *gin.Engine {
	h := &Handler{
		validator:   validator,
		executor:    executor,
		auditLogger: auditLogger,
		limiter:     limiter,
		logger:      logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/api/v1/execute", h.HandleExecute)
	r.GET("/api/v1/health", h.HandleHealth)
	return r
}

// HandleExecute validates the request, waits for a concurrency slot, runs
// the command and audits the outcome.
func (h *Handler) HandleExecute(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Failed to decode JSON: "+err.Error())
		return
	}

	if err := h.validator.ValidateRequest(req); err != nil {
		h.auditLogger.LogRejection(req, err.Error(), c.ClientIP())
		h.logger.Warn("request rejected", "command", req.Command, "reason", err.Error())
		respondError(c, http.StatusBadRequest, "invalid_arguments", err.Error())
		return
	}

	if err := h.limiter.Acquire(c.Request.Context(), req.Command); err != nil {
		respondError(c, http.StatusServiceUnavailable, "service_busy", "Max concurrent executions reached")
		return
	}
	defer h.limiter.Release(req.Command)

	resp, err := h.executor.ExecuteCommand(c.Request.Context(), req)
	h.auditLogger.LogExecution(req, resp, err, c.ClientIP())

	if err != nil {
		resp.Success = false
		if resp.Stderr == "" {
			resp.Stderr = err.Error()
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	if resp.ExitCode != 0 {
		resp.Success = false
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	resp.Success = true
	c.JSON(http.StatusOK, resp)
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "toolrunner",
		"version": Version,
	})
}

// respondError also fills "stderr" so remote executors surface the reason.
func respondError(c *gin.Context, statusCode int, errorType string, detail string) {
	c.JSON(statusCode, gin.H{
		"error":   errorType,
		"details": []string{detail},
		"stderr":  errorType + ": " + detail,
	})
}
