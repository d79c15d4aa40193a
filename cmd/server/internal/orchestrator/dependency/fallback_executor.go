package dependency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/houzhh15/refret/pkg/metrics"
)

// FallbackExecutor tries the tool runner first and switches to local
// execution once the runner becomes unreachable. The switch is sticky until
// the next successful HealthCheck against the runner.
type FallbackExecutor struct {
	config         ExecutorConfig
	remoteExecutor *RemoteExecutor
	localExecutor  *LocalExecutor
	primaryMode    ExecutionMode
	mu             sync.RWMutex
}

// NewFallbackExecutor creates a new FallbackExecutor with remote as the initial primary mode.
func NewFallbackExecutor(config ExecutorConfig) *FallbackExecutor {
	return &FallbackExecutor{
		config:         config,
		remoteExecutor: NewRemoteExecutor(config),
		localExecutor:  NewLocalExecutor(config),
		primaryMode:    ModeRemote,
	}
}

// ExecuteCommand executes a command using the current primary mode, with automatic fallback.
func (e *FallbackExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	start := time.Now()
	mode := e.PrimaryMode()

	var resp CommandResponse
	var err error

	if mode == ModeRemote {
		resp, err = e.remoteExecutor.ExecuteCommand(ctx, req)
		if err != nil && isNetworkError(err) {
			slog.Warn("remote execution failed, attempting local fallback",
				"command", req.Command,
				"error", err.Error())

			metrics.RecordToolExecution(req.Command, string(ModeRemote), "failed")
			metrics.RecordToolDuration(req.Command, string(ModeRemote), time.Since(start).Seconds())

			return e.fallbackToLocal(ctx, req)
		}
	} else {
		resp, err = e.localExecutor.ExecuteCommand(ctx, req)
	}

	metrics.RecordToolExecution(req.Command, string(mode), executionStatus(resp, err))
	metrics.RecordToolDuration(req.Command, string(mode), time.Since(start).Seconds())

	return resp, err
}

// HealthCheck probes the tool runner first and local binaries second,
// selecting whichever is available as the primary mode.
func (e *FallbackExecutor) HealthCheck(ctx context.Context) error {
	remoteErr := e.remoteExecutor.HealthCheck(ctx)
	if remoteErr == nil {
		e.setPrimaryMode(ModeRemote)
		return nil
	}
	slog.Warn("tool runner unavailable, trying local tools", "error", remoteErr.Error())

	if err := e.localExecutor.HealthCheck(ctx); err != nil {
		return fmt.Errorf("both remote and local tools unavailable: remote: %v; local: %w", remoteErr, err)
	}
	if e.PrimaryMode() != ModeLocal {
		metrics.RecordModeFallback(string(ModeRemote), string(ModeLocal))
	}
	e.setPrimaryMode(ModeLocal)
	slog.Info("local tools available, using local mode (degraded)")
	return nil
}

// PrimaryMode returns the mode currently used for new commands.
func (e *FallbackExecutor) PrimaryMode() ExecutionMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.primaryMode
}

func (e *FallbackExecutor) fallbackToLocal(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	start := time.Now()

	resp, err := e.localExecutor.ExecuteCommand(ctx, req)

	metrics.RecordToolExecution(req.Command, string(ModeLocal), executionStatus(resp, err))
	metrics.RecordToolDuration(req.Command, string(ModeLocal), time.Since(start).Seconds())

	if err == nil && resp.Success {
		e.setPrimaryMode(ModeLocal)
		slog.Info("local fallback succeeded, primary mode is now local", "command", req.Command)
		metrics.RecordModeFallback(string(ModeRemote), string(ModeLocal))
	}

	return resp, err
}

func (e *FallbackExecutor) setPrimaryMode(mode ExecutionMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primaryMode = mode
}

// executionStatus categorizes execution result as "success", "timeout", or "failed".
func executionStatus(resp CommandResponse, err error) string {
	if err == nil && resp.Success {
		return "success"
	}
	if err != nil && strings.Contains(err.Error(), "timeout") {
		return "timeout"
	}
	return "failed"
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "network error")
}
