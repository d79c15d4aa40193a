package dependency

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RemoteExecutor executes commands through the tool runner service
// (cmd/toolrunner), which owns the ffmpeg/demucs installation and shares the
// data volume with the server.
type RemoteExecutor struct {
	config     ExecutorConfig
	httpClient *http.Client
}

// NewRemoteExecutor creates a new RemoteExecutor with the given configuration.
func NewRemoteExecutor(config ExecutorConfig) *RemoteExecutor {
	return &RemoteExecutor{
		config:     config,
		httpClient: &http.Client{},
	}
}

// ExecuteCommand executes a command remotely via HTTP POST /api/v1/execute.
func (e *RemoteExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	if req.Timeout == 0 {
		req.Timeout = e.config.DefaultTimeout
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to serialize request: %w", err)
	}

	// HTTP deadline is slightly larger than the command timeout
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout+10*time.Second)
		defer cancel()
	}

	url := strings.TrimSuffix(e.config.ServiceURL, "/") + "/api/v1/execute"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Debug("remote command dispatch", "url", url, "command", req.Command)

	start := time.Now()
	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to call tool runner (network error): %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to read tool runner response (network error): %w", err)
	}

	var resp CommandResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		slog.Warn("tool runner returned unparseable body", "status", httpResp.StatusCode, "error", err)
		return CommandResponse{}, fmt.Errorf("failed to parse response (HTTP %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("tool runner returned error (HTTP %d): %s", httpResp.StatusCode, resp.Stderr)
	}

	if resp.Duration == 0 {
		resp.Duration = time.Since(start)
	}

	return resp, nil
}

// HealthCheck verifies that the tool runner is reachable and healthy.
func (e *RemoteExecutor) HealthCheck(ctx context.Context) error {
	url := strings.TrimSuffix(e.config.ServiceURL, "/") + "/api/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tool runner unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tool runner unhealthy (HTTP %d)", resp.StatusCode)
	}

	return nil
}
