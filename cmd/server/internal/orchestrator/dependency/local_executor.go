package dependency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

// LocalExecutor executes commands directly on the local system using exec.Command.
// It is the default for single-host deployments where ffmpeg and demucs are
// installed next to the server.
type LocalExecutor struct {
	config ExecutorConfig
}

// NewLocalExecutor creates a new LocalExecutor with the given configuration.
func NewLocalExecutor(config ExecutorConfig) *LocalExecutor {
	return &LocalExecutor{config: config}
}

// ExecuteCommand executes a command locally and returns the result.
func (e *LocalExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	binaryPath, err := e.resolveBinaryPath(req.Command)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to resolve binary path for %s: %w", req.Command, err)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := e.buildCommand(ctx, binaryPath, req)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("local command starting", "command", req.Command, "args", req.Args)

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	resp := CommandResponse{
		Success:  err == nil,
		ExitCode: getExitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// demucs forks worker processes; kill the whole group
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return resp, fmt.Errorf("command execution timeout (%v): %s", timeout, req.Command)
	}

	return resp, err
}

// StartStream starts a command whose stdout is consumed incrementally by the
// caller. The returned stream must be closed; Close waits for the process.
func (e *LocalExecutor) StartStream(ctx context.Context, req CommandRequest) (*Stream, error) {
	binaryPath, err := e.resolveBinaryPath(req.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve binary path for %s: %w", req.Command, err)
	}

	cancel := func() {}
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	cmd := e.buildCommand(ctx, binaryPath, req)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe for %s: %w", req.Command, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", req.Command, err)
	}

	return &Stream{reader: stdout, cmd: cmd, stderr: stderr, cancel: cancel, started: time.Now()}, nil
}

// HealthCheck verifies that all configured local binaries are available.
func (e *LocalExecutor) HealthCheck(ctx context.Context) error {
	names := make([]string, 0, len(e.config.LocalBinaryPaths))
	for name := range e.config.LocalBinaryPaths {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := e.config.LocalBinaryPaths[name]
		if _, err := exec.LookPath(path); err != nil {
			return fmt.Errorf("local command %s not available at %s: %w", name, path, err)
		}
	}
	return nil
}

func (e *LocalExecutor) buildCommand(ctx context.Context, binaryPath string, req CommandRequest) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binaryPath, req.Args...)
	cmd.Env = append(os.Environ(), buildEnvSlice(req.Env)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// resolveBinaryPath resolves the binary path from config or PATH environment.
func (e *LocalExecutor) resolveBinaryPath(command string) (string, error) {
	if path, ok := e.config.LocalBinaryPaths[command]; ok && path != "" {
		return path, nil
	}
	return exec.LookPath(command)
}

func buildEnvSlice(envMap map[string]string) []string {
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return result
}

func getExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
