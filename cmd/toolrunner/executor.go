package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// maxCapturedOutput caps stdout/stderr kept in a response.
const maxCapturedOutput = 1 << 20

// Executor runs whitelisted binaries.
type Executor struct {
	config *Config
	logger *slog.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(config *Config, logger *slog.Logger) *Executor {
	return &Executor{config: config, logger: logger.With("component", "executor")}
}

// ExecuteCommand runs the request with its timeout (or the command's
// configured one), capturing output and the exit code. The whole process
// group is killed when the deadline passes.
func (e *Executor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	cmdConfig, err := e.config.GetCommandConfig(req.Command)
	if err != nil {
		return CommandResponse{}, fmt.Errorf("failed to get command config: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout, err = time.ParseDuration(cmdConfig.Timeout)
		if err != nil {
			return CommandResponse{}, fmt.Errorf("invalid timeout format in config: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cmdConfig.BinaryPath, req.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	if len(req.Env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range req.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}

	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.logger.Info("executing command", "command", req.Command, "args", req.Args, "timeout", timeout.String(), "dir", req.WorkingDir)

	start := time.Now()
	err = cmd.Run()
	resp := CommandResponse{
		Success:     err == nil,
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		Duration:    time.Since(start),
		OutputFiles: []string{},
	}
	if cmd.ProcessState != nil {
		resp.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("command timed out", "command", req.Command, "timeout", timeout.String())
		return resp, fmt.Errorf("command timeout after %v", timeout)
	}
	if err != nil {
		e.logger.Warn("command failed", "command", req.Command, "exit_code", resp.ExitCode, "stderr", resp.Stderr, "error", err)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// non-zero exit is reported through ExitCode
			return resp, nil
		}
		return resp, err
	}

	e.logger.Info("command succeeded", "command", req.Command, "duration_ms", resp.Duration.Milliseconds())
	return resp, nil
}

// cappedBuffer keeps the first limit bytes written to it.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
