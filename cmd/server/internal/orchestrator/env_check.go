package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/health"
)

// EnvironmentStatus 表示整体环境状态
type EnvironmentStatus struct {
	Ready    bool               `json:"ready"`
	Issues   []string           `json:"issues"`
	Warnings []string           `json:"warnings"`
	Details  EnvironmentDetails `json:"details"`
}

// EnvironmentDetails 包含各组件的详细状态
type EnvironmentDetails struct {
	DataDir     DirStatus     `json:"data_dir"`
	Executor    ServiceStatus `json:"executor"`
	FFmpeg      ToolStatus    `json:"ffmpeg"`
	Demucs      ToolStatus    `json:"demucs"`
	Transcriber ServiceStatus `json:"transcriber"`
	Notation    ServiceStatus `json:"notation"`
	LLMAPIKey   TokenStatus   `json:"llm_api_key"`
}

// DirStatus 表示数据目录状态
type DirStatus struct {
	Path     string `json:"path"`
	Writable bool   `json:"writable"`
	Error    string `json:"error,omitempty"`
}

// TokenStatus 表示 API Key 配置状态
type TokenStatus struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

// ServiceStatus 表示外部服务状态
type ServiceStatus struct {
	Name      string `json:"name,omitempty"`
	Reachable bool   `json:"reachable"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ToolStatus 表示命令行工具状态
type ToolStatus struct {
	Checked   bool   `json:"checked"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ExecutorProbe 是命令执行器的健康检查接口
type ExecutorProbe interface {
	HealthCheck(ctx context.Context) error
}

// EnvironmentChecks 描述需要检查的组件，未设置的项跳过
type EnvironmentChecks struct {
	DataDir     string
	Executor    ExecutorProbe
	Transcriber health.Probe
	Notation    health.Probe

	// FFmpegPath / DemucsPath 仅在本地执行模式下检查
	FFmpegPath string
	DemucsPath string

	LLMProvider string
	LLMAPIKey   string
}

const probeTimeout = 5 * time.Second

// CheckEnvironment 执行完整的环境检查
// 数据目录、执行器、ffmpeg 不可用时 Ready=false；其余问题只记为警告
func CheckEnvironment(ctx context.Context, checks EnvironmentChecks) *EnvironmentStatus {
	status := &EnvironmentStatus{
		Ready:    true,
		Issues:   []string{},
		Warnings: []string{},
	}
	issue := func(format string, args ...any) {
		status.Ready = false
		status.Issues = append(status.Issues, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		status.Warnings = append(status.Warnings, fmt.Sprintf(format, args...))
	}

	// 1. 数据目录可写
	status.Details.DataDir = checkDataDir(checks.DataDir)
	if !status.Details.DataDir.Writable {
		issue("数据目录不可写: %s", status.Details.DataDir.Error)
	}

	// 2. 命令执行器
	if checks.Executor != nil {
		status.Details.Executor = probeExecutor(ctx, checks.Executor)
		if !status.Details.Executor.Reachable {
			issue("命令执行器不可用: %s", status.Details.Executor.Error)
		}
	}

	// 3. 本地工具
	if checks.FFmpegPath != "" {
		status.Details.FFmpeg = checkTool(ctx, checks.FFmpegPath, "-version")
		if !status.Details.FFmpeg.Available {
			issue("FFmpeg 不可用: %s", status.Details.FFmpeg.Error)
		}
	}
	if checks.DemucsPath != "" {
		status.Details.Demucs = checkTool(ctx, checks.DemucsPath, "")
		if !status.Details.Demucs.Available {
			warn("Demucs 不可用，分离阶段将失败: %s", status.Details.Demucs.Error)
		}
	}

	// 4. 转写服务（降级后仍可运行，记为警告）
	if checks.Transcriber != nil {
		status.Details.Transcriber = probeService(ctx, checks.Transcriber)
		if !status.Details.Transcriber.Reachable {
			warn("转写服务不可达: %s", status.Details.Transcriber.Error)
		}
	}

	// 5. 记谱服务
	if checks.Notation != nil {
		status.Details.Notation = probeService(ctx, checks.Notation)
		if !status.Details.Notation.Reachable {
			warn("记谱服务不可达: %s", status.Details.Notation.Error)
		}
	}

	// 6. LLM API Key（ollama 不需要）
	status.Details.LLMAPIKey = TokenStatus{Provider: checks.LLMProvider}
	if checks.LLMAPIKey != "" {
		status.Details.LLMAPIKey.Configured = true
		status.Details.LLMAPIKey.Masked = maskToken(checks.LLMAPIKey)
	} else if checks.LLMProvider == "" || checks.LLMProvider == "openai" {
		warn("未配置 LLM API Key，摘要将返回错误文档")
	}

	return status
}

// checkDataDir 通过创建临时文件确认目录可写
func checkDataDir(dir string) DirStatus {
	st := DirStatus{Path: dir}
	if dir == "" {
		st.Error = "未配置数据目录"
		return st
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		st.Error = err.Error()
		return st
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		st.Error = err.Error()
		return st
	}
	f.Close()
	_ = os.Remove(f.Name())
	st.Writable = true
	return st
}

func probeExecutor(ctx context.Context, probe ExecutorProbe) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	if err := probe.HealthCheck(ctx); err != nil {
		return ServiceStatus{Name: "executor", Error: err.Error()}
	}
	return ServiceStatus{Name: "executor", Reachable: true, Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds())}
}

// probeService 检查外部服务健康状态
func probeService(ctx context.Context, probe health.Probe) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	ok, err := probe.HealthCheck(ctx)
	latency := time.Since(start)

	st := ServiceStatus{Name: probe.Name()}
	switch {
	case err != nil:
		st.Error = err.Error()
	case !ok:
		st.Error = "health check reported unhealthy"
	default:
		st.Reachable = true
		st.Latency = fmt.Sprintf("%dms", latency.Milliseconds())
	}
	return st
}

// maskToken 遮蔽 Token 的中间部分
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// checkTool 检查命令行工具可用性；versionFlag 为空时只检查路径
func checkTool(ctx context.Context, bin, versionFlag string) ToolStatus {
	st := ToolStatus{Checked: true}
	path, err := exec.LookPath(bin)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Path = path
	if versionFlag == "" {
		st.Available = true
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, versionFlag).CombinedOutput()
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Available = true
	st.Version = parseVersion(string(output))
	return st
}

// parseVersion 取首行第三个字段（"ffmpeg version 6.1 ..."）
func parseVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	parts := strings.Fields(line)
	if len(parts) >= 3 {
		return parts[2]
	}
	return "unknown"
}

