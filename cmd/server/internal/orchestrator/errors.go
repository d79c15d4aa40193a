package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/peaks"
)

// ErrorCode 表示流水线错误类型代码
type ErrorCode string

const (
	// SPLIT_FAILED 音频分块失败（源文件缺失、为空或 ffmpeg 失败）
	SPLIT_FAILED ErrorCode = "SPLIT_FAILED"

	// MERGE_FAILED 分块结果拼接失败
	MERGE_FAILED ErrorCode = "MERGE_FAILED"

	// MISSING_UPSTREAM_ARTIFACT 重跑阶段所依赖的上游产物不存在
	MISSING_UPSTREAM_ARTIFACT ErrorCode = "MISSING_UPSTREAM_ARTIFACT"

	// STAGE_EXECUTION_FAILED 阶段执行器（Demucs、Whisper、LLM 等）失败
	STAGE_EXECUTION_FAILED ErrorCode = "STAGE_EXECUTION_FAILED"

	// EXTRACTION_FAILED 波形峰值提取失败
	EXTRACTION_FAILED ErrorCode = "EXTRACTION_FAILED"
)

// 哨兵错误，API 层据此映射 HTTP 状态码
var (
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrLessonBusy       = errors.New("lesson has work in flight")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrEmptyUpload      = errors.New("uploaded file is empty")
	ErrUnknownTrack     = errors.New("unknown track")
	ErrInvalidRegion    = errors.New("invalid region")
	ErrShuttingDown     = errors.New("orchestrator is shutting down")

	// ErrArtifactNotFound 与 artifact.ErrNotFound 相同，便于 errors.Is 判断
	ErrArtifactNotFound = artifact.ErrNotFound
)

// OrchError 表示流水线阶段错误
type OrchError struct {
	Code      ErrorCode `json:"code"`
	Stage     Stage     `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *OrchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *OrchError) Unwrap() error {
	return e.Cause
}

// ErrorCode 返回错误代码
func (e *OrchError) ErrorCode() ErrorCode {
	return e.Code
}

// NewOrchError 创建新的流水线错误
func NewOrchError(code ErrorCode, stage Stage, message string, cause error) *OrchError {
	return &OrchError{
		Code:      code,
		Stage:     stage,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewStageError 创建阶段执行失败错误
func NewStageError(stage Stage, cause error) *OrchError {
	return NewOrchError(STAGE_EXECUTION_FAILED, stage, fmt.Sprintf("%s stage failed", stage), cause)
}

// MissingUpstreamArtifact 表示重跑某阶段前必须先运行的上游阶段
type MissingUpstreamArtifact struct {
	Stage    Stage
	RunFirst Stage
	Artifact string
}

// Error 实现 error 接口
func (e *MissingUpstreamArtifact) Error() string {
	return fmt.Sprintf("[%s] cannot run %s: %s is missing, run %s first",
		MISSING_UPSTREAM_ARTIFACT, e.Stage, e.Artifact, e.RunFirst)
}

// ErrorCode 返回错误代码
func (e *MissingUpstreamArtifact) ErrorCode() ErrorCode {
	return MISSING_UPSTREAM_ARTIFACT
}

// IsCode 判断错误链中是否包含指定错误代码
func IsCode(err error, code ErrorCode) bool {
	var coded interface{ ErrorCode() ErrorCode }
	if errors.As(err, &coded) {
		return coded.ErrorCode() == code
	}
	return false
}

// CodeOf 返回错误链中的错误代码，无代码时返回空串
func CodeOf(err error) ErrorCode {
	var coded interface{ ErrorCode() ErrorCode }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// classify 将子包的类型化错误映射为带代码的 OrchError
func classify(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}

	var splitErr *chunker.SplitError
	var mergeErr *chunker.MergeError
	var extractErr *peaks.ExtractionError
	switch {
	case errors.As(err, &splitErr):
		return NewOrchError(SPLIT_FAILED, stage, "audio split failed", err)
	case errors.As(err, &mergeErr):
		return NewOrchError(MERGE_FAILED, stage, "audio merge failed", err)
	case errors.As(err, &extractErr):
		return NewOrchError(EXTRACTION_FAILED, stage, "peak extraction failed", err)
	default:
		return NewStageError(stage, err)
	}
}

// maxStatusMessageRunes 状态消息的最大长度
const maxStatusMessageRunes = 200

// statusMessage 生成写入状态记录的单行错误摘要
//
// 保留首行；多行错误（如工具 stderr 中的堆栈）只追加最后一个非空行。
// 完整错误链只记录在服务端日志中。
func statusMessage(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	msg := lines[0]
	if len(lines) > 1 {
		msg += " " + lines[len(lines)-1]
	}
	if utf8.RuneCountInString(msg) > maxStatusMessageRunes {
		msg = string([]rune(msg)[:maxStatusMessageRunes]) + "..."
	}
	return msg
}
