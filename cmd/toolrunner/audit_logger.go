package main

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditLogger records every execution attempt as one JSON line.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger writes to a rotating file at logPath.
func NewAuditLogger(logPath string) *AuditLogger {
	return NewAuditLoggerWithWriter(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	})
}

// NewAuditLoggerWithWriter writes audit records to w; io.Discard disables
// auditing.
func NewAuditLoggerWithWriter(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

// LogExecution records an execution, successful or not.
func (a *AuditLogger) LogExecution(req CommandRequest, resp CommandResponse, err error, sourceIP string) {
	result := "success"
	attrs := []any{
		"command", req.Command,
		"args", req.Args,
		"exit_code", resp.ExitCode,
		"duration_ms", resp.Duration.Milliseconds(),
		"source_ip", sourceIP,
	}
	if err != nil || resp.ExitCode != 0 {
		result = "failed"
		if err != nil {
			attrs = append(attrs, "error_message", err.Error())
		}
	}
	a.logger.Info("command_execution", append(attrs, "result", result)...)
}

// LogRejection records a request rejected by validation.
func (a *AuditLogger) LogRejection(req CommandRequest, reason string, sourceIP string) {
	a.logger.Warn("command_execution",
		"command", req.Command,
		"args", req.Args,
		"result", "rejected",
		"rejection_reason", reason,
		"source_ip", sourceIP,
	)
}
