package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// LocalWhisperImpl runs a whisper executable installed on the host.
//
// The program is invoked as
//
//	<program> transcribe <model> <audio> --format json [--language xx] [--beam-size n] [--vad] [--prompt "..."]
//
// and must print JSON on stdout: either one result object with a "segments"
// array or a stream of segment objects.
type LocalWhisperImpl struct {
	programPath string
	modelPath   string
}

// NewLocalWhisperImpl validates that programPath exists and is executable.
func NewLocalWhisperImpl(programPath, modelPath string) (*LocalWhisperImpl, error) {
	info, err := os.Stat(programPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper program not found: %s", programPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat whisper program: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("whisper program is not executable: %s (mode: %s)", programPath, info.Mode())
	}

	return &LocalWhisperImpl{
		programPath: programPath,
		modelPath:   modelPath,
	}, nil
}

func (l *LocalWhisperImpl) modelArg(model string) string {
	if l.modelPath == "" {
		return model
	}
	// whisper.cpp style model files
	name := strings.TrimSuffix(model, ".bin")
	if !strings.HasPrefix(name, "ggml-") {
		name = "ggml-" + name
	}
	return filepath.Join(l.modelPath, name+".bin")
}

func (l *LocalWhisperImpl) buildArgs(audioPath string, opts TranscribeOptions) []string {
	args := []string{"transcribe", l.modelArg(opts.Model), audioPath, "--format", "json",
		"--temperature", strconv.FormatFloat(opts.Temperature, 'f', 1, 64)}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.BeamSize > 0 {
		args = append(args, "--beam-size", strconv.Itoa(opts.BeamSize))
	}
	if opts.VADFilter {
		args = append(args, "--vad")
	}
	if opts.Prompt != "" {
		args = append(args, "--prompt", opts.Prompt)
	}
	return args
}

// Transcribe executes the CLI and parses its stdout.
func (l *LocalWhisperImpl) Transcribe(ctx context.Context, audioPath string, options *TranscribeOptions) (*TranscriptionResult, error) {
	opts := options.orDefault()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := l.buildArgs(audioPath, opts)
	cmd := exec.CommandContext(ctx, l.programPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("local whisper exec", "program", l.programPath, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("CLI execution failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	result, err := parseCLIOutput(stdout.Bytes())
	if err != nil {
		slog.Warn("local whisper output not parseable", "error", err, "bytes", stdout.Len())
		return nil, err
	}
	slog.Debug("local whisper done", "segments", len(result.Segments))
	return result, nil
}

// parseCLIOutput accepts a single result object or a sequence of segment
// objects. Empty output is an empty transcription.
func parseCLIOutput(output []byte) (*TranscriptionResult, error) {
	result := &TranscriptionResult{Segments: []TranscriptionSegment{}}

	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse JSON output: %w", err)
		}

		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("unexpected JSON value in output: %w", err)
		}
		if _, ok := probe["segments"]; ok {
			var full TranscriptionResult
			if err := json.Unmarshal(raw, &full); err != nil {
				return nil, fmt.Errorf("failed to parse transcription result: %w", err)
			}
			result.Segments = append(result.Segments, full.Segments...)
			result.Language = full.Language
			result.Duration = full.Duration
			continue
		}

		var segment TranscriptionSegment
		if err := json.Unmarshal(raw, &segment); err != nil {
			return nil, fmt.Errorf("failed to parse JSON segment: %w", err)
		}
		result.Segments = append(result.Segments, segment)
	}

	texts := make([]string, 0, len(result.Segments))
	for _, s := range result.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			texts = append(texts, t)
		}
	}
	result.Text = strings.Join(texts, " ")
	return result, nil
}

// HealthCheck runs "<program> version".
func (l *LocalWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, l.programPath, "version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("version check failed: %w, output: %s", err, string(output))
	}
	if len(output) > 0 {
		return true, nil
	}
	return false, fmt.Errorf("unexpected empty version output")
}

func (l *LocalWhisperImpl) Name() string {
	return "local-whisper"
}
