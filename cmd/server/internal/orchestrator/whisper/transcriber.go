// Package whisper provides the speech-recognition backends used by the
// transcribe stage: an HTTP Whisper service, a local Whisper CLI and a
// degraded no-op implementation.
package whisper

import (
	"context"
	"time"
)

// TranscriptionSegment is a single segment of transcribed audio.
type TranscriptionSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the complete result of one transcription.
type TranscriptionResult struct {
	Segments []TranscriptionSegment `json:"segments"`
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Duration float64                `json:"duration"`
}

// WhisperTranscriber is implemented by every transcription backend. The
// degradation controller picks the active one based on health checks.
type WhisperTranscriber interface {
	// Transcribe recognizes speech in audioPath. An empty recording yields a
	// result with no segments, not an error.
	Transcribe(ctx context.Context, audioPath string, options *TranscribeOptions) (*TranscriptionResult, error)

	// HealthCheck reports whether the backend can serve requests.
	HealthCheck(ctx context.Context) (bool, error)

	// Name identifies the backend in logs and status output.
	Name() string
}

// TranscribeOptions defines optional parameters for Transcribe.
type TranscribeOptions struct {
	// Model is the Whisper model name (e.g., "base", "small", "large-v3").
	Model string

	// Language is an ISO 639-1 hint; empty means auto-detect.
	Language string

	// Prompt primes the decoder with domain vocabulary (chord names etc.).
	Prompt string

	// BeamSize for beam search decoding; 0 uses the backend default.
	BeamSize int

	// VADFilter skips non-speech regions. Lessons contain long stretches of
	// playing, so this is normally on.
	VADFilter bool

	// Temperature for sampling; 0 keeps decoding deterministic.
	Temperature float64

	// Timeout bounds one transcription; 0 means no extra bound.
	Timeout time.Duration
}

func (o *TranscribeOptions) orDefault() TranscribeOptions {
	if o == nil {
		return TranscribeOptions{Model: "base", BeamSize: 5, VADFilter: true}
	}
	opts := *o
	if opts.Model == "" {
		opts.Model = "base"
	}
	return opts
}
