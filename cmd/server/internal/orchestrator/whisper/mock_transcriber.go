package whisper

import (
	"context"
	"log/slog"
)

// MockTranscriber is the degraded fallback used when no real backend is
// healthy. Lessons still complete; the transcript is simply empty.
type MockTranscriber struct{}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

// Transcribe returns an empty result and never fails.
func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath string, options *TranscribeOptions) (*TranscriptionResult, error) {
	slog.Warn("transcription unavailable, returning empty transcript", "transcriber", m.Name(), "audio", audioPath)

	return &TranscriptionResult{
		Segments: []TranscriptionSegment{},
		Language: "unknown",
	}, nil
}

// HealthCheck is always false so the controller keeps looking for a real backend.
func (m *MockTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	return false, nil
}

func (m *MockTranscriber) Name() string {
	return "mock-degraded"
}
