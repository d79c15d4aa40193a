// Package degradation switches the transcribe stage between the configured
// Whisper backend and the degraded mock based on health status.
package degradation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/whisper"
	"github.com/houzhh15/refret/pkg/metrics"
)

const metricComponent = "transcriber"

// DegradationController picks the active transcriber. It is itself a
// whisper.WhisperTranscriber, so the pipeline never needs to know which
// backend served a request.
type DegradationController struct {
	primaryTranscriber  whisper.WhisperTranscriber
	fallbackTranscriber whisper.WhisperTranscriber
	healthChecker       *health.HealthChecker
	currentTranscriber  whisper.WhisperTranscriber
	mu                  sync.RWMutex
	isDegraded          bool
}

// NewDegradationController starts on the primary transcriber.
func NewDegradationController(
	primary whisper.WhisperTranscriber,
	fallback whisper.WhisperTranscriber,
	hc *health.HealthChecker,
) *DegradationController {
	return &DegradationController{
		primaryTranscriber:  primary,
		fallbackTranscriber: fallback,
		healthChecker:       hc,
		currentTranscriber:  primary,
	}
}

// GetTranscriber returns the active transcriber, switching to the fallback
// when the primary is unhealthy and back once it recovers.
func (dc *DegradationController) GetTranscriber() whisper.WhisperTranscriber {
	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !status.IsHealthy && !dc.isDegraded {
		slog.Warn("degrading to fallback transcriber",
			"fallback", dc.fallbackTranscriber.Name(), "primary", dc.primaryTranscriber.Name(), "reason", status.ErrorMessage)
		dc.currentTranscriber = dc.fallbackTranscriber
		dc.isDegraded = true
		metrics.RecordDegradation(metricComponent, "degrade")
	}

	if status.IsHealthy && dc.isDegraded {
		slog.Info("recovering to primary transcriber", "primary", dc.primaryTranscriber.Name())
		dc.currentTranscriber = dc.primaryTranscriber
		dc.isDegraded = false
		metrics.RecordDegradation(metricComponent, "recover")
	}

	return dc.currentTranscriber
}

// IsDegraded reports whether the fallback is active.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.isDegraded
}

// Transcribe delegates to the active transcriber.
func (dc *DegradationController) Transcribe(ctx context.Context, audioPath string, options *whisper.TranscribeOptions) (*whisper.TranscriptionResult, error) {
	return dc.GetTranscriber().Transcribe(ctx, audioPath, options)
}

// HealthCheck reports the primary's last known health. Degraded operation
// counts as unhealthy.
func (dc *DegradationController) HealthCheck(ctx context.Context) (bool, error) {
	status := dc.healthChecker.GetStatus()
	return status.IsHealthy, nil
}

// Name is the active transcriber's name.
func (dc *DegradationController) Name() string {
	return dc.GetTranscriber().Name()
}
