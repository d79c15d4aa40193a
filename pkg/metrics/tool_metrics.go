// Package metrics exposes Prometheus metrics for external tool invocations
// (ffmpeg, demucs, whisper) shared by the server and the tool runner.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// toolExecutionsTotal counts external tool invocations.
	// Labels:
	//   - tool: binary name (ffmpeg, demucs, whisper)
	//   - mode: local, remote or fallback
	//   - status: success, failed or timeout
	toolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refret_tool_executions_total",
			Help: "Total number of external tool executions",
		},
		[]string{"tool", "mode", "status"},
	)

	// toolExecutionDuration tracks how long tool invocations take.
	// Demucs on a ten minute chunk routinely runs for several minutes, so
	// the upper buckets go to half an hour.
	toolExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refret_tool_duration_seconds",
			Help:    "Duration of external tool executions in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"tool", "mode"},
	)

	// modeFallbacksTotal counts switches from one execution mode to another.
	modeFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refret_tool_mode_fallbacks_total",
			Help: "Total number of execution mode fallbacks (e.g., remote -> local)",
		},
		[]string{"from_mode", "to_mode"},
	)

	// toolSlotWaitSeconds measures time spent waiting for the heavy tool slot.
	toolSlotWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refret_tool_slot_wait_seconds",
			Help:    "Time spent waiting to acquire the heavy tool slot",
			Buckets: []float64{0.01, 0.1, 1, 10, 60, 300, 1800},
		},
	)

	// degradationEventsTotal counts switches between the primary and the
	// fallback implementation of a degradable component.
	// Labels:
	//   - component: e.g. transcriber
	//   - direction: degrade or recover
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refret_degradation_events_total",
			Help: "Total number of degradation and recovery switches",
		},
		[]string{"component", "direction"},
	)
)

func init() {
	prometheus.MustRegister(toolExecutionsTotal)
	prometheus.MustRegister(toolExecutionDuration)
	prometheus.MustRegister(modeFallbacksTotal)
	prometheus.MustRegister(toolSlotWaitSeconds)
	prometheus.MustRegister(degradationEventsTotal)
}

// RecordToolExecution records one tool invocation outcome.
func RecordToolExecution(tool, mode, status string) {
	toolExecutionsTotal.WithLabelValues(tool, mode, status).Inc()
}

// RecordToolDuration observes the wall time of a tool invocation.
func RecordToolDuration(tool, mode string, durationSeconds float64) {
	toolExecutionDuration.WithLabelValues(tool, mode).Observe(durationSeconds)
}

// RecordModeFallback records a switch between execution modes.
func RecordModeFallback(fromMode, toMode string) {
	modeFallbacksTotal.WithLabelValues(fromMode, toMode).Inc()
}

// ObserveToolSlotWait records how long a caller waited for the tool slot.
func ObserveToolSlotWait(seconds float64) {
	toolSlotWaitSeconds.Observe(seconds)
}

// RecordDegradation records a switch to the fallback (degrade) or back to the
// primary (recover).
func RecordDegradation(component, direction string) {
	degradationEventsTotal.WithLabelValues(component, direction).Inc()
}
