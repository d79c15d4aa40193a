package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageRunsTotal 流水线阶段执行次数计数器
	// Labels: stage (normalize/separate/peaks/transcribe/summarize), status (success/error)
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refret_stage_runs_total",
			Help: "Total number of pipeline stage runs by stage and outcome",
		},
		[]string{"stage", "status"},
	)

	// StageDuration 阶段耗时直方图（秒）
	// 分离阶段在 CPU 上处理一小时课程可达数十分钟，因此上限桶到 2 小时
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refret_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"stage"},
	)

	// PipelineErrorsTotal 流水线错误计数器
	// Labels: stage, error_code (SPLIT_FAILED/MERGE_FAILED/STAGE_EXECUTION_FAILED/...)
	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refret_pipeline_errors_total",
			Help: "Total number of pipeline errors by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	// PipelinesInFlight 正在运行的后台任务数（完整流水线与单阶段重跑）
	PipelinesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refret_pipelines_in_flight",
			Help: "Number of pipelines and stage re-runs currently running",
		},
	)

	// PeakPointsTotal 生成的波形峰值点总数
	PeakPointsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refret_peak_points_total",
			Help: "Total number of waveform peak points generated",
		},
	)

	// EnvironmentReady 环境就绪状态量规（0=未就绪，1=就绪）
	EnvironmentReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refret_environment_ready",
			Help: "Environment readiness status (0=not ready, 1=ready)",
		},
	)
)

// RecordStage 记录一次阶段执行结果与耗时
func RecordStage(stage string, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	StageRunsTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordError 记录流水线错误
func RecordError(stage, errorCode string) {
	PipelineErrorsTotal.WithLabelValues(stage, errorCode).Inc()
}

// PipelineStarted 后台任务开始
func PipelineStarted() {
	PipelinesInFlight.Inc()
}

// PipelineFinished 后台任务结束
func PipelineFinished() {
	PipelinesInFlight.Dec()
}

// AddPeakPoints 累加生成的峰值点数
func AddPeakPoints(n int) {
	PeakPointsTotal.Add(float64(n))
}

// SetEnvironmentReady 设置环境就绪状态
func SetEnvironmentReady(ready bool) {
	if ready {
		EnvironmentReady.Set(1)
	} else {
		EnvironmentReady.Set(0)
	}
}
