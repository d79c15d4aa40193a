package dependency

import "context"

// DependencyExecutor runs the audio tools (ffmpeg, ffprobe, demucs).
// LocalExecutor execs the binaries, RemoteExecutor calls the tool runner
// service and FallbackExecutor prefers remote with a local fallback.
type DependencyExecutor interface {
	// ExecuteCommand runs req to completion. A non-zero exit is reported in
	// CommandResponse.ExitCode; cancelling ctx kills the process.
	ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error)

	// HealthCheck returns nil when the executor can accept work.
	HealthCheck(ctx context.Context) error
}
