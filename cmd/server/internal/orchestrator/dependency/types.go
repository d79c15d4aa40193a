// Package dependency runs the external audio tools the lesson pipeline relies
// on (ffmpeg, demucs) in one of several execution modes (local, remote,
// fallback) and exposes them through a small audio facade.
package dependency

import "time"

// ExecutionMode specifies how commands should be executed.
type ExecutionMode string

const (
	// ModeLocal executes commands directly on the local system using exec.Command.
	ModeLocal ExecutionMode = "local"

	// ModeRemote executes commands by calling the tool runner service via HTTP.
	ModeRemote ExecutionMode = "remote"

	// ModeFallback tries remote execution first, then falls back to local on failure.
	ModeFallback ExecutionMode = "fallback"
)

// CommandRequest encapsulates all information needed to execute a command.
type CommandRequest struct {
	// Command is the binary name or alias (e.g., "ffmpeg", "demucs").
	Command string `json:"command" yaml:"command"`

	// Args are the command-line arguments.
	Args []string `json:"args" yaml:"args"`

	// Env contains extra environment variables (e.g., {"OMP_NUM_THREADS": "1"}).
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// WorkingDir is the directory to execute the command in (default: current dir).
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`

	// Timeout is the maximum execution duration (0 means executor default).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// CommandResponse contains the result of a command execution.
type CommandResponse struct {
	Success  bool          `json:"success" yaml:"success"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Stdout   string        `json:"stdout" yaml:"stdout"`
	Stderr   string        `json:"stderr" yaml:"stderr"`
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`

	// OutputFiles lists the paths of generated files (relative to shared volume).
	OutputFiles []string `json:"output_files,omitempty" yaml:"output_files,omitempty"`
}

// ExecutorConfig defines the configuration for tool execution.
type ExecutorConfig struct {
	// Mode specifies the execution strategy: "local", "remote", or "fallback".
	Mode ExecutionMode `json:"mode" yaml:"mode"`

	// ServiceURL is the HTTP endpoint of the tool runner
	// (e.g., "http://toolrunner:8090"). Required for "remote" and "fallback" modes.
	ServiceURL string `json:"service_url" yaml:"service_url"`

	// SharedVolumePath is the data root shared with the tool runner
	// (e.g., "/data"). Working directories must be within this directory.
	SharedVolumePath string `json:"shared_volume_path" yaml:"shared_volume_path"`

	// LocalBinaryPaths maps command names to local binary paths
	// (e.g., {"ffmpeg": "/usr/local/bin/ffmpeg"}).
	LocalBinaryPaths map[string]string `json:"local_binary_paths" yaml:"local_binary_paths"`

	// DefaultTimeout is applied when a request carries no timeout.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`

	// AllowedCommands lists the commands that are permitted to execute.
	// Empty list means allow all.
	AllowedCommands []string `json:"allowed_commands" yaml:"allowed_commands"`
}

// DemucsOptions controls a single Demucs separation run.
type DemucsOptions struct {
	Model   string
	Shifts  int
	Overlap float64
	// Segment is the Demucs internal segment length in seconds.
	Segment int
	Device  string
	Timeout time.Duration
}

func (o DemucsOptions) withDefaults() DemucsOptions {
	if o.Model == "" {
		o.Model = "htdemucs"
	}
	if o.Shifts <= 0 {
		o.Shifts = 1
	}
	if o.Overlap <= 0 {
		o.Overlap = 0.25
	}
	if o.Segment <= 0 {
		o.Segment = 7
	}
	if o.Device == "" {
		o.Device = "cpu"
	}
	return o
}
