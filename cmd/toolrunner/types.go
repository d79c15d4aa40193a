package main

import "time"

// Version of the tool runner reported by /api/v1/health.
const Version = "1.0.0"

// CommandRequest is the body of POST /api/v1/execute. It mirrors the
// request the lesson server's remote executor sends.
type CommandRequest struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Timeout    time.Duration     `json:"timeout"`
}

// CommandResponse is the result of one execution.
type CommandResponse struct {
	Success     bool          `json:"success"`
	ExitCode    int           `json:"exit_code"`
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	Duration    time.Duration `json:"duration_ms"`
	OutputFiles []string      `json:"output_files,omitempty"`
}

// Config is the YAML configuration of the tool runner.
type Config struct {
	Commands []CommandConfig `yaml:"commands"`
	Security SecurityConfig  `yaml:"security"`
	Server   ServerConfig    `yaml:"server"`
}

// CommandConfig whitelists one binary.
type CommandConfig struct {
	Name                string   `yaml:"name"`
	BinaryPath          string   `yaml:"binary_path"`
	AllowedArgsPatterns []string `yaml:"allowed_args_patterns"`
	EnvWhitelist        []string `yaml:"env_whitelist"`
	Timeout             string   `yaml:"timeout"`
	MaxConcurrent       int      `yaml:"max_concurrent"`
}

// SecurityConfig restricts what requests may touch.
type SecurityConfig struct {
	SharedVolumePath    string   `yaml:"shared_volume_path"`
	AllowedPathPrefixes []string `yaml:"allowed_path_prefixes"`
	ForbiddenPaths      []string `yaml:"forbidden_paths"`
	MaxCommandLength    int      `yaml:"max_command_length"`
	EnableAuditLog      bool     `yaml:"enable_audit_log"`
	AuditLogPath        string   `yaml:"audit_log_path"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	AcquireTimeout string `yaml:"acquire_timeout"`
	LogLevel       string `yaml:"log_level"`
}
