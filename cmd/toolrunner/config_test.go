package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
commands:
  - name: ffmpeg
    binary_path: /usr/bin/ffmpeg
    allowed_args_patterns: ['^.*$']
    timeout: 2h
    max_concurrent: 2
security:
  shared_volume_path: /data
  forbidden_paths: [/etc]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, defaultAcquireTimeout, cfg.AcquireTimeout())
	assert.Equal(t, []string{"/usr/bin/", "/usr/local/bin/"}, cfg.Security.AllowedPathPrefixes)

	cmd, err := cfg.GetCommandConfig("ffmpeg")
	require.NoError(t, err)
	assert.Equal(t, 2, cmd.MaxConcurrent)

	_, err = cfg.GetCommandConfig("rm")
	assert.Error(t, err)
}

func TestLoadConfig_ReportsAllProblems(t *testing.T) {
	path := writeConfig(t, `
commands:
  - name: ffmpeg
    binary_path: ""
    allowed_args_patterns: ['(']
    timeout: soon
    max_concurrent: 0
  - name: ffmpeg
    binary_path: /usr/bin/ffmpeg
    allowed_args_patterns: ['^.*$']
    timeout: 1m
    max_concurrent: 1
security:
  enable_audit_log: true
`)
	_, err := LoadConfig(path)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"binary_path cannot be empty",
		"invalid pattern",
		"invalid timeout format",
		"max_concurrent must be greater than 0",
		"duplicate name",
		"shared_volume_path cannot be empty",
		"audit_log_path is required",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(writeConfig(t, "commands: [\n"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = LoadConfig(writeConfig(t, "security:\n  shared_volume_path: /data\n"))
	assert.ErrorContains(t, err, "commands array cannot be empty")
}

func TestAcquireTimeout(t *testing.T) {
	cfg := &Config{Server: ServerConfig{AcquireTimeout: "2s"}}
	assert.Equal(t, 2*time.Second, cfg.AcquireTimeout())
	cfg.Server.AcquireTimeout = "nope"
	assert.Equal(t, defaultAcquireTimeout, cfg.AcquireTimeout())
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig("commands.example.yaml")
	require.NoError(t, err)
	assert.Len(t, cfg.Commands, 3)
}
