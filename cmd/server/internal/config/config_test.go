package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("REFRET_CONFIG", "")
	t.Setenv("DATA_DIR", "/srv/refret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "/srv/refret/refret.db", cfg.Data.DBPath)
	assert.Equal(t, 600, cfg.Pipeline.SegmentSeconds)
	assert.Equal(t, "http", cfg.Whisper.Mode)
	assert.NoError(t, ValidateConfig(cfg))
	assert.Same(t, cfg, GlobalConfig)
}

func TestLoadConfig_FileOverlayEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refret.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  shutdown_timeout: 90s
pipeline:
  segment_seconds: 300
  language: en
whisper:
  mode: mock
llm:
  provider: ollama
  model: llama3
`), 0644))
	t.Setenv("REFRET_CONFIG", path)
	t.Setenv("PORT", "9100")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "9100", cfg.Server.Port, "env wins over file")
	assert.Equal(t, 90*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 300, cfg.Pipeline.SegmentSeconds)
	assert.Equal(t, "en", cfg.Pipeline.Language)
	assert.Equal(t, "mock", cfg.Whisper.Mode)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 100, cfg.Pipeline.PointsPerSecond, "unset fields keep defaults")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("REFRET_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "read config file")
}

func TestValidateConfig_AccumulatesErrors(t *testing.T) {
	t.Setenv("REFRET_CONFIG", "")
	t.Setenv("PORT", "99999")
	t.Setenv("SEGMENT_SECONDS", "ten")
	t.Setenv("WHISPER_VAD", "maybe")
	t.Setenv("DEPENDENCY_MODE", "remote")
	t.Setenv("WHISPER_MODE", "local")
	t.Setenv("LLM_PROVIDER", "bard")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	err = ValidateConfig(cfg)

	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid PORT value: 99999")
	assert.Contains(t, msg, `invalid SEGMENT_SECONDS: "ten"`)
	assert.Contains(t, msg, `invalid WHISPER_VAD: "maybe"`)
	assert.Contains(t, msg, "TOOLRUNNER_URL is required when DEPENDENCY_MODE=remote")
	assert.Contains(t, msg, "WHISPER_PROGRAM_PATH is required")
	assert.Contains(t, msg, "invalid LLM_PROVIDER: bard")
}

func TestToOrchestratorConfig(t *testing.T) {
	cfg := Default()
	cfg.Data.Dir = "/data"
	cfg.Dependency.FFmpegPath = "/usr/local/bin/ffmpeg"
	cfg.Demucs.Device = "cuda"
	cfg.LLM.APIKey = "sk-test"
	cfg.Notation.ServiceURL = "http://notation:9000"

	oc := cfg.ToOrchestratorConfig()

	assert.Equal(t, "/data", oc.DataDir)
	assert.Equal(t, dependency.ModeLocal, oc.Dependency.Mode)
	assert.Equal(t, "/data", oc.Dependency.SharedVolumePath)
	assert.Equal(t, "/usr/local/bin/ffmpeg", oc.Dependency.LocalBinaryPaths["ffmpeg"])
	assert.Equal(t, "cuda", oc.Demucs.Device)
	assert.Equal(t, "sk-test", oc.Summarizer.APIKey)
	assert.Equal(t, "http://notation:9000", oc.NotationURL)
	assert.Equal(t, "ja", oc.Language)
	assert.NoError(t, oc.Validate())
}

func TestPrintConfig_MasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-abcdefghijklmnop"

	out := cfg.PrintConfig()

	assert.Contains(t, out, "sk-a***mnop")
	assert.NotContains(t, out, "sk-abcdefghijklmnop")
	assert.Contains(t, out, "Config File: <none>")
}

func TestLogEnvironment(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "dev", cfg.LogEnvironment())
	cfg.Log.Format = "json"
	assert.Equal(t, "prod", cfg.LogEnvironment())
}
