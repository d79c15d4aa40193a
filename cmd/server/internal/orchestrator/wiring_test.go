package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/refret/cmd/server/internal/domain/lessons"
	"github.com/houzhh15/refret/cmd/server/internal/domain/settings"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/summarizer"
)

func newTestRuntime(t *testing.T, mutate func(*Config)) *Runtime {
	t.Helper()
	dataDir := t.TempDir()
	records, err := lessons.Open(filepath.Join(dataDir, "lessons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := NewFromConfig(cfg, records, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestNewFromConfig_MockWhisperHasNoDegradation(t *testing.T) {
	rt := newTestRuntime(t, func(c *Config) { c.WhisperMode = "mock" })

	assert.Nil(t, rt.Degradation)
	assert.Equal(t, "mock-degraded", rt.Transcriber.Name())
	assert.False(t, rt.Notation.Configured())
	assert.Equal(t, rt.Config().DataDir, rt.Client.Config().SharedVolumePath)
}

func TestNewFromConfig_HTTPWhisperIsWrappedByDegradation(t *testing.T) {
	rt := newTestRuntime(t, func(c *Config) {
		c.WhisperAPIURL = "http://127.0.0.1:1"
		c.NotationURL = "http://127.0.0.1:1"
	})

	require.NotNil(t, rt.Degradation)
	assert.Same(t, rt.Degradation, rt.Transcriber)
	assert.True(t, rt.Notation.Configured())
}

func TestNewFromConfig_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.WhisperMode = "local"
	_, err := NewFromConfig(cfg, nil, nil)
	assert.ErrorContains(t, err, "whisper program path")
}

func TestRuntime_EnvironmentChecksLocalBinaries(t *testing.T) {
	rt := newTestRuntime(t, func(c *Config) {
		c.WhisperMode = "mock"
		c.Dependency.LocalBinaryPaths = map[string]string{"ffmpeg": "/nonexistent/ffmpeg"}
	})

	st := rt.Environment(context.Background())

	assert.False(t, st.Ready)
	assert.True(t, st.Details.DataDir.Writable)
	assert.True(t, st.Details.FFmpeg.Checked)
	assert.False(t, st.Details.FFmpeg.Available)
	assert.Equal(t, "mock-degraded", st.Details.Transcriber.Name)
}

func TestBinaryPath(t *testing.T) {
	cfg := dependency.ExecutorConfig{LocalBinaryPaths: map[string]string{"demucs": "/opt/demucs/bin/demucs"}}
	assert.Equal(t, "/opt/demucs/bin/demucs", binaryPath(cfg, "demucs"))
	assert.Equal(t, "ffmpeg", binaryPath(cfg, "ffmpeg"))
}

type fakeLLMSettings struct {
	overlay settings.Overlay
}

func (f *fakeLLMSettings) Resolve(_ context.Context, defaults settings.Values) (settings.Values, error) {
	return f.overlay.Resolve(defaults), nil
}

func TestLLMResolver_AppliesOverrides(t *testing.T) {
	model, key := "llama3", "sk-override-0001"
	src := &fakeLLMSettings{}
	base := summarizer.Config{Provider: summarizer.ProviderOpenAI, Model: "gpt-4o-mini", OutputLanguage: "English", MaxTranscriptRunes: 100}
	resolve := llmResolver(base, src)

	cfg, err := resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Contains(t, cfg.SystemPrompt, "English", "configured prompt default")

	src.overlay = settings.Overlay{LLMModel: &model, OpenAIAPIKey: &key}
	cfg, err = resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "llama3", cfg.Model)
	assert.Equal(t, "sk-override-0001", cfg.APIKey)
	assert.Equal(t, 100, cfg.MaxTranscriptRunes)
}

func TestRuntime_EnvironmentUsesStoredAPIKey(t *testing.T) {
	dataDir := t.TempDir()
	records, err := lessons.Open(filepath.Join(dataDir, "lessons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { records.Close() })

	key := "sk-stored-key-4242"
	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	cfg.WhisperMode = "mock"
	cfg.Summarizer.APIKey = ""
	rt, err := NewFromConfig(cfg, records, &fakeLLMSettings{overlay: settings.Overlay{OpenAIAPIKey: &key}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	st := rt.Environment(context.Background())
	assert.True(t, st.Details.LLMAPIKey.Configured)
	assert.Equal(t, "openai", st.Details.LLMAPIKey.Provider)
}
