package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/houzhh15/refret/cmd/server/internal/domain/settings"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/notation"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/summarizer"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/whisper"
)

// Runtime is an Orchestrator together with the long-lived collaborators
// built from Config: the tool client, the transcriber health loop and the
// notation client.
type Runtime struct {
	*Orchestrator

	Client        *dependency.DependencyClient
	Transcriber   whisper.WhisperTranscriber
	Degradation   *degradation.DegradationController
	Notation      *notation.Client
	llm           LLMSettings
	healthChecker *health.HealthChecker
	stopHealth    context.CancelFunc
}

// LLMSettings supplies runtime overrides of the summarizer settings.
type LLMSettings interface {
	Resolve(ctx context.Context, defaults settings.Values) (settings.Values, error)
}

// NewFromConfig builds every collaborator from cfg and starts the
// transcriber health loop when degradation is enabled. With llm set the
// summarizer settings are re-resolved for every summary.
func NewFromConfig(cfg Config, records LessonRecords, llm LLMSettings) (*Runtime, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}

	client, err := dependency.NewClient(cfg.Dependency)
	if err != nil {
		return nil, fmt.Errorf("create dependency client: %w", err)
	}

	primary, err := newPrimaryTranscriber(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Client:      client,
		Transcriber: primary,
		Notation:    notation.NewClient(cfg.NotationURL, cfg.NotationTimeout),
		llm:         llm,
		stopHealth:  func() {},
	}
	if cfg.EnableDegradation && cfg.WhisperMode != "mock" {
		rt.healthChecker = health.NewHealthChecker(primary, cfg.HealthCheckInterval, cfg.HealthCheckFailThreshold)
		rt.Degradation = degradation.NewDegradationController(primary, whisper.NewMockTranscriber(), rt.healthChecker)
		rt.Transcriber = rt.Degradation

		ctx, cancel := context.WithCancel(context.Background())
		rt.stopHealth = cancel
		go rt.healthChecker.Start(ctx)
	}

	var sum Summarizer
	if llm != nil {
		sum = summarizer.NewDynamic(llmResolver(cfg.Summarizer, llm))
	} else {
		s, err := summarizer.New(cfg.Summarizer)
		if err != nil {
			rt.stopHealth()
			return nil, fmt.Errorf("create summarizer: %w", err)
		}
		sum = s
	}

	orch, err := New(cfg, Deps{
		Records:     records,
		Tool:        client,
		Transcriber: rt.Transcriber,
		Summarizer:  sum,
		Notation:    rt.Notation,
	})
	if err != nil {
		rt.stopHealth()
		return nil, err
	}
	rt.Orchestrator = orch

	slog.Info("orchestrator ready",
		"data_dir", cfg.DataDir,
		"dependency_mode", cfg.Dependency.Mode,
		"transcriber", primary.Name(),
		"degradation", rt.Degradation != nil,
		"llm_provider", cfg.Summarizer.Provider,
		"notation", rt.Notation.Name())
	return rt, nil
}

// LLMDefaults returns the configured summarizer settings that stored
// overrides apply on top of.
func LLMDefaults(c summarizer.Config) settings.Values {
	c = c.WithDefaults()
	return settings.Values{
		LLMProvider:  c.Provider,
		LLMModel:     c.Model,
		SystemPrompt: c.SystemPrompt,
		OpenAIAPIKey: c.APIKey,
	}
}

func llmResolver(base summarizer.Config, llm LLMSettings) summarizer.Resolver {
	defaults := LLMDefaults(base)
	return func(ctx context.Context) (summarizer.Config, error) {
		v, err := llm.Resolve(ctx, defaults)
		if err != nil {
			return summarizer.Config{}, err
		}
		cfg := base
		cfg.Provider = v.LLMProvider
		cfg.Model = v.LLMModel
		cfg.SystemPrompt = v.SystemPrompt
		cfg.APIKey = v.OpenAIAPIKey
		return cfg, nil
	}
}

func newPrimaryTranscriber(cfg Config) (whisper.WhisperTranscriber, error) {
	switch cfg.WhisperMode {
	case "", "http":
		return whisper.NewHTTPWhisperImpl(cfg.WhisperAPIURL), nil
	case "local":
		t, err := whisper.NewLocalWhisperImpl(cfg.WhisperProgramPath, cfg.WhisperModelDir)
		if err != nil {
			return nil, fmt.Errorf("create local whisper: %w", err)
		}
		return t, nil
	case "mock":
		return whisper.NewMockTranscriber(), nil
	default:
		return nil, fmt.Errorf("unknown whisper mode %q", cfg.WhisperMode)
	}
}

// Environment reports readiness of the data directory, the tool executor
// and the external services.
func (r *Runtime) Environment(ctx context.Context) *EnvironmentStatus {
	cfg := r.Config()
	llm := LLMDefaults(cfg.Summarizer)
	if r.llm != nil {
		if v, err := r.llm.Resolve(ctx, llm); err == nil {
			llm = v
		} else {
			slog.Warn("llm settings unavailable, checking configured defaults", "error", err)
		}
	}
	checks := EnvironmentChecks{
		DataDir:     cfg.DataDir,
		Executor:    r.Client,
		Transcriber: r.Transcriber,
		LLMProvider: llm.LLMProvider,
		LLMAPIKey:   llm.OpenAIAPIKey,
	}
	if r.Notation.Configured() {
		checks.Notation = r.Notation
	}
	if cfg.Dependency.Mode == dependency.ModeLocal {
		checks.FFmpegPath = binaryPath(cfg.Dependency, "ffmpeg")
		checks.DemucsPath = binaryPath(cfg.Dependency, "demucs")
	}
	return CheckEnvironment(ctx, checks)
}

func binaryPath(cfg dependency.ExecutorConfig, command string) string {
	if p, ok := cfg.LocalBinaryPaths[command]; ok && p != "" {
		return p
	}
	return command
}

// Close stops accepting work, waits for running pipelines until ctx is
// done and stops the health loop.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Orchestrator != nil {
		errs = append(errs, r.Shutdown(ctx))
	}
	r.stopHealth()
	if r.healthChecker != nil {
		r.healthChecker.Stop()
	}
	return errors.Join(errs...)
}

// HealthChecker returns the transcriber health loop, nil when degradation
// is disabled.
func (r *Runtime) HealthChecker() *health.HealthChecker {
	return r.healthChecker
}
