package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/peaks"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/summarizer"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/whisper"
)

// Config is resolved once at startup and handed to every stage explicitly;
// nothing below the orchestrator reads the environment.
type Config struct {
	DataDir string

	// Audio handling
	SegmentSeconds    int    // chunk length for separation (default 600)
	MP3Bitrate        string // original.mp3 bitrate (default 192k)
	WorkingSampleRate int    // processing WAV sample rate (default 44100)
	WorkingChannels   int    // processing WAV channels (default 2)
	PointsPerSecond   int    // peak resolution (default 100)
	PeakSampleRate    int    // peak decode rate (default 44100)
	ToolSlots         int64  // concurrent heavy tool jobs (default 1)

	// Transcription
	WhisperMode              string // http, local or mock
	WhisperAPIURL            string
	WhisperProgramPath       string
	WhisperModelDir          string
	WhisperModel             string
	Language                 string
	WhisperBeamSize          int
	WhisperVAD               bool
	WhisperTemperature       float64
	WhisperPrompt            string
	WhisperTimeout           time.Duration
	EnableDegradation        bool
	HealthCheckInterval      time.Duration
	HealthCheckFailThreshold int

	Dependency dependency.ExecutorConfig
	Demucs     dependency.DemucsOptions
	Summarizer summarizer.Config

	NotationURL     string
	NotationTimeout time.Duration
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		DataDir:                  "data",
		SegmentSeconds:           chunker.DefaultSegmentSeconds,
		MP3Bitrate:               "192k",
		WorkingSampleRate:        44100,
		WorkingChannels:          2,
		PointsPerSecond:          peaks.DefaultPointsPerSecond,
		PeakSampleRate:           peaks.DefaultSampleRate,
		ToolSlots:                1,
		WhisperMode:              "http",
		WhisperAPIURL:            "http://whisper:8082",
		WhisperModel:             "base",
		Language:                 "ja",
		WhisperBeamSize:          5,
		WhisperVAD:               true,
		EnableDegradation:        true,
		HealthCheckInterval:      5 * time.Minute,
		HealthCheckFailThreshold: 3,
		Dependency: dependency.ExecutorConfig{
			Mode:            dependency.ModeLocal,
			DefaultTimeout:  2 * time.Hour,
			AllowedCommands: []string{"ffmpeg", "ffprobe", "demucs"},
		},
		Demucs: dependency.DemucsOptions{
			Model:   "htdemucs",
			Shifts:  1,
			Overlap: 0.25,
			Segment: 7,
			Device:  "cpu",
		},
		Summarizer: summarizer.Config{
			Provider:           summarizer.ProviderOpenAI,
			Model:              "gpt-4o-mini",
			MaxTranscriptRunes: summarizer.DefaultMaxTranscriptRunes,
		},
		NotationTimeout: 2 * time.Minute,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = def.SegmentSeconds
	}
	if c.MP3Bitrate == "" {
		c.MP3Bitrate = def.MP3Bitrate
	}
	if c.WorkingSampleRate <= 0 {
		c.WorkingSampleRate = def.WorkingSampleRate
	}
	if c.WorkingChannels <= 0 {
		c.WorkingChannels = def.WorkingChannels
	}
	if c.PointsPerSecond <= 0 {
		c.PointsPerSecond = def.PointsPerSecond
	}
	if c.PeakSampleRate <= 0 {
		c.PeakSampleRate = def.PeakSampleRate
	}
	if c.ToolSlots <= 0 {
		c.ToolSlots = def.ToolSlots
	}
	if c.WhisperModel == "" {
		c.WhisperModel = def.WhisperModel
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = def.HealthCheckInterval
	}
	if c.HealthCheckFailThreshold <= 0 {
		c.HealthCheckFailThreshold = def.HealthCheckFailThreshold
	}
	if c.Dependency.Mode == "" {
		c.Dependency.Mode = dependency.ModeLocal
	}
	if c.Dependency.SharedVolumePath == "" {
		c.Dependency.SharedVolumePath = c.DataDir
	}
	return c
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.PeakSampleRate > 0 && c.PointsPerSecond > c.PeakSampleRate {
		errs = append(errs, fmt.Errorf("points per second (%d) exceeds peak sample rate (%d)", c.PointsPerSecond, c.PeakSampleRate))
	}
	switch c.WhisperMode {
	case "", "http", "local", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown whisper mode %q", c.WhisperMode))
	}
	if c.WhisperMode == "local" && c.WhisperProgramPath == "" {
		errs = append(errs, errors.New("whisper program path is required in local mode"))
	}
	switch c.Dependency.Mode {
	case "", dependency.ModeLocal:
	case dependency.ModeRemote, dependency.ModeFallback:
		if c.Dependency.ServiceURL == "" {
			errs = append(errs, fmt.Errorf("tool runner URL is required in %s mode", c.Dependency.Mode))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dependency mode %q", c.Dependency.Mode))
	}
	switch c.Summarizer.Provider {
	case "", summarizer.ProviderOpenAI, summarizer.ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.Summarizer.Provider))
	}
	return errors.Join(errs...)
}

func (c Config) transcribeOptions() *whisper.TranscribeOptions {
	return &whisper.TranscribeOptions{
		Model:       c.WhisperModel,
		Language:    c.Language,
		Prompt:      c.WhisperPrompt,
		BeamSize:    c.WhisperBeamSize,
		VADFilter:   c.WhisperVAD,
		Temperature: c.WhisperTemperature,
		Timeout:     c.WhisperTimeout,
	}
}
