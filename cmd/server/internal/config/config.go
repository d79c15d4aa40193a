package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/summarizer"
)

// Config 统一配置结构
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Data       DataConfig       `yaml:"data"`
	Log        LogConfig        `yaml:"log"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Dependency DependencyConfig `yaml:"dependency"`
	Demucs     DemucsConfig     `yaml:"demucs"`
	Whisper    WhisperConfig    `yaml:"whisper"`
	LLM        LLMConfig        `yaml:"llm"`
	Notation   NotationConfig   `yaml:"notation"`

	// File 为加载的 YAML 文件路径（未使用时为空）
	File string `yaml:"-"`

	// invalid 记录无法解析的环境变量，由 ValidateConfig 统一报告
	invalid []string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env             string        `yaml:"env"` // dev, staging, production
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
}

// DataConfig 数据目录配置
type DataConfig struct {
	Dir    string `yaml:"dir"`
	DBPath string `yaml:"db_path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
	File   string `yaml:"file"`
}

// PipelineConfig 流水线参数
type PipelineConfig struct {
	SegmentSeconds  int    `yaml:"segment_seconds"`
	PointsPerSecond int    `yaml:"points_per_second"`
	PeakSampleRate  int    `yaml:"peak_sample_rate"`
	ToolSlots       int64  `yaml:"tool_slots"`
	Language        string `yaml:"language"`
}

// DependencyConfig 外部命令执行配置
type DependencyConfig struct {
	Mode           string        `yaml:"mode"` // local, remote, fallback
	ServiceURL     string        `yaml:"service_url"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
	FFprobePath    string        `yaml:"ffprobe_path"`
	DemucsPath     string        `yaml:"demucs_path"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// DemucsConfig 音源分离参数
type DemucsConfig struct {
	Model   string  `yaml:"model"`
	Shifts  int     `yaml:"shifts"`
	Overlap float64 `yaml:"overlap"`
	Segment int     `yaml:"segment"`
	Device  string  `yaml:"device"`
}

// WhisperConfig 语音识别配置
type WhisperConfig struct {
	Mode                string        `yaml:"mode"` // http, local, mock
	APIURL              string        `yaml:"api_url"`
	ProgramPath         string        `yaml:"program_path"`
	ModelDir            string        `yaml:"model_dir"`
	Model               string        `yaml:"model"`
	BeamSize            int           `yaml:"beam_size"`
	VAD                 bool          `yaml:"vad"`
	Prompt              string        `yaml:"prompt"`
	Timeout             time.Duration `yaml:"timeout"`
	EnableDegradation   bool          `yaml:"enable_degradation"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// LLMConfig 摘要模型配置
type LLMConfig struct {
	Provider           string        `yaml:"provider"` // openai, ollama
	Model              string        `yaml:"model"`
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	SystemPrompt       string        `yaml:"system_prompt"`
	OutputLanguage     string        `yaml:"output_language"`
	MaxTranscriptRunes int           `yaml:"max_transcript_runes"`
	Timeout            time.Duration `yaml:"timeout"`
}

// NotationConfig 记谱服务配置
type NotationConfig struct {
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GlobalConfig 全局配置实例
var GlobalConfig *Config

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Env:             "dev",
			Port:            "8000",
			ShutdownTimeout: 60 * time.Second,
			MaxUploadMB:     2048,
		},
		Data: DataConfig{Dir: "./data"},
		Log:  LogConfig{Level: "info", Format: "console"},
		Pipeline: PipelineConfig{
			SegmentSeconds:  600,
			PointsPerSecond: 100,
			PeakSampleRate:  44100,
			ToolSlots:       1,
			Language:        "ja",
		},
		Dependency: DependencyConfig{
			Mode:           "local",
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
			DemucsPath:     "demucs",
			DefaultTimeout: 2 * time.Hour,
		},
		Demucs: DemucsConfig{Model: "htdemucs", Shifts: 1, Overlap: 0.25, Segment: 7, Device: "cpu"},
		Whisper: WhisperConfig{
			Mode:                "http",
			APIURL:              "http://whisper:8082",
			Model:               "base",
			BeamSize:            5,
			VAD:                 true,
			EnableDegradation:   true,
			HealthCheckInterval: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:           summarizer.ProviderOpenAI,
			Model:              "gpt-4o-mini",
			OutputLanguage:     "Japanese",
			MaxTranscriptRunes: summarizer.DefaultMaxTranscriptRunes,
			Timeout:            2 * time.Minute,
		},
		Notation: NotationConfig{Timeout: 2 * time.Minute},
	}
}

// LoadConfig 加载配置：默认值 < YAML 文件（REFRET_CONFIG）< 环境变量
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("REFRET_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.Data.DBPath == "" {
		cfg.Data.DBPath = filepath.Join(cfg.Data.Dir, "refret.db")
	}

	GlobalConfig = cfg
	return cfg, nil
}

// loadFile 将 YAML 文件覆盖到当前配置，文件中未出现的字段保持不变
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

// applyEnv 用已设置的环境变量覆盖配置
func (c *Config) applyEnv() {
	c.Server.Env = getEnv("ENV", c.Server.Env)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ShutdownTimeout = c.envDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxUploadMB = int64(c.envInt("MAX_UPLOAD_MB", int(c.Server.MaxUploadMB)))

	c.Data.Dir = getEnv("DATA_DIR", c.Data.Dir)
	c.Data.DBPath = getEnv("DB_PATH", c.Data.DBPath)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Pipeline.SegmentSeconds = c.envInt("SEGMENT_SECONDS", c.Pipeline.SegmentSeconds)
	c.Pipeline.PointsPerSecond = c.envInt("PEAKS_POINTS_PER_SECOND", c.Pipeline.PointsPerSecond)
	c.Pipeline.PeakSampleRate = c.envInt("PEAKS_SAMPLE_RATE", c.Pipeline.PeakSampleRate)
	c.Pipeline.ToolSlots = int64(c.envInt("TOOL_SLOTS", int(c.Pipeline.ToolSlots)))
	c.Pipeline.Language = getEnv("TRANSCRIBE_LANGUAGE", c.Pipeline.Language)

	c.Dependency.Mode = getEnv("DEPENDENCY_MODE", c.Dependency.Mode)
	c.Dependency.ServiceURL = getEnv("TOOLRUNNER_URL", c.Dependency.ServiceURL)
	c.Dependency.FFmpegPath = getEnv("FFMPEG_PATH", c.Dependency.FFmpegPath)
	c.Dependency.FFprobePath = getEnv("FFPROBE_PATH", c.Dependency.FFprobePath)
	c.Dependency.DemucsPath = getEnv("DEMUCS_PATH", c.Dependency.DemucsPath)
	c.Dependency.DefaultTimeout = c.envDuration("DEPENDENCY_TIMEOUT", c.Dependency.DefaultTimeout)

	c.Demucs.Model = getEnv("DEMUCS_MODEL", c.Demucs.Model)
	c.Demucs.Shifts = c.envInt("DEMUCS_SHIFTS", c.Demucs.Shifts)
	c.Demucs.Overlap = c.envFloat("DEMUCS_OVERLAP", c.Demucs.Overlap)
	c.Demucs.Segment = c.envInt("DEMUCS_SEGMENT", c.Demucs.Segment)
	c.Demucs.Device = getEnv("DEMUCS_DEVICE", c.Demucs.Device)

	c.Whisper.Mode = getEnv("WHISPER_MODE", c.Whisper.Mode)
	c.Whisper.APIURL = getEnv("WHISPER_API_URL", c.Whisper.APIURL)
	c.Whisper.ProgramPath = getEnv("WHISPER_PROGRAM_PATH", c.Whisper.ProgramPath)
	c.Whisper.ModelDir = getEnv("WHISPER_MODEL_DIR", c.Whisper.ModelDir)
	c.Whisper.Model = getEnv("WHISPER_MODEL", c.Whisper.Model)
	c.Whisper.BeamSize = c.envInt("WHISPER_BEAM_SIZE", c.Whisper.BeamSize)
	c.Whisper.VAD = c.envBool("WHISPER_VAD", c.Whisper.VAD)
	c.Whisper.Prompt = getEnv("WHISPER_PROMPT", c.Whisper.Prompt)
	c.Whisper.Timeout = c.envDuration("WHISPER_TIMEOUT", c.Whisper.Timeout)
	c.Whisper.EnableDegradation = c.envBool("ENABLE_DEGRADATION", c.Whisper.EnableDegradation)
	c.Whisper.HealthCheckInterval = c.envDuration("WHISPER_HEALTH_INTERVAL", c.Whisper.HealthCheckInterval)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", getEnv("LLM_API_KEY", c.LLM.APIKey))
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.SystemPrompt = getEnv("LLM_SYSTEM_PROMPT", c.LLM.SystemPrompt)
	c.LLM.OutputLanguage = getEnv("SUMMARY_LANGUAGE", c.LLM.OutputLanguage)
	c.LLM.MaxTranscriptRunes = c.envInt("LLM_MAX_TRANSCRIPT_RUNES", c.LLM.MaxTranscriptRunes)
	c.LLM.Timeout = c.envDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.Notation.ServiceURL = getEnv("NOTATION_SERVICE_URL", c.Notation.ServiceURL)
	c.Notation.Timeout = c.envDuration("NOTATION_TIMEOUT", c.Notation.Timeout)
}

// ValidateConfig 验证配置的有效性，一次性返回所有问题
func ValidateConfig(cfg *Config) error {
	errors := append([]string{}, cfg.invalid...)

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 日志级别验证
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 3. 日志格式验证
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 4. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 5. 数据目录
	if cfg.Data.Dir == "" {
		errors = append(errors, "DATA_DIR is required")
	}

	// 6. 流水线参数
	if cfg.Pipeline.SegmentSeconds <= 0 {
		errors = append(errors, fmt.Sprintf("invalid SEGMENT_SECONDS: %d (must be positive)", cfg.Pipeline.SegmentSeconds))
	}
	if cfg.Pipeline.PointsPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid PEAKS_POINTS_PER_SECOND: %d (must be positive)", cfg.Pipeline.PointsPerSecond))
	}
	if cfg.Pipeline.ToolSlots <= 0 {
		errors = append(errors, fmt.Sprintf("invalid TOOL_SLOTS: %d (must be positive)", cfg.Pipeline.ToolSlots))
	}

	// 7. 外部命令执行模式
	switch cfg.Dependency.Mode {
	case "local":
	case "remote", "fallback":
		if cfg.Dependency.ServiceURL == "" {
			errors = append(errors, fmt.Sprintf("TOOLRUNNER_URL is required when DEPENDENCY_MODE=%s", cfg.Dependency.Mode))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid DEPENDENCY_MODE: %s (must be: local, remote, fallback)", cfg.Dependency.Mode))
	}

	// 8. Whisper 模式
	switch cfg.Whisper.Mode {
	case "http", "mock":
	case "local":
		if cfg.Whisper.ProgramPath == "" {
			errors = append(errors, "WHISPER_PROGRAM_PATH is required when WHISPER_MODE=local")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid WHISPER_MODE: %s (must be: http, local, mock)", cfg.Whisper.Mode))
	}

	// 9. LLM 提供方
	if cfg.LLM.Provider != summarizer.ProviderOpenAI && cfg.LLM.Provider != summarizer.ProviderOllama {
		errors = append(errors, fmt.Sprintf("invalid LLM_PROVIDER: %s (must be: openai, ollama)", cfg.LLM.Provider))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// LogEnvironment 返回 logger 使用的环境名，json 格式对应 prod
func (c *Config) LogEnvironment() string {
	if c.Log.Format == "json" {
		return "prod"
	}
	return c.Server.Env
}

// ToOrchestratorConfig 转换为流水线使用的显式配置
func (c *Config) ToOrchestratorConfig() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.DataDir = c.Data.Dir
	oc.SegmentSeconds = c.Pipeline.SegmentSeconds
	oc.PointsPerSecond = c.Pipeline.PointsPerSecond
	oc.PeakSampleRate = c.Pipeline.PeakSampleRate
	oc.ToolSlots = c.Pipeline.ToolSlots
	oc.Language = c.Pipeline.Language

	oc.WhisperMode = c.Whisper.Mode
	oc.WhisperAPIURL = c.Whisper.APIURL
	oc.WhisperProgramPath = c.Whisper.ProgramPath
	oc.WhisperModelDir = c.Whisper.ModelDir
	oc.WhisperModel = c.Whisper.Model
	oc.WhisperBeamSize = c.Whisper.BeamSize
	oc.WhisperVAD = c.Whisper.VAD
	oc.WhisperPrompt = c.Whisper.Prompt
	oc.WhisperTimeout = c.Whisper.Timeout
	oc.EnableDegradation = c.Whisper.EnableDegradation
	oc.HealthCheckInterval = c.Whisper.HealthCheckInterval

	oc.Dependency = dependency.ExecutorConfig{
		Mode:             dependency.ExecutionMode(c.Dependency.Mode),
		ServiceURL:       c.Dependency.ServiceURL,
		SharedVolumePath: c.Data.Dir,
		LocalBinaryPaths: map[string]string{
			"ffmpeg":  c.Dependency.FFmpegPath,
			"ffprobe": c.Dependency.FFprobePath,
			"demucs":  c.Dependency.DemucsPath,
		},
		DefaultTimeout:  c.Dependency.DefaultTimeout,
		AllowedCommands: []string{"ffmpeg", "ffprobe", "demucs"},
	}
	oc.Demucs = dependency.DemucsOptions{
		Model:   c.Demucs.Model,
		Shifts:  c.Demucs.Shifts,
		Overlap: c.Demucs.Overlap,
		Segment: c.Demucs.Segment,
		Device:  c.Demucs.Device,
	}
	oc.Summarizer = summarizer.Config{
		Provider:           c.LLM.Provider,
		Model:              c.LLM.Model,
		APIKey:             c.LLM.APIKey,
		BaseURL:            c.LLM.BaseURL,
		SystemPrompt:       c.LLM.SystemPrompt,
		OutputLanguage:     c.LLM.OutputLanguage,
		MaxTranscriptRunes: c.LLM.MaxTranscriptRunes,
		Timeout:            c.LLM.Timeout,
	}
	oc.NotationURL = c.Notation.ServiceURL
	oc.NotationTimeout = c.Notation.Timeout
	return oc
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	file := c.File
	if file == "" {
		file = "<none>"
	}
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Config File: %s
  Data:
    - Dir: %s
    - Database: %s
  Logging:
    - Level: %s
    - Format: %s
    - File: %s
  Pipeline:
    - Segment Seconds: %d
    - Peaks: %d pps @ %d Hz
    - Tool Slots: %d
    - Language: %s
  Dependency:
    - Mode: %s
    - Tool Runner: %s
  Demucs:
    - Model: %s (shifts=%d overlap=%.2f segment=%d device=%s)
  Whisper:
    - Mode: %s
    - API URL: %s
    - Model: %s (beam=%d vad=%t)
    - Degradation: %t
  LLM:
    - Provider: %s
    - Model: %s
    - API Key: %s
    - Base URL: %s
  Notation:
    - Service URL: %s`,
		c.Server.Env,
		c.Server.Port,
		file,
		c.Data.Dir,
		c.Data.DBPath,
		c.Log.Level,
		c.Log.Format,
		orNotSet(c.Log.File),
		c.Pipeline.SegmentSeconds,
		c.Pipeline.PointsPerSecond, c.Pipeline.PeakSampleRate,
		c.Pipeline.ToolSlots,
		c.Pipeline.Language,
		c.Dependency.Mode,
		orNotSet(c.Dependency.ServiceURL),
		c.Demucs.Model, c.Demucs.Shifts, c.Demucs.Overlap, c.Demucs.Segment, c.Demucs.Device,
		c.Whisper.Mode,
		c.Whisper.APIURL,
		c.Whisper.Model, c.Whisper.BeamSize, c.Whisper.VAD,
		c.Whisper.EnableDegradation,
		c.LLM.Provider,
		c.LLM.Model,
		maskSecret(c.LLM.APIKey),
		orNotSet(c.LLM.BaseURL),
		orNotSet(c.Notation.ServiceURL),
	)
}

// 辅助函数

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) envInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("invalid %s: %q (must be an integer)", key, value))
		return defaultValue
	}
	return n
}

func (c *Config) envFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("invalid %s: %q (must be a number)", key, value))
		return defaultValue
	}
	return f
}

func (c *Config) envBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("invalid %s: %q (must be true or false)", key, value))
		return defaultValue
	}
	return b
}

func (c *Config) envDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		c.invalid = append(c.invalid, fmt.Sprintf("invalid %s: %q (must be a duration like 30s)", key, value))
		return defaultValue
	}
	return d
}

func orNotSet(v string) string {
	if v == "" {
		return "<not set>"
	}
	return v
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
