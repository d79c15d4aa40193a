// Package summarizer turns a lesson transcript into a SummaryDocument using
// an LLM through langchaingo.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/houzhh15/refret/cmd/server/internal/orchestrator/artifact"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	// DefaultMaxTranscriptRunes bounds the transcript sent to the model.
	DefaultMaxTranscriptRunes = 15000

	// MissingKeyMessage is stored when the openai provider has no key.
	MissingKeyMessage = "No OpenAI API Key found"
)

// DefaultSystemPrompt asks for the JSON shape SummaryDocument decodes.
const DefaultSystemPrompt = "You are a helpful assistant summarizing a guitar lesson. " +
	"Analyze the transcript and produce a concise summary in %s. " +
	"Extract key learning points with their closest timestamp in MM:SS format taken from the transcript. " +
	"List the chord names mentioned (e.g. Am7, G). " +
	`Respond with a single JSON object: {"summary": string, "key_points": [{"point": string, "timestamp": "MM:SS"}], "chords": [string]}.`

// Config describes one provider client. Dynamic re-resolves it per run.
type Config struct {
	Provider           string
	Model              string
	APIKey             string
	BaseURL            string
	SystemPrompt       string
	OutputLanguage     string
	MaxTranscriptRunes int
	Timeout            time.Duration
}

// WithDefaults fills the provider, prompt, language and transcript limit.
func (c Config) WithDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.MaxTranscriptRunes <= 0 {
		c.MaxTranscriptRunes = DefaultMaxTranscriptRunes
	}
	if c.OutputLanguage == "" {
		c.OutputLanguage = "Japanese"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = fmt.Sprintf(DefaultSystemPrompt, c.OutputLanguage)
	}
	return c
}

// Summarizer calls the model. Only context cancellation surfaces as an
// error; every other failure becomes an error document.
type Summarizer struct {
	model llms.Model
	cfg   Config
	// unavailable is the error document text when no model could be built.
	unavailable string
}

// New builds the provider client described by cfg. A missing openai key is
// not an error: the summarizer is created and yields MissingKeyMessage
// documents so the pipeline can still complete.
func New(cfg Config) (*Summarizer, error) {
	cfg = cfg.WithDefaults()

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			slog.Warn("openai api key missing, summaries will be error documents")
			return &Summarizer{cfg: cfg, unavailable: MissingKeyMessage}, nil
		}
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return NewWithModel(llm, cfg), nil

	case ProviderOllama:
		opts := []ollama.Option{}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return NewWithModel(llm, cfg), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewWithModel wraps an existing model.
func NewWithModel(model llms.Model, cfg Config) *Summarizer {
	return &Summarizer{model: model, cfg: cfg.WithDefaults()}
}

// Summarize builds the timestamped transcript and asks the model for a
// summary.
func (s *Summarizer) Summarize(ctx context.Context, segments []artifact.TranscriptSegment) (artifact.SummaryDocument, error) {
	if s.unavailable != "" {
		return artifact.ErrorDocument(s.unavailable), nil
	}
	if len(segments) == 0 {
		return artifact.ErrorDocument("Transcript is empty"), nil
	}

	transcript := FormatTranscript(segments, s.cfg.MaxTranscriptRunes)

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.cfg.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, "Here is the transcript:\n\n"+transcript),
	}

	start := time.Now()
	resp, err := s.model.GenerateContent(callCtx, messages,
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return artifact.SummaryDocument{}, ctxErr
		}
		slog.Error("llm call failed", "provider", s.cfg.Provider, "error", err)
		return artifact.ErrorDocument(err.Error()), nil
	}
	if resp == nil || len(resp.Choices) == 0 {
		return artifact.ErrorDocument("LLM returned no choices"), nil
	}

	doc, err := ParseResponse(resp.Choices[0].Content)
	if err != nil {
		slog.Error("llm response not usable", "provider", s.cfg.Provider, "error", err)
		return artifact.ErrorDocument(err.Error()), nil
	}

	slog.Info("summary generated",
		"provider", s.cfg.Provider,
		"key_points", len(doc.KeyPoints),
		"chords", len(doc.Chords),
		"duration_ms", time.Since(start).Milliseconds())
	return doc, nil
}

// FormatTranscript renders "[MM:SS] text" lines and truncates the result to
// maxRunes runes.
func FormatTranscript(segments []artifact.TranscriptSegment, maxRunes int) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString("[")
		b.WriteString(artifact.FormatTimestamp(seg.Start))
		b.WriteString("] ")
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n")
	}
	out := b.String()
	if maxRunes <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return out
}

type rawSummary struct {
	Summary   string `json:"summary"`
	KeyPoints []struct {
		Point     string `json:"point"`
		Timestamp string `json:"timestamp"`
	} `json:"key_points"`
	Chords []string `json:"chords"`
	Error  string   `json:"error"`
}

// ParseResponse decodes a bare or fenced JSON object into a validated
// document. Key point labels are normalized to MM:SS; labels that cannot be
// parsed are dropped.
func ParseResponse(content string) (artifact.SummaryDocument, error) {
	body := stripFences(content)
	if body == "" {
		return artifact.SummaryDocument{}, errors.New("LLM returned an empty response")
	}

	var raw rawSummary
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return artifact.SummaryDocument{}, fmt.Errorf("LLM response is not valid JSON: %w", err)
	}
	if raw.Error != "" {
		return artifact.ErrorDocument(raw.Error), nil
	}
	if strings.TrimSpace(raw.Summary) == "" {
		return artifact.SummaryDocument{}, errors.New("LLM response has no summary")
	}

	doc := artifact.SummaryDocument{
		Summary:   strings.TrimSpace(raw.Summary),
		KeyPoints: []artifact.KeyPoint{},
		Chords:    []string{},
	}
	for _, kp := range raw.KeyPoints {
		label, ok := normalizeTimestamp(kp.Timestamp)
		if !ok || strings.TrimSpace(kp.Point) == "" {
			continue
		}
		doc.KeyPoints = append(doc.KeyPoints, artifact.KeyPoint{Point: strings.TrimSpace(kp.Point), Timestamp: label})
	}
	seen := make(map[string]bool, len(raw.Chords))
	for _, c := range raw.Chords {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		doc.Chords = append(doc.Chords, c)
	}

	if err := doc.Validate(); err != nil {
		return artifact.SummaryDocument{}, err
	}
	return doc, nil
}

func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

// normalizeTimestamp accepts MM:SS, [MM:SS] and H:MM:SS.
func normalizeTimestamp(label string) (string, bool) {
	label = strings.Trim(strings.TrimSpace(label), "[]")
	parts := strings.Split(label, ":")
	if len(parts) == 3 {
		h, err := strconv.Atoi(parts[0])
		if err != nil || h < 0 {
			return "", false
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil || m < 0 || m > 59 {
			return "", false
		}
		label = fmt.Sprintf("%02d:%s", h*60+m, parts[2])
	}
	secs, err := artifact.ParseTimestamp(label)
	if err != nil {
		return "", false
	}
	return artifact.FormatTimestamp(float64(secs)), true
}
