package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// HTTPWhisperImpl talks to a Whisper HTTP service that accepts multipart
// uploads at /api/whisper/transcribe and reports models at /api/whisper/model.
type HTTPWhisperImpl struct {
	apiURL     string
	httpClient *http.Client
}

// NewHTTPWhisperImpl creates a client for the service at apiURL.
//
// Transcribing an hour-long lesson on CPU takes a long time, so the client
// itself has no timeout; callers bound requests through ctx or Timeout.
func NewHTTPWhisperImpl(apiURL string) *HTTPWhisperImpl {
	return &HTTPWhisperImpl{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		httpClient: &http.Client{},
	}
}

// Transcribe streams audioPath as multipart/form-data and decodes the JSON result.
func (h *HTTPWhisperImpl) Transcribe(ctx context.Context, audioPath string, options *TranscribeOptions) (*TranscriptionResult, error) {
	opts := options.orDefault()

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(writer, file, filepath.Base(audioPath), opts))
	}()

	endpoint := h.apiURL + "/api/whisper/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	slog.Debug("whisper request", "endpoint", endpoint, "audio", audioPath, "model", opts.Model, "language", opts.Language)

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if result.Segments == nil {
		result.Segments = []TranscriptionSegment{}
	}

	slog.Debug("whisper response", "segments", len(result.Segments), "elapsed_ms", time.Since(start).Milliseconds())
	return &result, nil
}

func writeForm(writer *multipart.Writer, audio io.Reader, filename string, opts TranscribeOptions) error {
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return err
	}

	fields := [][2]string{
		{"model", opts.Model},
		{"response_format", "json"},
		{"temperature", strconv.FormatFloat(opts.Temperature, 'f', 1, 64)},
		{"vad_filter", strconv.FormatBool(opts.VADFilter)},
	}
	if opts.Language != "" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	if opts.BeamSize > 0 {
		fields = append(fields, [2]string{"beam_size", strconv.Itoa(opts.BeamSize)})
	}
	if opts.Prompt != "" {
		fields = append(fields, [2]string{"prompt", opts.Prompt})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	return writer.Close()
}

// HealthCheck returns true when the model endpoint answers 200.
func (h *HTTPWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.apiURL+"/api/whisper/model", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	return false, fmt.Errorf("health check failed: status %d", resp.StatusCode)
}

func (h *HTTPWhisperImpl) Name() string {
	return "http-whisper"
}
