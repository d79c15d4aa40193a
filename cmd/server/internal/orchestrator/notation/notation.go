// Package notation sends a short accompaniment clip to a pitch-to-notation
// service and returns the melody as ABC notation.
package notation

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
	"strings"
	"time"
)

// Rest is the ABC answer for an empty region.
const Rest = "z"

// Client talks to the notation service. A client without a service URL
// returns a fixed placeholder score.
type Client struct {
	serviceURL string
	httpClient *http.Client
}

// NewClient creates a client. serviceURL may be empty.
func NewClient(serviceURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a real service is behind the client.
func (c *Client) Configured() bool {
	return c.serviceURL != ""
}

type transcribeResponse struct {
	ABC   string `json:"abc"`
	Error string `json:"error,omitempty"`
}

// Transcribe uploads clipPath (mono WAV) and returns the ABC score.
func (c *Client) Transcribe(ctx context.Context, clipPath string, start, end float64) (string, error) {
	if !c.Configured() {
		slog.Warn("notation service not configured, returning placeholder score")
		return Placeholder(start, end), nil
	}

	file, err := os.Open(clipPath)
	if err != nil {
		return "", fmt.Errorf("open clip: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("audio", filepath.Base(clipPath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/api/notation/transcribe", pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("create notation request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("notation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("notation service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode notation response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("notation service error: %s", out.Error)
	}
	if strings.TrimSpace(out.ABC) == "" {
		return Rest, nil
	}
	return out.ABC, nil
}

// HealthCheck reports true for an unconfigured client.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	if !c.Configured() {
		return true, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("notation health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("notation health check failed: status %d", resp.StatusCode)
	}
	return true, nil
}

func (c *Client) Name() string {
	if !c.Configured() {
		return "notation-placeholder"
	}
	return "notation-service"
}

// Placeholder is a short C major phrase used when no service is available.
func Placeholder(start, end float64) string {
	return fmt.Sprintf("X:1\nT:Region %.1f-%.1fs (placeholder)\nM:4/4\nL:1/8\nK:C\ncdef g2 e2 | c2 G2 E2 C2 |]", start, end)
}
