package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// APIError 服务端返回的错误响应
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	RunFirst   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.RunFirst != "" {
		msg += "; run stage " + e.RunFirst + " first"
	}
	return msg
}

// APIClient 封装 HTTP 客户端
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewAPIClient 创建新的 API 客户端
func NewAPIClient(cfg *Config) *APIClient {
	return &APIClient{
		BaseURL:    cfg.ServerURL,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Get 发送 GET 请求
func (c *APIClient) Get(ctx context.Context, path string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil, "")
}

// Request 发送带 JSON body 的请求
func (c *APIClient) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.doRequest(ctx, method, path, reader, contentType)
}

// Upload 以 multipart 表单上传文件，fields 为附加表单字段
func (c *APIClient) Upload(ctx context.Context, path, filePath string, fields map[string]string) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, f, filepath.Base(filePath), fields))
	}()

	// 上传大文件不受单次请求超时限制
	client := *c.HTTPClient
	client.Timeout = 0
	return c.send(ctx, &client, http.MethodPost, path, pr, mw.FormDataContentType())
}

func writeMultipart(mw *multipart.Writer, file io.Reader, filename string, fields map[string]string) error {
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

// Download 将响应体写入 w
func (c *APIClient) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	client := *c.HTTPClient
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed (check REFRET_SERVER_URL=%s): %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return 0, parseAPIError(resp.StatusCode, data)
	}
	return io.Copy(w, resp.Body)
}

// doRequest 执行 HTTP 请求
func (c *APIClient) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	return c.send(ctx, c.HTTPClient, method, path, body, contentType)
}

func (c *APIClient) send(ctx context.Context, client *http.Client, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed (check REFRET_SERVER_URL=%s): %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// parseAPIError 解析 {"error": "...", "code": "..."}，非 JSON 时保留原文
func parseAPIError(status int, data []byte) error {
	var body struct {
		Error    string `json:"error"`
		Code     string `json:"code"`
		RunFirst string `json:"run_first"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return &APIError{StatusCode: status, Message: string(bytes.TrimSpace(data))}
	}
	return &APIError{StatusCode: status, Message: body.Error, Code: body.Code, RunFirst: body.RunFirst}
}

// IsNotFound 判断是否为 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// statusRecord 对应 GET /lessons/:id/status
type statusRecord struct {
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r statusRecord) terminal() bool {
	return r.Status == "completed" || r.Status == "failed"
}

// WaitForStatus 轮询状态直到完成或失败，onChange 在状态变化时回调
func (c *APIClient) WaitForStatus(ctx context.Context, id string, interval time.Duration, onChange func(statusRecord)) (statusRecord, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last statusRecord
	for {
		data, err := c.Get(ctx, "/api/v1/lessons/"+id+"/status")
		if err != nil {
			return last, err
		}
		var rec statusRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return last, fmt.Errorf("parse status: %w", err)
		}
		if onChange != nil && (rec.Status != last.Status || rec.Progress != last.Progress || rec.Message != last.Message) {
			onChange(rec)
		}
		last = rec
		if rec.terminal() {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
