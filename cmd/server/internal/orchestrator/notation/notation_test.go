package notation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "region.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0644))
	return path
}

func TestClient_Placeholder(t *testing.T) {
	c := NewClient("", 0)
	assert.False(t, c.Configured())
	assert.Equal(t, "notation-placeholder", c.Name())

	abc, err := c.Transcribe(context.Background(), "/does/not/matter.wav", 1.5, 4)
	require.NoError(t, err)
	assert.Equal(t, Placeholder(1.5, 4), abc)
	assert.Contains(t, abc, "X:1")
	assert.Contains(t, abc, "1.5-4.0s")

	healthy, err := c.HealthCheck(context.Background())
	assert.NoError(t, err)
	assert.True(t, healthy)
}

func TestClient_Transcribe(t *testing.T) {
	var uploaded string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/notation/transcribe", r.URL.Path)
		f, hdr, err := r.FormFile("audio")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		f.Close()
		uploaded = hdr.Filename + ":" + string(body)
		json.NewEncoder(w).Encode(map[string]string{"abc": "X:1\nK:G\nGABc |]"})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", time.Second)
	abc, err := c.Transcribe(context.Background(), writeClip(t), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "X:1\nK:G\nGABc |]", abc)
	assert.Equal(t, "region.wav:RIFF....WAVE", uploaded)
	assert.Equal(t, "notation-service", c.Name())
}

func TestClient_TranscribeEmptyScoreIsRest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"abc":""}`))
	}))
	defer server.Close()

	abc, err := NewClient(server.URL, time.Second).Transcribe(context.Background(), writeClip(t), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, Rest, abc)
}

func TestClient_TranscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "http error", status: http.StatusBadGateway, body: "model offline", wantMsg: "status 502"},
		{name: "service error", status: http.StatusOK, body: `{"error":"too short"}`, wantMsg: "too short"},
		{name: "bad json", status: http.StatusOK, body: `abc`, wantMsg: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second).Transcribe(context.Background(), writeClip(t), 0, 2)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	healthy, err := c.HealthCheck(context.Background())
	assert.NoError(t, err)
	assert.True(t, healthy)

	status = http.StatusInternalServerError
	healthy, err = c.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.False(t, healthy)
}
