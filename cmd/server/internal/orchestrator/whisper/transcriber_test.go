package whisper

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

func writeAudio(t *testing.T) string {
	t.Helper()
	audioPath := filepath.Join(t.TempDir(), "vocals.mp3")
	require.NoError(t, os.WriteFile(audioPath, []byte("ID3....fake"), 0644))
	return audioPath
}

func TestHTTPWhisperImpl(t *testing.T) {
	t.Run("successful transcription sends form fields", func(t *testing.T) {
		var fields map[string]string
		var uploaded string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/whisper/transcribe" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			require.NoError(t, r.ParseMultipartForm(1<<20))
			fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			f, hdr, err := r.FormFile("audio")
			require.NoError(t, err)
			body, _ := io.ReadAll(f)
			f.Close()
			uploaded = hdr.Filename + ":" + string(body)

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"text": "play the G chord",
				"segments": []map[string]interface{}{
					{"text": "play the", "start": 0.0, "end": 1.2},
					{"text": "G chord", "start": 1.2, "end": 2.8},
				},
				"language": "en",
				"duration": 2.8,
			})
		}))
		defer server.Close()

		impl := NewHTTPWhisperImpl(server.URL + "/")
		result, err := impl.Transcribe(context.Background(), writeAudio(t), &TranscribeOptions{
			Model:     "small",
			Language:  "en",
			BeamSize:  5,
			VADFilter: true,
		})
		require.NoError(t, err)

		assert.Equal(t, "play the G chord", result.Text)
		assert.Len(t, result.Segments, 2)
		assert.Equal(t, 1.2, result.Segments[1].Start)
		assert.Equal(t, "vocals.mp3:ID3....fake", uploaded)
		assert.Equal(t, "small", fields["model"])
		assert.Equal(t, "en", fields["language"])
		assert.Equal(t, "5", fields["beam_size"])
		assert.Equal(t, "true", fields["vad_filter"])
		assert.Equal(t, "0.0", fields["temperature"])
		assert.NotContains(t, fields, "prompt")
	})

	t.Run("missing segments decode as empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(`{"text":""}`))
		}))
		defer server.Close()

		result, err := NewHTTPWhisperImpl(server.URL).Transcribe(context.Background(), writeAudio(t), nil)
		require.NoError(t, err)
		assert.NotNil(t, result.Segments)
		assert.Empty(t, result.Segments)
	})

	t.Run("server returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "model crashed"}`))
		}))
		defer server.Close()

		_, err := NewHTTPWhisperImpl(server.URL).Transcribe(context.Background(), writeAudio(t), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
		assert.Contains(t, err.Error(), "model crashed")
	})

	t.Run("missing audio file", func(t *testing.T) {
		_, err := NewHTTPWhisperImpl("http://127.0.0.1:1").Transcribe(context.Background(), "/nonexistent/vocals.mp3", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open audio file")
	})

	t.Run("timeout option cancels request", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		_, err := NewHTTPWhisperImpl(server.URL).Transcribe(context.Background(), writeAudio(t), &TranscribeOptions{Timeout: 50 * time.Millisecond})
		require.Error(t, err)
	})

	t.Run("health check", func(t *testing.T) {
		status := http.StatusOK
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/whisper/model", r.URL.Path)
			w.WriteHeader(status)
		}))
		defer server.Close()

		impl := NewHTTPWhisperImpl(server.URL)
		healthy, err := impl.HealthCheck(context.Background())
		assert.NoError(t, err)
		assert.True(t, healthy)

		status = http.StatusServiceUnavailable
		healthy, err = impl.HealthCheck(context.Background())
		assert.Error(t, err)
		assert.False(t, healthy)
	})

	t.Run("name", func(t *testing.T) {
		assert.Equal(t, "http-whisper", NewHTTPWhisperImpl("http://localhost:8082").Name())
	})
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestLocalWhisperImpl(t *testing.T) {
	t.Run("creation with invalid program path", func(t *testing.T) {
		_, err := NewLocalWhisperImpl("/nonexistent/whisper", "/models")
		assert.Error(t, err)
	})

	t.Run("creation with non-executable program", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "whisper")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		_, err := NewLocalWhisperImpl(path, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not executable")
	})

	t.Run("build args", func(t *testing.T) {
		impl := &LocalWhisperImpl{programPath: "whisper", modelPath: "/models"}
		args := impl.buildArgs("/a/vocals.mp3", TranscribeOptions{Model: "base", Language: "de", BeamSize: 3, VADFilter: true, Prompt: "Am7"})
		assert.Equal(t, []string{
			"transcribe", "/models/ggml-base.bin", "/a/vocals.mp3", "--format", "json",
			"--temperature", "0.0", "--language", "de", "--beam-size", "3", "--vad", "--prompt", "Am7",
		}, args)

		impl.modelPath = ""
		args = impl.buildArgs("/a/vocals.mp3", TranscribeOptions{Model: "small"})
		assert.Equal(t, "small", args[1])
	})

	t.Run("transcribe parses stdout", func(t *testing.T) {
		program := writeScript(t, `echo '{"id":0,"start":0,"end":2,"text":" hello "}'
echo '{"id":1,"start":2,"end":4,"text":"there"}'
echo 'progress noise' >&2
`)
		impl, err := NewLocalWhisperImpl(program, "")
		require.NoError(t, err)

		result, err := impl.Transcribe(context.Background(), "/a/vocals.mp3", nil)
		require.NoError(t, err)
		assert.Len(t, result.Segments, 2)
		assert.Equal(t, "hello there", result.Text)
	})

	t.Run("transcribe reports stderr on failure", func(t *testing.T) {
		program := writeScript(t, "echo 'model not found' >&2\nexit 2\n")
		impl, err := NewLocalWhisperImpl(program, "")
		require.NoError(t, err)

		_, err = impl.Transcribe(context.Background(), "/a/vocals.mp3", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("health check", func(t *testing.T) {
		impl, err := NewLocalWhisperImpl(writeScript(t, "echo v1.7.0\n"), "")
		require.NoError(t, err)
		healthy, err := impl.HealthCheck(context.Background())
		assert.NoError(t, err)
		assert.True(t, healthy)

		impl, err = NewLocalWhisperImpl(writeScript(t, "exit 0\n"), "")
		require.NoError(t, err)
		healthy, err = impl.HealthCheck(context.Background())
		assert.Error(t, err)
		assert.False(t, healthy)
	})

	t.Run("name", func(t *testing.T) {
		impl, err := NewLocalWhisperImpl(writeScript(t, "echo test\n"), "")
		require.NoError(t, err)
		assert.Equal(t, "local-whisper", impl.Name())
	})
}

func TestParseCLIOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		segments int
		text     string
		wantErr  bool
	}{
		{name: "empty output", output: "", segments: 0, text: ""},
		{name: "result object", output: `{"language":"en","segments":[{"start":0,"end":1,"text":"a"},{"start":1,"end":2,"text":"b"}]}`, segments: 2, text: "a b"},
		{name: "pretty printed segments", output: "{\n  \"start\": 0,\n  \"end\": 1,\n  \"text\": \"x\"\n}\n{\n  \"start\": 1,\n  \"end\": 2,\n  \"text\": \"y\"\n}", segments: 2, text: "x y"},
		{name: "blank text skipped in joined text", output: `{"start":0,"end":1,"text":"  "}{"start":1,"end":2,"text":"z"}`, segments: 2, text: "z"},
		{name: "garbage", output: "not json", wantErr: true},
		{name: "array value", output: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseCLIOutput([]byte(tt.output))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, result.Segments, tt.segments)
			assert.Equal(t, tt.text, result.Text)
		})
	}
}

func TestMockTranscriber(t *testing.T) {
	mock := NewMockTranscriber()

	result, err := mock.Transcribe(context.Background(), "/test/vocals.mp3", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Empty(t, result.Segments)
	assert.Equal(t, "unknown", result.Language)

	healthy, err := mock.HealthCheck(context.Background())
	assert.NoError(t, err)
	assert.False(t, healthy)
	assert.Equal(t, "mock-degraded", mock.Name())
}

func TestTranscribeOptionsDefaults(t *testing.T) {
	var nilOpts *TranscribeOptions
	def := nilOpts.orDefault()
	assert.Equal(t, "base", def.Model)
	assert.True(t, def.VADFilter)
	assert.Equal(t, 5, def.BeamSize)

	custom := (&TranscribeOptions{Language: "fr"}).orDefault()
	assert.Equal(t, "base", custom.Model)
	assert.Equal(t, "fr", custom.Language)
}
