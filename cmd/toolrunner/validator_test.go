package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequest(t *testing.T) {
	v := NewValidator(testConfig())

	tests := []struct {
		name    string
		req     CommandRequest
		wantErr string
	}{
		{"whitelisted", CommandRequest{Command: "echo", Args: []string{"hi"}}, ""},
		{"not whitelisted", CommandRequest{Command: "rm", Args: []string{"-rf", "/"}}, "not in whitelist"},
		{"pattern mismatch", CommandRequest{Command: "sh", Args: []string{"-c", "rm -rf /data"}}, "does not match any allowed pattern"},
		{"path inside volume", CommandRequest{Command: "ffmpeg", Args: []string{"-i", "/data/lessons/a/upload.m4a"}}, ""},
		{"path outside volume", CommandRequest{Command: "ffmpeg", Args: []string{"-i", "/home/user/a.mp3"}}, "must be within /data"},
		{"volume name prefix trick", CommandRequest{Command: "ffmpeg", Args: []string{"-i", "/database/a.mp3"}}, "must be within /data"},
		{"forbidden path", CommandRequest{Command: "ffmpeg", Args: []string{"-i", "/etc/passwd"}}, "forbidden directory /etc"},
		{"traversal", CommandRequest{Command: "ffmpeg", Args: []string{"-i", "/data/../etc/passwd"}}, "path traversal"},
		{"bad working dir", CommandRequest{Command: "echo", WorkingDir: "/tmp"}, "invalid working directory"},
		{"allowed env", CommandRequest{Command: "echo", Env: map[string]string{"TEST_VAR": "1"}}, ""},
		{"env not whitelisted", CommandRequest{Command: "echo", Env: map[string]string{"LD_PRELOAD": "x"}}, "not in whitelist"},
		{"too long", CommandRequest{Command: "echo", Args: []string{strings.Repeat("a", 2000)}}, "exceeds maximum allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRequest(tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/data", "/data"))
	assert.True(t, within("/data/x", "/data/"))
	assert.False(t, within("/datax", "/data"))
	assert.False(t, within("/data", ""))
}
