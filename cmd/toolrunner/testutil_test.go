package main

import (
	"io"
	"log/slog"
)

func testConfig() *Config {
	cfg := &Config{
		Commands: []CommandConfig{
			{
				Name:                "echo",
				BinaryPath:          "/bin/echo",
				AllowedArgsPatterns: []string{`^.*$`},
				EnvWhitelist:        []string{"TEST_VAR"},
				Timeout:             "5s",
				MaxConcurrent:       2,
			},
			{
				Name:                "sh",
				BinaryPath:          "/bin/sh",
				AllowedArgsPatterns: []string{`^-c$`, `^(exit [0-9]+|sleep [0-9]+|echo \$TEST_VAR)$`},
				EnvWhitelist:        []string{"TEST_VAR"},
				Timeout:             "5s",
				MaxConcurrent:       1,
			},
			{
				Name:                "ffmpeg",
				BinaryPath:          "/usr/bin/ffmpeg",
				AllowedArgsPatterns: []string{`^-[a-z]+$`, `^/.+$`, `^[0-9]+$`},
				Timeout:             "1m",
				MaxConcurrent:       1,
			},
		},
		Security: SecurityConfig{
			SharedVolumePath: "/data",
			ForbiddenPaths:   []string{"/etc", "/sys", "/proc"},
			MaxCommandLength: 1024,
		},
		Server: ServerConfig{AcquireTimeout: "200ms"},
	}
	cfg.applyDefaults()
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
