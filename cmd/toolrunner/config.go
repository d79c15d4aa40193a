package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8090
	defaultAcquireTimeout = 30 * time.Second
)

// LoadConfig loads configuration from a YAML file and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Security.MaxCommandLength == 0 {
		c.Security.MaxCommandLength = 8192
	}
	if len(c.Security.AllowedPathPrefixes) == 0 {
		c.Security.AllowedPathPrefixes = []string{"/usr/bin/", "/usr/local/bin/"}
	}
}

// GetCommandConfig returns the configuration for a specific command by name.
func (c *Config) GetCommandConfig(name string) (*CommandConfig, error) {
	for i := range c.Commands {
		if c.Commands[i].Name == name {
			return &c.Commands[i], nil
		}
	}
	return nil, fmt.Errorf("command %s not found in whitelist", name)
}

// AcquireTimeout is how long a request waits for a concurrency slot.
func (c *Config) AcquireTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Server.AcquireTimeout); err == nil && d > 0 {
		return d
	}
	return defaultAcquireTimeout
}

// validateConfig reports every problem in the configuration at once.
func validateConfig(config *Config) error {
	var errs []error
	if len(config.Commands) == 0 {
		errs = append(errs, errors.New("commands array cannot be empty"))
	}

	seen := map[string]bool{}
	for i, cmd := range config.Commands {
		if cmd.Name == "" {
			errs = append(errs, fmt.Errorf("command[%d]: name cannot be empty", i))
			continue
		}
		if seen[cmd.Name] {
			errs = append(errs, fmt.Errorf("command[%d] (%s): duplicate name", i, cmd.Name))
		}
		seen[cmd.Name] = true

		if cmd.BinaryPath == "" {
			errs = append(errs, fmt.Errorf("command[%d] (%s): binary_path cannot be empty", i, cmd.Name))
		}
		if len(cmd.AllowedArgsPatterns) == 0 {
			errs = append(errs, fmt.Errorf("command[%d] (%s): allowed_args_patterns cannot be empty", i, cmd.Name))
		}
		for _, p := range cmd.AllowedArgsPatterns {
			if _, err := regexp.Compile(p); err != nil {
				errs = append(errs, fmt.Errorf("command[%d] (%s): invalid pattern %q: %w", i, cmd.Name, p, err))
			}
		}
		if cmd.Timeout == "" {
			errs = append(errs, fmt.Errorf("command[%d] (%s): timeout cannot be empty", i, cmd.Name))
		} else if _, err := time.ParseDuration(cmd.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("command[%d] (%s): invalid timeout format: %w", i, cmd.Name, err))
		}
		if cmd.MaxConcurrent <= 0 {
			errs = append(errs, fmt.Errorf("command[%d] (%s): max_concurrent must be greater than 0", i, cmd.Name))
		}
	}

	if config.Security.SharedVolumePath == "" {
		errs = append(errs, errors.New("security.shared_volume_path cannot be empty"))
	}
	if config.Security.EnableAuditLog && config.Security.AuditLogPath == "" {
		errs = append(errs, errors.New("security.audit_log_path is required when audit log is enabled"))
	}
	if config.Security.MaxCommandLength < 0 {
		errs = append(errs, errors.New("security.max_command_length must be greater than 0"))
	}
	return errors.Join(errs...)
}
