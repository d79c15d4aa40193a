package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Validator performs security validation on command execution requests.
type Validator struct {
	config   *Config
	patterns map[string][]*regexp.Regexp
}

// NewValidator compiles the argument patterns of every whitelisted command.
// The config must have passed validateConfig.
func NewValidator(config *Config) *Validator {
	v := &Validator{config: config, patterns: map[string][]*regexp.Regexp{}}
	for _, cmd := range config.Commands {
		for _, p := range cmd.AllowedArgsPatterns {
			v.patterns[cmd.Name] = append(v.patterns[cmd.Name], regexp.MustCompile(p))
		}
	}
	return v
}

// ValidateRequest checks, in order: whitelist, length, argument patterns,
// paths in arguments, working directory and environment variables.
func (v *Validator) ValidateRequest(req CommandRequest) error {
	cmdConfig, err := v.config.GetCommandConfig(req.Command)
	if err != nil {
		return fmt.Errorf("command %s is not in whitelist", req.Command)
	}

	cmdLength := len(req.Command) + len(strings.Join(req.Args, " "))
	if limit := v.config.Security.MaxCommandLength; limit > 0 && cmdLength > limit {
		return fmt.Errorf("command length (%d) exceeds maximum allowed (%d)", cmdLength, limit)
	}

	if err := v.validateArgs(req.Command, req.Args); err != nil {
		return err
	}
	if err := v.validatePaths(req.Args); err != nil {
		return err
	}
	if req.WorkingDir != "" {
		if err := v.validatePath(req.WorkingDir); err != nil {
			return fmt.Errorf("invalid working directory: %w", err)
		}
	}
	if len(req.Env) > 0 {
		if err := validateEnv(req.Env, cmdConfig.EnvWhitelist); err != nil {
			return err
		}
	}
	return nil
}

// validateArgs checks that every argument matches at least one pattern.
func (v *Validator) validateArgs(command string, args []string) error {
	for _, arg := range args {
		matched := slices.ContainsFunc(v.patterns[command], func(re *regexp.Regexp) bool {
			return re.MatchString(arg)
		})
		if !matched {
			return fmt.Errorf("argument '%s' does not match any allowed pattern", arg)
		}
	}
	return nil
}

// validatePaths checks all path-like arguments.
func (v *Validator) validatePaths(args []string) error {
	for _, arg := range args {
		if strings.HasPrefix(arg, "/") || strings.Contains(arg, "..") {
			if err := v.validatePath(arg); err != nil {
				return err
			}
		}
	}
	return nil
}

// validatePath rejects traversal, forbidden directories and anything
// outside the shared volume and the allowed prefixes.
func (v *Validator) validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains '..' (path traversal attempt): %s", path)
	}
	clean := filepath.Clean(path)

	for _, forbidden := range v.config.Security.ForbiddenPaths {
		if within(clean, forbidden) {
			return fmt.Errorf("path attempts to access forbidden directory %s: %s", forbidden, path)
		}
	}

	if within(clean, v.config.Security.SharedVolumePath) {
		return nil
	}
	for _, prefix := range v.config.Security.AllowedPathPrefixes {
		if within(clean, prefix) {
			return nil
		}
	}
	return fmt.Errorf("path must be within %s: %s", v.config.Security.SharedVolumePath, path)
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	if dir == "" {
		return false
	}
	dir = filepath.Clean(dir)
	return path == dir || strings.HasPrefix(path, strings.TrimSuffix(dir, "/")+"/")
}

func validateEnv(env map[string]string, whitelist []string) error {
	for key := range env {
		if !slices.Contains(whitelist, key) {
			return fmt.Errorf("environment variable '%s' is not in whitelist", key)
		}
	}
	return nil
}
