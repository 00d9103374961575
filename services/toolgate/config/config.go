// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads toolgate service configuration and the embedded
// command risk rules.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then TOOLGATE_* environment variables (a .env file in the working
// directory is loaded first if present). The result is validated with
// struct tags before use.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration Types
// =============================================================================

// ServiceConfig is the complete toolgate configuration.
//
// Thread Safety: Value type. Safe to share after Load returns.
type ServiceConfig struct {
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Tools      ToolsConfig      `yaml:"tools"`
	Safety     SafetyConfig     `yaml:"safety"`
	Credential CredentialConfig `yaml:"credential"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SchedulerConfig controls batch execution.
type SchedulerConfig struct {
	// TaskTimeout bounds each scheduled task, including the wait for the
	// shared execution context.
	// Env: TOOLGATE_TASK_TIMEOUT (default: 20m)
	TaskTimeout time.Duration `yaml:"task_timeout" validate:"min=1s"`

	// ProgressBuffer is the capacity of the progress channel used by the CLI.
	// Env: TOOLGATE_PROGRESS_BUFFER (default: 32)
	ProgressBuffer int `yaml:"progress_buffer" validate:"min=0,max=4096"`

	// FailureMarkers are result-text prefixes that classify a tool call as failed.
	FailureMarkers []string `yaml:"failure_markers" validate:"min=1,dive,required"`
}

// ToolsConfig controls the local toolbox and tool classification.
type ToolsConfig struct {
	// WorkingDir is the initial working directory for file and shell tools.
	// Env: TOOLGATE_WORKDIR (default: process working directory)
	WorkingDir string `yaml:"working_dir"`

	// ShellTimeout is the default timeout for shell commands.
	// Env: TOOLGATE_SHELL_TIMEOUT (default: 60s, max: 1200s)
	ShellTimeout time.Duration `yaml:"shell_timeout" validate:"min=1s,max=1200s"`

	// ShellTools name tools that run shell commands. They never share a group.
	// Env: TOOLGATE_SHELL_TOOLS (comma-separated)
	ShellTools []string `yaml:"shell_tools" validate:"min=1,dive,required"`

	// WriteTools name tools that write files. Two writes to one path never share a group.
	WriteTools []string `yaml:"write_tools" validate:"dive,required"`

	// VCSTools name version-control tools. They never share a group.
	VCSTools []string `yaml:"vcs_tools" validate:"dive,required"`

	// MaxOutputLines caps command output kept per call (head and tail are kept).
	MaxOutputLines int `yaml:"max_output_lines" validate:"min=10"`
}

// SafetyConfig controls command risk gating.
type SafetyConfig struct {
	// RulesFile overrides the embedded risk rules. Empty uses the embedded rules.
	// Env: TOOLGATE_RULES_FILE
	RulesFile string `yaml:"rules_file"`

	// AuditEnabled controls gate audit logging.
	// Env: TOOLGATE_AUDIT_ENABLED (default: true)
	AuditEnabled bool `yaml:"audit_enabled"`

	// AuditHashContent logs a SHA256 of the command instead of its redacted text.
	// Env: TOOLGATE_AUDIT_HASH_CONTENT (default: true)
	AuditHashContent bool `yaml:"audit_hash_content"`

	// AutoApproveLow skips the confirmation prompt for low-risk commands.
	// Env: TOOLGATE_AUTO_APPROVE_LOW (default: false)
	AutoApproveLow bool `yaml:"auto_approve_low"`
}

// CredentialConfig controls the password gate for high-risk commands.
type CredentialConfig struct {
	// StoreDir is the badger directory holding password hashes.
	// Env: TOOLGATE_CREDENTIAL_DIR (default: ~/.toolgate/credentials)
	StoreDir string `yaml:"store_dir"`

	// Profile selects which stored hash guards this session.
	// Env: TOOLGATE_PROFILE (default: "default")
	Profile string `yaml:"profile" validate:"required,max=64"`

	// MaxAttemptsPerMinute limits password verification attempts.
	// Env: TOOLGATE_MAX_ATTEMPTS_PER_MIN (default: 5)
	MaxAttemptsPerMinute int `yaml:"max_attempts_per_minute" validate:"min=1,max=600"`

	Argon2 Argon2Config `yaml:"argon2"`
}

// Argon2Config holds Argon2id cost parameters for new hashes.
// Existing hashes carry their own parameters and verify regardless.
type Argon2Config struct {
	MemoryKiB  uint32 `yaml:"memory_kib" validate:"min=8192,max=4194304"`
	Iterations uint32 `yaml:"iterations" validate:"min=1,max=32"`
	Threads    uint8  `yaml:"threads" validate:"min=1,max=64"`
	SaltLength uint32 `yaml:"salt_length" validate:"min=16,max=64"`
	KeyLength  uint32 `yaml:"key_length" validate:"min=16,max=64"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Env: TOOLGATE_LOG_LEVEL (default: info)
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Env: TOOLGATE_LOG_FORMAT (default: text)
	Format string `yaml:"format" validate:"oneof=text json"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultTaskTimeout bounds a single scheduled task.
	DefaultTaskTimeout = 20 * time.Minute

	// DefaultShellTimeout is the shell command timeout when none is given.
	DefaultShellTimeout = 60 * time.Second

	// MaxShellTimeout is the largest shell timeout a caller may request.
	MaxShellTimeout = 1200 * time.Second
)

// Default returns the built-in configuration.
func Default() *ServiceConfig {
	storeDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		storeDir = filepath.Join(home, ".toolgate", "credentials")
	}
	return &ServiceConfig{
		Scheduler: SchedulerConfig{
			TaskTimeout:    DefaultTaskTimeout,
			ProgressBuffer: 32,
			FailureMarkers: []string{"Error", "❌"},
		},
		Tools: ToolsConfig{
			ShellTimeout:   DefaultShellTimeout,
			ShellTools:     []string{"execute_shell", "shell_executor"},
			WriteTools:     []string{"write_file"},
			VCSTools:       []string{"git"},
			MaxOutputLines: 200,
		},
		Safety: SafetyConfig{
			AuditEnabled:     true,
			AuditHashContent: true,
		},
		Credential: CredentialConfig{
			StoreDir:             storeDir,
			Profile:              "default",
			MaxAttemptsPerMinute: 5,
			Argon2: Argon2Config{
				MemoryKiB:  19 * 1024,
				Iterations: 2,
				Threads:    1,
				SaltLength: 16,
				KeyLength:  32,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load builds the service configuration.
//
// Description:
//
//	Applies, in order: defaults, the YAML file at path (skipped when path
//	is empty), the .env file named by TOOLGATE_ENV_FILE (default ".env",
//	missing is not an error), and TOOLGATE_* environment overrides. The
//	merged result is validated.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	path - Optional YAML config file path.
//
// Outputs:
//
//	*ServiceConfig - The validated configuration.
//	error - Non-nil if the file cannot be read or parsed, or validation fails.
func Load(ctx context.Context, path string) (*ServiceConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("config.Load: ctx must not be nil")
	}
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	cfg := Default()

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if err := loadDotEnv(envString("TOOLGATE_ENV_FILE", ".env")); err != nil {
		span.RecordError(err)
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("config_file", path),
		attribute.String("profile", cfg.Credential.Profile),
		attribute.Int64("task_timeout_ms", cfg.Scheduler.TaskTimeout.Milliseconds()),
	)
	return cfg, nil
}

// Validate checks struct-tag constraints on cfg.
func Validate(cfg *ServiceConfig) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation: %w", err)
	}
	return nil
}

func mergeFile(cfg *ServiceConfig, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// loadDotEnv loads a dotenv file without overriding variables already set.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: loading %s: %w", path, err)
}

func applyEnvOverrides(cfg *ServiceConfig) {
	cfg.Scheduler.TaskTimeout = envDuration("TOOLGATE_TASK_TIMEOUT", cfg.Scheduler.TaskTimeout)
	cfg.Scheduler.ProgressBuffer = envInt("TOOLGATE_PROGRESS_BUFFER", cfg.Scheduler.ProgressBuffer)

	cfg.Tools.WorkingDir = envString("TOOLGATE_WORKDIR", cfg.Tools.WorkingDir)
	cfg.Tools.ShellTimeout = envDuration("TOOLGATE_SHELL_TIMEOUT", cfg.Tools.ShellTimeout)
	cfg.Tools.ShellTools = envList("TOOLGATE_SHELL_TOOLS", cfg.Tools.ShellTools)

	cfg.Safety.RulesFile = envString("TOOLGATE_RULES_FILE", cfg.Safety.RulesFile)
	cfg.Safety.AuditEnabled = envBool("TOOLGATE_AUDIT_ENABLED", cfg.Safety.AuditEnabled)
	cfg.Safety.AuditHashContent = envBool("TOOLGATE_AUDIT_HASH_CONTENT", cfg.Safety.AuditHashContent)
	cfg.Safety.AutoApproveLow = envBool("TOOLGATE_AUTO_APPROVE_LOW", cfg.Safety.AutoApproveLow)

	cfg.Credential.StoreDir = envString("TOOLGATE_CREDENTIAL_DIR", cfg.Credential.StoreDir)
	cfg.Credential.Profile = envString("TOOLGATE_PROFILE", cfg.Credential.Profile)
	cfg.Credential.MaxAttemptsPerMinute = envInt("TOOLGATE_MAX_ATTEMPTS_PER_MIN", cfg.Credential.MaxAttemptsPerMinute)

	cfg.Logging.Level = envString("TOOLGATE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envString("TOOLGATE_LOG_FORMAT", cfg.Logging.Format)
}
