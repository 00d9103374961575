// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the local execution context that tool batches run
// against: file access, shell commands, git and a shared working directory.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var toolsTracer = otel.Tracer("aleutian.toolgate.tools")

// Tool names understood by the Toolbox.
const (
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolListDirectory = "list_directory"
	ToolExecuteShell  = "execute_shell"
	ToolShellExecutor = "shell_executor"
	ToolGit           = "git"
	ToolCd            = "cd"
)

const (
	// DefaultShellTimeout applies when neither the call nor Options set one.
	DefaultShellTimeout = 60 * time.Second

	// MaxShellTimeout is the ceiling for a requested timeout_secs.
	MaxShellTimeout = 1200 * time.Second

	// DefaultMaxOutputLines caps each output stream.
	DefaultMaxOutputLines = 200

	// maxListDepth bounds recursive directory listings.
	maxListDepth = 3
)

// Options configures a Toolbox.
type Options struct {
	// WorkingDir is the initial working directory. Empty uses the process cwd.
	WorkingDir string

	// ShellTimeout is the default timeout for shell and git commands.
	ShellTimeout time.Duration

	// MaxOutputLines caps each output stream; head and tail are kept.
	MaxOutputLines int

	Logger *slog.Logger
}

// Toolbox executes tools on the local machine.
//
// Description:
//
//	Relative paths resolve against a working directory that the cd tool
//	changes. Every call sees the directory left by the previous call, which
//	is why a scheduler must never run two Toolbox calls at once.
//
//	Failures are reported as result text starting with "Error", never as a
//	Go error, so a batch always has one result per request.
//
// Thread Safety: Safe for concurrent use. The working directory is guarded
// by a mutex, but concurrent calls that depend on cd ordering are racy by
// nature.
type Toolbox struct {
	mu      sync.Mutex
	workDir string

	shellTimeout time.Duration
	maxLines     int
	logger       *slog.Logger
}

// New creates a Toolbox.
//
// Inputs:
//   - opts: Settings. Zero values take the package defaults.
//
// Outputs:
//   - *Toolbox: The toolbox.
//   - error: Non-nil if the working directory does not exist.
func New(opts Options) (*Toolbox, error) {
	dir := opts.WorkingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("tools: resolving working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("tools: resolving working directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("tools: working directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tools: working directory %s is not a directory", abs)
	}

	if opts.ShellTimeout <= 0 {
		opts.ShellTimeout = DefaultShellTimeout
	}
	if opts.ShellTimeout > MaxShellTimeout {
		opts.ShellTimeout = MaxShellTimeout
	}
	if opts.MaxOutputLines <= 0 {
		opts.MaxOutputLines = DefaultMaxOutputLines
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Toolbox{
		workDir:      abs,
		shellTimeout: opts.ShellTimeout,
		maxLines:     opts.MaxOutputLines,
		logger:       opts.Logger,
	}, nil
}

// WorkingDir returns the current working directory.
func (t *Toolbox) WorkingDir() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workDir
}

// ExecuteTool runs one tool and returns its display text.
//
// Inputs:
//   - ctx: Cancels shell and git commands.
//   - name: Tool name, one of the Tool* constants.
//   - args: Tool arguments as decoded from JSON.
//
// Outputs:
//   - string: The tool output, or text starting with "Error" on failure.
func (t *Toolbox) ExecuteTool(ctx context.Context, name string, args map[string]any) string {
	start := time.Now()
	ctx, span := toolsTracer.Start(ctx, "tools.Toolbox.ExecuteTool",
		oteltrace.WithAttributes(attribute.String("tool", name)),
	)
	defer span.End()

	label := name
	var out string
	switch name {
	case ToolReadFile:
		out = t.readFile(args)
	case ToolWriteFile:
		out = t.writeFile(args)
	case ToolListDirectory:
		out = t.listDirectory(args)
	case ToolExecuteShell, ToolShellExecutor:
		out = t.executeShell(ctx, args)
	case ToolGit:
		out = t.git(ctx, args)
	case ToolCd:
		out = t.cd(args)
	default:
		label = "unknown"
		out = fmt.Sprintf("Error: unknown tool: %s", name)
	}

	outcome := "ok"
	if strings.HasPrefix(out, "Error") || strings.HasPrefix(out, "❌") {
		outcome = "error"
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	toolCallsTotal.WithLabelValues(label, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))

	t.logger.Debug("tool executed",
		slog.String("tool", name),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out
}

// resolve maps path onto the working directory.
func (t *Toolbox) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(t.WorkingDir(), path)
}

// cd changes the working directory.
func (t *Toolbox) cd(args map[string]any) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return missingArg("path")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(t.workDir, target)
	}
	target = filepath.Clean(target)

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Sprintf("Error changing directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error changing directory: %s is not a directory", target)
	}
	t.workDir = target
	return fmt.Sprintf("Changed directory to %s", target)
}
