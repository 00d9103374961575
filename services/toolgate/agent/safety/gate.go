// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var gateTracer = otel.Tracer("aleutian.toolgate.safety")

// GateOptions configures a Gate.
type GateOptions struct {
	// ShellTools are the tool names whose "command" argument is scanned.
	// Empty uses DefaultShellTools.
	ShellTools []string

	// VCSTools are the tool names whose "args" list is scanned as
	// "<tool> <args...>". Empty uses DefaultVCSTools.
	VCSTools []string

	// AutoApproveLow lets Low commands run without a confirmation prompt.
	AutoApproveLow bool

	// Auditor receives a record of every gated decision. Nil disables auditing.
	Auditor *GateAuditor

	// Logger is used for operational logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultShellTools are the tool names treated as shell execution.
var DefaultShellTools = []string{"execute_shell", "shell_executor"}

// DefaultVCSTools are the tool names whose argument list is gated like a
// shell command.
var DefaultVCSTools = []string{"git"}

// Gate wraps a ToolExecutor with command risk checks.
//
// Description:
//
//	Implements ToolExecutor by delegating to the inner executor after the
//	command passes the gate. Other tools pass straight through. For shell
//	tools the "command" argument is classified, and for VCS tools the
//	command line "<tool> <args...>" is. Either is handled by tier:
//	  1. Critical: refused, never executed.
//	  2. High: the Confirmer supplies a password, verified by the checker.
//	  3. Medium/Low: the Confirmer is asked for a yes/no decision.
//	  4. Safe: runs without a prompt.
//
//	A refused command does not raise an error. It is returned as result
//	text starting with "Error:", which the scheduler classifies as a failed
//	tool call.
//
// Thread Safety: Safe for concurrent use if the inner executor, Confirmer
// and PasswordChecker are.
type Gate struct {
	inner          ToolExecutor
	scanner        *Scanner
	confirmer      Confirmer
	checker        PasswordChecker
	shellTools     map[string]bool
	vcsTools       map[string]bool
	autoApproveLow bool
	auditor        *GateAuditor
	logger         *slog.Logger
}

// NewGate creates a Gate.
//
// Inputs:
//   - inner: The executor that performs approved calls. Must not be nil.
//   - scanner: The command classifier. Must not be nil.
//   - confirmer: Asks the user for approval. Nil denies every command that needs approval.
//   - checker: Verifies passwords for High commands. Nil denies every High command.
//   - opts: Optional settings.
//
// Outputs:
//   - *Gate: The configured gate.
//   - error: Non-nil if inner or scanner is nil.
func NewGate(inner ToolExecutor, scanner *Scanner, confirmer Confirmer, checker PasswordChecker, opts GateOptions) (*Gate, error) {
	if inner == nil {
		return nil, fmt.Errorf("safety: inner executor must not be nil")
	}
	if scanner == nil {
		return nil, fmt.Errorf("safety: scanner must not be nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	shellNames := opts.ShellTools
	if len(shellNames) == 0 {
		shellNames = DefaultShellTools
	}
	vcsNames := opts.VCSTools
	if len(vcsNames) == 0 {
		vcsNames = DefaultVCSTools
	}
	return &Gate{
		inner:          inner,
		scanner:        scanner,
		confirmer:      confirmer,
		checker:        checker,
		shellTools:     nameSet(shellNames),
		vcsTools:       nameSet(vcsNames),
		autoApproveLow: opts.AutoApproveLow,
		auditor:        opts.Auditor,
		logger:         opts.Logger,
	}, nil
}

// ExecuteTool runs the tool after the command passes the gate.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - name: The tool name.
//   - args: The tool arguments. Shell tools read "command", VCS tools "args".
//
// Outputs:
//   - string: The inner executor's result, or "Error: ..." if refused.
func (g *Gate) ExecuteTool(ctx context.Context, name string, args map[string]any) string {
	var command string
	switch {
	case g.shellTools[name]:
		command, _ = args["command"].(string)
	case g.vcsTools[name]:
		command = vcsCommand(name, args)
	default:
		return g.inner.ExecuteTool(ctx, name, args)
	}

	if err := g.Authorize(ctx, name, command); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return g.inner.ExecuteTool(ctx, name, args)
}

// Authorize applies the tier policy to a single shell command.
//
// Description:
//
//	Classifies command, then blocks, prompts, or allows according to its
//	tier. Every decision is audited and counted.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - toolName: The shell tool that would run the command.
//   - command: The raw command text.
//
// Outputs:
//   - error: nil if the command may run. Otherwise wraps ErrCommandBlocked,
//     ErrNotConfirmed, ErrPasswordRejected or ErrNoConfirmer.
func (g *Gate) Authorize(ctx context.Context, toolName, command string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	assessment := g.scanner.Classify(command)

	ctx, span := gateTracer.Start(ctx, "safety.Gate.Authorize",
		oteltrace.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("risk_level", assessment.Level.String()),
		),
	)
	defer span.End()

	start := time.Now()
	decision := newDecision(uuid.New().String(), toolName, assessment)
	decision.CommandHash = HashCommand(command)
	decision.Command = Redact(command)

	outcome, err := g.decide(ctx, toolName, command, assessment, decision.RequestID)
	decision.Outcome = outcome
	decision.Err = err
	decision.DurationMs = time.Since(start).Milliseconds()
	recordGateDecision(assessment.Level, outcome)
	span.SetAttributes(attribute.String("outcome", outcome))

	if err != nil {
		g.auditor.LogDenied(ctx, decision)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return err
	}

	g.auditor.LogAllowed(ctx, decision)
	span.SetStatus(codes.Ok, "")
	return nil
}

// decide returns the outcome label and, if the command may not run, the reason.
func (g *Gate) decide(ctx context.Context, toolName, command string, a Assessment, requestID string) (string, error) {
	level := a.Level

	if level.IsBlocked() {
		return "blocked", fmt.Errorf("critical command refused (%s): %w", a.Reason, ErrCommandBlocked)
	}
	if !level.RequiresConfirmation() {
		return "allowed", nil
	}
	if level == Low && g.autoApproveLow {
		return "allowed", nil
	}
	if g.confirmer == nil {
		return "no_confirmer", fmt.Errorf("%s command: %w", level, ErrNoConfirmer)
	}

	prompt := Prompt{
		RequestID: requestID,
		ToolName:  toolName,
		Command:   command,
		Level:     level,
		Warning:   FormatWarning(level, command),
	}

	if level.RequiresPassword() {
		return g.checkPassword(ctx, prompt)
	}

	ok, err := g.confirmer.Confirm(ctx, prompt)
	if err != nil {
		return "error", fmt.Errorf("confirmation failed: %w", errors.Join(ErrNotConfirmed, err))
	}
	if !ok {
		return "declined", fmt.Errorf("%s command declined by user: %w", level, ErrNotConfirmed)
	}
	return "allowed", nil
}

func (g *Gate) checkPassword(ctx context.Context, prompt Prompt) (string, error) {
	if g.checker == nil {
		return "no_confirmer", fmt.Errorf("no password checker configured: %w", ErrNoConfirmer)
	}

	secret, err := g.confirmer.Password(ctx, prompt)
	if err != nil {
		return "error", fmt.Errorf("password prompt failed: %w", errors.Join(ErrNotConfirmed, err))
	}
	defer clear(secret)

	if err := g.checker.Check(ctx, secret); err != nil {
		g.logger.Warn("password check failed for high-risk command",
			slog.String("request_id", prompt.RequestID),
			slog.String("error", err.Error()),
		)
		return "password_rejected", fmt.Errorf("%w: %w", ErrPasswordRejected, err)
	}
	return "allowed", nil
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// vcsCommand renders a VCS tool call as the command line it runs. The
// "args" forms match what the toolbox accepts.
func vcsCommand(name string, args map[string]any) string {
	var parts []string
	switch v := args["args"].(type) {
	case []string:
		parts = v
	case []any:
		parts = make([]string, 0, len(v))
		for _, a := range v {
			parts = append(parts, fmt.Sprint(a))
		}
	case string:
		parts = strings.Fields(v)
	}
	return strings.TrimSpace(name + " " + strings.Join(parts, " "))
}
