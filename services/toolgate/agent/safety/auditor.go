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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Decision records what the gate did with one shell command.
type Decision struct {
	RequestID   string
	ToolName    string
	Level       RiskLevel
	Pattern     string
	Reason      string
	Command     string // redacted
	CommandHash string
	Outcome     string
	Err         error
	Timestamp   int64 // Unix milliseconds UTC
	DurationMs  int64
}

func newDecision(requestID, toolName string, a Assessment) *Decision {
	return &Decision{
		RequestID: requestID,
		ToolName:  toolName,
		Level:     a.Level,
		Pattern:   a.Pattern,
		Reason:    a.Reason,
		Timestamp: time.Now().UnixMilli(),
	}
}

// GateAuditor writes structured audit entries for gate decisions.
//
// Description:
//
//	Entries carry the request id, tier, matching rule and outcome. The
//	command itself is logged either as a SHA256 (hashContent) or as text
//	with credential-shaped substrings redacted. When a span is active the
//	entry also carries trace_id and span_id.
//
// Thread Safety: Safe for concurrent use (slog.Logger is concurrent-safe).
type GateAuditor struct {
	logger      *slog.Logger
	enabled     bool
	hashContent bool
}

// NewGateAuditor creates an auditor.
//
// Inputs:
//   - logger: The structured logger for audit output. Nil uses slog.Default().
//   - enabled: Whether audit logging is active.
//   - hashContent: Log a SHA256 of the command instead of its redacted text.
func NewGateAuditor(logger *slog.Logger, enabled, hashContent bool) *GateAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &GateAuditor{
		logger:      logger,
		enabled:     enabled,
		hashContent: hashContent,
	}
}

// LogAllowed records a command that passed the gate.
func (a *GateAuditor) LogAllowed(ctx context.Context, d *Decision) {
	if a == nil || !a.enabled || d == nil {
		return
	}
	a.loggerWithTrace(ctx).Info("command allowed", a.attrs("gate_allowed", d)...)
}

// LogDenied records a command the gate refused to run.
func (a *GateAuditor) LogDenied(ctx context.Context, d *Decision) {
	if a == nil || !a.enabled || d == nil {
		return
	}
	attrs := a.attrs("gate_denied", d)
	if d.Err != nil {
		attrs = append(attrs, slog.String("error", d.Err.Error()))
	}
	a.loggerWithTrace(ctx).Warn("command denied", attrs...)
}

func (a *GateAuditor) attrs(event string, d *Decision) []any {
	attrs := []any{
		slog.String("event", event),
		slog.String("request_id", d.RequestID),
		slog.String("tool", d.ToolName),
		slog.String("level", d.Level.String()),
		slog.String("outcome", d.Outcome),
		slog.Int64("timestamp", d.Timestamp),
		slog.Int64("duration_ms", d.DurationMs),
	}
	if d.Reason != "" {
		attrs = append(attrs, slog.String("reason", d.Reason))
	}
	switch {
	case a.hashContent && d.CommandHash != "":
		attrs = append(attrs, slog.String("command_hash", d.CommandHash))
	case !a.hashContent && d.Command != "":
		attrs = append(attrs, slog.String("command", d.Command))
	}
	return attrs
}

// loggerWithTrace returns a logger enriched with trace context.
func (a *GateAuditor) loggerWithTrace(ctx context.Context) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return a.logger
	}
	return a.logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// HashCommand returns the hex SHA256 of command, or "" for an empty command.
func HashCommand(command string) string {
	if command == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(command))
	return fmt.Sprintf("%x", sum)
}
