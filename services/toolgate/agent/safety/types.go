// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety classifies shell-style commands into risk tiers and gates
// their execution. The Scanner maps a command to a RiskLevel using ordered
// pattern tables; the Gate wraps a tool executor and applies the policy for
// each tier (block, password, confirmation, or pass-through) before the
// command reaches the inner executor.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use unless documented otherwise.
package safety

import (
	"context"
	"errors"
	"fmt"
)

// ToolExecutor mirrors parallel.ExecutionContext so the gate can decorate
// any execution context without importing the scheduler. Go's structural
// typing makes every parallel.ExecutionContext a ToolExecutor.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) string
}

// RiskLevel is the totally ordered risk tier of a command.
type RiskLevel int

const (
	// Safe commands run without any prompt.
	Safe RiskLevel = iota

	// Low commands may modify files and require confirmation.
	Low

	// Medium commands may lose data and require confirmation.
	Medium

	// High commands need elevated privileges and require a password.
	High

	// Critical commands are refused outright.
	Critical
)

// String returns the lower-case tier name.
func (r RiskLevel) String() string {
	switch r {
	case Safe:
		return "safe"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Description returns the fixed human-readable label for the tier.
func (r RiskLevel) Description() string {
	switch r {
	case Safe:
		return "Safe command"
	case Low:
		return "This command may modify files"
	case Medium:
		return "This command may cause data loss"
	case High:
		return "This command requires elevated privileges"
	case Critical:
		return "This command is blocked for security"
	default:
		return "Unknown risk"
	}
}

// RequiresConfirmation returns true for every tier except Safe.
func (r RiskLevel) RequiresConfirmation() bool {
	return r != Safe
}

// RequiresPassword returns true for High and Critical.
func (r RiskLevel) RequiresPassword() bool {
	return r >= High
}

// IsBlocked returns true only for Critical.
func (r RiskLevel) IsBlocked() bool {
	return r == Critical
}

// Assessment is the outcome of classifying one command.
type Assessment struct {
	// Level is the highest tier with a matching pattern, or Safe.
	Level RiskLevel

	// Pattern is the first pattern that matched within Level. Empty for Safe.
	Pattern string

	// Reason is the rule's reason text. Empty for Safe.
	Reason string
}

// Prompt is what a Confirmer shows the user before a gated command runs.
type Prompt struct {
	RequestID string
	ToolName  string
	Command   string
	Level     RiskLevel
	Warning   string
}

// Confirmer asks the user to approve a gated command.
//
// Thread Safety: The gate calls a Confirmer from whichever goroutine runs
// the tool. Under the scheduler that is always inside the exclusive
// execution-context section, so calls never overlap.
type Confirmer interface {
	// Confirm asks for a yes/no decision. Returns false to deny.
	Confirm(ctx context.Context, prompt Prompt) (bool, error)

	// Password asks for the unlock secret. The gate wipes the returned slice
	// after checking it.
	Password(ctx context.Context, prompt Prompt) ([]byte, error)
}

// PasswordChecker verifies an unlock secret for password-gated commands.
//
// credential.Gate satisfies this interface.
type PasswordChecker interface {
	Check(ctx context.Context, secret []byte) error
}

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrCommandBlocked is returned for Critical commands. They never run.
	ErrCommandBlocked = errors.New("safety: command blocked by risk policy")

	// ErrNotConfirmed is returned when the user declines a gated command.
	ErrNotConfirmed = errors.New("safety: command not confirmed")

	// ErrPasswordRejected is returned when the password check fails.
	ErrPasswordRejected = errors.New("safety: password rejected")

	// ErrNoConfirmer is returned when a command needs approval but the gate
	// has no way to ask for it.
	ErrNoConfirmer = errors.New("safety: approval required but no confirmer configured")
)
