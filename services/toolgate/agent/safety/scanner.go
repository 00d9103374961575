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
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/toolgate/services/toolgate/config"
)

// =============================================================================
// Scanner
// =============================================================================

// compiledRule is a pre-compiled risk pattern.
type compiledRule struct {
	re     *regexp.Regexp
	reason string
}

// tier is one pattern table, evaluated as a unit.
type tier struct {
	level RiskLevel
	rules []compiledRule
}

// Scanner classifies commands into risk tiers.
//
// Description:
//
//	Holds one compiled pattern table per non-safe tier. Tables are checked
//	from Critical down to Low and the first table with a match decides the
//	tier, so a command matching both a Low and a Critical pattern is
//	Critical. A command matching nothing is Safe.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Scanner struct {
	tiers   []tier
	skipped int
	logger  *slog.Logger
}

// NewScanner compiles the given rules into a Scanner.
//
// Description:
//
//	Every pattern is compiled once. Patterns that fail to compile are
//	dropped (logged at debug level) and the rest of their tier still
//	applies.
//
// Inputs:
//
//	rules  - The tier tables. Must not be nil.
//	logger - Logger instance. Nil uses slog.Default().
//
// Outputs:
//
//	*Scanner - The compiled scanner.
//	error    - Non-nil only if rules is nil.
func NewScanner(rules *config.RiskRulesConfig, logger *slog.Logger) (*Scanner, error) {
	if rules == nil {
		return nil, fmt.Errorf("safety: rules must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scanner{logger: logger}
	for _, t := range []struct {
		level RiskLevel
		rules []config.RiskRule
	}{
		{Critical, rules.Critical},
		{High, rules.High},
		{Medium, rules.Medium},
		{Low, rules.Low},
	} {
		s.tiers = append(s.tiers, tier{level: t.level, rules: s.compile(t.level, t.rules)})
	}
	return s, nil
}

// NewDefaultScanner builds a Scanner from the embedded risk rules.
func NewDefaultScanner(ctx context.Context, logger *slog.Logger) (*Scanner, error) {
	rules, err := config.GetRiskRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("safety: loading default rules: %w", err)
	}
	return NewScanner(rules, logger)
}

func (s *Scanner) compile(level RiskLevel, rules []config.RiskRule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			s.skipped++
			s.logger.Debug("skipping invalid risk pattern",
				slog.String("tier", level.String()),
				slog.String("pattern", r.Pattern),
				slog.String("error", err.Error()),
			)
			continue
		}
		compiled = append(compiled, compiledRule{re: re, reason: r.Reason})
	}
	return compiled
}

// Scan returns the risk tier of command.
func (s *Scanner) Scan(command string) RiskLevel {
	return s.Classify(command).Level
}

// Classify returns the risk tier of command along with the matching rule.
//
// Inputs:
//
//	command - The raw command text. It is lower-cased before matching.
//
// Outputs:
//
//	Assessment - The tier and, when not Safe, the rule that decided it.
func (s *Scanner) Classify(command string) Assessment {
	lower := strings.ToLower(command)
	for _, t := range s.tiers {
		for _, r := range t.rules {
			if r.re.MatchString(lower) {
				recordScan(t.level)
				return Assessment{Level: t.level, Pattern: r.re.String(), Reason: r.reason}
			}
		}
	}
	recordScan(Safe)
	return Assessment{Level: Safe}
}

// Warning returns the user-facing warning for command.
//
// Outputs:
//
//	string - The warning text. Empty for Safe commands.
//	bool   - False if the command is Safe and needs no warning.
func (s *Scanner) Warning(command string) (string, bool) {
	level := s.Scan(command)
	if level == Safe {
		return "", false
	}
	return FormatWarning(level, command), true
}

// Skipped returns how many patterns were dropped because they did not compile.
func (s *Scanner) Skipped() int {
	return s.skipped
}

// FormatWarning renders the warning template for a non-safe tier.
func FormatWarning(level RiskLevel, command string) string {
	switch level {
	case Critical:
		return fmt.Sprintf("🚫 BLOCKED: %s\nCommand: %s\nReason: Could cause irreversible system damage",
			level.Description(), command)
	case High:
		return fmt.Sprintf("⚠️  HIGH RISK: %s\nCommand: %s\nPassword confirmation required to proceed.",
			level.Description(), command)
	case Medium:
		return fmt.Sprintf("⚠️  MEDIUM RISK: %s\nCommand: %s\nPlease confirm before proceeding.",
			level.Description(), command)
	case Low:
		return fmt.Sprintf("ℹ️  LOW RISK: %s\nCommand: %s\nPlease confirm before proceeding.",
			level.Description(), command)
	default:
		return ""
	}
}
