// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Risk Rules
// =============================================================================

//go:embed risk_rules.yaml
var defaultRiskRulesYAML []byte

var configTracer = otel.Tracer("aleutian.toolgate.config")

// MaxYAMLFileSize bounds any YAML document this package will parse (1 MiB).
const MaxYAMLFileSize = 1 << 20

// =============================================================================
// Risk Rule Types
// =============================================================================

// RiskRule is a single command pattern within a risk tier.
type RiskRule struct {
	// Pattern is an RE2 regular expression matched against the lower-cased command.
	Pattern string `yaml:"pattern"`

	// Reason explains what the pattern detects (for audit logs).
	Reason string `yaml:"reason"`
}

// RiskRulesConfig holds the pattern tables for each non-safe risk tier.
//
// Description:
//
//	Tiers are listed from most to least dangerous. The scanner evaluates
//	them in that order and stops at the first tier with a match. There is
//	no safe tier; safe is the result when nothing matches.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type RiskRulesConfig struct {
	Critical []RiskRule `yaml:"critical"`
	High     []RiskRule `yaml:"high"`
	Medium   []RiskRule `yaml:"medium"`
	Low      []RiskRule `yaml:"low"`
}

// RuleCount returns the total number of rules across all tiers.
func (c *RiskRulesConfig) RuleCount() int {
	return len(c.Critical) + len(c.High) + len(c.Medium) + len(c.Low)
}

// =============================================================================
// Singleton Risk Rules
// =============================================================================

var (
	riskRulesMu      sync.RWMutex
	riskRulesOnce    sync.Once
	cachedRiskRules  *RiskRulesConfig
	riskRulesLoadErr error
)

// GetRiskRules returns the cached embedded risk rules.
//
// Description:
//
//	Loads the embedded rule file on first call and caches the result
//	(including any load error) for subsequent calls.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*RiskRulesConfig - The loaded rules. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetRiskRules(ctx context.Context) (*RiskRulesConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRiskRules: ctx must not be nil")
	}

	riskRulesMu.RLock()
	if cachedRiskRules != nil || riskRulesLoadErr != nil {
		cfg, err := cachedRiskRules, riskRulesLoadErr
		riskRulesMu.RUnlock()
		return cfg, err
	}
	riskRulesMu.RUnlock()

	riskRulesMu.Lock()
	defer riskRulesMu.Unlock()

	riskRulesOnce.Do(func() {
		cachedRiskRules, riskRulesLoadErr = LoadRiskRules(ctx, defaultRiskRulesYAML)
	})

	return cachedRiskRules, riskRulesLoadErr
}

// ResetRiskRules clears the cached rules so tests can reload them.
//
// Thread Safety: Safe for concurrent use.
func ResetRiskRules() {
	riskRulesMu.Lock()
	defer riskRulesMu.Unlock()
	cachedRiskRules = nil
	riskRulesLoadErr = nil
	riskRulesOnce = sync.Once{}
}

// LoadRiskRulesFile reads and validates a risk rules file from disk.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - Path to a YAML rules file.
//
// Outputs:
//
//	*RiskRulesConfig - The validated rules.
//	error - Non-nil if the file cannot be read, parsed, or validated.
func LoadRiskRulesFile(ctx context.Context, path string) (*RiskRulesConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRiskRulesFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRiskRulesFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRiskRulesFile: %w", err)
	}
	return LoadRiskRules(ctx, data)
}

// LoadRiskRules parses and validates risk rules from YAML bytes.
//
// Description:
//
//	Validation only rejects structural problems (empty patterns, no rules
//	at all). Patterns that are not valid regular expressions are accepted
//	here and skipped later by the scanner.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes.
//
// Outputs:
//
//	*RiskRulesConfig - The validated rules.
//	error - Non-nil if parsing or validation fails.
func LoadRiskRules(ctx context.Context, data []byte) (*RiskRulesConfig, error) {
	_, span := configTracer.Start(ctx, "config.LoadRiskRules")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadRiskRules: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadRiskRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg RiskRulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadRiskRules: parsing YAML: %w", err)
	}

	if err := validateRiskRules(&cfg); err != nil {
		return nil, fmt.Errorf("LoadRiskRules: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("critical_rules", len(cfg.Critical)),
		attribute.Int("high_rules", len(cfg.High)),
		attribute.Int("medium_rules", len(cfg.Medium)),
		attribute.Int("low_rules", len(cfg.Low)),
	)

	slog.Debug("risk rules loaded",
		slog.Int("critical", len(cfg.Critical)),
		slog.Int("high", len(cfg.High)),
		slog.Int("medium", len(cfg.Medium)),
		slog.Int("low", len(cfg.Low)),
	)

	return &cfg, nil
}

func validateRiskRules(cfg *RiskRulesConfig) error {
	if cfg.RuleCount() == 0 {
		return fmt.Errorf("no rules defined")
	}
	tiers := []struct {
		name  string
		rules []RiskRule
	}{
		{"critical", cfg.Critical},
		{"high", cfg.High},
		{"medium", cfg.Medium},
		{"low", cfg.Low},
	}
	for _, tier := range tiers {
		for i, r := range tier.rules {
			if strings.TrimSpace(r.Pattern) == "" {
				return fmt.Errorf("%s[%d]: pattern must not be empty", tier.name, i)
			}
		}
	}
	return nil
}
