// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package confidence scores proposed tool invocations and selects the one
// to execute.
//
// A Candidate pairs a tool call with a confidence derived from how it was
// extracted from model output. Only candidates at or above
// ExecutionThreshold may run automatically; everything else falls back to
// the caller (usually a clarification request).
package confidence

import (
	"errors"
	"fmt"
	"math"
)

// ExecutionThreshold is the minimum confidence for automatic execution.
const ExecutionThreshold = 0.70

// ParseMethod describes how a tool invocation was extracted from model output.
type ParseMethod int

const (
	// SchemaStructured is a JSON reply matching the structured response schema.
	SchemaStructured ParseMethod = iota

	// MarkupParsed is a <tool_call> markup block.
	MarkupParsed

	// PatternMatched is function-call syntax such as read_file({...}).
	PatternMatched

	// NaturalLanguageInferred is a keyword guess from prose.
	NaturalLanguageInferred
)

// String returns the method name used in logs and metrics.
func (m ParseMethod) String() string {
	switch m {
	case SchemaStructured:
		return "schema_structured"
	case MarkupParsed:
		return "markup_parsed"
	case PatternMatched:
		return "pattern_matched"
	case NaturalLanguageInferred:
		return "natural_language_inferred"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// DefaultConfidence returns the fixed confidence for the method.
// Unknown methods get 0.
func (m ParseMethod) DefaultConfidence() float64 {
	switch m {
	case SchemaStructured:
		return 0.95
	case MarkupParsed:
		return 0.75
	case PatternMatched:
		return 0.60
	case NaturalLanguageInferred:
		return 0.40
	default:
		return 0
	}
}

// ErrInvalidConfidence is returned by NewCandidate for a confidence outside [0, 1].
var ErrInvalidConfidence = errors.New("confidence: value must be within [0, 1]")

// ErrEmptyToolName is returned by NewCandidate when no tool is named.
var ErrEmptyToolName = errors.New("confidence: tool name must not be empty")

// Candidate is one proposed tool invocation. It is immutable; Args returns
// a copy.
type Candidate struct {
	toolName   string
	args       map[string]any
	confidence float64
	method     ParseMethod
	overridden bool
}

// WithMethod builds a candidate whose confidence is the method's fixed default.
func WithMethod(toolName string, args map[string]any, method ParseMethod) Candidate {
	return Candidate{
		toolName:   toolName,
		args:       cloneArgs(args),
		confidence: method.DefaultConfidence(),
		method:     method,
	}
}

// NewCandidate builds a candidate with an explicit confidence.
//
// Description:
//
//	For callers that compute their own confidence. The result reports
//	Overridden() == true so it can be told apart from a method default.
//
// Inputs:
//   - toolName: The tool to call. Must not be empty.
//   - args: The tool arguments. Copied.
//   - confidence: Must be within [0, 1] and not NaN.
//   - method: How the call was extracted.
//
// Outputs:
//   - Candidate: The candidate.
//   - error: ErrEmptyToolName or ErrInvalidConfidence.
func NewCandidate(toolName string, args map[string]any, confidence float64, method ParseMethod) (Candidate, error) {
	if toolName == "" {
		return Candidate{}, ErrEmptyToolName
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Candidate{}, fmt.Errorf("%v: %w", confidence, ErrInvalidConfidence)
	}
	return Candidate{
		toolName:   toolName,
		args:       cloneArgs(args),
		confidence: confidence,
		method:     method,
		overridden: true,
	}, nil
}

// ToolName returns the tool to call.
func (c Candidate) ToolName() string { return c.toolName }

// Args returns a copy of the tool arguments. Never nil.
func (c Candidate) Args() map[string]any { return cloneArgs(c.args) }

// Confidence returns the candidate's confidence.
func (c Candidate) Confidence() float64 { return c.confidence }

// Method returns how the candidate was extracted.
func (c Candidate) Method() ParseMethod { return c.method }

// Overridden reports whether the confidence was supplied explicitly
// rather than taken from the method default.
func (c Candidate) Overridden() bool { return c.overridden }

// ShouldExecute reports whether the candidate may run automatically.
func (c Candidate) ShouldExecute() bool {
	return c.confidence >= ExecutionThreshold
}

// SelectBest returns the highest-confidence candidate that may execute.
//
// Description:
//
//	Candidates below ExecutionThreshold are ignored. Among the rest, the
//	maximum confidence wins; when several share it, the last one in input
//	order is returned.
//
// Outputs:
//   - Candidate: The selected candidate.
//   - bool: False if no candidate passes the threshold.
func SelectBest(candidates []Candidate) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, c := range candidates {
		if !c.ShouldExecute() {
			continue
		}
		if !found || c.confidence >= best.confidence {
			best = c
			found = true
		}
	}
	return best, found
}

// cloneArgs deep-copies nested maps and slices so callers cannot mutate a
// candidate through the returned value.
func cloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneArgs(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
