// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package confidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var resolverTracer = otel.Tracer("aleutian.toolgate.confidence")

// Resolution outcomes, also used as metric labels.
const (
	OutcomeSelected       = "selected"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeNoCandidates   = "no_candidates"
)

// Resolution is the result of resolving one model output.
type Resolution struct {
	// Outcome is one of OutcomeSelected, OutcomeBelowThreshold, OutcomeNoCandidates.
	Outcome string

	// Selected is the candidate to execute. Valid only when Outcome is OutcomeSelected.
	Selected Candidate

	// Candidates are all extracted candidates, in extraction order.
	Candidates []Candidate
}

// Ok reports whether a candidate was selected.
func (r *Resolution) Ok() bool {
	return r.Outcome == OutcomeSelected
}

// Clarification returns the text to show when nothing was selected.
func (r *Resolution) Clarification() string {
	switch r.Outcome {
	case OutcomeSelected:
		return ""
	case OutcomeBelowThreshold:
		best := r.Candidates[0]
		for _, c := range r.Candidates[1:] {
			if c.Confidence() >= best.Confidence() {
				best = c
			}
		}
		return fmt.Sprintf("I'm not certain what you want to do. Did you mean to call %s? Please confirm or rephrase.", best.ToolName())
	default:
		return "I couldn't identify a tool call in that response. Could you clarify what you'd like me to do?"
	}
}

// Resolver extracts candidates from model output and selects one.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	extractor *Extractor
	logger    *slog.Logger
}

// NewResolver creates a Resolver.
//
// Inputs:
//   - extractor: The candidate extractor. Nil uses NewExtractor(nil).
//   - logger: Logger instance. Nil uses slog.Default().
func NewResolver(extractor *Extractor, logger *slog.Logger) *Resolver {
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{extractor: extractor, logger: logger}
}

// Resolve extracts every candidate from output and selects the best one.
//
// Description:
//
//	A missing selection is not an error. The caller decides the fallback,
//	typically by showing Resolution.Clarification().
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - output: Raw model output.
//
// Outputs:
//   - *Resolution: The outcome and candidates.
//   - error: Non-nil only if ctx is nil.
func (r *Resolver) Resolve(ctx context.Context, output string) (*Resolution, error) {
	if ctx == nil {
		return nil, errors.New("confidence: ctx must not be nil")
	}

	_, span := resolverTracer.Start(ctx, "confidence.Resolver.Resolve",
		oteltrace.WithAttributes(attribute.Int("output_len", len(output))),
	)
	defer span.End()

	candidates := r.extractor.Extract(output)
	for _, c := range candidates {
		candidatesTotal.WithLabelValues(c.Method().String()).Inc()
	}

	res := &Resolution{Candidates: candidates}
	best, ok := SelectBest(candidates)
	switch {
	case ok:
		res.Outcome = OutcomeSelected
		res.Selected = best
		selectedConfidence.Observe(best.Confidence())
		span.SetAttributes(
			attribute.String("tool", best.ToolName()),
			attribute.String("method", best.Method().String()),
			attribute.Float64("confidence", best.Confidence()),
		)
	case len(candidates) > 0:
		res.Outcome = OutcomeBelowThreshold
	default:
		res.Outcome = OutcomeNoCandidates
	}

	resolveTotal.WithLabelValues(res.Outcome).Inc()
	span.SetAttributes(
		attribute.String("outcome", res.Outcome),
		attribute.Int("candidate_count", len(candidates)),
	)
	span.SetStatus(codes.Ok, "")

	r.logger.Debug("tool call resolved",
		slog.String("outcome", res.Outcome),
		slog.Int("candidates", len(candidates)),
	)
	return res, nil
}
