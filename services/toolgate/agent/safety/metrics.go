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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Command Safety
// =============================================================================

var (
	// safetyScansTotal counts command classifications by resulting tier.
	// Labels: level (safe, low, medium, high, critical)
	safetyScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "safety",
		Name:      "scans_total",
		Help:      "Total command risk classifications by tier",
	}, []string{"level"})

	// safetyGateDecisionsTotal counts gate decisions by tier and outcome.
	// Labels: level, outcome (allowed, blocked, declined, password_rejected, no_confirmer, error)
	safetyGateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "safety",
		Name:      "gate_decisions_total",
		Help:      "Total risk gate decisions by tier and outcome",
	}, []string{"level", "outcome"})
)

func recordScan(level RiskLevel) {
	safetyScansTotal.WithLabelValues(level.String()).Inc()
}

func recordGateDecision(level RiskLevel, outcome string) {
	safetyGateDecisionsTotal.WithLabelValues(level.String(), outcome).Inc()
}
