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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolveTotal counts resolutions by outcome.
	// Labels: outcome (selected, below_threshold, no_candidates)
	resolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "confidence",
		Name:      "resolve_total",
		Help:      "Tool-call resolutions by outcome",
	}, []string{"outcome"})

	// candidatesTotal counts extracted candidates by parse method.
	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "confidence",
		Name:      "candidates_total",
		Help:      "Extracted tool-call candidates by parse method",
	}, []string{"method"})

	// selectedConfidence tracks the confidence of executed candidates.
	selectedConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "toolgate",
		Subsystem: "confidence",
		Name:      "selected_confidence",
		Help:      "Confidence of selected tool-call candidates",
		Buckets:   []float64{0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
	})
)
