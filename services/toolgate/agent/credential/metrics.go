// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package credential

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// credentialChecksTotal counts secret checks by outcome.
	// Labels: outcome (ok, mismatch, invalid_hash, no_credential, rate_limited, error)
	credentialChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "credential",
		Name:      "checks_total",
		Help:      "Total credential checks by outcome",
	}, []string{"outcome"})

	// credentialCheckDuration tracks how long a check takes, hashing included.
	credentialCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "toolgate",
		Subsystem: "credential",
		Name:      "check_duration_seconds",
		Help:      "Duration of credential checks",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
)

func recordCheck(outcome string, d time.Duration) {
	credentialChecksTotal.WithLabelValues(outcome).Inc()
	credentialCheckDuration.Observe(d.Seconds())
}
