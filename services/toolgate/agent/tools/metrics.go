// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// toolCallsTotal counts local tool calls.
// Labels: tool, outcome (ok, error)
var toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "toolgate",
	Subsystem: "tools",
	Name:      "calls_total",
	Help:      "Total local tool calls by tool and outcome",
}, []string{"tool", "outcome"})
