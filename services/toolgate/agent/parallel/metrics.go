// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parallel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Batch Scheduling
// =============================================================================

var (
	// schedulerBatchesTotal counts executed batches.
	// Labels: path (empty, single, grouped)
	schedulerBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "scheduler",
		Name:      "batches_total",
		Help:      "Total tool batches executed by path",
	}, []string{"path"})

	// schedulerGroupsPerBatch tracks how many groups a batch splits into.
	schedulerGroupsPerBatch = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "toolgate",
		Subsystem: "scheduler",
		Name:      "groups_per_batch",
		Help:      "Number of execution groups per grouped batch",
		Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
	})

	// schedulerTasksTotal counts tasks by outcome.
	// Labels: outcome (success, failure, panic, timeout, cancelled)
	schedulerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolgate",
		Subsystem: "scheduler",
		Name:      "tasks_total",
		Help:      "Total scheduled tool tasks by outcome",
	}, []string{"outcome"})

	// schedulerTaskDuration tracks task duration including the guard wait.
	schedulerTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toolgate",
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Duration of scheduled tool tasks",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 9),
	}, []string{"tool"})
)
