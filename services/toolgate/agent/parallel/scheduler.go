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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var schedulerTracer = otel.Tracer("aleutian.toolgate.parallel")

// DefaultTaskTimeout bounds one task, guard wait included.
const DefaultTaskTimeout = 20 * time.Minute

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// TaskTimeout bounds each task from dispatch to result, including the
	// wait for the execution context. Zero uses DefaultTaskTimeout.
	TaskTimeout time.Duration

	// Classes drives the conflict rules. Empty uses DefaultToolClasses().
	Classes ToolClasses

	// FailureMarkers are result prefixes that mark a failed call.
	// Empty uses DefaultFailureMarkers.
	FailureMarkers []string

	// Progress receives best-effort "executing tool" events. May be nil.
	Progress chan<- ProgressUpdate

	// Logger is used for scheduling logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// Scheduler runs tool batches against one exclusive execution context.
//
// Description:
//
//	Execute splits a batch into groups with AnalyzeIndependence, runs the
//	groups in order, and fans each group out to one goroutine per request.
//	A single-slot semaphore guards the execution context; it is held for
//	the whole tool call and released on every exit path.
//
//	Each task has a deadline covering both the guard wait and the call.
//	When it expires the task returns a synthetic failure at once. A call
//	that ignores its context keeps the guard until it actually returns, so
//	two calls never overlap; later tasks then fail on their own deadlines
//	instead of hanging.
//
// Thread Safety: Safe for concurrent use. Concurrent Execute calls share
// the guard, so their tool calls are serialized too.
type Scheduler struct {
	exec           ExecutionContext
	guard          *semaphore.Weighted
	classes        classifier
	taskTimeout    time.Duration
	failureMarkers []string
	progress       *ProgressTracker
	logger         *slog.Logger
}

// NewScheduler creates a Scheduler.
//
// Inputs:
//   - exec: The shared execution context. Must not be nil.
//   - opts: Optional settings.
//
// Outputs:
//   - *Scheduler: The scheduler.
//   - error: Non-nil if exec is nil or TaskTimeout is negative.
func NewScheduler(exec ExecutionContext, opts SchedulerOptions) (*Scheduler, error) {
	if exec == nil {
		return nil, errors.New("parallel: execution context must not be nil")
	}
	if opts.TaskTimeout < 0 {
		return nil, fmt.Errorf("parallel: task timeout must not be negative, got %s", opts.TaskTimeout)
	}
	if opts.TaskTimeout == 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	classes := opts.Classes
	if len(classes.Shell) == 0 && len(classes.Write) == 0 && len(classes.VCS) == 0 {
		classes = DefaultToolClasses()
	}
	markers := opts.FailureMarkers
	if len(markers) == 0 {
		markers = DefaultFailureMarkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Scheduler{
		exec:           exec,
		guard:          semaphore.NewWeighted(1),
		classes:        newClassifier(classes),
		taskTimeout:    opts.TaskTimeout,
		failureMarkers: append([]string(nil), markers...),
		progress:       NewProgressTracker(opts.Progress),
		logger:         opts.Logger,
	}, nil
}

// Groups returns the execution groups Execute would use for requests.
func (s *Scheduler) Groups(requests []ToolRequest) [][]int {
	return s.classes.analyze(requests)
}

// Execute runs a batch and returns one result per request.
//
// Description:
//
//	Zero requests return an empty slice. One request runs directly without
//	grouping. Otherwise groups run in order; results are appended group by
//	group, each group in spawn order, never in completion order.
//	ToolResult.Index gives each result's position in requests.
//
// Inputs:
//   - ctx: Parent context. Cancelling it fails the remaining tasks with
//     synthetic results; it never aborts the batch with an error.
//   - requests: The batch.
//
// Outputs:
//   - []ToolResult: Exactly len(requests) results.
func (s *Scheduler) Execute(ctx context.Context, requests []ToolRequest) []ToolResult {
	if ctx == nil {
		ctx = context.Background()
	}

	switch len(requests) {
	case 0:
		schedulerBatchesTotal.WithLabelValues("empty").Inc()
		return []ToolResult{}
	case 1:
		schedulerBatchesTotal.WithLabelValues("single").Inc()
		return []ToolResult{s.runTask(ctx, s.logger, 0, requests[0])}
	}

	batchID := uuid.New().String()
	logger := s.logger.With(slog.String("batch_id", batchID))

	ctx, span := schedulerTracer.Start(ctx, "parallel.Scheduler.Execute",
		oteltrace.WithAttributes(
			attribute.String("batch_id", batchID),
			attribute.Int("request_count", len(requests)),
		),
	)
	defer span.End()

	groups := s.classes.analyze(requests)
	schedulerBatchesTotal.WithLabelValues("grouped").Inc()
	schedulerGroupsPerBatch.Observe(float64(len(groups)))
	span.SetAttributes(attribute.Int("group_count", len(groups)))

	logger.Info("executing tool batch",
		slog.Int("requests", len(requests)),
		slog.Int("groups", len(groups)),
	)

	results := make([]ToolResult, 0, len(requests))
	failed := 0
	for gi, group := range groups {
		groupResults := make([]ToolResult, len(group))

		var g errgroup.Group
		for pos, idx := range group {
			req := requests[idx]
			g.Go(func() error {
				groupResults[pos] = s.runTask(ctx, logger, idx, req)
				return nil
			})
		}
		_ = g.Wait() // tasks report failures as results, never as errors

		for _, r := range groupResults {
			if !r.Success {
				failed++
			}
		}
		results = append(results, groupResults...)

		logger.Debug("execution group finished",
			slog.Int("group", gi),
			slog.Int("size", len(group)),
		)
	}

	span.SetAttributes(attribute.Int("failed_count", failed))
	span.SetStatus(codes.Ok, "")
	return results
}

// callOutcome carries what the call goroutine produced.
type callOutcome struct {
	text     string
	panicked bool
	panicVal any
}

// runTask executes one request and always returns a result.
func (s *Scheduler) runTask(ctx context.Context, logger *slog.Logger, idx int, req ToolRequest) (result ToolResult) {
	start := time.Now()

	ctx, span := schedulerTracer.Start(ctx, "parallel.Scheduler.task",
		oteltrace.WithAttributes(
			attribute.String("tool", req.ToolName),
			attribute.Int("index", idx),
		),
	)
	defer span.End()

	// Anything that escapes below still becomes a result.
	defer func() {
		if r := recover(); r != nil {
			result = s.synthetic(idx, fmt.Sprintf("Error: task panicked: %v", r))
			s.finish(span, logger, req.ToolName, "panic", start, result)
		}
	}()

	s.progress.ExecutingTool(req.ToolName)

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	if err := s.guard.Acquire(taskCtx, 1); err != nil {
		outcome, text := s.abandoned(ctx, err)
		result = s.synthetic(idx, text)
		s.finish(span, logger, req.ToolName, outcome, start, result)
		return result
	}

	// The call runs in its own goroutine so the deadline can be honoured
	// even if the tool ignores its context. That goroutine owns the guard.
	done := make(chan callOutcome, 1)
	go func() {
		defer s.guard.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{panicked: true, panicVal: r}
			}
		}()
		done <- callOutcome{text: s.exec.ExecuteTool(taskCtx, req.ToolName, req.ToolArgs)}
	}()

	select {
	case out := <-done:
		if out.panicked {
			result = s.synthetic(idx, fmt.Sprintf("Error: task panicked: %v", out.panicVal))
			s.finish(span, logger, req.ToolName, "panic", start, result)
			return result
		}
		result = ToolResult{
			Index:    idx,
			ToolName: req.ToolName,
			Result:   out.text,
			Duration: time.Since(start),
			Success:  !s.isFailure(out.text),
		}
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		s.finish(span, logger, req.ToolName, outcome, start, result)
		return result

	case <-taskCtx.Done():
		outcome, text := s.abandoned(ctx, taskCtx.Err())
		result = s.synthetic(idx, text)
		s.finish(span, logger, req.ToolName, outcome, start, result)
		return result
	}
}

// abandoned names why a task stopped waiting. parent is the batch context.
func (s *Scheduler) abandoned(parent context.Context, err error) (outcome, text string) {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return "timeout", fmt.Sprintf("Error: task timed out after %s", s.taskTimeout)
	}
	if parent.Err() != nil {
		err = parent.Err()
	}
	return "cancelled", fmt.Sprintf("Error: task cancelled: %v", err)
}

func (s *Scheduler) synthetic(idx int, text string) ToolResult {
	return ToolResult{
		Index:    idx,
		ToolName: UnknownTool,
		Result:   text,
		Duration: 0,
		Success:  false,
	}
}

func (s *Scheduler) isFailure(text string) bool {
	for _, m := range s.failureMarkers {
		if strings.HasPrefix(text, m) {
			return true
		}
	}
	return false
}

// finish records metrics, span state and a log line for a completed task.
func (s *Scheduler) finish(span oteltrace.Span, logger *slog.Logger, tool, outcome string, start time.Time, r ToolResult) {
	elapsed := time.Since(start)
	schedulerTasksTotal.WithLabelValues(outcome).Inc()
	schedulerTaskDuration.WithLabelValues(tool).Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("success", r.Success),
	)
	if r.Success {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, outcome)
	}

	level := slog.LevelDebug
	if outcome == "panic" || outcome == "timeout" {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "tool task finished",
		slog.String("tool", tool),
		slog.Int("index", r.Index),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)
}
