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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// mockExec records calls and tracks how many run at once.
type mockExec struct {
	fn func(ctx context.Context, name string, args map[string]any) string

	active    atomic.Int32
	maxActive atomic.Int32

	mu    sync.Mutex
	calls []string
}

func (m *mockExec) ExecuteTool(ctx context.Context, name string, args map[string]any) string {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		cur := m.maxActive.Load()
		if n <= cur || m.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn(ctx, name, args)
	}
	// Give siblings a chance to overlap if the guard were missing.
	time.Sleep(5 * time.Millisecond)
	if p, ok := args["path"].(string); ok {
		return name + ":" + p
	}
	return name + ":ok"
}

func newTestScheduler(t *testing.T, exec ExecutionContext, opts SchedulerOptions) *Scheduler {
	t.Helper()
	s, err := NewScheduler(exec, opts)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	return s
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := NewScheduler(nil, SchedulerOptions{}); err == nil {
		t.Error("expected error for nil execution context")
	}
	if _, err := NewScheduler(&mockExec{}, SchedulerOptions{TaskTimeout: -time.Second}); err == nil {
		t.Error("expected error for negative timeout")
	}
}

func TestExecute_Empty(t *testing.T) {
	exec := &mockExec{}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	got := s.Execute(context.Background(), nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Execute(nil) = %v, want empty non-nil slice", got)
	}
	if len(exec.calls) != 0 {
		t.Error("no tool should be called for an empty batch")
	}
}

func TestExecute_Single(t *testing.T) {
	exec := &mockExec{}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	before := testutil.ToFloat64(schedulerBatchesTotal.WithLabelValues("single"))
	got := s.Execute(context.Background(), []ToolRequest{read("a.txt")})

	if len(got) != 1 {
		t.Fatalf("Execute() returned %d results, want 1", len(got))
	}
	r := got[0]
	if r.ToolName != "read_file" || r.Result != "read_file:a.txt" || !r.Success || r.Index != 0 {
		t.Errorf("unexpected result %+v", r)
	}
	if r.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", r.Duration)
	}
	if delta := testutil.ToFloat64(schedulerBatchesTotal.WithLabelValues("single")) - before; delta != 1 {
		t.Errorf("single batch counter delta = %v, want 1", delta)
	}
}

func TestExecute_ResultOrder(t *testing.T) {
	// Later indices finish first; output must still follow spawn order.
	exec := &mockExec{fn: func(_ context.Context, name string, args map[string]any) string {
		if p, _ := args["path"].(string); p == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		return name + ":" + args["path"].(string)
	}}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	requests := []ToolRequest{read("slow"), read("b"), read("c")}
	got := s.Execute(context.Background(), requests)

	want := []string{"read_file:slow", "read_file:b", "read_file:c"}
	for i, r := range got {
		if r.Result != want[i] || r.Index != i {
			t.Errorf("result %d = %+v, want %q at index %d", i, r, want[i], i)
		}
	}
}

func TestExecute_GroupOrder(t *testing.T) {
	exec := &mockExec{}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	// Groups: [0, 2], [1]
	requests := []ToolRequest{shell("ls"), shell("pwd"), read("a")}
	got := s.Execute(context.Background(), requests)

	if len(got) != 3 {
		t.Fatalf("Execute() returned %d results, want 3", len(got))
	}
	wantIdx := []int{0, 2, 1}
	for i, r := range got {
		if r.Index != wantIdx[i] {
			t.Errorf("result %d index = %d, want %d", i, r.Index, wantIdx[i])
		}
		if r.ToolName != requests[r.Index].ToolName {
			t.Errorf("result %d tool = %q, want %q", i, r.ToolName, requests[r.Index].ToolName)
		}
	}

	// The second group's shell runs only after the first group completes.
	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.calls[len(exec.calls)-1] != "execute_shell" {
		t.Errorf("call order = %v, want the second shell last", exec.calls)
	}
}

func TestExecute_ExclusiveContext(t *testing.T) {
	exec := &mockExec{}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	requests := make([]ToolRequest, 8)
	for i := range requests {
		requests[i] = read(string(rune('a' + i)))
	}
	got := s.Execute(context.Background(), requests)

	if len(got) != len(requests) {
		t.Fatalf("Execute() returned %d results, want %d", len(got), len(requests))
	}
	if peak := exec.maxActive.Load(); peak != 1 {
		t.Errorf("max concurrent ExecuteTool calls = %d, want 1", peak)
	}
}

func TestExecute_FailureMarkers(t *testing.T) {
	exec := &mockExec{fn: func(_ context.Context, name string, args map[string]any) string {
		return args["out"].(string)
	}}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	requests := []ToolRequest{
		req("read_file", map[string]any{"out": "fine"}),
		req("read_file", map[string]any{"out": "Error: no such file"}),
		req("read_file", map[string]any{"out": "❌ exit 1"}),
		req("read_file", map[string]any{"out": "no Error here"}),
	}
	got := s.Execute(context.Background(), requests)

	want := []bool{true, false, false, true}
	for i, r := range got {
		if r.Success != want[i] {
			t.Errorf("result %d (%q) Success = %v, want %v", i, r.Result, r.Success, want[i])
		}
		if r.ToolName != "read_file" {
			t.Errorf("failed tool calls keep their name, got %q", r.ToolName)
		}
	}
}

func TestExecute_CustomFailureMarkers(t *testing.T) {
	exec := &mockExec{fn: func(context.Context, string, map[string]any) string { return "FAIL: boom" }}
	s := newTestScheduler(t, exec, SchedulerOptions{FailureMarkers: []string{"FAIL"}})

	got := s.Execute(context.Background(), []ToolRequest{read("a")})
	if got[0].Success {
		t.Error("custom failure marker should mark the result failed")
	}
}

func TestExecute_PanicContained(t *testing.T) {
	exec := &mockExec{fn: func(_ context.Context, name string, args map[string]any) string {
		if args["path"] == "boom" {
			panic("tool exploded")
		}
		return "ok"
	}}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	before := testutil.ToFloat64(schedulerTasksTotal.WithLabelValues("panic"))
	requests := []ToolRequest{read("a"), read("boom"), read("c"), shell("ls")}
	got := s.Execute(context.Background(), requests)

	if len(got) != 4 {
		t.Fatalf("Execute() returned %d results, want 4", len(got))
	}
	p := got[1]
	if p.ToolName != UnknownTool || p.Success || p.Duration != 0 || p.Index != 1 {
		t.Errorf("panicking task result = %+v, want synthetic failure", p)
	}
	if !strings.HasPrefix(p.Result, "Error") || !strings.Contains(p.Result, "tool exploded") {
		t.Errorf("synthetic result text = %q", p.Result)
	}
	for _, i := range []int{0, 2, 3} {
		if !got[i].Success {
			t.Errorf("sibling %d should succeed, got %+v", i, got[i])
		}
	}
	if delta := testutil.ToFloat64(schedulerTasksTotal.WithLabelValues("panic")) - before; delta != 1 {
		t.Errorf("panic counter delta = %v, want 1", delta)
	}

	// The guard was released: another batch still runs.
	if again := s.Execute(context.Background(), []ToolRequest{read("a")}); !again[0].Success {
		t.Errorf("scheduler unusable after panic: %+v", again[0])
	}
}

func TestExecute_SinglePanicContained(t *testing.T) {
	exec := &mockExec{fn: func(context.Context, string, map[string]any) string { panic("solo") }}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	got := s.Execute(context.Background(), []ToolRequest{read("a")})
	if len(got) != 1 || got[0].Success || got[0].ToolName != UnknownTool {
		t.Errorf("Execute() = %+v, want one synthetic failure", got)
	}
}

func TestExecute_TaskTimeout(t *testing.T) {
	release := make(chan struct{})
	exec := &mockExec{fn: func(ctx context.Context, name string, args map[string]any) string {
		if args["path"] == "hang" {
			<-release // ignores ctx
			return "late"
		}
		return "ok"
	}}
	s := newTestScheduler(t, exec, SchedulerOptions{TaskTimeout: 50 * time.Millisecond})
	defer close(release)

	start := time.Now()
	got := s.Execute(context.Background(), []ToolRequest{read("hang"), read("b")})
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("Execute() took %v; a hung call must not block the batch", elapsed)
	}
	if len(got) != 2 {
		t.Fatalf("Execute() returned %d results, want 2", len(got))
	}
	for _, r := range got {
		if r.Success {
			continue
		}
		if r.ToolName != UnknownTool || !strings.Contains(r.Result, "timed out") {
			t.Errorf("timed out task result = %+v", r)
		}
	}

	// If "hang" got the guard first, both tasks time out (the sibling waits
	// on the guard). If "b" ran first, only "hang" fails. Either way the
	// hung call never overlapped with another call.
	if got[0].Success {
		t.Errorf("hung task should fail, got %+v", got[0])
	}
	if peak := exec.maxActive.Load(); peak != 1 {
		t.Errorf("max concurrent calls = %d, want 1", peak)
	}
}

func TestExecute_ContextHonouredByTool(t *testing.T) {
	exec := &mockExec{fn: func(ctx context.Context, _ string, _ map[string]any) string {
		<-ctx.Done()
		return "Error: " + ctx.Err().Error()
	}}
	s := newTestScheduler(t, exec, SchedulerOptions{TaskTimeout: 20 * time.Millisecond})

	got := s.Execute(context.Background(), []ToolRequest{read("a")})
	if got[0].Success {
		t.Errorf("expected failure, got %+v", got[0])
	}
}

func TestExecute_ParentCancelled(t *testing.T) {
	exec := &mockExec{}
	s := newTestScheduler(t, exec, SchedulerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := s.Execute(ctx, []ToolRequest{read("a"), read("b"), shell("ls")})
	if len(got) != 3 {
		t.Fatalf("Execute() returned %d results, want 3", len(got))
	}
	for _, r := range got {
		if r.Success || r.ToolName != UnknownTool || !strings.Contains(r.Result, "cancelled") {
			t.Errorf("result under cancelled ctx = %+v, want synthetic cancellation", r)
		}
	}
}

func TestExecute_Progress(t *testing.T) {
	t.Run("events delivered", func(t *testing.T) {
		sink := make(chan ProgressUpdate, 10)
		s := newTestScheduler(t, &mockExec{}, SchedulerOptions{Progress: sink})

		s.Execute(context.Background(), []ToolRequest{read("a"), git("status")})
		close(sink)

		tools := map[string]bool{}
		for u := range sink {
			if u.Stage != StageExecutingTool {
				t.Errorf("Stage = %v, want executing_tool", u.Stage)
			}
			if !strings.Contains(u.Message, u.ToolName) {
				t.Errorf("Message %q should name %q", u.Message, u.ToolName)
			}
			tools[u.ToolName] = true
		}
		if !tools["read_file"] || !tools["git"] {
			t.Errorf("missing progress events, got %v", tools)
		}
	})

	t.Run("full sink does not block", func(t *testing.T) {
		sink := make(chan ProgressUpdate) // unbuffered, nobody reading
		s := newTestScheduler(t, &mockExec{}, SchedulerOptions{Progress: sink, TaskTimeout: time.Second})

		got := s.Execute(context.Background(), []ToolRequest{read("a"), read("b")})
		for _, r := range got {
			if !r.Success {
				t.Errorf("full sink should not fail tasks: %+v", r)
			}
		}
	})

	t.Run("closed sink tolerated", func(t *testing.T) {
		sink := make(chan ProgressUpdate, 1)
		close(sink)
		s := newTestScheduler(t, &mockExec{}, SchedulerOptions{Progress: sink})

		got := s.Execute(context.Background(), []ToolRequest{read("a"), read("b")})
		for _, r := range got {
			if !r.Success {
				t.Errorf("closed sink should not fail tasks: %+v", r)
			}
		}
	})
}

func TestExecute_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))

	s := newTestScheduler(t, &mockExec{}, SchedulerOptions{})
	s.Execute(context.Background(), []ToolRequest{read("a"), read("b")})

	var batch, tasks int
	for _, span := range exporter.GetSpans() {
		switch span.Name {
		case "parallel.Scheduler.Execute":
			batch++
		case "parallel.Scheduler.task":
			tasks++
		}
	}
	if batch != 1 || tasks != 2 {
		t.Errorf("spans: batch=%d tasks=%d, want 1 and 2", batch, tasks)
	}
}

func TestScheduler_Groups(t *testing.T) {
	s := newTestScheduler(t, &mockExec{}, SchedulerOptions{Classes: ToolClasses{Shell: []string{"bash"}}})
	got := s.Groups([]ToolRequest{req("bash", nil), req("bash", nil)})
	if len(got) != 2 {
		t.Errorf("Groups() = %v, want two groups", got)
	}
}
