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
	"fmt"
	"time"
)

// ProgressStage identifies what a long-running operation is doing.
type ProgressStage int

const (
	StageClassifying ProgressStage = iota
	StageSearchingContext
	StageExecutingTool
	StageGenerating
	StageComplete
	StageFailed
)

// String returns the stage name.
func (s ProgressStage) String() string {
	switch s {
	case StageClassifying:
		return "classifying"
	case StageSearchingContext:
		return "searching_context"
	case StageExecutingTool:
		return "executing_tool"
	case StageGenerating:
		return "generating"
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ProgressUpdate is one event sent to a progress sink.
type ProgressUpdate struct {
	Stage ProgressStage

	// ToolName is set for StageExecutingTool.
	ToolName string

	// Chunks is set for StageSearchingContext.
	Chunks int

	// Error is set for StageFailed.
	Error string

	Message       string
	ElapsedMillis int64
}

// ProgressTracker sends best-effort progress events to a channel.
//
// Description:
//
//	Sends never block: when the channel is full the event is dropped, and
//	a closed channel is tolerated. A nil tracker or a nil channel turns
//	every method into a no-op.
//
// Thread Safety: Safe for concurrent use.
type ProgressTracker struct {
	sink  chan<- ProgressUpdate
	start time.Time
}

// NewProgressTracker creates a tracker whose elapsed time starts now.
func NewProgressTracker(sink chan<- ProgressUpdate) *ProgressTracker {
	return &ProgressTracker{sink: sink, start: time.Now()}
}

// Update sends an event for stage with a custom message.
//
// Outputs:
//
//	bool - True if the event was delivered.
func (p *ProgressTracker) Update(stage ProgressStage, message string) bool {
	return p.send(ProgressUpdate{Stage: stage, Message: message})
}

func (p *ProgressTracker) send(u ProgressUpdate) (sent bool) {
	if p == nil || p.sink == nil {
		return false
	}
	u.ElapsedMillis = time.Since(p.start).Milliseconds()

	// A send on a closed channel panics; the event is simply lost.
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case p.sink <- u:
		return true
	default:
		return false
	}
}

// Classifying reports that the query is being classified.
func (p *ProgressTracker) Classifying() bool {
	return p.send(ProgressUpdate{Stage: StageClassifying, Message: "🔍 Classifying query..."})
}

// SearchingContext reports a context search over chunks items.
func (p *ProgressTracker) SearchingContext(chunks int) bool {
	return p.send(ProgressUpdate{
		Stage:   StageSearchingContext,
		Chunks:  chunks,
		Message: fmt.Sprintf("📊 Searching context (%d chunks)...", chunks),
	})
}

// ExecutingTool reports that a tool is starting.
func (p *ProgressTracker) ExecutingTool(toolName string) bool {
	return p.send(ProgressUpdate{
		Stage:    StageExecutingTool,
		ToolName: toolName,
		Message:  fmt.Sprintf("🔧 Executing %s...", toolName),
	})
}

// Generating reports that a response is being generated.
func (p *ProgressTracker) Generating() bool {
	return p.send(ProgressUpdate{Stage: StageGenerating, Message: "💭 Generating response..."})
}

// Complete reports success.
func (p *ProgressTracker) Complete() bool {
	return p.send(ProgressUpdate{Stage: StageComplete, Message: "✓ Complete"})
}

// Failed reports a failure.
func (p *ProgressTracker) Failed(err string) bool {
	return p.send(ProgressUpdate{
		Stage:   StageFailed,
		Error:   err,
		Message: fmt.Sprintf("❌ Error: %s", err),
	})
}
