// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parallel schedules a batch of tool requests into conflict-free
// groups and executes each group concurrently against one shared
// execution context.
//
// Groups run strictly in order. Inside a group every request gets its own
// goroutine, but the execution context itself is exclusive, so tool calls
// never overlap; the concurrency covers dispatch and bookkeeping. A task
// that panics, is cancelled or times out yields a synthetic failed result
// and never affects its siblings.
package parallel

import (
	"context"
	"time"
)

// ExecutionContext performs tool calls.
//
// Description:
//
//	Errors are reported in the returned text, which starts with a failure
//	marker ("Error" or "❌") when the call failed. Implementations may
//	keep mutable state (such as a working directory); the scheduler never
//	runs two calls against the same context at once.
//
// Thread Safety: Called from many goroutines, one at a time.
type ExecutionContext interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) string
}

// ToolRequest is one resolved tool invocation.
type ToolRequest struct {
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args"`
}

// ToolResult is the outcome of one request.
type ToolResult struct {
	// Index is the request's position in the submitted batch.
	Index int `json:"index"`

	// ToolName is the executed tool, or UnknownTool for a synthetic result.
	ToolName string `json:"tool_name"`

	// Result is the tool's output text.
	Result string `json:"result"`

	// Duration is the elapsed time from task start. Zero for synthetic results.
	Duration time.Duration `json:"duration"`

	// Success is true when Result does not begin with a failure marker.
	Success bool `json:"success"`
}

// UnknownTool is the tool name carried by synthetic failure results.
const UnknownTool = "unknown"

// DefaultFailureMarkers are the result prefixes that mark a failed call.
var DefaultFailureMarkers = []string{"Error", "❌"}
