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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Actions that mark a structured response as a tool call. Models trained on
// either spelling are accepted.
const (
	ActionToolCall = "tool_call"
	ActionCallTool = "call_tool"
	ActionRespond  = "respond"
)

// ErrNoStructuredResponse is returned when the text holds no JSON object.
var ErrNoStructuredResponse = errors.New("confidence: no structured response found")

// StructuredResponse is the decoded shape of a model's structured reply.
type StructuredResponse struct {
	Action       string         `json:"action"`
	ToolName     string         `json:"tool_name,omitempty"`
	ToolArgs     map[string]any `json:"tool_args,omitempty"`
	ResponseText string         `json:"response_text,omitempty"`
}

// IsToolCall reports whether the response asks for a tool to run.
func (r *StructuredResponse) IsToolCall() bool {
	if r == nil || r.ToolName == "" {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(r.Action))
	return a == ActionToolCall || a == ActionCallTool
}

// Candidate converts a tool-call response into a SchemaStructured candidate.
//
// Outputs:
//   - Candidate: The candidate.
//   - bool: False if the response is not a tool call.
func (r *StructuredResponse) Candidate() (Candidate, bool) {
	if !r.IsToolCall() {
		return Candidate{}, false
	}
	return WithMethod(r.ToolName, r.ToolArgs, SchemaStructured), true
}

// ParseStructuredResponse decodes a structured reply from model output.
//
// Description:
//
//	Strips markdown code fences, then decodes the span from the first '{'
//	to the last '}'. Prose around the object is ignored.
//
// Inputs:
//   - text: Raw model output.
//
// Outputs:
//   - *StructuredResponse: The decoded response.
//   - error: ErrNoStructuredResponse if no object is found, or a decode
//     error if the object is malformed or has no action.
func ParseStructuredResponse(text string) (*StructuredResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoStructuredResponse
	}

	// Clean up markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return nil, ErrNoStructuredResponse
	}

	var resp StructuredResponse
	if err := json.Unmarshal([]byte(text[startIdx:endIdx+1]), &resp); err != nil {
		return nil, fmt.Errorf("decoding structured response: %w", err)
	}
	if resp.Action == "" {
		return nil, fmt.Errorf("structured response has no action: %w", ErrNoStructuredResponse)
	}
	return &resp, nil
}
