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
	"regexp"
	"strings"
)

// DefaultKnownTools are the tool names recognized in function-call syntax.
var DefaultKnownTools = []string{
	"read_file",
	"write_file",
	"list_directory",
	"execute_shell",
	"shell_executor",
	"git",
	"cd",
}

var (
	markupPattern   = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	callNamePattern = regexp.MustCompile(`\b([a-z_][a-z0-9_]*)\s*\(`)

	nlGitPattern     = regexp.MustCompile(`\bgit\s+(status|diff|log|branch)\b`)
	nlReadPattern    = regexp.MustCompile(`\b(read|show|open|cat|print)\s`)
	nlListPattern    = regexp.MustCompile(`\b(list|ls|files|directory|folder|tree)\b|what'?s in|what is in`)
	nlExecPattern    = regexp.MustCompile(`\b(run|exec|execute|build)\b|\b(cargo|npm|make|yarn|pnpm)\b`)
	nlFilePattern    = regexp.MustCompile(`[\w./\-]+\.\w+`)
	nlDirPattern     = regexp.MustCompile(`\b(?:in|from|folder|directory)\s+["']?([^\s"']+)`)
	nlQuotedPattern  = regexp.MustCompile("[\"`']([^\"`']+)[\"`']")
	nlCommandPattern = regexp.MustCompile(`\b(?:cargo|npm|make|go|yarn|pnpm)\b[^.,;!?\n]*`)
)

// Extractor turns raw model output into tool-call candidates.
//
// Description:
//
//	Runs four layers, each tagged with its ParseMethod:
//	  1. A JSON structured response (bare or fenced): SchemaStructured.
//	  2. <tool_call>{"name":..,"arguments":{..}}</tool_call>: MarkupParsed.
//	  3. known_tool({json}) function-call syntax: PatternMatched.
//	  4. Keyword inference from prose: NaturalLanguageInferred.
//
//	Layers 1-3 all contribute. Layer 4 runs only when they found nothing.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Extractor struct {
	knownTools map[string]bool
}

// NewExtractor creates an Extractor. An empty list uses DefaultKnownTools.
func NewExtractor(knownTools []string) *Extractor {
	if len(knownTools) == 0 {
		knownTools = DefaultKnownTools
	}
	known := make(map[string]bool, len(knownTools))
	for _, t := range knownTools {
		known[t] = true
	}
	return &Extractor{knownTools: known}
}

// Extract returns every candidate found in output, in layer order.
func (e *Extractor) Extract(output string) []Candidate {
	var candidates []Candidate

	if resp, err := ParseStructuredResponse(output); err == nil {
		if c, ok := resp.Candidate(); ok {
			candidates = append(candidates, c)
		}
	}
	candidates = append(candidates, e.extractMarkup(output)...)
	candidates = append(candidates, e.extractCalls(output)...)

	if len(candidates) == 0 {
		if c, ok := inferFromProse(output); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

type markupCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (e *Extractor) extractMarkup(output string) []Candidate {
	var out []Candidate
	for _, m := range markupPattern.FindAllStringSubmatch(output, -1) {
		var call markupCall
		if err := json.Unmarshal([]byte(m[1]), &call); err != nil || call.Name == "" {
			continue
		}
		args, ok := decodeArguments(call.Arguments)
		if !ok {
			continue
		}
		out = append(out, WithMethod(call.Name, args, MarkupParsed))
	}
	return out
}

// decodeArguments accepts an object or a JSON string holding an object.
func decodeArguments(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, true
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(encoded), &args); err != nil {
		return nil, false
	}
	return args, true
}

func (e *Extractor) extractCalls(output string) []Candidate {
	var out []Candidate
	for _, loc := range callNamePattern.FindAllStringSubmatchIndex(output, -1) {
		name := output[loc[2]:loc[3]]
		if !e.knownTools[name] {
			continue
		}
		rest := strings.TrimLeft(output[loc[1]:], " \t\r\n")
		if !strings.HasPrefix(rest, "{") {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(rest))
		var args map[string]any
		if err := dec.Decode(&args); err != nil {
			continue
		}
		tail := strings.TrimLeft(rest[dec.InputOffset():], " \t\r\n")
		if !strings.HasPrefix(tail, ")") {
			continue
		}
		out = append(out, WithMethod(name, args, PatternMatched))
	}
	return out
}

// inferFromProse guesses a tool call from keywords.
func inferFromProse(output string) (Candidate, bool) {
	lower := strings.ToLower(output)

	if m := nlGitPattern.FindStringSubmatch(lower); m != nil {
		args := []any{m[1]}
		if m[1] == "log" {
			args = []any{"log", "--oneline", "-10"}
		}
		return WithMethod("git", map[string]any{"args": args}, NaturalLanguageInferred), true
	}

	if nlReadPattern.MatchString(lower) {
		if path := nlFilePattern.FindString(output); path != "" {
			return WithMethod("read_file", map[string]any{"path": path}, NaturalLanguageInferred), true
		}
	}

	if nlListPattern.MatchString(lower) {
		path := "."
		if m := nlDirPattern.FindStringSubmatch(output); m != nil {
			path = m[1]
		}
		return WithMethod("list_directory", map[string]any{"path": path, "recursive": false}, NaturalLanguageInferred), true
	}

	if nlExecPattern.MatchString(lower) {
		if cmd := extractCommand(output); cmd != "" {
			return WithMethod("execute_shell", map[string]any{"command": cmd}, NaturalLanguageInferred), true
		}
	}

	return Candidate{}, false
}

// extractCommand prefers quoted text, then a recognized build-tool phrase.
func extractCommand(output string) string {
	if m := nlQuotedPattern.FindStringSubmatch(output); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := nlCommandPattern.FindString(strings.ToLower(output)); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}
