// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synthesis merges the results of a tool batch into one report.
package synthesis

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/toolgate/services/toolgate/agent/parallel"
)

const (
	// EmptyMessage is returned when no tool ran.
	EmptyMessage = "No tools were executed."

	// MaxPreviewRunes caps each entry's text in a multi-result report.
	MaxPreviewRunes = 500
)

// -----------------------------------------------------------------------------
// Result Combination
// -----------------------------------------------------------------------------

// Combine formats batch results for display.
//
// Description:
//
//	An empty batch yields EmptyMessage. A single result is returned as-is,
//	with no header or fence. Several results get a count header and one
//	numbered entry each, in the order given: a ✅ or ❌ marker, the tool
//	name and the duration in milliseconds, then the text in a code fence.
//	Text longer than MaxPreviewRunes is cut and annotated with the number
//	of characters dropped.
//
// Inputs:
//
//	results - Scheduler output, in the order it was returned.
//
// Outputs:
//
//	string - The report.
//
// Thread Safety: This function is safe for concurrent use.
func Combine(results []parallel.ToolResult) string {
	switch len(results) {
	case 0:
		return EmptyMessage
	case 1:
		return results[0].Result
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Results from %d tools:\n\n", len(results))

	truncated := 0
	for i, r := range results {
		status := "✅"
		if !r.Success {
			status = "❌"
		}
		fmt.Fprintf(&b, "%d. %s %s (%d ms)\n", i+1, status, r.ToolName, r.Duration.Milliseconds())

		preview, cut := truncate(r.Result, MaxPreviewRunes)
		if cut > 0 {
			truncated++
		}
		b.WriteString("```\n")
		b.WriteString(preview)
		b.WriteString("\n```\n\n")
	}

	slog.Debug("combined tool results",
		slog.Int("results", len(results)),
		slog.Int("truncated", truncated),
	)
	return b.String()
}

// truncate cuts text to limit runes and appends a note. It returns the
// number of runes dropped.
func truncate(text string, limit int) (string, int) {
	n := utf8.RuneCountInString(text)
	if n <= limit {
		return text, 0
	}

	// Byte offset of the rune at position limit.
	cutAt := len(text)
	seen := 0
	for i := range text {
		if seen == limit {
			cutAt = i
			break
		}
		seen++
	}
	dropped := n - limit
	return fmt.Sprintf("%s...\n[truncated %d characters]", text[:cutAt], dropped), dropped
}
