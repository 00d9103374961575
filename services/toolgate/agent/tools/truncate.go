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
	"fmt"
	"strings"
)

// truncateOutput keeps at most maxLines lines of text, head and tail.
func truncateOutput(text string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= maxLines {
		return text
	}
	return truncateLines(lines, maxLines)
}

// truncateLines keeps the first 60% and the last 40% of maxLines lines and
// replaces the middle with a marker naming the omitted count.
func truncateLines(lines []string, maxLines int) string {
	total := len(lines)
	if total <= maxLines {
		return strings.Join(lines, "\n")
	}
	head := maxLines * 3 / 5
	tail := maxLines - head
	omitted := total - head - tail

	var sb strings.Builder
	for _, l := range lines[:head] {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "\n--- %d lines omitted ---\n\n", omitted)
	for _, l := range lines[total-tail:] {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}
