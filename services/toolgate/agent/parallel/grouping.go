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

// ToolClasses names the tools that take part in conflict rules.
type ToolClasses struct {
	// Shell tools run commands in a shared session.
	Shell []string

	// Write tools modify the file named by their "path" argument.
	Write []string

	// VCS tools operate on the shared repository state.
	VCS []string
}

// DefaultToolClasses returns the built-in classification.
func DefaultToolClasses() ToolClasses {
	return ToolClasses{
		Shell: []string{"execute_shell", "shell_executor"},
		Write: []string{"write_file"},
		VCS:   []string{"git"},
	}
}

// classifier is the lookup form of ToolClasses.
type classifier struct {
	shell map[string]bool
	write map[string]bool
	vcs   map[string]bool
}

func newClassifier(c ToolClasses) classifier {
	return classifier{
		shell: toSet(c.Shell),
		write: toSet(c.Write),
		vcs:   toSet(c.VCS),
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

var defaultClassifier = newClassifier(DefaultToolClasses())

// canRunInParallel applies the conflict rules in order; the first match decides.
func (c classifier) canRunInParallel(a, b ToolRequest) bool {
	if c.shell[a.ToolName] && c.shell[b.ToolName] {
		return false
	}
	if c.write[a.ToolName] && c.write[b.ToolName] {
		pa, okA := a.ToolArgs["path"].(string)
		pb, okB := b.ToolArgs["path"].(string)
		if okA && okB && pa == pb {
			return false
		}
	}
	if c.vcs[a.ToolName] && c.vcs[b.ToolName] {
		return false
	}
	return true
}

// analyze groups requests in one left-to-right pass.
func (c classifier) analyze(requests []ToolRequest) [][]int {
	groups := make([][]int, 0, len(requests))
	assigned := make([]bool, len(requests))

	for i := range requests {
		if assigned[i] {
			continue
		}
		group := []int{i}
		assigned[i] = true

		for j := i + 1; j < len(requests); j++ {
			if assigned[j] {
				continue
			}
			// Only the anchor is compared; earlier members are not re-checked.
			if c.canRunInParallel(requests[i], requests[j]) {
				group = append(group, j)
				assigned[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// CanRunInParallel reports whether two requests may share a group under
// the default tool classes.
//
// Description:
//
//	Rules, first match wins:
//	  1. Both are shell tools: conflict.
//	  2. Both are write tools with the same "path": conflict.
//	  3. Both are version-control tools: conflict.
//	  4. Otherwise: independent.
func CanRunInParallel(a, b ToolRequest) bool {
	return defaultClassifier.canRunInParallel(a, b)
}

// CanRunInParallel reports whether two requests may share a group under
// these classes.
func (c ToolClasses) CanRunInParallel(a, b ToolRequest) bool {
	return newClassifier(c).canRunInParallel(a, b)
}

// AnalyzeIndependence partitions requests into ordered execution groups
// using the default tool classes.
//
// Description:
//
//	Walks the requests once. Each unassigned request opens a group as its
//	anchor and pulls in every later unassigned request that does not
//	conflict with the anchor. Members are compared with the anchor only,
//	so two non-anchor members of one group may conflict with each other.
//
// Outputs:
//
//	[][]int - Groups of indices into requests. Every index appears once.
func AnalyzeIndependence(requests []ToolRequest) [][]int {
	return defaultClassifier.analyze(requests)
}

// AnalyzeIndependence partitions requests using these classes.
func (c ToolClasses) AnalyzeIndependence(requests []ToolRequest) [][]int {
	return newClassifier(c).analyze(requests)
}
