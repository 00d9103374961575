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
	"os"
	"path/filepath"
	"strings"
)

func (t *Toolbox) readFile(args map[string]any) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return missingArg("path")
	}
	full := t.resolve(path)

	data, err := os.ReadFile(full)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > t.maxLines {
		return fmt.Sprintf("File: %s (%d lines, showing %d)\n\n%s",
			full, len(lines), t.maxLines, truncateLines(lines, t.maxLines))
	}
	return fmt.Sprintf("File: %s\n\n%s", full, data)
}

func (t *Toolbox) writeFile(args map[string]any) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return missingArg("path")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return missingArg("content")
	}
	full := t.resolve(path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if boolArg(args, "append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}
	n, err := f.WriteString(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}
	return fmt.Sprintf("✅ File written: %s (%d bytes)", full, n)
}

type dirEntry struct {
	rel   string
	isDir bool
	size  int64
}

func (t *Toolbox) listDirectory(args map[string]any) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		path = "."
	}
	full := t.resolve(path)

	info, err := os.Stat(full)
	if err != nil {
		return fmt.Sprintf("Error listing directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error listing directory: %s is not a directory", full)
	}

	var entries []dirEntry
	if err := walkDir(full, "", 0, boolArg(args, "recursive"), &entries); err != nil {
		return fmt.Sprintf("Error listing directory: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Directory listing (%d entries):\n\n", len(entries))
	for _, e := range entries {
		if e.isDir {
			fmt.Fprintf(&b, "📁 %s\n", e.rel)
		} else {
			fmt.Fprintf(&b, "📄 %s (%d bytes)\n", e.rel, e.size)
		}
	}
	return b.String()
}

// walkDir lists dir in name order, descending into subdirectories up to
// maxListDepth when recursive is set.
func walkDir(dir, prefix string, depth int, recursive bool, out *[]dirEntry) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, item := range items {
		rel := item.Name()
		if prefix != "" {
			rel = prefix + "/" + rel
		}
		e := dirEntry{rel: rel, isDir: item.IsDir()}
		if !e.isDir {
			if fi, err := item.Info(); err == nil {
				e.size = fi.Size()
			}
		}
		*out = append(*out, e)

		if recursive && e.isDir && depth < maxListDepth {
			if err := walkDir(filepath.Join(dir, item.Name()), rel, depth+1, recursive, out); err != nil {
				return err
			}
		}
	}
	return nil
}
