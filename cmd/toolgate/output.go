// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/AleutianAI/toolgate/services/toolgate/agent/parallel"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/safety"
)

// maxInputBytes caps batch files and model output read by the CLI.
const maxInputBytes = 10 << 20

// styles renders terminal output. Every method degrades to plain text when
// the destination is not a terminal.
type styles struct {
	enabled bool

	critical lipgloss.Style
	high     lipgloss.Style
	medium   lipgloss.Style
	low      lipgloss.Style
	safe     lipgloss.Style
	heading  lipgloss.Style
	muted    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	enabled := false
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		enabled = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	return styles{
		enabled:  enabled,
		critical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		high:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		medium:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		low:      lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		safe:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		heading:  lipgloss.NewStyle().Bold(true),
		muted:    lipgloss.NewStyle().Faint(true),
	}
}

func (s styles) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

// level colours text by risk tier.
func (s styles) level(l safety.RiskLevel, text string) string {
	switch l {
	case safety.Critical:
		return s.render(s.critical, text)
	case safety.High:
		return s.render(s.high, text)
	case safety.Medium:
		return s.render(s.medium, text)
	case safety.Low:
		return s.render(s.low, text)
	default:
		return s.render(s.safe, text)
	}
}

func (s styles) head(text string) string { return s.render(s.heading, text) }
func (s styles) faint(text string) string { return s.render(s.muted, text) }

// readInput reads a file argument, or stdin when the argument is "-" or absent.
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	var r io.Reader = stdin
	name := "stdin"
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r, name = f, args[0]
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) > maxInputBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, maxInputBytes)
	}
	return data, nil
}

// readBatch decodes a JSON array of tool requests.
func readBatch(stdin io.Reader, args []string) ([]parallel.ToolRequest, error) {
	data, err := readInput(stdin, args)
	if err != nil {
		return nil, err
	}
	var batch []parallel.ToolRequest
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decoding batch: %w", err)
	}
	for i, r := range batch {
		if r.ToolName == "" {
			return nil, fmt.Errorf("batch entry %d: tool_name is required", i)
		}
	}
	return batch, nil
}

// dumpMetrics writes every gathered family in the Prometheus text format.
func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}
