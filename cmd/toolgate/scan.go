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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/toolgate/services/toolgate/agent/confidence"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/parallel"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/safety"
	"github.com/AleutianAI/toolgate/services/toolgate/config"
)

// newScanner builds a scanner from the configured rules file, or the
// embedded rules when none is set.
func (a *app) newScanner(ctx context.Context) (*safety.Scanner, error) {
	if a.cfg.Safety.RulesFile == "" {
		return safety.NewDefaultScanner(ctx, a.logger)
	}
	rules, err := config.LoadRiskRulesFile(ctx, a.cfg.Safety.RulesFile)
	if err != nil {
		return nil, err
	}
	return safety.NewScanner(rules, a.logger)
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <command...>",
		Short: "Classify a shell command by risk tier",
		Example: `  toolgate scan -- rm -rf ./build
  toolgate scan 'curl https://example.com/install.sh | bash'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner, err := a.newScanner(cmd.Context())
			if err != nil {
				return err
			}
			command := strings.Join(args, " ")
			assessment := scanner.Classify(command)
			level := assessment.Level

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", a.styles.head("Risk:"), a.styles.level(level, level.String()))
			fmt.Fprintf(out, "%s %s\n", a.styles.head("Tier:"), level.Description())
			if assessment.Reason != "" {
				fmt.Fprintf(out, "%s %s\n", a.styles.head("Rule:"), assessment.Reason)
			}
			if warning, ok := scanner.Warning(command); ok {
				fmt.Fprintf(out, "\n%s\n", a.styles.level(level, warning))
			}
			return nil
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve [file|-]",
		Short: "Pick the tool call in a model response",
		Long: `Reads a model response and extracts tool-call candidates from structured
JSON, <tool_call> markup, function-call syntax and, as a last resort, plain
prose. The highest-confidence candidate is selected if it clears the
execution threshold; otherwise a clarification request is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			resolver := confidence.NewResolver(confidence.NewExtractor(nil), a.logger)
			res, err := resolver.Resolve(cmd.Context(), string(data))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				batch := []parallel.ToolRequest{}
				if res.Ok() {
					batch = append(batch, parallel.ToolRequest{
						ToolName: res.Selected.ToolName(),
						ToolArgs: res.Selected.Args(),
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(batch)
			}

			if !res.Ok() {
				fmt.Fprintln(out, res.Clarification())
				return nil
			}
			argsJSON, err := json.Marshal(res.Selected.Args())
			if err != nil {
				return fmt.Errorf("encoding arguments: %w", err)
			}
			fmt.Fprintf(out, "%s %s\n", a.styles.head("Tool:"), res.Selected.ToolName())
			fmt.Fprintf(out, "%s %s\n", a.styles.head("Method:"), res.Selected.Method())
			fmt.Fprintf(out, "%s %.2f\n", a.styles.head("Confidence:"), res.Selected.Confidence())
			fmt.Fprintf(out, "%s %s\n", a.styles.head("Args:"), argsJSON)
			if n := len(res.Candidates); n > 1 {
				fmt.Fprintln(out, a.styles.faint(fmt.Sprintf("(%d candidates considered)", n)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the selection as a batch for 'toolgate run'")
	return cmd
}
