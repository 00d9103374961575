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
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/toolgate/services/toolgate/agent/parallel"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/safety"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/synthesis"
	"github.com/AleutianAI/toolgate/services/toolgate/agent/tools"
)

func (a *app) toolClasses() parallel.ToolClasses {
	return parallel.ToolClasses{
		Shell: a.cfg.Tools.ShellTools,
		Write: a.cfg.Tools.WriteTools,
		VCS:   a.cfg.Tools.VCSTools,
	}
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [batch.json|-]",
		Short: "Execute a batch of tool requests",
		Long: `Reads a JSON array of {"tool_name": ..., "tool_args": {...}} objects and
executes it against the local toolbox. Shell commands and git argument
lists pass the risk gate first. Independent requests run concurrently; the combined report is
printed to stdout and progress to stderr.`,
		Example: `  echo '[{"tool_name":"list_directory","tool_args":{"path":"."}},
         {"tool_name":"git","tool_args":{"args":["status"]}}]' | toolgate run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			batch, err := readBatch(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			toolbox, err := tools.New(tools.Options{
				WorkingDir:     a.cfg.Tools.WorkingDir,
				ShellTimeout:   a.cfg.Tools.ShellTimeout,
				MaxOutputLines: a.cfg.Tools.MaxOutputLines,
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}
			scanner, err := a.newScanner(ctx)
			if err != nil {
				return err
			}
			checker, closeStore, err := a.credentialGate()
			if err != nil {
				return err
			}
			defer closeStore()

			gate, err := safety.NewGate(toolbox, scanner, a.prompter, checker, safety.GateOptions{
				ShellTools:     a.cfg.Tools.ShellTools,
				VCSTools:       a.cfg.Tools.VCSTools,
				AutoApproveLow: a.cfg.Safety.AutoApproveLow,
				Auditor:        safety.NewGateAuditor(a.logger, a.cfg.Safety.AuditEnabled, a.cfg.Safety.AuditHashContent),
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}

			progress := make(chan parallel.ProgressUpdate, a.cfg.Scheduler.ProgressBuffer)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.printProgress(cmd.ErrOrStderr(), progress)
			}()

			scheduler, err := parallel.NewScheduler(gate, parallel.SchedulerOptions{
				TaskTimeout:    a.cfg.Scheduler.TaskTimeout,
				Classes:        a.toolClasses(),
				FailureMarkers: a.cfg.Scheduler.FailureMarkers,
				Progress:       progress,
				Logger:         a.logger,
			})
			if err != nil {
				close(progress)
				wg.Wait()
				return err
			}

			tracker := parallel.NewProgressTracker(progress)
			results := scheduler.Execute(ctx, batch)
			tracker.Complete()
			close(progress)
			wg.Wait()

			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			a.logger.Info("batch finished",
				slog.Int("requests", len(batch)),
				slog.Int("failed", failed),
			)

			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(synthesis.Combine(results), "\n"))
			return nil
		},
	}
}

func (a *app) printProgress(w io.Writer, updates <-chan parallel.ProgressUpdate) {
	for u := range updates {
		fmt.Fprintln(w, a.styles.faint(fmt.Sprintf("[%6d ms] %s", u.ElapsedMillis, u.Message)))
	}
}

func (a *app) groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups [batch.json|-]",
		Short: "Show how a batch would be split into concurrent groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			groups := a.toolClasses().AnalyzeIndependence(batch)
			if len(groups) == 0 {
				fmt.Fprintln(out, "Empty batch.")
				return nil
			}
			for i, g := range groups {
				members := make([]string, len(g))
				for j, idx := range g {
					members[j] = fmt.Sprintf("[%d] %s", idx, batch[idx].ToolName)
				}
				fmt.Fprintf(out, "%s %s\n", a.styles.head(fmt.Sprintf("Group %d:", i+1)), strings.Join(members, ", "))
			}
			return nil
		},
	}
}
