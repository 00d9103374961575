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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/toolgate/services/toolgate/config"
	"github.com/AleutianAI/toolgate/services/toolgate/telemetry"
)

// app holds process-wide state shared by all subcommands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// Flags.
	configPath string
	logLevel   string
	logFormat  string
	trace      bool
	metrics    bool

	// Set by setup.
	cfg             *config.ServiceConfig
	logger          *slog.Logger
	styles          styles
	prompter        prompter
	shutdownTracing telemetry.ShutdownFunc

	// gatherer is dumped by --metrics.
	gatherer prometheus.Gatherer
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		gatherer: prometheus.DefaultGatherer,
	}
}

// execute runs the command line and always flushes telemetry afterwards,
// including when the command failed.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if ferr := a.finish(ctx); ferr != nil {
		err = errors.Join(err, ferr)
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolgate",
		Short: "Resolve, screen and safely execute model tool calls",
		Long: `toolgate turns model output into tool calls and runs them against the
local machine. Shell commands are screened for risk first: critical ones are
refused, high-risk ones need a password, and medium or low ones need a
confirmation. Independent calls in a batch run concurrently.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json (overrides config)")
	pf.BoolVar(&a.trace, "trace", false, "export spans to stderr")
	pf.BoolVar(&a.metrics, "metrics", false, "dump Prometheus metrics to stderr on exit")

	root.AddCommand(
		a.scanCmd(),
		a.resolveCmd(),
		a.runCmd(),
		a.groupsCmd(),
		a.passwdCmd(),
		a.verifyCmd(),
	)
	return root
}

// setup loads configuration and wires logging, tracing and prompts.
func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if a.trace {
		shutdown, err := telemetry.InitTracing(ctx, a.stderr)
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}

	cfg, err := config.Load(ctx, a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg

	logger, err := telemetry.NewLogger(cfg.Logging.Level, cfg.Logging.Format, a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	a.styles = newStyles(a.stdout)
	if a.prompter == nil {
		a.prompter = newHuhPrompter(a.stdin, a.stderr)
	}

	logger.Debug("toolgate configured",
		slog.String("config_file", a.configPath),
		slog.String("profile", cfg.Credential.Profile),
		slog.Bool("trace", a.trace),
	)
	return nil
}

// finish flushes spans and dumps metrics if requested.
func (a *app) finish(ctx context.Context) error {
	var errs []error
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
		a.shutdownTracing = nil
	}
	if a.metrics {
		if err := dumpMetrics(a.stderr, a.gatherer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
