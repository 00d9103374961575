// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up logging and tracing for toolgate binaries.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName is reported as service.name on exported spans.
const ServiceName = "toolgate"

// ShutdownFunc flushes and stops a telemetry component.
type ShutdownFunc func(ctx context.Context) error

// ParseLevel maps a level name to a slog.Level.
//
// Inputs:
//
//	name - One of debug, info, warn, warning or error. Case-insensitive.
//
// Outputs:
//
//	slog.Level - The level.
//	error - Non-nil for an unknown name.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("telemetry: unknown log level %q", name)
	}
}

// NewLogger builds a slog.Logger writing to w.
//
// Inputs:
//
//	level - Level name, see ParseLevel.
//	format - "json" or "text". Empty means text.
//	w - Destination for log records.
//
// Outputs:
//
//	*slog.Logger - The logger.
//	error - Non-nil for an unknown level or format.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("telemetry: unknown log format %q", format)
	}
}

// InitTracing installs a global tracer provider that exports spans to w.
//
// Description:
//
//	Spans are pretty-printed JSON from the stdout exporter. The W3C
//	TraceContext and Baggage propagators are installed as well. Callers
//	must invoke the returned ShutdownFunc to flush pending spans.
//
// Inputs:
//
//	ctx - Reserved for exporters that dial out.
//	w - Destination for exported spans.
//
// Outputs:
//
//	ShutdownFunc - Flushes and shuts the provider down.
//	error - Non-nil if the exporter cannot be created.
func InitTracing(ctx context.Context, w io.Writer) (ShutdownFunc, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
