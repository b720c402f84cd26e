// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the process tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names reported by Init.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects the span exporter.
type Config struct {
	ServiceName string

	// Stdout writes spans as JSON to Writer (os.Stderr when nil).
	Stdout bool
	Writer io.Writer

	// OTLPEndpoint enables the OTLP gRPC exporter. It may be host:port or
	// a URL.
	OTLPEndpoint string
	Insecure     bool
}

// ConfigFromEnv reads ASSIST_TRACE_STDOUT, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_EXPORTER_OTLP_INSECURE.
func ConfigFromEnv(serviceName string) Config {
	return Config{
		ServiceName:  serviceName,
		Stdout:       envBool("ASSIST_TRACE_STDOUT"),
		OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE"),
	}
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// Init installs a global tracer provider and the W3C propagators.
//
// Description:
//
//	Stdout wins over OTLP when both are set. With neither, a no-op provider
//	is installed so instrumentation costs nothing.
//
// Outputs:
//   - ShutdownFunc: Never nil.
//   - string: The exporter in use (ExporterNone, ExporterStdout, ExporterOTLP).
//   - error: Non-nil if the exporter cannot be created.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, string, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var (
		exporter sdktrace.SpanExporter
		name     string
		err      error
	)
	switch {
	case cfg.Stdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
		name = ExporterStdout
	case cfg.OTLPEndpoint != "":
		var opts []otlptracegrpc.Option
		if strings.Contains(cfg.OTLPEndpoint, "://") {
			opts = append(opts, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint))
		} else {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		name = ExporterOTLP
	default:
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, ExporterNone, nil
	}
	if err != nil {
		return func(context.Context) error { return nil }, name, fmt.Errorf("telemetry: creating %s exporter: %w", name, err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "projectassist"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, name, nil
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
