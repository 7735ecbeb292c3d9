package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AltairaLabs/connect-flowsync/internal/flowsync"
)

const serviceName = "flowsync"

// tracingShutdown flushes and shuts down the trace exporter.
type tracingShutdown func(context.Context) error

// setupTracing installs a global tracer provider for the configured
// exporter. With no exporter the run's spans stay no-ops.
func setupTracing(ctx context.Context, cfg flowsync.TracingConfig, w io.Writer, log *slog.Logger) (tracingShutdown, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "", flowsync.TraceExporterNone:
		log.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	case flowsync.TraceExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case flowsync.TraceExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", flowsync.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	log.Info("tracing enabled", "exporter", cfg.Exporter, "endpoint", cfg.Endpoint)
	return provider.Shutdown, nil
}
