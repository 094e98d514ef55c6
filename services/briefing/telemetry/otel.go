// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the process-global OTel providers and the
// optional InfluxDB run-event sink.
//
// The Prometheus /metrics endpoint is always on; everything else here
// (OTLP trace export, stdout exporters, Influx) activates only when
// configured, so a bare `briefing serve` stays self-contained.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/Poliscope/services/briefing/config"
)

// serviceName identifies this process in exported telemetry.
const serviceName = "poliscope-briefing"

// ShutdownFunc flushes and stops a provider. Call on process exit.
type ShutdownFunc func(ctx context.Context) error

func newResource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		))
}

// SetupTracing installs the global tracer provider.
//
// # Description
//
// Span processors are attached per configuration: a batching OTLP/gRPC
// exporter when cfg.OTLPEndpoint is set, and a stdout exporter when
// cfg.StdoutTraces is set. With neither, the provider still runs so
// span context propagates through the service, it just exports
// nowhere.
//
// # Outputs
//   - ShutdownFunc: flushes pending spans; never nil on success.
//   - error: non-nil when an exporter cannot be constructed.
func SetupTracing(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (ShutdownFunc, error) {
	res, err := newResource()
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		// The collector is assumed to be a sidecar or in-cluster
		// service; TLS to it is the deployment's concern, not ours.
		conn, err := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("telemetry: dialing OTLP collector: %w", err)
		}
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("OTLP trace export enabled",
			slog.String("endpoint", cfg.OTLPEndpoint))
	}

	if cfg.StdoutTraces {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("Stdout trace export enabled")
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// SetupMetrics installs the global meter provider.
//
// # Description
//
// Always attaches the Prometheus bridge, which registers against the
// default registry served at /metrics alongside the promauto counters
// the packages define directly. When stdoutMetrics is set a periodic
// stdout reader is added for development.
func SetupMetrics(stdoutMetrics bool, logger *slog.Logger) (ShutdownFunc, error) {
	res, err := newResource()
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	promExporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if stdoutMetrics {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating stdout metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
		logger.Info("Stdout metric export enabled")
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Shutdown runs every shutdown function, collecting errors.
func Shutdown(ctx context.Context, fns ...ShutdownFunc) error {
	var errs []error
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
