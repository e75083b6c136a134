// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package diagnostics provides OpenTelemetry tracing for deploy operations.

Every Deployer operation and pipeline step opens a span, so a slow or failed
`ecsdeploy all` can be read as a timeline: build, push and apply with the
failing step marked as an error.

# Exporters

  - NoOpTracer: default; spans cost nothing and go nowhere
  - stdout (--trace): spans are written as JSON to stderr when they end
  - OTLP gRPC (OTEL_EXPORTER_OTLP_ENDPOINT): spans are batched to a
    collector such as Jaeger

The OTLP endpoint takes precedence when both are configured.
*/
package diagnostics

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// EnvOTLPEndpoint names the collector endpoint variable.
const EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

// DefaultServiceName is the service.name resource attribute.
const DefaultServiceName = "ecsdeploy"

// -----------------------------------------------------------------------------
// Tracer Interface
// -----------------------------------------------------------------------------

// Tracer opens spans around deploy operations.
//
// # Description
//
// StartSpan returns a context carrying the span and a finish function.
// Passing a non-nil error to finish records it and marks the span failed.
//
// # Example
//
//	ctx, finish := tracer.StartSpan(ctx, "deploy.apply",
//	    map[string]string{"env": "production"})
//	err := controller.Deploy(ctx, opts)
//	finish(err)
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))

	// TraceID returns the trace id of the span in ctx, or "".
	TraceID(ctx context.Context) string

	// Shutdown flushes pending spans.
	Shutdown(ctx context.Context) error
}

// -----------------------------------------------------------------------------
// NoOp Implementation
// -----------------------------------------------------------------------------

// NoOpTracer discards spans.
type NoOpTracer struct{}

// StartSpan returns ctx unchanged.
func (NoOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// TraceID returns "".
func (NoOpTracer) TraceID(ctx context.Context) string { return "" }

// Shutdown does nothing.
func (NoOpTracer) Shutdown(ctx context.Context) error { return nil }

// -----------------------------------------------------------------------------
// OpenTelemetry Implementation
// -----------------------------------------------------------------------------

// OTelTracer records spans with the OpenTelemetry SDK.
type OTelTracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config selects and configures the exporter.
type Config struct {
	// ServiceName is the service.name resource attribute. Default: "ecsdeploy".
	ServiceName string

	// Endpoint is the OTLP gRPC collector (host:port). Empty disables OTLP.
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// Stdout writes spans to Writer as they end.
	Stdout bool

	// Writer receives stdout spans. Default: os.Stderr.
	Writer io.Writer

	// Attributes are added to the resource of every span, e.g. run_id.
	Attributes map[string]string
}

// ConfigFromEnv fills Endpoint from OTEL_EXPORTER_OTLP_ENDPOINT. The
// connection is plaintext unless OTEL_INSECURE is "false", as collectors
// run as local sidecars in the common setup.
func ConfigFromEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = getenv(EnvOTLPEndpoint)
	}
	cfg.Insecure = getenv("OTEL_INSECURE") != "false"
	return cfg
}

// NewTracer returns the tracer cfg asks for.
//
// # Outputs
//
//   - Tracer: OTLP, stdout or NoOp, in that order of precedence
//   - error: exporter construction failure
func NewTracer(ctx context.Context, cfg Config) (Tracer, error) {
	switch {
	case cfg.Endpoint != "":
		exporter, err := newOTLPExporter(ctx, cfg.Endpoint, cfg.Insecure)
		if err != nil {
			return nil, err
		}
		return NewOTelTracer(ctx, cfg, sdktrace.WithBatcher(exporter))

	case cfg.Stdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return NewOTelTracer(ctx, cfg, sdktrace.WithSyncer(exporter))

	default:
		return NoOpTracer{}, nil
	}
}

func newOTLPExporter(ctx context.Context, endpoint string, plaintext bool) (sdktrace.SpanExporter, error) {
	var dialOpts []grpc.DialOption
	if plaintext {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// NewOTelTracer builds a tracer provider around the given span processor
// option (WithBatcher or WithSyncer) and installs it globally.
func NewOTelTracer(ctx context.Context, cfg Config, processor sdktrace.TracerProviderOption) (*OTelTracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(cfg.ServiceName)}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		processor,
	)
	otel.SetTracerProvider(provider)

	return &OTelTracer{
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
	}, nil
}

// StartSpan opens an internal span.
func (t *OTelTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		otelAttrs = append(otelAttrs, attribute.String(k, v))
	}

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithAttributes(otelAttrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	finish := func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	return ctx, finish
}

// TraceID returns the hex trace id of the span in ctx.
func (t *OTelTracer) TraceID(ctx context.Context) string {
	traceID := trace.SpanFromContext(ctx).SpanContext().TraceID()
	if !traceID.IsValid() {
		return ""
	}
	return traceID.String()
}

// Shutdown flushes and stops the provider.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

var (
	_ Tracer = NoOpTracer{}
	_ Tracer = (*OTelTracer)(nil)
)
