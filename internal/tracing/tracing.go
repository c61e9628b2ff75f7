// Package tracing wraps OpenTelemetry span export around sandbox runs and
// scheduler ticks — grounded on the pack's go-claw internal/otel package,
// trimmed to the single OTLP/HTTP exporter the orchestrator's go.mod
// actually carries. When disabled (the default), every operation is a
// genuine no-op: Provider.Tracer returns the global no-op tracer, so
// instrumented call sites pay no cost and never dial out.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

const tracerName = "nanoclaw"

// Provider owns the tracer provider's lifecycle; Shutdown flushes any
// buffered spans and closes the exporter connection.
type Provider struct {
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Config mirrors config.TracingConfig without importing the config package,
// keeping this package usable independent of the orchestrator's config
// loading.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
}

// Init builds a Provider from cfg. An empty OTLPEndpoint falls back to the
// OTLP/HTTP default of localhost:4318.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			Tracer:   nooptrace.NewTracerProvider().Tracer(tracerName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create otlp exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "nanoclaw"))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &Provider{
		Tracer:   tp.Tracer(tracerName),
		shutdown: tp.Shutdown,
	}, nil
}

// Shutdown flushes and releases the exporter. Safe to call on a disabled
// (no-op) provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Attribute keys shared by sandbox-run and scheduler-tick spans.
var (
	AttrFolder   = attribute.Key("nanoclaw.folder")
	AttrChatID   = attribute.Key("nanoclaw.chat_id")
	AttrExitKind = attribute.Key("nanoclaw.exit_kind")
	AttrTaskID   = attribute.Key("nanoclaw.task_id")
)

// StartSpan starts an internal span with the given attributes, the shape
// every nanoclaw instrumentation point uses.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
