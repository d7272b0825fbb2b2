package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zonepilot/zonepilot/core"
)

// Provider wires zonepilot's tracing and metrics into OpenTelemetry.
// In development it exports traces to stdout; in production it ships them
// via OTLP/HTTP. There is no server-facing surface here — zonepilot is an
// embedded single-process agent, so only the exporter client side is wired.
type Provider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider
	metricRegistry *Registry
	shutdownOnce  sync.Once
	mu            sync.RWMutex
	shutdown      bool
}

// NewProvider builds a Provider. An empty endpoint selects the stdout trace
// exporter (development mode); a non-empty endpoint ships traces via
// OTLP/HTTP to that collector address.
func NewProvider(serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	ctx := context.Background()
	var tp *sdktrace.TracerProvider

	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
	} else {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: create otlp exporter for %s: %w", endpoint, err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	registry := NewRegistry("zonepilot")
	core.SetMetricsRegistry(registry)

	return &Provider{
		tracer:         tp.Tracer("zonepilot"),
		meter:          mp.Meter("zonepilot"),
		traceProvider:  tp,
		metricRegistry: registry,
	}, nil
}

// NewProviderFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT (falling back to
// stdout tracing if unset) and the service name from ZONEPILOT_SERVICE_NAME.
func NewProviderFromEnv() (*Provider, error) {
	name := os.Getenv("ZONEPILOT_SERVICE_NAME")
	if name == "" {
		name = "zonepilot"
	}
	return NewProvider(name, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

// StartSpan starts a span, returning a no-op span once the provider has
// been shut down.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shutdown || p.tracer == nil {
		return ctx, noOpSpan{}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

// Registry returns the metrics registry installed by this provider.
func (p *Provider) Registry() *Registry { return p.metricRegistry }

// Shutdown flushes and tears down the trace provider. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		if p.traceProvider != nil {
			shutdownErr = p.traceProvider.Shutdown(ctx)
		}
	})
	return shutdownErr
}

// Span is the tracing handle components attach attributes and errors to.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

type noOpSpan struct{}

func (noOpSpan) End()                             {}
func (noOpSpan) SetAttribute(string, interface{}) {}
func (noOpSpan) RecordError(error)                {}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s otelSpan) RecordError(err error) { s.span.RecordError(err) }

// Tracer exposes the underlying OTEL tracer for packages that want to start
// spans without going through Provider.StartSpan (e.g. instrumented HTTP
// clients wired via otelhttp).
func (p *Provider) Tracer() trace.Tracer { return p.tracer }
