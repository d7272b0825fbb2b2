package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zonepilot/zonepilot/core"
)

// Registry is the OTEL-backed implementation of core.MetricsRegistry.
// Leaf packages never import telemetry directly; they call through the
// core.MetricsRegistry interface that Registry satisfies, installed once
// via core.SetMetricsRegistry during bootstrap.
type Registry struct {
	meter      metric.Meter
	ctx        context.Context
	counters   map[string]metric.Float64Counter
	gauges     map[string]gaugeState
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

type gaugeState struct {
	value float64
	gauge metric.Float64ObservableGauge
}

// NewRegistry creates a metrics registry backed by the given OTEL meter name.
func NewRegistry(meterName string) *Registry {
	return &Registry{
		meter:      otel.Meter(meterName),
		ctx:        context.Background(),
		counters:   make(map[string]metric.Float64Counter),
		gauges:     make(map[string]gaugeState),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func tagsToAttrs(tags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// IncrCounter implements core.MetricsRegistry.
func (r *Registry) IncrCounter(name string, tags map[string]string) {
	counter, err := r.counterFor(name)
	if err != nil {
		return
	}
	counter.Add(r.ctx, 1, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (r *Registry) counterFor(name string) (metric.Float64Counter, error) {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; ok {
		return c, nil
	}
	c, err := r.meter.Float64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", name, err)
	}
	r.counters[name] = c
	return c, nil
}

// RecordGauge implements core.MetricsRegistry. Gauges are observable in
// OTEL, so the last-written value is cached and reported on collection.
func (r *Registry) RecordGauge(name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, exists := r.gauges[name]
	if exists {
		st.value = value
		r.gauges[name] = st
		return
	}

	gauge, err := r.meter.Float64ObservableGauge(name)
	if err != nil {
		return
	}
	attrs := tagsToAttrs(tags)
	_, err = r.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		r.mu.RLock()
		v := r.gauges[name].value
		r.mu.RUnlock()
		o.ObserveFloat64(gauge, v, metric.WithAttributes(attrs...))
		return nil
	}, gauge)
	if err != nil {
		return
	}
	r.gauges[name] = gaugeState{value: value, gauge: gauge}
}

// RecordHistogram implements core.MetricsRegistry.
func (r *Registry) RecordHistogram(name string, value float64, tags map[string]string) {
	hist, err := r.histogramFor(name)
	if err != nil {
		return
	}
	hist.Record(r.ctx, value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (r *Registry) histogramFor(name string) (metric.Float64Histogram, error) {
	r.mu.RLock()
	h, ok := r.histograms[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.histograms[name]; ok {
		return h, nil
	}
	h, err := r.meter.Float64Histogram(name)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", name, err)
	}
	r.histograms[name] = h
	return h, nil
}

var _ core.MetricsRegistry = (*Registry)(nil)

// Metric name constants used across zonepilot's components.
const (
	MetricCaptureFrames       = "zonepilot.capture.frames"
	MetricCaptureDrops        = "zonepilot.capture.drops"
	MetricCaptureFailures     = "zonepilot.capture.failures"
	MetricClassifierVerdicts  = "zonepilot.classifier.verdicts"
	MetricRegionZones         = "zonepilot.region.zones_found"
	MetricVisionCalls         = "zonepilot.vision.calls"
	MetricVisionLatencyMs     = "zonepilot.vision.latency_ms"
	MetricVisionEmptySuccess  = "zonepilot.vision.empty_success"
	MetricRegistrySize        = "zonepilot.registry.size"
	MetricRegistryExpired     = "zonepilot.registry.expired"
	MetricTrackerEvents       = "zonepilot.tracker.events"
	MetricActionResults       = "zonepilot.action.results"
	MetricStepResults         = "zonepilot.step.results"
	MetricPlansProduced       = "zonepilot.planner.plans_produced"
	MetricPlannerCalls        = "zonepilot.planner.calls"
	MetricDirectorIterations  = "zonepilot.director.iterations"
	MetricDirectorBudgetUsed  = "zonepilot.director.budget_used"
	MetricCircuitBreakerState = "zonepilot.circuit_breaker.state"
)
