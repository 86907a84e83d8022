// Package telemetry provides OpenTelemetry instrumentation for vacuum.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yairfalse/vacuum/internal/config"
)

const instrumentationName = "vacuum"

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *promclient.Registry

	// Metrics
	inventoryRevisions metric.Int64Gauge
	references         metric.Int64Counter
	unresolved         metric.Int64Counter
	deletions          metric.Int64Counter
	sweepDuration      metric.Float64Histogram
}

// Option customises a Provider.
type Option func(*options)

type options struct {
	prometheus bool
	readers    []sdkmetric.Reader
}

// WithPrometheus exposes metrics through a Prometheus registry served by
// Handler.
func WithPrometheus() Option {
	return func(o *options) { o.prometheus = true }
}

// WithReader adds a metric reader, such as a manual reader in tests.
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.readers = append(o.readers, r) }
}

// NewProvider creates a new telemetry provider.
func NewProvider(ctx context.Context, cfg config.OTELConfig, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, o); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, o options) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	if o.prometheus {
		p.registry = promclient.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(p.registry))
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
	}

	for _, r := range o.readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.inventoryRevisions, err = p.meter.Int64Gauge(
		"vacuum_inventory_revisions",
		metric.WithDescription("Revisions in the inventory at the last sweep"),
		metric.WithUnit("{revision}"),
	)
	if err != nil {
		return fmt.Errorf("create inventory_revisions: %w", err)
	}

	p.references, err = p.meter.Int64Counter(
		"vacuum_references_total",
		metric.WithDescription("Distinct referenced revisions resolved"),
	)
	if err != nil {
		return fmt.Errorf("create references: %w", err)
	}

	p.unresolved, err = p.meter.Int64Counter(
		"vacuum_unresolved_consumers_total",
		metric.WithDescription("Consumers whose bound revision could not be resolved"),
	)
	if err != nil {
		return fmt.Errorf("create unresolved_consumers: %w", err)
	}

	p.deletions, err = p.meter.Int64Counter(
		"vacuum_deletions_total",
		metric.WithDescription("Deletion attempts by outcome"),
	)
	if err != nil {
		return fmt.Errorf("create deletions: %w", err)
	}

	p.sweepDuration, err = p.meter.Float64Histogram(
		"vacuum_sweep_duration_seconds",
		metric.WithDescription("Duration of sweeps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create sweep_duration: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Handler serves the Prometheus registry. It is nil unless the provider
// was created WithPrometheus.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// StartSpan starts a new span. A nil provider uses the global tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil {
		return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
	}
	return p.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordInventory records the inventory size seen by a sweep.
func (p *Provider) RecordInventory(ctx context.Context, sweep string, revisions int) {
	if p == nil {
		return
	}
	p.inventoryRevisions.Record(ctx, int64(revisions), metric.WithAttributes(
		attribute.String("sweep", sweep),
	))
}

// RecordReferences records resolved references and unresolved consumers.
func (p *Provider) RecordReferences(ctx context.Context, sweep string, referenced, unresolved int) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("sweep", sweep))
	p.references.Add(ctx, int64(referenced), attrs)
	p.unresolved.Add(ctx, int64(unresolved), attrs)
}

// RecordDeletions records count deletion attempts with the given outcome.
func (p *Provider) RecordDeletions(ctx context.Context, sweep, status string, count int) {
	if p == nil || count == 0 {
		return
	}
	p.deletions.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("sweep", sweep),
		attribute.String("status", status),
	))
}

// RecordSweepDuration records how long a sweep took and how it ended.
func (p *Provider) RecordSweepDuration(ctx context.Context, sweep, status string, d time.Duration) {
	if p == nil {
		return
	}
	p.sweepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("sweep", sweep),
		attribute.String("status", status),
	))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
