// Package otel adapts the relay's MetricsProvider and TracingProvider
// interfaces to the OpenTelemetry SDK with OTLP/gRPC export.
package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
)

const defaultExportInterval = 15 * time.Second

func init() {
	observability.RegisterMetricsProvider("otel", newMetricsProviderFromConfig)
	observability.RegisterMetricsProvider("otlp", newMetricsProviderFromConfig)
}

func newMetricsProviderFromConfig(ctx context.Context, cfg observability.MetricsConfig) (observability.MetricsProvider, error) {
	exportInterval := defaultExportInterval
	if raw, ok := cfg.Options["export_interval"]; ok {
		if parsed, err := time.ParseDuration(raw); err == nil {
			exportInterval = parsed
		}
	}

	return NewMetricsProvider(ctx, MetricsConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Endpoint,
		ExportInterval: exportInterval,
	})
}

// MetricsConfig configures the OTel metrics provider.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	ExportInterval time.Duration
}

// MetricsProvider reports measurements through an OTel meter. Without an
// OTLP endpoint the provider still works; readings just have nowhere to
// go, which keeps local runs configuration-free.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

var _ observability.MetricsProvider = (*MetricsProvider)(nil)

// NewMetricsProvider builds the provider and installs it as the global
// OTel meter provider.
func NewMetricsProvider(ctx context.Context, cfg MetricsConfig) (*MetricsProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}

		interval := cfg.ExportInterval
		if interval == 0 {
			interval = defaultExportInterval
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{
		provider:   provider,
		meter:      provider.Meter(cfg.ServiceName),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func (p *MetricsProvider) Counter(ctx context.Context, name string, value int64, tags map[string]string) {
	p.counter(name).Add(ctx, value, metric.WithAttributes(attrs(tags)...))
}

func (p *MetricsProvider) Gauge(ctx context.Context, name string, value float64, tags map[string]string) {
	p.gauge(name).Record(ctx, value, metric.WithAttributes(attrs(tags)...))
}

func (p *MetricsProvider) Histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	p.histogram(name).Record(ctx, value, metric.WithAttributes(attrs(tags)...))
}

func (p *MetricsProvider) Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	p.histogram(name).Record(ctx, duration.Seconds(), metric.WithAttributes(attrs(tags)...))
}

func (p *MetricsProvider) Flush(ctx context.Context) error {
	return p.provider.ForceFlush(ctx)
}

func (p *MetricsProvider) Close(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

func (p *MetricsProvider) counter(name string) metric.Int64Counter {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.counters[name]; ok {
		return c
	}
	c, _ = p.meter.Int64Counter(name)
	p.counters[name] = c
	return c
}

func (p *MetricsProvider) gauge(name string) metric.Float64Gauge {
	p.mu.RLock()
	g, ok := p.gauges[name]
	p.mu.RUnlock()
	if ok {
		return g
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok = p.gauges[name]; ok {
		return g
	}
	g, _ = p.meter.Float64Gauge(name)
	p.gauges[name] = g
	return g
}

func (p *MetricsProvider) histogram(name string) metric.Float64Histogram {
	p.mu.RLock()
	h, ok := p.histograms[name]
	p.mu.RUnlock()
	if ok {
		return h
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.histograms[name]; ok {
		return h
	}
	h, _ = p.meter.Float64Histogram(name)
	p.histograms[name] = h
	return h
}

func attrs(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		out = append(out, attribute.String(k, v))
	}
	return out
}
