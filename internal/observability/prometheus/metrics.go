// Package prometheus adapts the relay's MetricsProvider interface to a
// pull-model Prometheus registry. Collectors are created lazily the
// first time a metric name is observed.
package prometheus

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
)

func init() {
	observability.RegisterMetricsProvider("prometheus", NewProvider)
}

// Provider implements observability.MetricsProvider on a dedicated
// Prometheus registry.
type Provider struct {
	registry  *prometheus.Registry
	namespace string

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewProvider builds a provider with Go runtime and process collectors
// pre-registered. The service name becomes the metric namespace.
func NewProvider(_ context.Context, cfg observability.MetricsConfig) (observability.MetricsProvider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Provider{
		registry:   registry,
		namespace:  metricName(cfg.ServiceName),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}, nil
}

// Handler serves this provider's registry, for the /metrics route.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry for custom collectors.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Provider) Counter(_ context.Context, name string, value int64, tags map[string]string) {
	p.counterVec(name, tags).With(labels(tags)).Add(float64(value))
}

func (p *Provider) Gauge(_ context.Context, name string, value float64, tags map[string]string) {
	p.gaugeVec(name, tags).With(labels(tags)).Set(value)
}

func (p *Provider) Histogram(_ context.Context, name string, value float64, tags map[string]string) {
	p.histogramVec(name, tags).With(labels(tags)).Observe(value)
}

func (p *Provider) Timing(_ context.Context, name string, duration time.Duration, tags map[string]string) {
	// Prometheus convention: durations as seconds.
	p.histogramVec(name+"_seconds", tags).With(labels(tags)).Observe(duration.Seconds())
}

// Flush is a no-op; Prometheus scrapes.
func (p *Provider) Flush(context.Context) error { return nil }

func (p *Provider) Close(context.Context) error { return nil }

func (p *Provider) counterVec(name string, tags map[string]string) *prometheus.CounterVec {
	return vecFor(p, p.counters, name, func(sanitized string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      sanitized,
			Help:      "Counter for " + name,
		}, labelNames(tags))
	})
}

func (p *Provider) gaugeVec(name string, tags map[string]string) *prometheus.GaugeVec {
	return vecFor(p, p.gauges, name, func(sanitized string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      sanitized,
			Help:      "Gauge for " + name,
		}, labelNames(tags))
	})
}

func (p *Provider) histogramVec(name string, tags map[string]string) *prometheus.HistogramVec {
	return vecFor(p, p.histograms, name, func(sanitized string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      sanitized,
			Help:      "Histogram for " + name,
			Buckets:   prometheus.DefBuckets,
		}, labelNames(tags))
	})
}

// vecFor returns the cached collector for name, creating and registering
// it under the write lock on first use.
func vecFor[V prometheus.Collector](p *Provider, cache map[string]V, name string, build func(sanitized string) V) V {
	key := p.namespace + "_" + metricName(name)

	p.mu.RLock()
	vec, ok := cache[key]
	p.mu.RUnlock()
	if ok {
		return vec
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if vec, ok = cache[key]; ok {
		return vec
	}

	vec = build(metricName(name))
	p.registry.MustRegister(vec)
	cache[key] = vec
	return vec
}

// metricName maps an arbitrary string onto [a-zA-Z_:][a-zA-Z0-9_:]*.
func metricName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_' || r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func labelNames(tags map[string]string) []string {
	if tags == nil {
		return nil
	}
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, metricName(k))
	}
	return names
}

func labels(tags map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(tags))
	for k, v := range tags {
		out[metricName(k)] = v
	}
	return out
}
