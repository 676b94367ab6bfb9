package observability

import (
	"context"
	"fmt"
	"sync"
)

// MetricsConfig carries the configuration handed to provider factories.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string            // provider-specific endpoint (OTLP collector etc.)
	Options        map[string]string // extra provider-specific options
}

// MetricsProviderFactory builds a MetricsProvider from configuration.
type MetricsProviderFactory func(ctx context.Context, cfg MetricsConfig) (MetricsProvider, error)

// TracingProviderFactory builds a TracingProvider from configuration.
type TracingProviderFactory func(ctx context.Context, cfg MetricsConfig) (TracingProvider, error)

var (
	factoryMu        sync.RWMutex
	metricsFactories = make(map[string]MetricsProviderFactory)
	tracingFactories = make(map[string]TracingProviderFactory)
)

// RegisterMetricsProvider registers a metrics provider factory under a
// name. Provider packages call this from init(); the binary selects one
// via blank imports plus the METRICS_PROVIDER setting.
func RegisterMetricsProvider(name string, factory MetricsProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	metricsFactories[name] = factory
}

// RegisterTracingProvider registers a tracing provider factory under a name.
func RegisterTracingProvider(name string, factory TracingProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	tracingFactories[name] = factory
}

// NewMetricsProviderByName builds the named metrics provider. An empty
// or "noop" name yields the no-op provider; an unregistered name is an
// error rather than a silent fallback.
func NewMetricsProviderByName(ctx context.Context, name string, cfg MetricsConfig) (MetricsProvider, error) {
	if name == "" || name == "noop" {
		return &NoopMetricsProvider{}, nil
	}

	factoryMu.RLock()
	factory, ok := metricsFactories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown metrics provider: %s (available: %v)", name, ListMetricsProviders())
	}

	return factory(ctx, cfg)
}

// NewTracingProviderByName builds the named tracing provider.
func NewTracingProviderByName(ctx context.Context, name string, cfg MetricsConfig) (TracingProvider, error) {
	if name == "" || name == "noop" {
		return &NoopTracingProvider{}, nil
	}

	factoryMu.RLock()
	factory, ok := tracingFactories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tracing provider: %s", name)
	}

	return factory(ctx, cfg)
}

// ListMetricsProviders returns the registered metrics provider names.
func ListMetricsProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(metricsFactories))
	for name := range metricsFactories {
		names = append(names, name)
	}
	return names
}

// ListTracingProviders returns the registered tracing provider names.
func ListTracingProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(tracingFactories))
	for name := range tracingFactories {
		names = append(names, name)
	}
	return names
}
