package observability

import (
	"context"
	"time"
)

// NoopMetricsProvider discards all measurements. It backs the default
// wiring when no metrics backend is configured, so callers never need
// nil checks around provider calls.
type NoopMetricsProvider struct{}

var _ MetricsProvider = (*NoopMetricsProvider)(nil)

func (*NoopMetricsProvider) Counter(context.Context, string, int64, map[string]string)          {}
func (*NoopMetricsProvider) Gauge(context.Context, string, float64, map[string]string)          {}
func (*NoopMetricsProvider) Histogram(context.Context, string, float64, map[string]string)      {}
func (*NoopMetricsProvider) Timing(context.Context, string, time.Duration, map[string]string)   {}
func (*NoopMetricsProvider) Flush(context.Context) error                                        { return nil }
func (*NoopMetricsProvider) Close(context.Context) error                                        { return nil }

// NoopTracingProvider produces inert spans when no tracing backend is
// configured.
type NoopTracingProvider struct{}

var _ TracingProvider = (*NoopTracingProvider)(nil)

func (*NoopTracingProvider) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (*NoopTracingProvider) SpanFromContext(context.Context) Span { return noopSpan{} }

func (*NoopTracingProvider) Inject(context.Context, TextMapCarrier) {}

func (*NoopTracingProvider) Extract(ctx context.Context, _ TextMapCarrier) context.Context {
	return ctx
}

func (*NoopTracingProvider) Shutdown(context.Context) error { return nil }

type noopSpan struct{}

var _ Span = noopSpan{}

func (noopSpan) End()                                  {}
func (noopSpan) SetAttribute(string, any)              {}
func (noopSpan) SetStatus(SpanStatus, string)          {}
func (noopSpan) RecordError(error)                     {}
func (noopSpan) AddEvent(string, map[string]any)       {}
func (noopSpan) SpanContext() SpanContext              { return SpanContext{} }
