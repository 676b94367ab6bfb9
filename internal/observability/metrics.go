package observability

import (
	"context"
	"strconv"
	"time"
)

// MetricsProvider defines the interface for recording metrics.
// Implement this interface to integrate with any metrics backend
// (Prometheus, DataDog, CloudWatch, StatsD, etc.)
type MetricsProvider interface {
	// Counter increments a counter metric
	Counter(ctx context.Context, name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric value
	Gauge(ctx context.Context, name string, value float64, tags map[string]string)

	// Histogram records a value in a histogram/distribution
	Histogram(ctx context.Context, name string, value float64, tags map[string]string)

	// Timing records a duration
	Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string)

	// Flush ensures all metrics are sent (for buffered providers)
	Flush(ctx context.Context) error

	// Close shuts down the metrics provider
	Close(ctx context.Context) error
}

// Metrics provides a convenient wrapper for recording application metrics.
type Metrics struct {
	provider  MetricsProvider
	namespace string
}

// NewMetrics creates a new Metrics instance with the given provider.
func NewMetrics(provider MetricsProvider, namespace string) *Metrics {
	return &Metrics{
		provider:  provider,
		namespace: namespace,
	}
}

func (m *Metrics) prefixName(name string) string {
	if m.namespace == "" {
		return name
	}
	return m.namespace + "." + name
}

// HTTP metrics

func (m *Metrics) HTTPRequestTotal(ctx context.Context, method, path, status string) {
	m.provider.Counter(ctx, m.prefixName("http.requests.total"), 1, map[string]string{
		"method": method,
		"path":   path,
		"status": status,
	})
}

func (m *Metrics) HTTPRequestDuration(ctx context.Context, method, path string, duration time.Duration) {
	m.provider.Timing(ctx, m.prefixName("http.request.duration"), duration, map[string]string{
		"method": method,
		"path":   path,
	})
}

// Ingestion metrics

func (m *Metrics) SampleIngested(ctx context.Context, deliveryID string) {
	m.provider.Counter(ctx, m.prefixName("samples.ingested"), 1, map[string]string{
		"delivery_id": deliveryID,
	})
}

func (m *Metrics) SampleRejected(ctx context.Context, reason string) {
	m.provider.Counter(ctx, m.prefixName("samples.rejected"), 1, map[string]string{
		"reason": reason,
	})
}

func (m *Metrics) SampleThrottled(ctx context.Context, deliveryID string) {
	m.provider.Counter(ctx, m.prefixName("samples.throttled"), 1, map[string]string{
		"delivery_id": deliveryID,
	})
}

func (m *Metrics) IngestDuration(ctx context.Context, duration time.Duration) {
	m.provider.Timing(ctx, m.prefixName("samples.ingest.duration"), duration, nil)
}

// Fan-out metrics

func (m *Metrics) FanoutDelivered(ctx context.Context, kind string) {
	m.provider.Counter(ctx, m.prefixName("fanout.delivered"), 1, map[string]string{
		"kind": kind,
	})
}

func (m *Metrics) FanoutDropped(ctx context.Context, reason string) {
	m.provider.Counter(ctx, m.prefixName("fanout.dropped"), 1, map[string]string{
		"reason": reason,
	})
}

func (m *Metrics) ReplayServed(ctx context.Context, samples int, gapped bool) {
	m.provider.Counter(ctx, m.prefixName("replay.served"), 1, map[string]string{
		"gapped": strconv.FormatBool(gapped),
	})
	m.provider.Histogram(ctx, m.prefixName("replay.samples"), float64(samples), nil)
}

func (m *Metrics) SubscribersActive(ctx context.Context, count int64) {
	m.provider.Gauge(ctx, m.prefixName("fanout.subscribers.active"), float64(count), nil)
}

// Connection metrics

func (m *Metrics) ConnectionOpened(ctx context.Context, role string) {
	m.provider.Counter(ctx, m.prefixName("connections.opened"), 1, map[string]string{
		"role": role,
	})
}

func (m *Metrics) ConnectionClosed(ctx context.Context, role, reason string) {
	m.provider.Counter(ctx, m.prefixName("connections.closed"), 1, map[string]string{
		"role":   role,
		"reason": reason,
	})
}

func (m *Metrics) ConnectionSuperseded(ctx context.Context, deliveryID string) {
	m.provider.Counter(ctx, m.prefixName("connections.superseded"), 1, map[string]string{
		"delivery_id": deliveryID,
	})
}

func (m *Metrics) ConnectionsActive(ctx context.Context, count int64) {
	m.provider.Gauge(ctx, m.prefixName("connections.active"), float64(count), nil)
}

func (m *Metrics) PresenceEvent(ctx context.Context, status string) {
	m.provider.Counter(ctx, m.prefixName("presence.events"), 1, map[string]string{
		"status": status,
	})
}

// Stream metrics

func (m *Metrics) StreamsActive(ctx context.Context, count int64) {
	m.provider.Gauge(ctx, m.prefixName("streams.active"), float64(count), nil)
}

func (m *Metrics) StreamEvicted(ctx context.Context, reason string) {
	m.provider.Counter(ctx, m.prefixName("streams.evicted"), 1, map[string]string{
		"reason": reason,
	})
}

// History metrics

func (m *Metrics) HistoryFlushed(ctx context.Context, batch int, duration time.Duration) {
	m.provider.Counter(ctx, m.prefixName("history.flushed"), int64(batch), nil)
	m.provider.Timing(ctx, m.prefixName("history.flush.duration"), duration, nil)
}

func (m *Metrics) HistoryDropped(ctx context.Context, count int) {
	m.provider.Counter(ctx, m.prefixName("history.dropped"), int64(count), nil)
}

// Database metrics

func (m *Metrics) DBQueryDuration(ctx context.Context, operation string, duration time.Duration) {
	m.provider.Timing(ctx, m.prefixName("db.query.duration"), duration, map[string]string{
		"operation": operation,
	})
}

// Redis metrics

func (m *Metrics) RedisCommandDuration(ctx context.Context, command string, duration time.Duration) {
	m.provider.Timing(ctx, m.prefixName("redis.command.duration"), duration, map[string]string{
		"command": command,
	})
}

// Flush flushes all pending metrics.
func (m *Metrics) Flush(ctx context.Context) error {
	return m.provider.Flush(ctx)
}

// Close shuts down the metrics provider.
func (m *Metrics) Close(ctx context.Context) error {
	return m.provider.Close(ctx)
}
