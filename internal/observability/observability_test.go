package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestMetricsProvider records metrics for testing
type TestMetricsProvider struct {
	Counters   []metricCall
	Gauges     []metricCall
	Histograms []metricCall
	Timings    []timingCall
}

type metricCall struct {
	Name  string
	Value float64
	Tags  map[string]string
}

type timingCall struct {
	Name     string
	Duration time.Duration
	Tags     map[string]string
}

func (t *TestMetricsProvider) Counter(ctx context.Context, name string, value int64, tags map[string]string) {
	t.Counters = append(t.Counters, metricCall{Name: name, Value: float64(value), Tags: tags})
}

func (t *TestMetricsProvider) Gauge(ctx context.Context, name string, value float64, tags map[string]string) {
	t.Gauges = append(t.Gauges, metricCall{Name: name, Value: value, Tags: tags})
}

func (t *TestMetricsProvider) Histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	t.Histograms = append(t.Histograms, metricCall{Name: name, Value: value, Tags: tags})
}

func (t *TestMetricsProvider) Timing(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	t.Timings = append(t.Timings, timingCall{Name: name, Duration: duration, Tags: tags})
}

func (t *TestMetricsProvider) Flush(ctx context.Context) error { return nil }
func (t *TestMetricsProvider) Close(ctx context.Context) error { return nil }

func TestNewMetrics(t *testing.T) {
	provider := &NoopMetricsProvider{}
	metrics := NewMetrics(provider, "test")

	if metrics == nil {
		t.Fatal("expected non-nil metrics")
		return
	}
	if metrics.namespace != "test" {
		t.Errorf("expected namespace 'test', got %s", metrics.namespace)
	}
}

func TestMetrics_PrefixName(t *testing.T) {
	tests := []struct {
		namespace string
		name      string
		expected  string
	}{
		{"", "metric", "metric"},
		{"relay", "metric", "relay.metric"},
		{"my.app", "counter", "my.app.counter"},
	}

	for _, tc := range tests {
		metrics := NewMetrics(&NoopMetricsProvider{}, tc.namespace)
		result := metrics.prefixName(tc.name)
		if result != tc.expected {
			t.Errorf("prefixName(%q) with namespace %q = %q, expected %q", tc.name, tc.namespace, result, tc.expected)
		}
	}
}

func TestMetrics_HTTPRequestTotal(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "test")
	ctx := context.Background()

	metrics.HTTPRequestTotal(ctx, "GET", "/api/events", "200")

	if len(provider.Counters) != 1 {
		t.Fatalf("expected 1 counter, got %d", len(provider.Counters))
	}

	counter := provider.Counters[0]
	if counter.Name != "test.http.requests.total" {
		t.Errorf("expected name 'test.http.requests.total', got %s", counter.Name)
	}
	if counter.Tags["method"] != "GET" {
		t.Errorf("expected method tag 'GET', got %s", counter.Tags["method"])
	}
	if counter.Tags["path"] != "/api/events" {
		t.Errorf("expected path tag '/api/events', got %s", counter.Tags["path"])
	}
	if counter.Tags["status"] != "200" {
		t.Errorf("expected status tag '200', got %s", counter.Tags["status"])
	}
}

func TestMetrics_HTTPRequestDuration(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "test")
	ctx := context.Background()

	duration := 100 * time.Millisecond
	metrics.HTTPRequestDuration(ctx, "POST", "/api/events", duration)

	if len(provider.Timings) != 1 {
		t.Fatalf("expected 1 timing, got %d", len(provider.Timings))
	}

	timing := provider.Timings[0]
	if timing.Name != "test.http.request.duration" {
		t.Errorf("expected name 'test.http.request.duration', got %s", timing.Name)
	}
	if timing.Duration != duration {
		t.Errorf("expected duration %v, got %v", duration, timing.Duration)
	}
}

func TestMetrics_SampleIngested(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.SampleIngested(ctx, "DEL-1001")

	if len(provider.Counters) != 1 {
		t.Fatalf("expected 1 counter, got %d", len(provider.Counters))
	}

	counter := provider.Counters[0]
	if counter.Name != "track.samples.ingested" {
		t.Errorf("expected name 'track.samples.ingested', got %s", counter.Name)
	}
	if counter.Tags["delivery_id"] != "DEL-1001" {
		t.Errorf("expected delivery_id tag 'DEL-1001', got %s", counter.Tags["delivery_id"])
	}
}

func TestMetrics_SampleRejected(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.SampleRejected(ctx, "invalid_latitude")

	if len(provider.Counters) != 1 {
		t.Fatalf("expected 1 counter, got %d", len(provider.Counters))
	}

	counter := provider.Counters[0]
	if counter.Tags["reason"] != "invalid_latitude" {
		t.Errorf("expected reason tag 'invalid_latitude', got %s", counter.Tags["reason"])
	}
}

func TestMetrics_FanoutMetrics(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.FanoutDelivered(ctx, "position")
	metrics.FanoutDropped(ctx, "queue_full")
	metrics.SubscribersActive(ctx, 12)

	if len(provider.Counters) != 2 {
		t.Errorf("expected 2 counters, got %d", len(provider.Counters))
	}
	if len(provider.Gauges) != 1 {
		t.Errorf("expected 1 gauge, got %d", len(provider.Gauges))
	}
	if provider.Counters[1].Tags["reason"] != "queue_full" {
		t.Errorf("expected reason tag 'queue_full', got %s", provider.Counters[1].Tags["reason"])
	}
}

func TestMetrics_ReplayServed(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.ReplayServed(ctx, 42, true)

	if len(provider.Counters) != 1 {
		t.Fatalf("expected 1 counter, got %d", len(provider.Counters))
	}
	if provider.Counters[0].Tags["gapped"] != "true" {
		t.Errorf("expected gapped tag 'true', got %s", provider.Counters[0].Tags["gapped"])
	}
	if len(provider.Histograms) != 1 {
		t.Fatalf("expected 1 histogram, got %d", len(provider.Histograms))
	}
	if provider.Histograms[0].Value != 42 {
		t.Errorf("expected histogram value 42, got %v", provider.Histograms[0].Value)
	}
}

func TestMetrics_ConnectionMetrics(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.ConnectionOpened(ctx, "driver")
	metrics.ConnectionClosed(ctx, "driver", "superseded")
	metrics.ConnectionSuperseded(ctx, "DEL-1001")
	metrics.ConnectionsActive(ctx, 7)
	metrics.PresenceEvent(ctx, "offline")

	if len(provider.Counters) != 4 {
		t.Errorf("expected 4 counters, got %d", len(provider.Counters))
	}
	if len(provider.Gauges) != 1 {
		t.Errorf("expected 1 gauge, got %d", len(provider.Gauges))
	}
	if provider.Counters[1].Tags["reason"] != "superseded" {
		t.Errorf("expected reason tag 'superseded', got %s", provider.Counters[1].Tags["reason"])
	}
}

func TestMetrics_StreamMetrics(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.StreamsActive(ctx, 3)
	metrics.StreamEvicted(ctx, "ttl")

	if len(provider.Gauges) != 1 {
		t.Errorf("expected 1 gauge, got %d", len(provider.Gauges))
	}
	if len(provider.Counters) != 1 {
		t.Errorf("expected 1 counter, got %d", len(provider.Counters))
	}
}

func TestMetrics_HistoryMetrics(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.HistoryFlushed(ctx, 50, 20*time.Millisecond)
	metrics.HistoryDropped(ctx, 3)

	if len(provider.Counters) != 2 {
		t.Errorf("expected 2 counters, got %d", len(provider.Counters))
	}
	if provider.Counters[0].Value != 50 {
		t.Errorf("expected flushed counter value 50, got %v", provider.Counters[0].Value)
	}
	if len(provider.Timings) != 1 {
		t.Errorf("expected 1 timing, got %d", len(provider.Timings))
	}
}

func TestMetrics_StorageDurations(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "track")
	ctx := context.Background()

	metrics.DBQueryDuration(ctx, "INSERT", 10*time.Millisecond)
	metrics.RedisCommandDuration(ctx, "SET", 5*time.Millisecond)

	if len(provider.Timings) != 2 {
		t.Errorf("expected 2 timings, got %d", len(provider.Timings))
	}
}

func TestMetrics_Flush(t *testing.T) {
	provider := &NoopMetricsProvider{}
	metrics := NewMetrics(provider, "test")
	ctx := context.Background()

	err := metrics.Flush(ctx)
	if err != nil {
		t.Errorf("Flush failed: %v", err)
	}
}

func TestMetrics_Close(t *testing.T) {
	provider := &NoopMetricsProvider{}
	metrics := NewMetrics(provider, "test")
	ctx := context.Background()

	err := metrics.Close(ctx)
	if err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// Noop provider tests

func TestNoopMetricsProvider(t *testing.T) {
	provider := &NoopMetricsProvider{}
	ctx := context.Background()

	// All methods should be callable without error
	provider.Counter(ctx, "test", 1, nil)
	provider.Gauge(ctx, "test", 1.0, nil)
	provider.Histogram(ctx, "test", 1.0, nil)
	provider.Timing(ctx, "test", time.Second, nil)

	if err := provider.Flush(ctx); err != nil {
		t.Errorf("Flush failed: %v", err)
	}
	if err := provider.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestNoopTracingProvider(t *testing.T) {
	provider := &NoopTracingProvider{}
	ctx := context.Background()

	newCtx, span := provider.StartSpan(ctx, "test")
	if newCtx != ctx {
		t.Error("expected same context")
	}
	if span == nil {
		t.Error("expected non-nil span")
	}

	span.End()
	span.SetAttribute("key", "value")
	span.SetStatus(SpanStatusOK, "")
	span.RecordError(nil)
	span.AddEvent("event", nil)

	spanCtx := span.SpanContext()
	if spanCtx.IsValid() {
		t.Error("expected invalid span context for noop span")
	}

	s := provider.SpanFromContext(ctx)
	if s == nil {
		t.Error("expected non-nil span from context")
	}

	provider.Inject(ctx, nil)
	extractedCtx := provider.Extract(ctx, nil)
	if extractedCtx != ctx {
		t.Error("expected same context from Extract")
	}

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

// Tracing tests

func TestSpanContext_IsValid(t *testing.T) {
	tests := []struct {
		traceID  string
		spanID   string
		expected bool
	}{
		{"", "", false},
		{"trace-123", "", false},
		{"", "span-123", false},
		{"trace-123", "span-123", true},
	}

	for _, tc := range tests {
		sc := SpanContext{TraceID: tc.traceID, SpanID: tc.spanID}
		if sc.IsValid() != tc.expected {
			t.Errorf("SpanContext{TraceID: %q, SpanID: %q}.IsValid() = %v, expected %v",
				tc.traceID, tc.spanID, sc.IsValid(), tc.expected)
		}
	}
}

func TestApplyOptions(t *testing.T) {
	opts := ApplyOptions(
		WithSpanKind(SpanKindClient),
		WithAttributes(map[string]any{"key": "value"}),
	)

	if opts.Kind != SpanKindClient {
		t.Errorf("expected SpanKindClient, got %v", opts.Kind)
	}
	if opts.Attributes["key"] != "value" {
		t.Errorf("expected attribute 'key' = 'value', got %v", opts.Attributes["key"])
	}
}

func TestNewTracer(t *testing.T) {
	provider := &NoopTracingProvider{}
	tracer := NewTracer(provider, "test-service")

	if tracer == nil {
		t.Fatal("expected non-nil tracer")
		return
	}
	if tracer.serviceName != "test-service" {
		t.Errorf("expected service name 'test-service', got %s", tracer.serviceName)
	}
}

func TestTracer_Operations(t *testing.T) {
	provider := &NoopTracingProvider{}
	tracer := NewTracer(provider, "test")
	ctx := context.Background()

	newCtx, span := tracer.StartSpan(ctx, "test")
	if span == nil {
		t.Error("expected non-nil span")
	}
	span.End()

	s := tracer.SpanFromContext(newCtx)
	if s == nil {
		t.Error("expected non-nil span from context")
	}

	carrier := make(HTTPHeaderCarrier)
	tracer.Inject(ctx, carrier)

	extractedCtx := tracer.Extract(ctx, carrier)
	if extractedCtx == nil {
		t.Error("expected non-nil context")
	}

	err := tracer.Shutdown(ctx)
	if err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestHTTPHeaderCarrier(t *testing.T) {
	carrier := make(HTTPHeaderCarrier)

	carrier.Set("X-Trace-ID", "trace-123")
	if carrier.Get("X-Trace-ID") != "trace-123" {
		t.Errorf("expected 'trace-123', got %s", carrier.Get("X-Trace-ID"))
	}

	if carrier.Get("nonexistent") != "" {
		t.Error("expected empty string for nonexistent key")
	}

	carrier.Set("X-Span-ID", "span-456")
	keys := carrier.Keys()
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}
}

// Middleware tests

func TestHTTPMiddleware(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "test")
	tracer := NewTracer(&NoopTracingProvider{}, "test")

	mw := HTTPMiddleware(metrics, tracer)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// Verify metrics were recorded
	if len(provider.Counters) != 1 {
		t.Errorf("expected 1 counter, got %d", len(provider.Counters))
	}
	if len(provider.Timings) != 1 {
		t.Errorf("expected 1 timing, got %d", len(provider.Timings))
	}
}

func TestHTTPMiddleware_ErrorStatus(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "test")

	mw := HTTPMiddleware(metrics, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestMetricsOnlyMiddleware(t *testing.T) {
	provider := &TestMetricsProvider{}
	metrics := NewMetrics(provider, "test")

	mw := MetricsOnlyMiddleware(metrics)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if len(provider.Counters) != 1 {
		t.Errorf("expected 1 counter, got %d", len(provider.Counters))
	}
}

func TestTracingOnlyMiddleware(t *testing.T) {
	tracer := NewTracer(&NoopTracingProvider{}, "test")

	mw := TracingOnlyMiddleware(tracer)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

// Provider registry tests

func TestRegisterMetricsProvider(t *testing.T) {
	// Register a test provider
	RegisterMetricsProvider("test-provider", func(ctx context.Context, cfg MetricsConfig) (MetricsProvider, error) {
		return &NoopMetricsProvider{}, nil
	})

	providers := ListMetricsProviders()
	found := false
	for _, p := range providers {
		if p == "test-provider" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected test-provider to be registered")
	}
}

func TestRegisterTracingProvider(t *testing.T) {
	RegisterTracingProvider("test-tracer", func(ctx context.Context, cfg MetricsConfig) (TracingProvider, error) {
		return &NoopTracingProvider{}, nil
	})

	providers := ListTracingProviders()
	found := false
	for _, p := range providers {
		if p == "test-tracer" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected test-tracer to be registered")
	}
}

func TestNewMetricsProviderByName_Noop(t *testing.T) {
	ctx := context.Background()

	// Empty name returns noop
	provider, err := NewMetricsProviderByName(ctx, "", MetricsConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*NoopMetricsProvider); !ok {
		t.Error("expected NoopMetricsProvider for empty name")
	}

	// "noop" name returns noop
	provider, err = NewMetricsProviderByName(ctx, "noop", MetricsConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*NoopMetricsProvider); !ok {
		t.Error("expected NoopMetricsProvider for 'noop' name")
	}
}

func TestNewMetricsProviderByName_Unknown(t *testing.T) {
	ctx := context.Background()

	_, err := NewMetricsProviderByName(ctx, "unknown-provider", MetricsConfig{})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewTracingProviderByName_Noop(t *testing.T) {
	ctx := context.Background()

	provider, err := NewTracingProviderByName(ctx, "", MetricsConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*NoopTracingProvider); !ok {
		t.Error("expected NoopTracingProvider for empty name")
	}
}

func TestNewTracingProviderByName_Unknown(t *testing.T) {
	ctx := context.Background()

	_, err := NewTracingProviderByName(ctx, "unknown-tracer", MetricsConfig{})
	if err == nil {
		t.Error("expected error for unknown tracer")
	}
}

// Constants tests

func TestSpanKindConstants(t *testing.T) {
	if SpanKindInternal != 0 {
		t.Errorf("expected SpanKindInternal = 0, got %d", SpanKindInternal)
	}
	if SpanKindServer != 1 {
		t.Errorf("expected SpanKindServer = 1, got %d", SpanKindServer)
	}
	if SpanKindClient != 2 {
		t.Errorf("expected SpanKindClient = 2, got %d", SpanKindClient)
	}
}

func TestSpanStatusConstants(t *testing.T) {
	if SpanStatusUnset != 0 {
		t.Errorf("expected SpanStatusUnset = 0, got %d", SpanStatusUnset)
	}
	if SpanStatusOK != 1 {
		t.Errorf("expected SpanStatusOK = 1, got %d", SpanStatusOK)
	}
	if SpanStatusError != 2 {
		t.Errorf("expected SpanStatusError = 2, got %d", SpanStatusError)
	}
}

func TestSpanNameConstants(t *testing.T) {
	if SpanHTTPRequest != "http.request" {
		t.Errorf("expected SpanHTTPRequest = 'http.request', got %s", SpanHTTPRequest)
	}
	if SpanSampleIngest != "sample.ingest" {
		t.Errorf("expected SpanSampleIngest = 'sample.ingest', got %s", SpanSampleIngest)
	}
}

func TestAttributeKeyConstants(t *testing.T) {
	if AttrDeliveryID != "track.delivery.id" {
		t.Errorf("expected AttrDeliveryID = 'track.delivery.id', got %s", AttrDeliveryID)
	}
	if AttrHTTPMethod != "http.method" {
		t.Errorf("expected AttrHTTPMethod = 'http.method', got %s", AttrHTTPMethod)
	}
}
