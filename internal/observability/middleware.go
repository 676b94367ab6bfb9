package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// HTTPMiddleware records request metrics and wraps each request in a
// server span. Either argument may be nil to disable that concern.
func HTTPMiddleware(metrics *Metrics, tracer *Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			if tracer != nil {
				// Join the caller's trace before opening our span.
				ctx = tracer.Extract(ctx, HTTPHeaderCarrier(r.Header))

				var span Span
				ctx, span = tracer.StartSpan(ctx, SpanHTTPRequest,
					WithSpanKind(SpanKindServer),
					WithAttributes(map[string]any{
						AttrHTTPMethod: r.Method,
						AttrHTTPURL:    r.URL.String(),
					}),
				)
				defer span.End()
			}

			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			status := wrapped.Status()
			if metrics != nil {
				statusStr := strconv.Itoa(status)
				metrics.HTTPRequestTotal(ctx, r.Method, r.URL.Path, statusStr)
				metrics.HTTPRequestDuration(ctx, r.Method, r.URL.Path, time.Since(start))
			}

			if tracer != nil {
				span := tracer.SpanFromContext(ctx)
				span.SetAttribute(AttrHTTPStatusCode, status)
				if status >= 400 {
					span.SetStatus(SpanStatusError, http.StatusText(status))
				} else {
					span.SetStatus(SpanStatusOK, "")
				}
			}
		})
	}
}

// MetricsOnlyMiddleware records metrics without tracing.
func MetricsOnlyMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return HTTPMiddleware(metrics, nil)
}

// TracingOnlyMiddleware traces without recording metrics.
func TracingOnlyMiddleware(tracer *Tracer) func(http.Handler) http.Handler {
	return HTTPMiddleware(nil, tracer)
}
