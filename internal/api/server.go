// Package api exposes the relay over HTTP: WebSocket ingest and follow,
// SSE follow for browsers that cannot hold a socket, and a small REST
// surface for snapshots, history and delivery administration.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Ireoluwatomide/swift-track-relay/internal/auth"
	"github.com/Ireoluwatomide/swift-track-relay/internal/debug"
	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/ingest"
	"github.com/Ireoluwatomide/swift-track-relay/internal/lifecycle"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logstream"
	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
	"github.com/Ireoluwatomide/swift-track-relay/internal/registry"
	"github.com/Ireoluwatomide/swift-track-relay/internal/snapshot"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

var apiLog = logging.Component("api")

// HistoryStore is the slice of the durable history store the API reads
// and administers. Satisfied by *history.Store, and by fakes in tests.
type HistoryStore interface {
	ListRange(ctx context.Context, deliveryID string, sinceSeq uint64, limit int) ([]domain.PositionSample, error)
	DeleteDelivery(ctx context.Context, deliveryID string) error
}

// ServerConfig holds optional server wiring.
type ServerConfig struct {
	MetricsHandler http.Handler           // Optional Prometheus metrics handler
	Metrics        *observability.Metrics // Optional metrics wrapper
	Tracer         *observability.Tracer  // Optional tracer
	Snapshots      *snapshot.Store        // Optional snapshot reads for REST
	History        HistoryStore           // Optional history reads and purges for REST
	AdminKey       string                 // Key required on delivery admin routes
	Inspector      *debug.Inspector       // Optional live-state introspection
	Activity       *logstream.Hub         // Optional operator activity stream
	ActivityLog    *logstream.TrackLogger // Optional activity publisher for transports
}

// Server wires the tracking relay's HTTP surface.
type Server struct {
	router     *chi.Mux
	registry   *registry.Registry
	streams    *stream.Streams
	gateway    *ingest.Gateway
	dispatcher *dispatch.Dispatcher
	manager    *lifecycle.Manager
	deliveries *domain.StaticLifecycle
	codec      *auth.TokenCodec
	cfg        ServerConfig
}

// NewServer creates the HTTP server.
func NewServer(
	reg *registry.Registry,
	streams *stream.Streams,
	gateway *ingest.Gateway,
	dispatcher *dispatch.Dispatcher,
	manager *lifecycle.Manager,
	deliveries *domain.StaticLifecycle,
	codec *auth.TokenCodec,
	cfg ServerConfig,
) *Server {
	s := &Server{
		registry:   reg,
		streams:    streams,
		gateway:    gateway,
		dispatcher: dispatcher,
		manager:    manager,
		deliveries: deliveries,
		codec:      codec,
		cfg:        cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware())
	if cfg.Metrics != nil || cfg.Tracer != nil {
		r.Use(observability.HTTPMiddleware(cfg.Metrics, cfg.Tracer))
	}

	r.Get("/health", s.healthHandler)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Live transports. Sockets outlive the request, so no timeout
	// middleware on these routes.
	r.Get("/ws/deliveries/{deliveryID}/driver", s.driverSocketHandler)
	r.Get("/ws/deliveries/{deliveryID}/follow", s.followSocketHandler)
	r.Get("/sse/deliveries/{deliveryID}/follow", s.followSSEHandler)

	// REST reads.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/deliveries/{deliveryID}/position", s.latestPositionHandler)
		r.Get("/deliveries/{deliveryID}/positions", s.positionsHandler)
		r.Get("/deliveries/{deliveryID}/eta", s.etaHandler)
	})

	// Delivery administration for the ordering system.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(s.adminMiddleware)
		r.Post("/deliveries/{deliveryID}", s.registerDeliveryHandler)
		r.Post("/deliveries/{deliveryID}/terminal", s.terminalDeliveryHandler)
		r.Post("/deliveries/{deliveryID}/tokens", s.mintTokenHandler)
		if cfg.History != nil {
			r.Delete("/deliveries/{deliveryID}/history", s.purgeHistoryHandler)
		}
	})

	// Operator introspection. The activity tail is an SSE stream, so no
	// timeout middleware here either.
	if cfg.Inspector != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Get("/debug/deliveries", s.debugDeliveriesHandler)
			r.Get("/debug/deliveries/{deliveryID}", s.debugDeliveryHandler)
			if cfg.Activity != nil {
				r.Get("/debug/activity", s.debugActivityHandler)
			}
		})
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorizeRequest verifies the presented token for the delivery and role
// and returns the claims. The token comes from the Authorization bearer
// header or, for browser transports that cannot set headers, the token
// query parameter.
func (s *Server) authorizeRequest(r *http.Request, deliveryID string, role domain.Role) (auth.Claims, string, error) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return auth.Claims{}, "", domain.ErrUnauthorized
	}

	claims, err := s.codec.Verify(token, time.Now())
	if err != nil {
		return auth.Claims{}, "", err
	}
	if claims.DeliveryID != deliveryID || claims.Role != role {
		return auth.Claims{}, "", domain.ErrUnauthorized
	}
	return claims, token, nil
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrDeliveryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDeliveryTerminal):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSample):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func loggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			apiLog.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
