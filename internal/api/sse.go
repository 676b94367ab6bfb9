package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ireoluwatomide/swift-track-relay/internal/auth"
	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

const sseKeepalive = 15 * time.Second

// followSSEHandler streams the same frames as the follow socket over
// Server-Sent Events, for clients behind proxies that break WebSockets.
// SSE is one-way: liveness is maintained server-side on every delivered
// frame and on each idle keepalive.
func (s *Server) followSSEHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	claims, token, err := s.authorizeRequest(r, deliveryID, domain.RoleCustomer)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	ctx, cancel := context.WithCancel(auth.WithToken(r.Context(), token))
	defer cancel()

	conn, _, err := s.registry.Register(ctx, deliveryID, domain.RoleCustomer, claims.Principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ConnectionOpened(ctx, string(domain.RoleCustomer))
	}
	s.cfg.ActivityLog.ConnectionOpened(deliveryID, conn.ID.String(), string(domain.RoleCustomer))
	s.manager.RegisterCloser(conn.ID, func(domain.CloseReason) {
		cancel()
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	primed, sub := s.dispatcher.Subscribe(ctx, deliveryID, conn.ID, parseSinceSeq(r))
	defer func() {
		sub.Close()
		s.dispatcher.Unsubscribe(conn.ID, deliveryID)
		s.manager.Disconnect(context.WithoutCancel(ctx), conn.ID, domain.CloseReasonDisconnect)
	}()

	for _, frame := range primed {
		if !writeSSEFrame(w, flusher, frame) {
			return
		}
	}

	for {
		nextCtx, cancelNext := context.WithTimeout(ctx, sseKeepalive)
		frame, err := sub.Next(nextCtx)
		cancelNext()
		if err != nil {
			if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
				return
			}
			// Idle interval: emit a comment so proxies keep the stream
			// open, and refresh the session.
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			if _, _, err := s.registry.Touch(conn.ID, time.Now()); err != nil {
				return
			}
			continue
		}
		if !writeSSEFrame(w, flusher, frame) {
			return
		}
		if _, _, err := s.registry.Touch(conn.ID, time.Now()); err != nil {
			return
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, frame dispatch.Frame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Kind, payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
