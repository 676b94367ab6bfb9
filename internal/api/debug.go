package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/logstream"
)

// debugDeliveriesHandler lists every delivery with live state.
func (s *Server) debugDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Inspector.Deliveries())
}

// debugDeliveryHandler shows one delivery's stream and sessions.
func (s *Server) debugDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	status, ok := s.cfg.Inspector.Delivery(deliveryID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no live state for delivery"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// debugActivityHandler tails the relay's activity stream over SSE.
// Optional query filters: delivery_id (repeatable), kind (repeatable),
// level.
func (s *Server) debugActivityHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	query := r.URL.Query()
	filter := &logstream.Filter{
		DeliveryIDs: query["delivery_id"],
		Kinds:       query["kind"],
		Level:       query.Get("level"),
	}

	subID := uuid.NewString()
	sub := s.cfg.Activity.Subscribe(subID, filter)
	defer s.cfg.Activity.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case entry, ok := <-sub.Ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: activity\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
