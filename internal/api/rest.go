package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/pkg/geo"
)

// positionResponse is the REST snapshot of a delivery.
type positionResponse struct {
	DeliveryID string                 `json:"delivery_id"`
	Position   *domain.PositionSample `json:"position,omitempty"`
	Presence   *dispatch.Presence     `json:"presence,omitempty"`
}

// positionsResponse is a replay page.
type positionsResponse struct {
	DeliveryID string                  `json:"delivery_id"`
	Samples    []domain.PositionSample `json:"samples"`
	Gapped     bool                    `json:"gapped"`
	Source     string                  `json:"source"`
}

// etaResponse estimates arrival at a destination from the latest fix.
type etaResponse struct {
	DeliveryID     string  `json:"delivery_id"`
	DistanceMeters float64 `json:"distance_meters"`
	ETASeconds     float64 `json:"eta_seconds,omitempty"`
	Estimable      bool    `json:"estimable"`
}

// latestPositionHandler returns the last known position and driver
// presence without a socket. Served from the in-memory stream; falls back
// to the Redis snapshot after a relay restart.
func (s *Server) latestPositionHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	if _, _, err := s.authorizeRequest(r, deliveryID, domain.RoleCustomer); err != nil {
		writeError(w, err)
		return
	}

	resp := positionResponse{DeliveryID: deliveryID}

	if st, ok := s.streams.Get(deliveryID); ok {
		if latest, ok := st.Latest(); ok {
			resp.Position = &latest
		}
	}
	if resp.Position == nil && s.cfg.Snapshots != nil {
		if sample, ok, err := s.cfg.Snapshots.GetLatest(r.Context(), deliveryID); err == nil && ok {
			resp.Position = &sample
		}
	}
	resp.Presence = s.presenceFor(r, deliveryID)

	if resp.Position == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no position recorded"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// presenceFor derives driver presence from the live registry, falling back
// to the persisted snapshot.
func (s *Server) presenceFor(r *http.Request, deliveryID string) *dispatch.Presence {
	if conn, ok := s.registry.DriverConnection(deliveryID); ok && conn.IsLive() {
		status := dispatch.PresenceOnline
		if conn.State == domain.ConnStale {
			status = dispatch.PresenceOffline
		}
		return &dispatch.Presence{Status: status, LastSeenAt: conn.LastSeenAt}
	}
	if s.cfg.Snapshots != nil {
		if p, ok, err := s.cfg.Snapshots.GetPresence(r.Context(), deliveryID); err == nil && ok {
			return &dispatch.Presence{Status: dispatch.PresenceStatus(p.Status), LastSeenAt: p.LastSeenAt}
		}
	}
	return nil
}

// positionsHandler replays samples after since_seq. The in-memory ring
// serves the live window; older ranges come from the history store when
// one is configured.
func (s *Server) positionsHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	if _, _, err := s.authorizeRequest(r, deliveryID, domain.RoleCustomer); err != nil {
		writeError(w, err)
		return
	}
	sinceSeq := parseSinceSeq(r)

	resp := positionsResponse{DeliveryID: deliveryID, Samples: []domain.PositionSample{}}

	if st, ok := s.streams.Get(deliveryID); ok {
		samples, gapped := st.ReplaySince(sinceSeq)
		if !gapped {
			resp.Samples = samples
			resp.Source = "live"
			writeJSON(w, http.StatusOK, resp)
			return
		}
		resp.Gapped = true
	}

	if s.cfg.History != nil {
		samples, err := s.cfg.History.ListRange(r.Context(), deliveryID, sinceSeq, 1000)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Samples = samples
		resp.Gapped = false
		resp.Source = "history"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if st, ok := s.streams.Get(deliveryID); ok {
		samples, _ := st.ReplaySince(sinceSeq)
		resp.Samples = samples
		resp.Source = "live"
	}
	writeJSON(w, http.StatusOK, resp)
}

// etaHandler estimates arrival at dest_lat/dest_lng from the latest fix
// and recent ground speed.
func (s *Server) etaHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	if _, _, err := s.authorizeRequest(r, deliveryID, domain.RoleCustomer); err != nil {
		writeError(w, err)
		return
	}

	destLat, errLat := strconv.ParseFloat(r.URL.Query().Get("dest_lat"), 64)
	destLng, errLng := strconv.ParseFloat(r.URL.Query().Get("dest_lng"), 64)
	if errLat != nil || errLng != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dest_lat and dest_lng are required"})
		return
	}

	st, ok := s.streams.Get(deliveryID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no position recorded"})
		return
	}
	latest, ok := st.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no position recorded"})
		return
	}

	from := geo.Point{Lat: latest.Lat, Lng: latest.Lng}
	dest := geo.Point{Lat: destLat, Lng: destLng}

	speed := 0.0
	if latest.Speed != nil {
		speed = *latest.Speed
	}
	if speed <= 0 {
		recent, _ := st.ReplaySince(0)
		fixes := make([]geo.Fix, 0, len(recent))
		for _, sample := range recent {
			fixes = append(fixes, geo.Fix{Point: geo.Point{Lat: sample.Lat, Lng: sample.Lng}, At: sample.Timestamp})
		}
		speed = geo.AverageSpeed(fixes)
	}

	resp := etaResponse{
		DeliveryID:     deliveryID,
		DistanceMeters: geo.DistanceMeters(from, dest),
	}
	if eta, ok := geo.EstimateETA(from, dest, speed); ok {
		resp.ETASeconds = eta.Seconds()
		resp.Estimable = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// adminMiddleware guards the ordering-system routes with a shared key.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if s.cfg.AdminKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "admin key required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registerDeliveryHandler makes a delivery known to the relay.
func (s *Server) registerDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	s.deliveries.Register(deliveryID)
	writeJSON(w, http.StatusCreated, map[string]string{"delivery_id": deliveryID, "status": "active"})
}

// terminalDeliveryHandler marks a delivery terminal. The lifecycle sweep
// tears the stream and its connections down on its next pass.
func (s *Server) terminalDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	s.deliveries.MarkTerminal(deliveryID)
	writeJSON(w, http.StatusOK, map[string]string{"delivery_id": deliveryID, "status": "terminal"})
}

// purgeHistoryHandler deletes the persisted trail for a delivery, for
// data-removal requests from the ordering system. The live ring and the
// snapshot are untouched; the lifecycle sweep reclaims those.
func (s *Server) purgeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	if err := s.cfg.History.DeleteDelivery(r.Context(), deliveryID); err != nil {
		apiLog.Error("history purge failed", "delivery_id", deliveryID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history purge failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"delivery_id": deliveryID, "history": "purged"})
}

// mintTokenRequest is the ordering system's token request.
type mintTokenRequest struct {
	Role      domain.Role      `json:"role"`
	Principal domain.Principal `json:"principal"`
}

// mintTokenHandler issues a capability token binding a principal to one
// delivery and role.
func (s *Server) mintTokenHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")

	var req mintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.Role != domain.RoleDriver && req.Role != domain.RoleCustomer {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be driver or customer"})
		return
	}

	token, err := s.codec.Mint(deliveryID, req.Principal, req.Role, time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": token})
}
