package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/auth"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/ingest"
)

// driverReadTimeout bounds how long the relay waits for anything from a
// driver socket before giving up on the transport. The lifecycle sweep
// closes the session well before this under normal operation.
const driverReadTimeout = 5 * time.Minute

// close codes surfaced to clients so they can distinguish "kicked by a
// newer session" from a network failure.
const (
	closeCodeSuperseded websocket.StatusCode = 4001
	closeCodeTerminal   websocket.StatusCode = 4002
	closeCodeTimeout    websocket.StatusCode = 4003
)

func closeStatus(reason domain.CloseReason) (websocket.StatusCode, string) {
	switch reason {
	case domain.CloseReasonSuperseded:
		return closeCodeSuperseded, string(reason)
	case domain.CloseReasonTerminal:
		return closeCodeTerminal, string(reason)
	case domain.CloseReasonTimeout:
		return closeCodeTimeout, string(reason)
	}
	return websocket.StatusNormalClosure, string(reason)
}

// registerCloseStatus maps a registration failure to the close code the
// client contract promises. Terminal deliveries get the terminal code so
// clients stop reconnecting.
func registerCloseStatus(err error) websocket.StatusCode {
	if errors.Is(err, domain.ErrDeliveryTerminal) {
		return closeCodeTerminal
	}
	return websocket.StatusPolicyViolation
}

// ackFrame confirms an accepted position to the driver.
type ackFrame struct {
	Type     string `json:"type"`
	Sequence uint64 `json:"sequence"`
}

// errorFrame reports a per-sample rejection without dropping the socket.
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// driverSocketHandler is the ingest transport: one authoritative driver
// session per delivery, publishing position and heartbeat frames.
func (s *Server) driverSocketHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	claims, token, err := s.authorizeRequest(r, deliveryID, domain.RoleDriver)
	if err != nil {
		writeError(w, err)
		return
	}

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		apiLog.Warn("websocket accept failed", "delivery_id", deliveryID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(auth.WithToken(r.Context(), token))
	defer cancel()

	conn, superseded, err := s.registry.Register(ctx, deliveryID, domain.RoleDriver, claims.Principal)
	if err != nil {
		sock.Close(registerCloseStatus(err), err.Error())
		return
	}
	if superseded != nil {
		s.manager.Supersede(ctx, superseded.ID, deliveryID)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ConnectionOpened(ctx, string(domain.RoleDriver))
	}
	s.cfg.ActivityLog.ConnectionOpened(deliveryID, conn.ID.String(), string(domain.RoleDriver))

	s.manager.RegisterCloser(conn.ID, func(reason domain.CloseReason) {
		code, msg := closeStatus(reason)
		sock.Close(code, msg)
		cancel()
	})

	s.driverReadLoop(ctx, sock, conn.ID, deliveryID)

	s.gateway.Forget(conn.ID)
	s.manager.Disconnect(context.WithoutCancel(ctx), conn.ID, domain.CloseReasonDisconnect)
	sock.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) driverReadLoop(ctx context.Context, sock *websocket.Conn, connID uuid.UUID, deliveryID string) {
	for {
		readCtx, cancelRead := context.WithTimeout(ctx, driverReadTimeout)
		_, data, err := sock.Read(readCtx)
		cancelRead()
		if err != nil {
			return
		}

		frame, err := ingest.DecodeReport(data)
		if err != nil {
			s.sendJSON(ctx, sock, errorFrame{Type: "error", Error: err.Error()})
			continue
		}

		switch frame.Type {
		case ingest.FrameTypeHeartbeat:
			if err := s.gateway.Heartbeat(ctx, connID); err != nil {
				return
			}
		case ingest.FrameTypePosition:
			sample, err := s.gateway.SubmitPosition(ctx, connID, frame.RawSample())
			switch {
			case err == nil:
				if !s.sendJSON(ctx, sock, ackFrame{Type: "ack", Sequence: sample.Sequence}) {
					return
				}
			case errors.Is(err, domain.ErrNotAuthorizedDriver):
				code, msg := closeStatus(domain.CloseReasonSuperseded)
				sock.Close(code, msg)
				return
			case errors.Is(err, domain.ErrDeliveryTerminal):
				code, msg := closeStatus(domain.CloseReasonTerminal)
				sock.Close(code, msg)
				return
			case errors.Is(err, domain.ErrSampleThrottled):
				// Dropped quietly; the next report after the interval lands.
			case errors.Is(err, domain.ErrInvalidSample):
				if !s.sendJSON(ctx, sock, errorFrame{Type: "error", Error: err.Error()}) {
					return
				}
			default:
				apiLog.Error("ingest failed", "delivery_id", deliveryID, "error", err)
				return
			}
		}
	}
}

// followSocketHandler streams position, presence and gap frames to a
// customer over WebSocket. Replay is primed from since_seq when given.
func (s *Server) followSocketHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID := chi.URLParam(r, "deliveryID")
	claims, token, err := s.authorizeRequest(r, deliveryID, domain.RoleCustomer)
	if err != nil {
		writeError(w, err)
		return
	}
	sinceSeq := parseSinceSeq(r)

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		apiLog.Warn("websocket accept failed", "delivery_id", deliveryID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(auth.WithToken(r.Context(), token))
	defer cancel()

	conn, _, err := s.registry.Register(ctx, deliveryID, domain.RoleCustomer, claims.Principal)
	if err != nil {
		sock.Close(registerCloseStatus(err), err.Error())
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ConnectionOpened(ctx, string(domain.RoleCustomer))
	}
	s.cfg.ActivityLog.ConnectionOpened(deliveryID, conn.ID.String(), string(domain.RoleCustomer))

	s.manager.RegisterCloser(conn.ID, func(reason domain.CloseReason) {
		code, msg := closeStatus(reason)
		sock.Close(code, msg)
		cancel()
	})

	primed, sub := s.dispatcher.Subscribe(ctx, deliveryID, conn.ID, sinceSeq)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		defer cancel()
		for _, frame := range primed {
			if !s.writeFrame(ctx, sock, frame) {
				return
			}
		}
		for {
			frame, err := sub.Next(ctx)
			if err != nil {
				return
			}
			if !s.writeFrame(ctx, sock, frame) {
				return
			}
		}
	}()

	// Read pump: anything the client sends counts as liveness; a read
	// error means the transport is gone.
	for {
		if _, _, err := sock.Read(ctx); err != nil {
			break
		}
		if _, _, err := s.registry.Touch(conn.ID, time.Now()); err != nil {
			break
		}
	}

	cancel()
	<-writeDone
	sub.Close()
	s.dispatcher.Unsubscribe(conn.ID, deliveryID)
	s.manager.Disconnect(context.WithoutCancel(ctx), conn.ID, domain.CloseReasonDisconnect)
	sock.Close(websocket.StatusNormalClosure, "")
}

// writeFrame writes one outbound frame within the dispatcher's send
// budget. A timeout means the consumer is stuck; the transport is dropped
// rather than buffered without bound.
func (s *Server) writeFrame(ctx context.Context, sock *websocket.Conn, frame any) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.dispatcher.SendTimeout())
	defer cancel()
	if err := sock.Write(writeCtx, websocket.MessageText, payload); err != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.FanoutDropped(ctx, "send_timeout")
		}
		return false
	}
	return true
}

func (s *Server) sendJSON(ctx context.Context, sock *websocket.Conn, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		return false
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.dispatcher.SendTimeout())
	defer cancel()
	return sock.Write(writeCtx, websocket.MessageText, payload) == nil
}

func parseSinceSeq(r *http.Request) uint64 {
	raw := r.URL.Query().Get("since_seq")
	if raw == "" {
		return 0
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}
