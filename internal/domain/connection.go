package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two connection roles on a delivery.
type Role string

const (
	RoleDriver   Role = "driver"
	RoleCustomer Role = "customer"
)

// ConnState is the lifecycle state of a connection.
// Transitions: Connecting -> Active -> Stale -> Closed, with Stale -> Active
// on revival. Closed is terminal.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnActive     ConnState = "active"
	ConnStale      ConnState = "stale"
	ConnClosed     ConnState = "closed"
)

// CloseReason records why a connection reached Closed, so clients can tell
// "kicked by a newer session" apart from a network failure and avoid
// reconnect loops.
type CloseReason string

const (
	CloseReasonNone         CloseReason = ""
	CloseReasonDisconnect   CloseReason = "client_disconnect"
	CloseReasonTimeout      CloseReason = "heartbeat_timeout"
	CloseReasonSuperseded   CloseReason = "superseded"
	CloseReasonTerminal     CloseReason = "delivery_terminal"
	CloseReasonUnauthorized CloseReason = "unauthorized"
)

// Connection represents one driver or customer socket session for a delivery.
// The session registry owns all mutation; everything handed outside the
// registry is a value snapshot.
type Connection struct {
	ID           uuid.UUID
	DeliveryID   string
	Role         Role
	Principal    Principal
	State        ConnState
	CloseReason  CloseReason
	AuthorizedAt time.Time
	LastSeenAt   time.Time
}

// NewConnection creates a connection in the Connecting state.
func NewConnection(deliveryID string, role Role, principal Principal, now time.Time) *Connection {
	return &Connection{
		ID:           uuid.New(),
		DeliveryID:   deliveryID,
		Role:         role,
		Principal:    principal,
		State:        ConnConnecting,
		AuthorizedAt: now.UTC(),
		LastSeenAt:   now.UTC(),
	}
}

// Snapshot returns a point-in-time copy of the connection.
func (c *Connection) Snapshot() Connection {
	return *c
}

// IsLive reports whether the connection still participates in the delivery
// (Active or Stale, but not yet Closed).
func (c *Connection) IsLive() bool {
	return c.State == ConnActive || c.State == ConnStale
}

// CanTransition reports whether the state machine permits moving to next.
func (c *Connection) CanTransition(next ConnState) bool {
	switch c.State {
	case ConnConnecting:
		return next == ConnActive || next == ConnClosed
	case ConnActive:
		return next == ConnStale || next == ConnClosed
	case ConnStale:
		return next == ConnActive || next == ConnClosed
	case ConnClosed:
		return false
	}
	return false
}
