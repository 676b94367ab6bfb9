// Package registry implements the session registry: live driver and
// customer connections per delivery, with authorization on registration and
// the at-most-one-authoritative-driver rule.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/auth"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
)

var log = logging.Component("registry")

const shardCount = 16

// Registry tracks live connections per delivery. Entries are partitioned by
// delivery ID so registering a connection for one delivery never blocks
// reads for another; connection lookups go through a separate index so
// unregister stays idempotent and cheap.
type Registry struct {
	shards     [shardCount]*shard
	authorizer auth.Authorizer
	lifecycle  domain.DeliveryLifecycle

	connMu sync.RWMutex
	conns  map[uuid.UUID]string // connection ID -> delivery ID
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	driver    *domain.Connection
	customers map[uuid.UUID]*domain.Connection
}

// New creates a session registry backed by the given authorizer and
// delivery lifecycle.
func New(authorizer auth.Authorizer, lifecycle domain.DeliveryLifecycle) *Registry {
	r := &Registry{
		authorizer: authorizer,
		lifecycle:  lifecycle,
		conns:      make(map[uuid.UUID]string),
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shardFor(deliveryID string) *shard {
	return r.shards[fnv32(deliveryID)%shardCount]
}

// Register authorizes and registers a connection for a delivery. For a
// driver registration that displaces an existing live driver, the displaced
// connection snapshot is returned so the caller can close its transport
// with the superseded reason.
func (r *Registry) Register(ctx context.Context, deliveryID string, role domain.Role, principal domain.Principal) (domain.Connection, *domain.Connection, error) {
	if err := r.authorizer.Authorize(ctx, deliveryID, principal, role); err != nil {
		return domain.Connection{}, nil, err
	}

	terminal, err := r.lifecycle.IsTerminal(ctx, deliveryID)
	if err != nil {
		return domain.Connection{}, nil, err
	}
	if terminal {
		return domain.Connection{}, nil, domain.ErrDeliveryTerminal
	}

	now := time.Now()
	conn := domain.NewConnection(deliveryID, role, principal, now)
	conn.State = domain.ConnActive

	sh := r.shardFor(deliveryID)
	sh.mu.Lock()
	e, ok := sh.entries[deliveryID]
	if !ok {
		e = &entry{customers: make(map[uuid.UUID]*domain.Connection)}
		sh.entries[deliveryID] = e
	}

	var superseded *domain.Connection
	switch role {
	case domain.RoleDriver:
		if e.driver != nil && e.driver.IsLive() {
			e.driver.State = domain.ConnClosed
			e.driver.CloseReason = domain.CloseReasonSuperseded
			old := e.driver.Snapshot()
			superseded = &old
		}
		e.driver = conn
	case domain.RoleCustomer:
		e.customers[conn.ID] = conn
	}
	sh.mu.Unlock()

	r.connMu.Lock()
	r.conns[conn.ID] = deliveryID
	if superseded != nil {
		delete(r.conns, superseded.ID)
	}
	r.connMu.Unlock()

	if superseded != nil {
		log.Info("driver connection superseded",
			"delivery_id", deliveryID,
			"old_connection_id", superseded.ID,
			"new_connection_id", conn.ID,
		)
	}
	log.Debug("connection registered",
		"delivery_id", deliveryID,
		"connection_id", conn.ID,
		"role", role,
	)

	return conn.Snapshot(), superseded, nil
}

// Unregister removes a connection. Idempotent: unknown IDs are a no-op.
// Returns the final snapshot when the connection was present.
func (r *Registry) Unregister(connID uuid.UUID) (domain.Connection, bool) {
	r.connMu.Lock()
	deliveryID, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.connMu.Unlock()
	if !ok {
		return domain.Connection{}, false
	}

	sh := r.shardFor(deliveryID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[deliveryID]
	if !ok {
		return domain.Connection{}, false
	}

	var snap domain.Connection
	found := false
	if e.driver != nil && e.driver.ID == connID {
		if e.driver.State != domain.ConnClosed {
			e.driver.State = domain.ConnClosed
			if e.driver.CloseReason == domain.CloseReasonNone {
				e.driver.CloseReason = domain.CloseReasonDisconnect
			}
		}
		snap = e.driver.Snapshot()
		e.driver = nil
		found = true
	} else if c, ok := e.customers[connID]; ok {
		if c.State != domain.ConnClosed {
			c.State = domain.ConnClosed
			if c.CloseReason == domain.CloseReasonNone {
				c.CloseReason = domain.CloseReasonDisconnect
			}
		}
		snap = c.Snapshot()
		delete(e.customers, connID)
		found = true
	}

	if e.driver == nil && len(e.customers) == 0 {
		delete(sh.entries, deliveryID)
	}

	if found {
		log.Debug("connection unregistered",
			"delivery_id", deliveryID,
			"connection_id", connID,
			"reason", snap.CloseReason,
		)
	}
	return snap, found
}

// Get returns a point-in-time snapshot of a connection.
func (r *Registry) Get(connID uuid.UUID) (domain.Connection, bool) {
	conn, _, ok := r.locate(connID)
	if !ok {
		return domain.Connection{}, false
	}
	return conn, true
}

// locate finds the live connection pointer under its shard lock and returns
// a snapshot plus the delivery ID.
func (r *Registry) locate(connID uuid.UUID) (domain.Connection, string, bool) {
	r.connMu.RLock()
	deliveryID, ok := r.conns[connID]
	r.connMu.RUnlock()
	if !ok {
		return domain.Connection{}, "", false
	}

	sh := r.shardFor(deliveryID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[deliveryID]
	if !ok {
		return domain.Connection{}, "", false
	}
	if e.driver != nil && e.driver.ID == connID {
		return e.driver.Snapshot(), deliveryID, true
	}
	if c, ok := e.customers[connID]; ok {
		return c.Snapshot(), deliveryID, true
	}
	return domain.Connection{}, "", false
}

// IsAuthoritativeDriver reports whether connID is the current live driver
// connection for its delivery.
func (r *Registry) IsAuthoritativeDriver(connID uuid.UUID) bool {
	conn, _, ok := r.locate(connID)
	return ok && conn.Role == domain.RoleDriver && conn.State != domain.ConnClosed
}

// Touch refreshes a connection's lastSeenAt and revives a Stale connection
// back to Active. Returns the updated snapshot and whether the touch
// revived it.
func (r *Registry) Touch(connID uuid.UUID, now time.Time) (domain.Connection, bool, error) {
	r.connMu.RLock()
	deliveryID, ok := r.conns[connID]
	r.connMu.RUnlock()
	if !ok {
		return domain.Connection{}, false, domain.ErrConnectionNotFound
	}

	sh := r.shardFor(deliveryID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[deliveryID]
	if !ok {
		return domain.Connection{}, false, domain.ErrConnectionNotFound
	}

	var conn *domain.Connection
	if e.driver != nil && e.driver.ID == connID {
		conn = e.driver
	} else if c, ok := e.customers[connID]; ok {
		conn = c
	}
	if conn == nil {
		return domain.Connection{}, false, domain.ErrConnectionNotFound
	}
	if conn.State == domain.ConnClosed {
		return conn.Snapshot(), false, domain.ErrConnectionClosed
	}

	revived := conn.State == domain.ConnStale
	conn.State = domain.ConnActive
	conn.LastSeenAt = now.UTC()
	return conn.Snapshot(), revived, nil
}

// MarkStale transitions an Active connection to Stale. Returns the updated
// snapshot; no-op for connections not currently Active.
func (r *Registry) MarkStale(connID uuid.UUID) (domain.Connection, bool) {
	return r.transition(connID, func(conn *domain.Connection) bool {
		if conn.State != domain.ConnActive {
			return false
		}
		conn.State = domain.ConnStale
		return true
	})
}

// MarkClosed transitions a connection to Closed with the given reason
// without removing it; callers follow up with Unregister. Returns the
// updated snapshot.
func (r *Registry) MarkClosed(connID uuid.UUID, reason domain.CloseReason) (domain.Connection, bool) {
	return r.transition(connID, func(conn *domain.Connection) bool {
		if conn.State == domain.ConnClosed {
			return false
		}
		conn.State = domain.ConnClosed
		conn.CloseReason = reason
		return true
	})
}

func (r *Registry) transition(connID uuid.UUID, apply func(*domain.Connection) bool) (domain.Connection, bool) {
	r.connMu.RLock()
	deliveryID, ok := r.conns[connID]
	r.connMu.RUnlock()
	if !ok {
		return domain.Connection{}, false
	}

	sh := r.shardFor(deliveryID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[deliveryID]
	if !ok {
		return domain.Connection{}, false
	}

	var conn *domain.Connection
	if e.driver != nil && e.driver.ID == connID {
		conn = e.driver
	} else if c, ok := e.customers[connID]; ok {
		conn = c
	}
	if conn == nil {
		return domain.Connection{}, false
	}
	if !apply(conn) {
		return conn.Snapshot(), false
	}
	return conn.Snapshot(), true
}

// ListCustomerConnections returns a point-in-time snapshot of the live
// customer connections for a delivery. Used by the dispatcher; never
// blocks ingestion for other deliveries.
func (r *Registry) ListCustomerConnections(deliveryID string) []domain.Connection {
	sh := r.shardFor(deliveryID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[deliveryID]
	if !ok {
		return nil
	}
	out := make([]domain.Connection, 0, len(e.customers))
	for _, c := range e.customers {
		if c.IsLive() {
			out = append(out, c.Snapshot())
		}
	}
	return out
}

// DriverConnection returns the current driver connection snapshot for a
// delivery, if any.
func (r *Registry) DriverConnection(deliveryID string) (domain.Connection, bool) {
	sh := r.shardFor(deliveryID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[deliveryID]
	if !ok || e.driver == nil {
		return domain.Connection{}, false
	}
	return e.driver.Snapshot(), true
}

// HasConnections reports whether any connection remains for a delivery.
func (r *Registry) HasConnections(deliveryID string) bool {
	sh := r.shardFor(deliveryID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[deliveryID]
	return ok && (e.driver != nil || len(e.customers) > 0)
}

// ConnectionCount returns the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.conns)
}

// Snapshot returns point-in-time copies of every registered connection.
// Used by the lifecycle manager's sweep; taken shard by shard so a sweep
// never holds a global lock.
func (r *Registry) Snapshot() []domain.Connection {
	var out []domain.Connection
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			if e.driver != nil {
				out = append(out, e.driver.Snapshot())
			}
			for _, c := range e.customers {
				out = append(out, c.Snapshot())
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
