// Package lifecycle drives connection state transitions and stream
// garbage collection. A periodic sweep marks idle connections Stale,
// closes the ones past the close timeout, and tears down streams for
// terminal or abandoned deliveries.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logstream"
	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
	"github.com/Ireoluwatomide/swift-track-relay/internal/registry"
	"github.com/Ireoluwatomide/swift-track-relay/internal/snapshot"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

var log = logging.Component("lifecycle")

// SnapshotStore is the slice of the snapshot store the manager needs.
// nil disables snapshot maintenance.
type SnapshotStore interface {
	SetPresence(ctx context.Context, deliveryID string, presence snapshot.Presence) error
	Delete(ctx context.Context, deliveryID string) error
}

// Closer shuts a connection's transport with the given reason. Transports
// register one per connection; the manager calls it when it closes a
// connection server-side.
type Closer func(reason domain.CloseReason)

// Config holds the sweep timings.
type Config struct {
	CheckInterval time.Duration
	StaleTimeout  time.Duration
	CloseTimeout  time.Duration
	StreamTTL     time.Duration
}

// Manager owns the sweep loop.
type Manager struct {
	cfg        Config
	registry   *registry.Registry
	streams    *stream.Streams
	dispatcher *dispatch.Dispatcher
	lifecycle  domain.DeliveryLifecycle
	snapshots  SnapshotStore
	metrics    *observability.Metrics
	activity   *logstream.TrackLogger

	mu      sync.Mutex
	closers map[uuid.UUID]Closer

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewManager creates a lifecycle manager. snapshots may be nil.
func NewManager(
	cfg Config,
	reg *registry.Registry,
	streams *stream.Streams,
	dispatcher *dispatch.Dispatcher,
	lifecycle domain.DeliveryLifecycle,
	snapshots SnapshotStore,
	metrics *observability.Metrics,
) *Manager {
	return &Manager{
		cfg:        cfg,
		registry:   reg,
		streams:    streams,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		snapshots:  snapshots,
		metrics:    metrics,
		closers:    make(map[uuid.UUID]Closer),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetActivity attaches the operator activity stream. Optional.
func (m *Manager) SetActivity(logger *logstream.TrackLogger) {
	m.activity = logger
}

// RegisterCloser attaches a transport close hook for a connection.
func (m *Manager) RegisterCloser(connID uuid.UUID, closer Closer) {
	m.mu.Lock()
	m.closers[connID] = closer
	m.mu.Unlock()
}

// takeCloser removes and returns the closer for a connection, if any.
func (m *Manager) takeCloser(connID uuid.UUID) (Closer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closer, ok := m.closers[connID]
	if ok {
		delete(m.closers, connID)
	}
	return closer, ok
}

// Start launches the sweep loop.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop halts the sweep loop.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx, time.Now())
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass of connection and stream maintenance at the given
// time. Exposed so callers and tests can drive it deterministically.
func (m *Manager) Sweep(ctx context.Context, now time.Time) {
	m.sweepConnections(ctx, now)
	m.sweepStreams(ctx, now)

	if m.metrics != nil {
		m.metrics.ConnectionsActive(ctx, int64(m.registry.ConnectionCount()))
		m.metrics.StreamsActive(ctx, int64(m.streams.Count()))
	}
}

func (m *Manager) sweepConnections(ctx context.Context, now time.Time) {
	for _, conn := range m.registry.Snapshot() {
		idle := now.Sub(conn.LastSeenAt)

		switch conn.State {
		case domain.ConnActive:
			if idle >= m.cfg.StaleTimeout {
				if _, ok := m.registry.MarkStale(conn.ID); ok {
					log.Debug("connection stale",
						"delivery_id", conn.DeliveryID,
						"connection_id", conn.ID,
						"idle", idle,
					)
					if conn.Role == domain.RoleDriver {
						m.driverOffline(ctx, conn.DeliveryID, conn.LastSeenAt)
					}
				}
			}
		case domain.ConnStale:
			if idle >= m.cfg.CloseTimeout {
				m.closeConnection(ctx, conn.ID, domain.CloseReasonTimeout)
			}
		}
	}
}

func (m *Manager) sweepStreams(ctx context.Context, now time.Time) {
	type victim struct {
		deliveryID string
		reason     string
	}
	var victims []victim

	m.streams.ForEach(func(st *stream.Stream) {
		deliveryID := st.DeliveryID()

		terminal, err := m.lifecycle.IsTerminal(ctx, deliveryID)
		if err == nil && terminal {
			victims = append(victims, victim{deliveryID, "terminal"})
			return
		}

		if m.cfg.StreamTTL > 0 &&
			now.Sub(st.LastAppend()) >= m.cfg.StreamTTL &&
			!m.registry.HasConnections(deliveryID) {
			victims = append(victims, victim{deliveryID, "ttl"})
		}
	})

	for _, v := range victims {
		m.teardownDelivery(ctx, v.deliveryID, v.reason)
	}
}

// teardownDelivery closes every connection for the delivery, detaches its
// subscribers, and evicts the stream and snapshot.
func (m *Manager) teardownDelivery(ctx context.Context, deliveryID, reason string) {
	closeReason := domain.CloseReasonTimeout
	if reason == "terminal" {
		closeReason = domain.CloseReasonTerminal
	}

	if conn, ok := m.registry.DriverConnection(deliveryID); ok {
		m.closeConnection(ctx, conn.ID, closeReason)
	}
	for _, conn := range m.registry.ListCustomerConnections(deliveryID) {
		m.closeConnection(ctx, conn.ID, closeReason)
	}

	m.dispatcher.CloseDelivery(deliveryID)
	m.streams.Evict(deliveryID)
	if m.snapshots != nil {
		if err := m.snapshots.Delete(ctx, deliveryID); err != nil {
			log.Warn("snapshot delete failed", "delivery_id", deliveryID, "error", err)
		}
	}
	if m.metrics != nil {
		m.metrics.StreamEvicted(ctx, reason)
	}
	m.activity.StreamEvicted(deliveryID, reason)
	log.Info("delivery torn down", "delivery_id", deliveryID, "reason", reason)
}

// Supersede invokes the transport closer for a connection the registry has
// already displaced. The registry handles the bookkeeping on re-register;
// this just tells the old transport why it is going away.
func (m *Manager) Supersede(ctx context.Context, connID uuid.UUID, deliveryID string) {
	if closer, ok := m.takeCloser(connID); ok {
		closer(domain.CloseReasonSuperseded)
	}
	m.dispatcher.Unsubscribe(connID, deliveryID)
	if m.metrics != nil {
		m.metrics.ConnectionSuperseded(ctx, deliveryID)
		m.metrics.ConnectionClosed(ctx, string(domain.RoleDriver), string(domain.CloseReasonSuperseded))
	}
	m.activity.ConnectionClosed(deliveryID, connID.String(), string(domain.RoleDriver), string(domain.CloseReasonSuperseded))
}

// Disconnect closes a connection on behalf of its transport (client went
// away or the server is shedding it). Idempotent.
func (m *Manager) Disconnect(ctx context.Context, connID uuid.UUID, reason domain.CloseReason) {
	m.closeConnection(ctx, connID, reason)
}

func (m *Manager) closeConnection(ctx context.Context, connID uuid.UUID, reason domain.CloseReason) {
	snap, changed := m.registry.MarkClosed(connID, reason)
	if closer, ok := m.takeCloser(connID); ok {
		closer(reason)
	}
	final, found := m.registry.Unregister(connID)
	if !found && !changed {
		return
	}
	if found {
		snap = final
	}

	m.dispatcher.Unsubscribe(connID, snap.DeliveryID)

	if snap.Role == domain.RoleDriver && reason != domain.CloseReasonSuperseded {
		m.driverOffline(ctx, snap.DeliveryID, snap.LastSeenAt)
	}
	if m.metrics != nil {
		m.metrics.ConnectionClosed(ctx, string(snap.Role), string(reason))
	}
	m.activity.ConnectionClosed(snap.DeliveryID, connID.String(), string(snap.Role), string(reason))
	log.Info("connection closed",
		"delivery_id", snap.DeliveryID,
		"connection_id", connID,
		"role", snap.Role,
		"reason", reason,
	)
}

func (m *Manager) driverOffline(ctx context.Context, deliveryID string, lastSeen time.Time) {
	m.dispatcher.BroadcastPresence(ctx, deliveryID, dispatch.PresenceOffline, lastSeen)
	m.activity.Presence(deliveryID, string(dispatch.PresenceOffline))
	if m.snapshots != nil {
		err := m.snapshots.SetPresence(ctx, deliveryID, snapshot.Presence{
			Status:     string(dispatch.PresenceOffline),
			LastSeenAt: lastSeen.UTC(),
		})
		if err != nil {
			log.Warn("presence write failed", "delivery_id", deliveryID, "error", err)
		}
	}
}
