// Package ingest is the single entry point for driver position reports.
// Every sample passes through the gateway: authority check, validation,
// sequencing, then fan-out. The append happens before any delivery to
// subscribers, so fan-out order always follows sequence order.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/history"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logstream"
	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
	"github.com/Ireoluwatomide/swift-track-relay/internal/registry"
	"github.com/Ireoluwatomide/swift-track-relay/internal/snapshot"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

var log = logging.Component("ingest")

// SnapshotWriter persists last-known positions. Satisfied by
// *snapshot.Store; nil disables snapshot writes.
type SnapshotWriter interface {
	SetLatest(ctx context.Context, deliveryID string, sample domain.PositionSample) (bool, error)
	SetPresence(ctx context.Context, deliveryID string, presence snapshot.Presence) error
}

// HistoryRecorder receives accepted samples for persistence. Satisfied by
// *history.Sink; nil disables history.
type HistoryRecorder interface {
	Record(ctx context.Context, record history.Record)
}

// Gateway validates and sequences incoming position reports.
type Gateway struct {
	registry   *registry.Registry
	streams    *stream.Streams
	dispatcher *dispatch.Dispatcher
	lifecycle  domain.DeliveryLifecycle
	snapshots  SnapshotWriter
	histories  HistoryRecorder
	metrics    *observability.Metrics
	activity   *logstream.TrackLogger

	// minInterval is the per-connection floor between accepted samples.
	// Zero disables throttling.
	minInterval time.Duration

	mu           sync.Mutex
	lastAccepted map[uuid.UUID]time.Time
}

// New creates an ingestion gateway. snapshots and histories may be nil.
func New(
	reg *registry.Registry,
	streams *stream.Streams,
	dispatcher *dispatch.Dispatcher,
	lifecycle domain.DeliveryLifecycle,
	snapshots SnapshotWriter,
	histories HistoryRecorder,
	metrics *observability.Metrics,
	minInterval time.Duration,
) *Gateway {
	return &Gateway{
		registry:     reg,
		streams:      streams,
		dispatcher:   dispatcher,
		lifecycle:    lifecycle,
		snapshots:    snapshots,
		histories:    histories,
		metrics:      metrics,
		minInterval:  minInterval,
		lastAccepted: make(map[uuid.UUID]time.Time),
	}
}

// SetActivity attaches the operator activity stream. Optional.
func (g *Gateway) SetActivity(logger *logstream.TrackLogger) {
	g.activity = logger
}

// SubmitPosition ingests one raw sample from a driver connection. On
// success the returned sample carries its assigned sequence number.
//
// Rejections are per-sample: a validation failure or throttle drop leaves
// the connection and stream untouched.
func (g *Gateway) SubmitPosition(ctx context.Context, connID uuid.UUID, raw domain.RawSample) (domain.PositionSample, error) {
	receivedAt := time.Now()

	conn, ok := g.registry.Get(connID)
	if !ok {
		return domain.PositionSample{}, domain.ErrConnectionNotFound
	}
	if conn.Role != domain.RoleDriver || !g.registry.IsAuthoritativeDriver(connID) {
		g.reject(ctx, "not_authoritative")
		g.activity.SampleRejected(conn.DeliveryID, connID.String(), "not_authoritative")
		return domain.PositionSample{}, domain.ErrNotAuthorizedDriver
	}

	if err := raw.Validate(); err != nil {
		g.reject(ctx, "validation")
		g.activity.SampleRejected(conn.DeliveryID, connID.String(), "validation")
		log.Debug("sample rejected",
			"delivery_id", conn.DeliveryID,
			"connection_id", connID,
			"error", err,
		)
		return domain.PositionSample{}, err
	}

	terminal, err := g.lifecycle.IsTerminal(ctx, conn.DeliveryID)
	if err != nil {
		return domain.PositionSample{}, err
	}
	if terminal {
		g.reject(ctx, "terminal")
		g.activity.SampleRejected(conn.DeliveryID, connID.String(), "terminal")
		return domain.PositionSample{}, domain.ErrDeliveryTerminal
	}

	if g.throttled(connID, receivedAt) {
		if g.metrics != nil {
			g.metrics.SampleThrottled(ctx, conn.DeliveryID)
		}
		return domain.PositionSample{}, domain.ErrSampleThrottled
	}

	// Append first: the sequence must exist before anything is fanned out.
	sample, err := g.streams.Append(conn.DeliveryID, raw, receivedAt)
	if err != nil {
		return domain.PositionSample{}, err
	}

	if _, revived, err := g.registry.Touch(connID, receivedAt); err == nil && revived {
		g.dispatcher.BroadcastPresence(ctx, conn.DeliveryID, dispatch.PresenceOnline, receivedAt)
		if g.snapshots != nil {
			g.writePresence(ctx, conn.DeliveryID, string(dispatch.PresenceOnline), receivedAt)
		}
	}

	if g.snapshots != nil {
		if _, err := g.snapshots.SetLatest(ctx, conn.DeliveryID, sample); err != nil {
			log.Warn("snapshot write failed", "delivery_id", conn.DeliveryID, "error", err)
		}
	}
	if g.histories != nil {
		g.histories.Record(ctx, history.Record{DeliveryID: conn.DeliveryID, Sample: sample})
	}

	g.dispatcher.OnNewSample(ctx, conn.DeliveryID, sample)
	g.activity.SampleAccepted(conn.DeliveryID, connID.String(), sample.Sequence)

	if g.metrics != nil {
		g.metrics.SampleIngested(ctx, conn.DeliveryID)
		g.metrics.IngestDuration(ctx, time.Since(receivedAt))
	}
	return sample, nil
}

// Heartbeat refreshes a connection's liveness without a position. Revival
// from Stale broadcasts presence online.
func (g *Gateway) Heartbeat(ctx context.Context, connID uuid.UUID) error {
	now := time.Now()
	conn, revived, err := g.registry.Touch(connID, now)
	if err != nil {
		return err
	}
	if revived && conn.Role == domain.RoleDriver {
		g.dispatcher.BroadcastPresence(ctx, conn.DeliveryID, dispatch.PresenceOnline, now)
		if g.snapshots != nil {
			g.writePresence(ctx, conn.DeliveryID, string(dispatch.PresenceOnline), now)
		}
	}
	return nil
}

// Forget drops per-connection throttle state. Called on unregister.
func (g *Gateway) Forget(connID uuid.UUID) {
	g.mu.Lock()
	delete(g.lastAccepted, connID)
	g.mu.Unlock()
}

func (g *Gateway) throttled(connID uuid.UUID, now time.Time) bool {
	if g.minInterval <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastAccepted[connID]; ok && now.Sub(last) < g.minInterval {
		return true
	}
	g.lastAccepted[connID] = now
	return false
}

func (g *Gateway) reject(ctx context.Context, reason string) {
	if g.metrics != nil {
		g.metrics.SampleRejected(ctx, reason)
	}
}

func (g *Gateway) writePresence(ctx context.Context, deliveryID, status string, lastSeen time.Time) {
	err := g.snapshots.SetPresence(ctx, deliveryID, snapshot.Presence{
		Status:     status,
		LastSeenAt: lastSeen.UTC(),
	})
	if err != nil {
		log.Warn("presence write failed", "delivery_id", deliveryID, "error", err)
	}
}
