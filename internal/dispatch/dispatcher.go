// Package dispatch fans position and presence updates out to follower
// connections. Each follower gets a bounded queue; a slow or dead consumer
// loses its oldest frames but never blocks ingestion or other followers.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

var log = logging.Component("dispatch")

// Dispatcher routes stream updates to per-connection subscribers.
type Dispatcher struct {
	streams     *stream.Streams
	metrics     *observability.Metrics
	depth       int
	sendTimeout time.Duration

	mu   sync.RWMutex
	subs map[string]map[uuid.UUID]*Subscriber
}

// New creates a dispatcher. depth bounds each subscriber queue and
// sendTimeout is the per-frame transport write budget handed to transports.
func New(streams *stream.Streams, metrics *observability.Metrics, depth int, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		streams:     streams,
		metrics:     metrics,
		depth:       depth,
		sendTimeout: sendTimeout,
		subs:        make(map[string]map[uuid.UUID]*Subscriber),
	}
}

// SendTimeout is the per-frame write budget transports should apply.
func (d *Dispatcher) SendTimeout() time.Duration { return d.sendTimeout }

// Subscribe registers a follower and returns the frames that bring it up to
// date plus its live subscriber. sinceSeq 0 means a fresh follower: it gets
// only the latest known position. A positive sinceSeq resumes: retained
// samples after it are replayed, preceded by a gap frame when the resume
// point has been evicted from the ring.
//
// The caller writes the primed frames before draining the subscriber; any
// sample that lands in between is queued live and deduplicated against the
// replay, so followers observe every sequence at most once and in order.
func (d *Dispatcher) Subscribe(ctx context.Context, deliveryID string, connID uuid.UUID, sinceSeq uint64) ([]Frame, *Subscriber) {
	sub := newSubscriber(deliveryID, connID, d.depth)

	d.mu.Lock()
	byConn, ok := d.subs[deliveryID]
	if !ok {
		byConn = make(map[uuid.UUID]*Subscriber)
		d.subs[deliveryID] = byConn
	}
	byConn[connID] = sub
	total := d.subscriberCountLocked()
	d.mu.Unlock()

	primed := d.prime(deliveryID, sub, sinceSeq)

	if d.metrics != nil {
		d.metrics.SubscribersActive(ctx, int64(total))
		gapped := len(primed) > 0 && primed[0].Kind == FrameGap
		d.metrics.ReplayServed(ctx, len(primed), gapped)
	}
	log.Debug("subscriber attached",
		"delivery_id", deliveryID,
		"connection_id", connID,
		"since_seq", sinceSeq,
		"primed", len(primed),
	)
	return primed, sub
}

// prime computes the catch-up frames for a new subscriber and sets its
// dedup floor. Registration happens before priming so no concurrent append
// can fall between replay and live delivery.
func (d *Dispatcher) prime(deliveryID string, sub *Subscriber, sinceSeq uint64) []Frame {
	st, ok := d.streams.Get(deliveryID)
	if !ok {
		return nil
	}

	var primed []Frame
	var floor uint64
	if sinceSeq == 0 {
		samples, gapped := st.ReplaySince(0)
		if gapped {
			// The oldest samples were already evicted. A client with no
			// resume point only needs where the driver is now.
			samples = nil
			if latest, ok := st.Latest(); ok {
				samples = append(samples, latest)
			}
		}
		for _, sample := range samples {
			primed = append(primed, positionFrame(deliveryID, sample))
		}
		if len(samples) > 0 {
			floor = samples[len(samples)-1].Sequence
		}
	} else {
		samples, gapped := st.ReplaySince(sinceSeq)
		if gapped {
			from := sinceSeq
			if len(samples) > 0 {
				from = samples[0].Sequence
			}
			primed = append(primed, gapFrame(deliveryID, sinceSeq, from))
		}
		for _, sample := range samples {
			primed = append(primed, positionFrame(deliveryID, sample))
		}
		floor = sinceSeq
		if len(samples) > 0 {
			floor = samples[len(samples)-1].Sequence
		}
	}
	sub.setFloor(floor)
	return primed
}

// Unsubscribe detaches a follower. Idempotent.
func (d *Dispatcher) Unsubscribe(connID uuid.UUID, deliveryID string) {
	d.mu.Lock()
	var sub *Subscriber
	if byConn, ok := d.subs[deliveryID]; ok {
		if s, ok := byConn[connID]; ok {
			sub = s
			delete(byConn, connID)
			if len(byConn) == 0 {
				delete(d.subs, deliveryID)
			}
		}
	}
	total := d.subscriberCountLocked()
	d.mu.Unlock()

	if sub != nil {
		sub.Close()
		if d.metrics != nil {
			d.metrics.SubscribersActive(context.Background(), int64(total))
		}
	}
}

// OnNewSample fans a freshly appended sample out to every subscriber of the
// delivery. Called after the stream append, so queue order follows sequence
// order. Never blocks.
func (d *Dispatcher) OnNewSample(ctx context.Context, deliveryID string, sample domain.PositionSample) {
	frame := positionFrame(deliveryID, sample)
	for _, sub := range d.snapshot(deliveryID) {
		enqueued, droppedOldest := sub.push(frame)
		if d.metrics == nil {
			continue
		}
		if enqueued {
			d.metrics.FanoutDelivered(ctx, string(FramePosition))
		}
		if droppedOldest {
			d.metrics.FanoutDropped(ctx, "queue_full")
		}
	}
}

// BroadcastPresence fans a driver presence change out to every subscriber
// of the delivery.
func (d *Dispatcher) BroadcastPresence(ctx context.Context, deliveryID string, status PresenceStatus, lastSeen time.Time) {
	frame := presenceFrame(deliveryID, status, lastSeen)
	for _, sub := range d.snapshot(deliveryID) {
		if enqueued, _ := sub.push(frame); enqueued && d.metrics != nil {
			d.metrics.FanoutDelivered(ctx, string(FramePresence))
		}
	}
	if d.metrics != nil {
		d.metrics.PresenceEvent(ctx, string(status))
	}
}

// CloseDelivery detaches every subscriber of a delivery. Used when the
// delivery reaches a terminal state and its stream is torn down.
func (d *Dispatcher) CloseDelivery(deliveryID string) {
	d.mu.Lock()
	byConn := d.subs[deliveryID]
	delete(d.subs, deliveryID)
	d.mu.Unlock()

	for _, sub := range byConn {
		sub.Close()
	}
	if len(byConn) > 0 {
		log.Info("delivery subscribers closed", "delivery_id", deliveryID, "count", len(byConn))
	}
}

// SubscriberCount returns the number of attached subscribers across all
// deliveries.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subscriberCountLocked()
}

// DeliverySubscriberCount returns the live subscriber count for one
// delivery.
func (d *Dispatcher) DeliverySubscriberCount(deliveryID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[deliveryID])
}

func (d *Dispatcher) subscriberCountLocked() int {
	n := 0
	for _, byConn := range d.subs {
		n += len(byConn)
	}
	return n
}

// snapshot returns the current subscribers for a delivery without holding
// the lock during pushes.
func (d *Dispatcher) snapshot(deliveryID string) []*Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byConn, ok := d.subs[deliveryID]
	if !ok {
		return nil
	}
	out := make([]*Subscriber, 0, len(byConn))
	for _, sub := range byConn {
		out = append(out, sub)
	}
	return out
}
