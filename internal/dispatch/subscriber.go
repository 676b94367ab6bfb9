package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

// Subscriber is one follower's bounded outbound queue. Pushes never block:
// when the queue is full the oldest frame is dropped, so a slow consumer
// falls behind on stale positions instead of stalling the publisher.
type Subscriber struct {
	connID     uuid.UUID
	deliveryID string

	mu      sync.Mutex
	queue   []Frame
	depth   int
	floor   uint64 // position sequences at or below this were primed; skip
	dropped uint64
	closed  bool
	notify  chan struct{}
}

func newSubscriber(deliveryID string, connID uuid.UUID, depth int) *Subscriber {
	return &Subscriber{
		connID:     connID,
		deliveryID: deliveryID,
		depth:      depth,
		notify:     make(chan struct{}, 1),
	}
}

// ConnID returns the connection this subscriber serves.
func (s *Subscriber) ConnID() uuid.UUID { return s.connID }

// DeliveryID returns the delivery this subscriber follows.
func (s *Subscriber) DeliveryID() string { return s.deliveryID }

// push enqueues a frame, dropping the oldest when the queue is full.
// Returns (enqueued, dropped-oldest). Eviction prefers stale position
// frames: presence and gap frames carry state a follower cannot recover
// from a later sample, so they go last.
func (s *Subscriber) push(f Frame) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, false
	}
	if f.Kind == FramePosition && f.Sample != nil && f.Sample.Sequence <= s.floor {
		// Already covered by the replay this subscriber was primed with.
		return false, false
	}

	dropped := false
	if len(s.queue) >= s.depth {
		s.evictLocked()
		s.dropped++
		dropped = true
	}
	s.queue = append(s.queue, f)
	s.wake()
	return true, dropped
}

// evictLocked removes the oldest position frame, or the oldest frame of
// any kind when the queue holds no positions. Caller holds mu.
func (s *Subscriber) evictLocked() {
	for i, f := range s.queue {
		if f.Kind == FramePosition {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
	s.queue = s.queue[1:]
}

// setFloor records the highest sequence covered by priming and discards any
// queued position frames the replay already covers.
func (s *Subscriber) setFloor(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floor = seq
	kept := s.queue[:0]
	for _, f := range s.queue {
		if f.Kind == FramePosition && f.Sample != nil && f.Sample.Sequence <= seq {
			continue
		}
		kept = append(kept, f)
	}
	s.queue = kept
}

func (s *Subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next queued frame, blocking until one is available, the
// context is done, or the subscriber is closed.
func (s *Subscriber) Next(ctx context.Context) (Frame, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			f := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return f, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Frame{}, domain.ErrStreamClosed
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close wakes any blocked Next and marks the subscriber dead. Queued frames
// already taken remain valid; nothing further is enqueued.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

// Dropped reports how many frames were discarded due to backpressure.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Pending reports the current queue length.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
