// Package stream implements the per-delivery location stream: a bounded
// ring of position samples with server-assigned sequence numbers.
package stream

import (
	"sync"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

// Stream is the append-only, bounded history of position samples for one
// delivery. Sequence numbers are strictly increasing and gapless; the latest
// pointer never regresses even when a chronologically-earlier sample arrives
// late. All methods are safe for concurrent use; ingestion is effectively
// single-writer (one authoritative driver), so a single mutex per stream is
// enough and never contends across deliveries.
type Stream struct {
	mu sync.Mutex

	deliveryID string
	skew       time.Duration

	ring  []domain.PositionSample
	start int // index of oldest retained sample
	count int

	seq        uint64
	latest     domain.PositionSample
	hasLatest  bool
	closed     bool
	lastAppend time.Time
}

// New creates a stream retaining up to ringSize samples.
func New(deliveryID string, ringSize int, skew time.Duration) *Stream {
	if ringSize <= 0 {
		ringSize = 1
	}
	return &Stream{
		deliveryID: deliveryID,
		skew:       skew,
		ring:       make([]domain.PositionSample, ringSize),
	}
}

// DeliveryID returns the delivery this stream belongs to.
func (s *Stream) DeliveryID() string {
	return s.deliveryID
}

// Append assigns the next sequence number to raw and stores the sample,
// evicting the oldest retained sample when the ring is full. The reported
// timestamp is clamped against receivedAt per the skew rule. Late samples
// are appended with a fresh sequence number, never reordered or rejected:
// consumers render by sequence.
func (s *Stream) Append(raw domain.RawSample, receivedAt time.Time) (domain.PositionSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.PositionSample{}, domain.ErrStreamClosed
	}

	s.seq++
	sample := domain.NewPositionSample(s.seq, raw, receivedAt, s.skew)

	idx := (s.start + s.count) % len(s.ring)
	if s.count == len(s.ring) {
		// Ring full: overwrite the oldest slot.
		s.ring[idx] = sample
		s.start = (s.start + 1) % len(s.ring)
	} else {
		s.ring[idx] = sample
		s.count++
	}

	s.latest = sample
	s.hasLatest = true
	s.lastAppend = receivedAt

	return sample, nil
}

// Latest returns the sample with the highest sequence number appended so
// far, which may carry a chronologically-earlier timestamp than a prior
// sample.
func (s *Stream) Latest() (domain.PositionSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// ReplaySince returns, in sequence order, the retained samples with
// sequence > sinceSeq. gapped is true when the requested resume point has
// already been evicted from the ring: the caller received everything still
// retained but there are samples it can never see, and should treat the
// result as a fresh snapshot rather than a continuation.
func (s *Stream) ReplaySince(sinceSeq uint64) (samples []domain.PositionSample, gapped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return nil, sinceSeq < s.seq
	}

	oldest := s.ring[s.start].Sequence
	gapped = sinceSeq+1 < oldest

	for i := 0; i < s.count; i++ {
		sample := s.ring[(s.start+i)%len(s.ring)]
		if sample.Sequence > sinceSeq {
			samples = append(samples, sample)
		}
	}
	return samples, gapped
}

// Sequence returns the highest sequence number assigned so far.
func (s *Stream) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Close marks the stream closed; further appends fail with ErrStreamClosed.
// Reads keep working so the last known position survives a terminal
// delivery until eviction.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LastAppend returns when the stream last accepted a sample. Zero until the
// first append.
func (s *Stream) LastAppend() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAppend
}
