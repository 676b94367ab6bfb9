package stream

import (
	"sync"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
)

var log = logging.Component("stream")

const shardCount = 16

// Streams owns every live location stream, partitioned by delivery ID so
// unrelated deliveries never contend on one lock.
type Streams struct {
	shards   [shardCount]*shard
	ringSize int
	skew     time.Duration
}

type shard struct {
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewStreams creates the stream collection.
func NewStreams(ringSize int, skew time.Duration) *Streams {
	s := &Streams{
		ringSize: ringSize,
		skew:     skew,
	}
	for i := range s.shards {
		s.shards[i] = &shard{streams: make(map[string]*Stream)}
	}
	return s
}

func (s *Streams) shardFor(deliveryID string) *shard {
	return s.shards[fnv32(deliveryID)%shardCount]
}

// GetOrCreate returns the stream for a delivery, creating it on first use.
func (s *Streams) GetOrCreate(deliveryID string) *Stream {
	sh := s.shardFor(deliveryID)

	sh.mu.RLock()
	st, ok := sh.streams[deliveryID]
	sh.mu.RUnlock()
	if ok {
		return st
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if st, ok = sh.streams[deliveryID]; ok {
		return st
	}
	st = New(deliveryID, s.ringSize, s.skew)
	sh.streams[deliveryID] = st
	log.Debug("stream created", "delivery_id", deliveryID)
	return st
}

// Get returns the stream for a delivery if one exists.
func (s *Streams) Get(deliveryID string) (*Stream, bool) {
	sh := s.shardFor(deliveryID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.streams[deliveryID]
	return st, ok
}

// Append routes a raw sample to the delivery's stream.
func (s *Streams) Append(deliveryID string, raw domain.RawSample, receivedAt time.Time) (domain.PositionSample, error) {
	return s.GetOrCreate(deliveryID).Append(raw, receivedAt)
}

// Close marks a delivery's stream closed without evicting its history.
func (s *Streams) Close(deliveryID string) {
	if st, ok := s.Get(deliveryID); ok {
		st.Close()
		log.Debug("stream closed", "delivery_id", deliveryID)
	}
}

// Evict removes a delivery's stream entirely. Called when the delivery is
// terminal and the last connection has gone, or the inactivity TTL elapsed.
func (s *Streams) Evict(deliveryID string) {
	sh := s.shardFor(deliveryID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.streams[deliveryID]; ok {
		delete(sh.streams, deliveryID)
		log.Debug("stream evicted", "delivery_id", deliveryID)
	}
}

// Count returns the number of live streams.
func (s *Streams) Count() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.streams)
		sh.mu.RUnlock()
	}
	return total
}

// ForEach calls fn with every live stream. fn must not call back into the
// collection for the same shard.
func (s *Streams) ForEach(fn func(st *Stream)) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		snapshot := make([]*Stream, 0, len(sh.streams))
		for _, st := range sh.streams {
			snapshot = append(snapshot, st)
		}
		sh.mu.RUnlock()
		for _, st := range snapshot {
			fn(st)
		}
	}
}

// fnv32 is a tiny inline FNV-1a used for shard selection.
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
