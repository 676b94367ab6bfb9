// Package logstream provides real-time tracking activity streaming for
// operators debugging a delivery.
package logstream

import (
	"slices"
	"sync"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
)

var log = logging.Component("logstream")

// Activity kinds published by the relay.
const (
	KindSampleAccepted   = "sample_accepted"
	KindSampleRejected   = "sample_rejected"
	KindConnectionOpened = "connection_opened"
	KindConnectionClosed = "connection_closed"
	KindPresence         = "presence"
	KindStreamEvicted    = "stream_evicted"
)

// Entry is one tracking activity record.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	Kind         string    `json:"kind"`
	DeliveryID   string    `json:"delivery_id,omitempty"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Role         string    `json:"role,omitempty"`
	Sequence     uint64    `json:"sequence,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Message      string    `json:"message"`
}

// Filter defines criteria for filtering activity entries.
type Filter struct {
	DeliveryIDs []string `json:"delivery_ids,omitempty"`
	Kinds       []string `json:"kinds,omitempty"`
	Level       string   `json:"level,omitempty"` // debug, info, warn, error
}

// Matches returns true if the entry matches the filter.
func (f *Filter) Matches(entry *Entry) bool {
	if f == nil {
		return true
	}
	if f.Level != "" && !matchesLevel(entry.Level, f.Level) {
		return false
	}
	if len(f.DeliveryIDs) > 0 && !slices.Contains(f.DeliveryIDs, entry.DeliveryID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, entry.Kind) {
		return false
	}
	return true
}

// matchesLevel returns true if entry level >= filter level.
func matchesLevel(entryLevel, filterLevel string) bool {
	levels := map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}
	entryLvl, ok1 := levels[entryLevel]
	filterLvl, ok2 := levels[filterLevel]
	if !ok1 || !ok2 {
		return true
	}
	return entryLvl >= filterLvl
}

// Subscriber represents an activity stream subscriber.
type Subscriber struct {
	ID     string
	Filter *Filter
	Ch     chan *Entry
}

// Hub manages activity streaming subscriptions.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
}

// NewHub creates a new activity streaming hub.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a new subscription with the given filter.
func (h *Hub) Subscribe(id string, filter *Filter) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ID:     id,
		Filter: filter,
		Ch:     make(chan *Entry, h.bufferSize),
	}
	h.subscribers[id] = sub

	log.Debug("subscriber added", "subscriber_id", id, "total", len(h.subscribers))
	return sub
}

// Unsubscribe removes a subscription.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Ch)
		delete(h.subscribers, id)
		log.Debug("subscriber removed", "subscriber_id", id, "total", len(h.subscribers))
	}
}

// Publish sends an entry to all matching subscribers.
func (h *Hub) Publish(entry *Entry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if sub.Filter.Matches(entry) {
			select {
			case sub.Ch <- entry:
			default:
				// Channel full, drop entry to prevent blocking
				log.Debug("dropping activity entry for slow subscriber", "subscriber_id", sub.ID)
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publisher is an interface for components that publish activity entries.
type Publisher interface {
	Publish(entry *Entry)
}

// TrackLogger wraps the hub with convenience methods for the relay's
// components. All methods are safe on a nil receiver so wiring the hub
// stays optional.
type TrackLogger struct {
	hub Publisher
}

// NewTrackLogger creates a new activity logger.
func NewTrackLogger(hub Publisher) *TrackLogger {
	return &TrackLogger{hub: hub}
}

// SampleAccepted records a position accepted into a delivery's stream.
func (l *TrackLogger) SampleAccepted(deliveryID, connectionID string, sequence uint64) {
	if l == nil || l.hub == nil {
		return
	}
	l.hub.Publish(&Entry{
		Timestamp:    time.Now(),
		Level:        "info",
		Kind:         KindSampleAccepted,
		DeliveryID:   deliveryID,
		ConnectionID: connectionID,
		Sequence:     sequence,
		Message:      "position accepted",
	})
}

// SampleRejected records a rejected position report.
func (l *TrackLogger) SampleRejected(deliveryID, connectionID, reason string) {
	if l == nil || l.hub == nil {
		return
	}
	l.hub.Publish(&Entry{
		Timestamp:    time.Now(),
		Level:        "warn",
		Kind:         KindSampleRejected,
		DeliveryID:   deliveryID,
		ConnectionID: connectionID,
		Reason:       reason,
		Message:      "position rejected",
	})
}

// ConnectionOpened records a new driver or customer session.
func (l *TrackLogger) ConnectionOpened(deliveryID, connectionID, role string) {
	if l == nil || l.hub == nil {
		return
	}
	l.hub.Publish(&Entry{
		Timestamp:    time.Now(),
		Level:        "info",
		Kind:         KindConnectionOpened,
		DeliveryID:   deliveryID,
		ConnectionID: connectionID,
		Role:         role,
		Message:      "connection opened",
	})
}

// ConnectionClosed records a closed session with its reason.
func (l *TrackLogger) ConnectionClosed(deliveryID, connectionID, role, reason string) {
	if l == nil || l.hub == nil {
		return
	}
	level := "info"
	if reason == "heartbeat_timeout" || reason == "superseded" {
		level = "warn"
	}
	l.hub.Publish(&Entry{
		Timestamp:    time.Now(),
		Level:        level,
		Kind:         KindConnectionClosed,
		DeliveryID:   deliveryID,
		ConnectionID: connectionID,
		Role:         role,
		Reason:       reason,
		Message:      "connection closed",
	})
}

// Presence records a driver presence change.
func (l *TrackLogger) Presence(deliveryID, status string) {
	if l == nil || l.hub == nil {
		return
	}
	l.hub.Publish(&Entry{
		Timestamp:  time.Now(),
		Level:      "info",
		Kind:       KindPresence,
		DeliveryID: deliveryID,
		Reason:     status,
		Message:    "driver " + status,
	})
}

// StreamEvicted records a stream teardown.
func (l *TrackLogger) StreamEvicted(deliveryID, reason string) {
	if l == nil || l.hub == nil {
		return
	}
	l.hub.Publish(&Entry{
		Timestamp:  time.Now(),
		Level:      "info",
		Kind:       KindStreamEvicted,
		DeliveryID: deliveryID,
		Reason:     reason,
		Message:    "stream evicted",
	})
}
