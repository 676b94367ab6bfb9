package track

import "time"

// Role is the capability a tracking token grants.
type Role string

const (
	RoleDriver   Role = "driver"
	RoleCustomer Role = "customer"
)

// Position is one GPS reading to publish.
type Position struct {
	Lat       float64
	Lng       float64
	Timestamp time.Time
	Accuracy  *float64
	Speed     *float64
}

// Sample is one position with its server-assigned sequence number.
// Sequence numbers are strictly increasing per delivery; render by
// sequence, not timestamp.
type Sample struct {
	Sequence   uint64    `json:"sequence"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Timestamp  time.Time `json:"timestamp"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// PresenceStatus is the driver's reachability as reported by the relay.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is a driver presence change.
type Presence struct {
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}

// Gap reports that samples between SinceSequence and FromSequence were
// evicted and cannot be replayed.
type Gap struct {
	SinceSequence uint64 `json:"since_sequence"`
	FromSequence  uint64 `json:"from_sequence"`
}

// FrameKind discriminates follower frames.
type FrameKind string

const (
	FramePosition FrameKind = "position"
	FramePresence FrameKind = "presence"
	FrameGap      FrameKind = "gap"
)

// Frame is one message received while following a delivery. Exactly one
// of Sample, Presence, Gap is set according to Kind.
type Frame struct {
	Kind       FrameKind `json:"kind"`
	DeliveryID string    `json:"delivery_id"`
	Sample     *Sample   `json:"sample,omitempty"`
	Presence   *Presence `json:"presence,omitempty"`
	Gap        *Gap      `json:"gap,omitempty"`
}

// PositionSnapshot is the REST view of a delivery's last known state.
type PositionSnapshot struct {
	DeliveryID string    `json:"delivery_id"`
	Position   *Sample   `json:"position,omitempty"`
	Presence   *Presence `json:"presence,omitempty"`
}

// ReplayPage is a page of replayed samples.
type ReplayPage struct {
	DeliveryID string   `json:"delivery_id"`
	Samples    []Sample `json:"samples"`
	Gapped     bool     `json:"gapped"`
	Source     string   `json:"source"`
}

// ETA is a distance and travel-time estimate to a destination.
type ETA struct {
	DeliveryID     string  `json:"delivery_id"`
	DistanceMeters float64 `json:"distance_meters"`
	ETASeconds     float64 `json:"eta_seconds,omitempty"`
	Estimable      bool    `json:"estimable"`
}
