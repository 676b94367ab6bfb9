package dispatch

import (
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

// FrameKind discriminates outbound frames on follower connections.
type FrameKind string

const (
	FramePosition FrameKind = "position"
	FramePresence FrameKind = "presence"
	FrameGap      FrameKind = "gap"
)

// PresenceStatus is the driver's reachability as seen by the relay.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Frame is one message fanned out to a follower. Exactly one of Sample,
// Presence, Gap is set according to Kind.
type Frame struct {
	Kind       FrameKind              `json:"kind"`
	DeliveryID string                 `json:"delivery_id"`
	Sample     *domain.PositionSample `json:"sample,omitempty"`
	Presence   *Presence              `json:"presence,omitempty"`
	Gap        *Gap                   `json:"gap,omitempty"`
}

// Presence reports a driver presence change.
type Presence struct {
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at"`
}

// Gap tells a resuming follower that samples between its last seen
// sequence and FromSequence were evicted and cannot be replayed.
type Gap struct {
	SinceSequence uint64 `json:"since_sequence"`
	FromSequence  uint64 `json:"from_sequence"`
}

func positionFrame(deliveryID string, sample domain.PositionSample) Frame {
	return Frame{Kind: FramePosition, DeliveryID: deliveryID, Sample: &sample}
}

func presenceFrame(deliveryID string, status PresenceStatus, lastSeen time.Time) Frame {
	return Frame{
		Kind:       FramePresence,
		DeliveryID: deliveryID,
		Presence:   &Presence{Status: status, LastSeenAt: lastSeen.UTC()},
	}
}

func gapFrame(deliveryID string, sinceSeq, fromSeq uint64) Frame {
	return Frame{
		Kind:       FrameGap,
		DeliveryID: deliveryID,
		Gap:        &Gap{SinceSequence: sinceSeq, FromSequence: fromSeq},
	}
}
