package domain

import (
	"time"
)

// Geometry bounds for position samples.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

// RawSample is a position report as submitted by a driver device, before the
// relay assigns a sequence number. Timestamp is the client-reported reading
// time and may be skewed or stale; the stream clamps it at append time.
type RawSample struct {
	Lat       float64
	Lng       float64
	Timestamp time.Time
	Accuracy  *float64
	Speed     *float64
}

// Validate checks geometry and range constraints on a raw sample.
func (r RawSample) Validate() error {
	if r.Lat < MinLatitude || r.Lat > MaxLatitude {
		return NewValidationError("lat", "latitude must be in [-90, 90]")
	}
	if r.Lng < MinLongitude || r.Lng > MaxLongitude {
		return NewValidationError("lng", "longitude must be in [-180, 180]")
	}
	if r.Accuracy != nil && *r.Accuracy < 0 {
		return NewValidationError("accuracy", "accuracy must be non-negative")
	}
	if r.Speed != nil && *r.Speed < 0 {
		return NewValidationError("speed", "speed must be non-negative")
	}
	return nil
}

// PositionSample is one GPS reading with a server-assigned sequence number.
// Sequence numbers are strictly increasing and gapless per delivery, assigned
// by the location stream at append time. Samples are immutable once appended;
// consumers must render by sequence, not timestamp.
type PositionSample struct {
	Sequence   uint64     `json:"sequence"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Timestamp  time.Time  `json:"timestamp"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

// NewPositionSample builds an immutable sample from a validated raw report.
// The reported timestamp is clamped: if it is more than skew ahead of the
// server receive time, the receive time is substituted. A zero timestamp is
// replaced with the receive time. Clock-skewed clients are corrected rather
// than rejected.
func NewPositionSample(seq uint64, raw RawSample, receivedAt time.Time, skew time.Duration) PositionSample {
	ts := raw.Timestamp
	if ts.IsZero() || ts.After(receivedAt.Add(skew)) {
		ts = receivedAt
	}
	return PositionSample{
		Sequence:   seq,
		Lat:        raw.Lat,
		Lng:        raw.Lng,
		Timestamp:  ts.UTC(),
		Accuracy:   raw.Accuracy,
		Speed:      raw.Speed,
		ReceivedAt: receivedAt.UTC(),
	}
}
