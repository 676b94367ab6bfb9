// Package backoff provides the reconnect backoff schedule used by tracking
// clients.
package backoff

import (
	"math/rand"
	"time"
)

// Schedule is the default reconnect schedule. A dropped tracking session
// should come back quickly, then ease off to avoid hammering the relay
// during an outage.
var Schedule = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Calculator computes backoff durations with optional jitter.
type Calculator struct {
	schedule    []time.Duration
	jitterRatio float64
}

// NewCalculator creates a new backoff calculator with the default schedule.
func NewCalculator() *Calculator {
	return &Calculator{
		schedule:    Schedule,
		jitterRatio: 0.1,
	}
}

// WithSchedule sets a custom backoff schedule.
func (c *Calculator) WithSchedule(schedule []time.Duration) *Calculator {
	return &Calculator{
		schedule:    schedule,
		jitterRatio: c.jitterRatio,
	}
}

// WithJitter sets the jitter ratio (0.0 to 1.0).
func (c *Calculator) WithJitter(ratio float64) *Calculator {
	return &Calculator{
		schedule:    c.schedule,
		jitterRatio: ratio,
	}
}

// Duration returns the backoff duration for a given attempt number
// (1-indexed). Attempts beyond the schedule length stay at the last entry.
func (c *Calculator) Duration(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	index := attempt - 1
	if index >= len(c.schedule) {
		index = len(c.schedule) - 1
	}

	return c.addJitter(c.schedule[index])
}

func (c *Calculator) addJitter(base time.Duration) time.Duration {
	if c.jitterRatio <= 0 {
		return base
	}

	jitter := float64(base) * c.jitterRatio
	// Random value in [-jitter, +jitter]
	delta := (rand.Float64()*2 - 1) * jitter
	return base + time.Duration(delta)
}
