package backoff

import (
	"testing"
	"time"
)

func TestCalculator_Duration(t *testing.T) {
	c := NewCalculator().WithJitter(0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 5 * time.Second},
		{5, 10 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},  // beyond schedule
		{100, 30 * time.Second}, // stays at cap
		{0, 500 * time.Millisecond},
		{-1, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := c.Duration(tt.attempt); got != tt.want {
			t.Errorf("Duration(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCalculator_WithSchedule(t *testing.T) {
	custom := []time.Duration{time.Second, time.Minute}
	c := NewCalculator().WithSchedule(custom).WithJitter(0)

	if got := c.Duration(1); got != time.Second {
		t.Errorf("Duration(1) = %v, want 1s", got)
	}
	if got := c.Duration(5); got != time.Minute {
		t.Errorf("Duration(5) = %v, want 1m", got)
	}
}

func TestCalculator_JitterBounds(t *testing.T) {
	c := NewCalculator().WithJitter(0.5)
	base := 10 * time.Second

	for range 100 {
		d := c.Duration(5)
		if d < base/2 || d > base+base/2 {
			t.Fatalf("jittered duration %v outside [5s, 15s]", d)
		}
	}
}

func TestCalculator_Immutable(t *testing.T) {
	c := NewCalculator()
	c2 := c.WithJitter(0)

	if c.jitterRatio == c2.jitterRatio {
		t.Error("WithJitter should return a new calculator")
	}
}
