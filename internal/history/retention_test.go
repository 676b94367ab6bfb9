package history

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakePruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func (f *fakePruner) sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func (f *fakePruner) lastCutoff() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cutoffs[len(f.cutoffs)-1]
}

func TestRetention_SweepsOnInterval(t *testing.T) {
	store := &fakePruner{}
	retention := NewRetention(store, 24*time.Hour, 10*time.Millisecond)
	retention.Start(context.Background())
	defer retention.Stop()

	deadline := time.After(2 * time.Second)
	for store.sweeps() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeps = %d, want at least 2", store.sweeps())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cutoff := store.lastCutoff()
	wantBefore := time.Now().Add(-23 * time.Hour)
	if !cutoff.Before(wantBefore) {
		t.Errorf("cutoff %v not a full window in the past", cutoff)
	}
}

func TestRetention_StopIsIdempotent(t *testing.T) {
	store := &fakePruner{}
	retention := NewRetention(store, time.Hour, time.Hour)
	retention.Start(context.Background())

	retention.Stop()
	retention.Stop()
}
