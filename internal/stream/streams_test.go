package stream

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

func TestStreams_GetOrCreate(t *testing.T) {
	streams := NewStreams(50, testSkew)

	a := streams.GetOrCreate("DEL-1001")
	b := streams.GetOrCreate("DEL-1001")
	if a != b {
		t.Error("expected the same stream instance for one delivery")
	}

	c := streams.GetOrCreate("DEL-2002")
	if a == c {
		t.Error("expected distinct streams for distinct deliveries")
	}

	if streams.Count() != 2 {
		t.Errorf("Count = %d, want 2", streams.Count())
	}
}

func TestStreams_IndependentSequences(t *testing.T) {
	streams := NewStreams(50, testSkew)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if _, err := streams.Append("DEL-1001", domain.RawSample{Lat: 6.5, Lng: 3.3}, now); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	sample, err := streams.Append("DEL-2002", domain.RawSample{Lat: 6.5, Lng: 3.3}, now)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if sample.Sequence != 1 {
		t.Errorf("second delivery first sequence = %d, want 1", sample.Sequence)
	}
}

func TestStreams_Evict(t *testing.T) {
	streams := NewStreams(50, testSkew)
	now := time.Now()

	if _, err := streams.Append("DEL-1001", domain.RawSample{Lat: 6.5, Lng: 3.3}, now); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	streams.Evict("DEL-1001")
	if _, ok := streams.Get("DEL-1001"); ok {
		t.Error("expected stream to be gone after eviction")
	}

	// Re-creating after eviction starts a fresh sequence space.
	sample, err := streams.Append("DEL-1001", domain.RawSample{Lat: 6.5, Lng: 3.3}, now)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if sample.Sequence != 1 {
		t.Errorf("sequence after eviction = %d, want 1", sample.Sequence)
	}
}

func TestStreams_ConcurrentDeliveries(t *testing.T) {
	streams := NewStreams(50, testSkew)
	now := time.Now()

	var wg sync.WaitGroup
	for d := 0; d < 20; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			id := fmt.Sprintf("DEL-%04d", d)
			for i := 0; i < 25; i++ {
				if _, err := streams.Append(id, domain.RawSample{Lat: 6.5, Lng: 3.3}, now); err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
			}
		}(d)
	}
	wg.Wait()

	if streams.Count() != 20 {
		t.Fatalf("Count = %d, want 20", streams.Count())
	}
	streams.ForEach(func(st *Stream) {
		if st.Sequence() != 25 {
			t.Errorf("stream %s sequence = %d, want 25", st.DeliveryID(), st.Sequence())
		}
	})
}
