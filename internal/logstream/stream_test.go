package logstream

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Matches(t *testing.T) {
	tests := []struct {
		name     string
		filter   *Filter
		entry    *Entry
		expected bool
	}{
		{
			name:   "nil filter matches everything",
			filter: nil,
			entry: &Entry{
				Level:      "info",
				Kind:       KindSampleAccepted,
				DeliveryID: "del_1",
			},
			expected: true,
		},
		{
			name:   "empty filter matches everything",
			filter: &Filter{},
			entry: &Entry{
				Level:      "info",
				Kind:       KindSampleAccepted,
				DeliveryID: "del_1",
			},
			expected: true,
		},
		{
			name: "delivery filter - match",
			filter: &Filter{
				DeliveryIDs: []string{"del_1", "del_2"},
			},
			entry: &Entry{
				DeliveryID: "del_1",
			},
			expected: true,
		},
		{
			name: "delivery filter - no match",
			filter: &Filter{
				DeliveryIDs: []string{"del_1", "del_2"},
			},
			entry: &Entry{
				DeliveryID: "del_3",
			},
			expected: false,
		},
		{
			name: "kind filter - match",
			filter: &Filter{
				Kinds: []string{KindSampleRejected, KindConnectionClosed},
			},
			entry: &Entry{
				Kind: KindSampleRejected,
			},
			expected: true,
		},
		{
			name: "kind filter - no match",
			filter: &Filter{
				Kinds: []string{KindSampleRejected, KindConnectionClosed},
			},
			entry: &Entry{
				Kind: KindPresence,
			},
			expected: false,
		},
		{
			name: "level filter - debug shows all",
			filter: &Filter{
				Level: "debug",
			},
			entry: &Entry{
				Level: "info",
			},
			expected: true,
		},
		{
			name: "level filter - warn hides info",
			filter: &Filter{
				Level: "warn",
			},
			entry: &Entry{
				Level: "info",
			},
			expected: false,
		},
		{
			name: "level filter - warn shows error",
			filter: &Filter{
				Level: "warn",
			},
			entry: &Entry{
				Level: "error",
			},
			expected: true,
		},
		{
			name: "combined filters - all match",
			filter: &Filter{
				DeliveryIDs: []string{"del_1"},
				Kinds:       []string{KindSampleRejected},
				Level:       "info",
			},
			entry: &Entry{
				Level:      "warn",
				Kind:       KindSampleRejected,
				DeliveryID: "del_1",
			},
			expected: true,
		},
		{
			name: "combined filters - one doesn't match",
			filter: &Filter{
				DeliveryIDs: []string{"del_1"},
				Kinds:       []string{KindSampleRejected},
			},
			entry: &Entry{
				Kind:       KindSampleAccepted,
				DeliveryID: "del_1",
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.filter.Matches(tt.entry)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(10)

	sub1 := hub.Subscribe("sub-1", nil)
	assert.NotNil(t, sub1)
	assert.Equal(t, "sub-1", sub1.ID)
	assert.Equal(t, 1, hub.SubscriberCount())

	sub2 := hub.Subscribe("sub-2", &Filter{Level: "warn"})
	assert.NotNil(t, sub2)
	assert.Equal(t, 2, hub.SubscriberCount())

	hub.Unsubscribe("sub-1")
	assert.Equal(t, 1, hub.SubscriberCount())

	// Unsubscribe non-existent (should not panic)
	hub.Unsubscribe("non-existent")
	assert.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe("sub-2")
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub(10)

	sub1 := hub.Subscribe("sub-1", nil)
	sub2 := hub.Subscribe("sub-2", &Filter{
		Kinds: []string{KindSampleRejected},
	})

	// Publish entry that matches both
	entry1 := &Entry{
		Timestamp:  time.Now(),
		Level:      "warn",
		Kind:       KindSampleRejected,
		DeliveryID: "del_1",
		Reason:     "stale_timestamp",
	}
	hub.Publish(entry1)

	select {
	case received := <-sub1.Ch:
		assert.Equal(t, entry1, received)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("sub1 did not receive entry")
	}

	select {
	case received := <-sub2.Ch:
		assert.Equal(t, entry1, received)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("sub2 did not receive entry")
	}

	// Publish entry that only matches sub1 (no filter)
	entry2 := &Entry{
		Timestamp:  time.Now(),
		Level:      "info",
		Kind:       KindSampleAccepted,
		DeliveryID: "del_1",
		Sequence:   7,
	}
	hub.Publish(entry2)

	select {
	case received := <-sub1.Ch:
		assert.Equal(t, entry2, received)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("sub1 did not receive entry")
	}

	// sub2 should not receive (filtered out)
	select {
	case <-sub2.Ch:
		t.Fatal("sub2 should not receive filtered entry")
	case <-time.After(50 * time.Millisecond):
		// Expected
	}

	hub.Unsubscribe("sub-1")
	hub.Unsubscribe("sub-2")
}

func TestHub_PublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(2)

	sub := hub.Subscribe("sub-1", nil)

	for i := 0; i < 5; i++ {
		hub.Publish(&Entry{
			Kind:    KindSampleAccepted,
			Message: "test",
		})
	}

	received := 0
	for {
		select {
		case <-sub.Ch:
			received++
		default:
			goto done
		}
	}
done:
	assert.Equal(t, 2, received, "should only receive buffer size entries")

	hub.Unsubscribe("sub-1")
}

func TestHub_ConcurrentPublish(t *testing.T) {
	hub := NewHub(100)

	sub := hub.Subscribe("sub-1", nil)

	var wg sync.WaitGroup
	publishCount := 50
	goroutines := 10

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < publishCount; i++ {
				hub.Publish(&Entry{
					Kind:    KindSampleAccepted,
					Message: "concurrent test",
				})
			}
		}()
	}

	var received atomic.Int32
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sub.Ch:
				received.Add(1)
			case <-done:
				return
			}
		}
	}()

	wg.Wait()
	time.Sleep(100 * time.Millisecond)
	close(done)

	// Should receive up to buffer size, potentially less due to drops
	assert.LessOrEqual(t, int(received.Load()), goroutines*publishCount)
	assert.Greater(t, int(received.Load()), 0)

	hub.Unsubscribe("sub-1")
}

func TestHub_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(10)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			subID := string(rune('a' + id))
			sub := hub.Subscribe(subID, nil)
			require.NotNil(t, sub)
			time.Sleep(time.Millisecond)
			hub.Unsubscribe(subID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hub.Publish(&Entry{Message: "test"})
			time.Sleep(time.Microsecond)
		}
	}()

	wg.Wait()

	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestTrackLogger_SampleAccepted(t *testing.T) {
	hub := NewHub(10)
	logger := NewTrackLogger(hub)

	sub := hub.Subscribe("test", nil)

	logger.SampleAccepted("del_1", "conn-1", 42)

	select {
	case entry := <-sub.Ch:
		assert.Equal(t, "info", entry.Level)
		assert.Equal(t, KindSampleAccepted, entry.Kind)
		assert.Equal(t, "del_1", entry.DeliveryID)
		assert.Equal(t, "conn-1", entry.ConnectionID)
		assert.Equal(t, uint64(42), entry.Sequence)
		assert.Equal(t, "position accepted", entry.Message)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive activity entry")
	}

	hub.Unsubscribe("test")
}

func TestTrackLogger_SampleRejected(t *testing.T) {
	hub := NewHub(10)
	logger := NewTrackLogger(hub)

	sub := hub.Subscribe("test", nil)

	logger.SampleRejected("del_1", "conn-1", "invalid_coordinates")

	select {
	case entry := <-sub.Ch:
		assert.Equal(t, "warn", entry.Level)
		assert.Equal(t, KindSampleRejected, entry.Kind)
		assert.Equal(t, "invalid_coordinates", entry.Reason)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive activity entry")
	}

	hub.Unsubscribe("test")
}

func TestTrackLogger_ConnectionClosedLevels(t *testing.T) {
	hub := NewHub(10)
	logger := NewTrackLogger(hub)

	sub := hub.Subscribe("test", nil)

	logger.ConnectionClosed("del_1", "conn-1", "driver", "superseded")
	logger.ConnectionClosed("del_1", "conn-2", "customer", "client_disconnect")

	select {
	case entry := <-sub.Ch:
		assert.Equal(t, "warn", entry.Level)
		assert.Equal(t, "superseded", entry.Reason)
		assert.Equal(t, "driver", entry.Role)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive first entry")
	}

	select {
	case entry := <-sub.Ch:
		assert.Equal(t, "info", entry.Level)
		assert.Equal(t, "client_disconnect", entry.Reason)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive second entry")
	}

	hub.Unsubscribe("test")
}

func TestTrackLogger_Presence(t *testing.T) {
	hub := NewHub(10)
	logger := NewTrackLogger(hub)

	sub := hub.Subscribe("test", nil)

	logger.Presence("del_1", "offline")

	select {
	case entry := <-sub.Ch:
		assert.Equal(t, KindPresence, entry.Kind)
		assert.Equal(t, "offline", entry.Reason)
		assert.Equal(t, "driver offline", entry.Message)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive activity entry")
	}

	hub.Unsubscribe("test")
}

func TestTrackLogger_NilSafe(t *testing.T) {
	// None of these should panic
	var logger *TrackLogger
	logger.SampleAccepted("del_1", "conn-1", 1)
	logger.SampleRejected("del_1", "conn-1", "terminal")
	logger.ConnectionOpened("del_1", "conn-1", "driver")
	logger.ConnectionClosed("del_1", "conn-1", "driver", "heartbeat_timeout")
	logger.Presence("del_1", "online")
	logger.StreamEvicted("del_1", "terminal")

	withoutHub := NewTrackLogger(nil)
	withoutHub.SampleAccepted("del_1", "conn-1", 1)
	withoutHub.StreamEvicted("del_1", "ttl")
}

func TestMatchesLevel(t *testing.T) {
	tests := []struct {
		entryLevel  string
		filterLevel string
		expected    bool
	}{
		{"debug", "debug", true},
		{"info", "debug", true},
		{"warn", "debug", true},
		{"error", "debug", true},
		{"debug", "info", false},
		{"info", "info", true},
		{"warn", "info", true},
		{"error", "info", true},
		{"debug", "warn", false},
		{"info", "warn", false},
		{"warn", "warn", true},
		{"error", "warn", true},
		{"debug", "error", false},
		{"info", "error", false},
		{"warn", "error", false},
		{"error", "error", true},
		{"unknown", "info", true}, // unknown level passes
		{"info", "unknown", true}, // unknown filter passes
	}

	for _, tt := range tests {
		t.Run(tt.entryLevel+"_"+tt.filterLevel, func(t *testing.T) {
			result := matchesLevel(tt.entryLevel, tt.filterLevel)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHub_DefaultBufferSize(t *testing.T) {
	hub := NewHub(0)
	assert.Equal(t, 100, hub.bufferSize)

	hub2 := NewHub(-5)
	assert.Equal(t, 100, hub2.bufferSize)
}

func BenchmarkHub_Publish(b *testing.B) {
	hub := NewHub(1000)

	for i := 0; i < 10; i++ {
		sub := hub.Subscribe(string(rune('a'+i)), nil)
		go func() {
			for range sub.Ch {
				// Drain
			}
		}()
	}

	entry := &Entry{
		Timestamp:    time.Now(),
		Level:        "info",
		Kind:         KindSampleAccepted,
		DeliveryID:   "del_1",
		ConnectionID: "conn-1",
		Sequence:     1,
		Message:      "position accepted",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Publish(entry)
	}
}
