package debug

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Ireoluwatomide/swift-track-relay/internal/auth"
	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/registry"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

func setupInspector(t *testing.T) (*Inspector, *registry.Registry, *stream.Streams, *dispatch.Dispatcher) {
	t.Helper()

	deliveries := domain.NewStaticLifecycle()
	deliveries.Register("del_1")
	deliveries.Register("del_2")

	streams := stream.NewStreams(50, 2*time.Minute)
	dispatcher := dispatch.New(streams, nil, 8, time.Second)
	reg := registry.New(auth.AllowAll{}, deliveries)

	return NewInspector(reg, streams, dispatcher), reg, streams, dispatcher
}

func appendSample(t *testing.T, streams *stream.Streams, deliveryID string, n int) {
	t.Helper()
	now := time.Now()
	for i := 0; i < n; i++ {
		if _, err := streams.Append(deliveryID, domain.RawSample{
			Lat:       6.5244,
			Lng:       3.3792,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append sample %d: %v", i, err)
		}
	}
}

func TestInspector_DeliveriesEmpty(t *testing.T) {
	inspector, _, _, _ := setupInspector(t)

	if got := inspector.Deliveries(); len(got) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(got))
	}
}

func TestInspector_DeliveriesMergesStreamsAndConnections(t *testing.T) {
	inspector, reg, streams, _ := setupInspector(t)

	// del_1 has a stream and a driver; del_2 has only a customer connection.
	appendSample(t, streams, "del_1", 3)
	if _, _, err := reg.Register(t.Context(), "del_1", domain.RoleDriver, domain.Principal{Kind: domain.PrincipalDriver, ID: "drv-1"}); err != nil {
		t.Fatalf("register driver: %v", err)
	}
	if _, _, err := reg.Register(t.Context(), "del_2", domain.RoleCustomer, domain.Principal{Kind: domain.PrincipalCustomer, ID: "cus-1"}); err != nil {
		t.Fatalf("register customer: %v", err)
	}

	got := inspector.Deliveries()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].DeliveryID != "del_1" || got[1].DeliveryID != "del_2" {
		t.Fatalf("expected sorted delivery IDs, got %s, %s", got[0].DeliveryID, got[1].DeliveryID)
	}

	if got[0].Sequence != 3 {
		t.Fatalf("expected del_1 at sequence 3, got %d", got[0].Sequence)
	}
	if len(got[0].Connections) != 1 || got[0].Connections[0].Role != "driver" {
		t.Fatalf("expected one driver connection on del_1, got %+v", got[0].Connections)
	}

	if got[1].Sequence != 0 {
		t.Fatalf("expected del_2 at sequence 0, got %d", got[1].Sequence)
	}
	if len(got[1].Connections) != 1 || got[1].Connections[0].Role != "customer" {
		t.Fatalf("expected one customer connection on del_2, got %+v", got[1].Connections)
	}
}

func TestInspector_DeliverySortsConnectionsByRole(t *testing.T) {
	inspector, reg, streams, _ := setupInspector(t)

	appendSample(t, streams, "del_1", 1)
	if _, _, err := reg.Register(t.Context(), "del_1", domain.RoleDriver, domain.Principal{Kind: domain.PrincipalDriver, ID: "drv-1"}); err != nil {
		t.Fatalf("register driver: %v", err)
	}
	for _, id := range []string{"cus-1", "cus-2"} {
		if _, _, err := reg.Register(t.Context(), "del_1", domain.RoleCustomer, domain.Principal{Kind: domain.PrincipalCustomer, ID: id}); err != nil {
			t.Fatalf("register customer %s: %v", id, err)
		}
	}

	status, ok := inspector.Delivery("del_1")
	if !ok {
		t.Fatal("expected delivery to be found")
	}
	if status.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", status.Sequence)
	}
	if len(status.Connections) != 3 {
		t.Fatalf("expected 3 connections, got %d", len(status.Connections))
	}
	// Customers sort before the driver.
	if status.Connections[0].Role != "customer" || status.Connections[1].Role != "customer" || status.Connections[2].Role != "driver" {
		t.Fatalf("unexpected connection order: %+v", status.Connections)
	}
	for _, conn := range status.Connections {
		if conn.State != string(domain.ConnActive) {
			t.Fatalf("expected active connection, got %s", conn.State)
		}
		if conn.AuthorizedAt.IsZero() || conn.LastSeenAt.IsZero() {
			t.Fatal("expected authorized/last seen timestamps to be set")
		}
	}
}

func TestInspector_DeliveryNotFound(t *testing.T) {
	inspector, _, _, _ := setupInspector(t)

	if _, ok := inspector.Delivery("del_unknown"); ok {
		t.Fatal("expected unknown delivery to report not found")
	}
}

func TestInspector_SubscriberCounts(t *testing.T) {
	inspector, _, streams, dispatcher := setupInspector(t)

	appendSample(t, streams, "del_1", 2)

	_, sub := dispatcher.Subscribe(t.Context(), "del_1", uuid.New(), 0)
	defer sub.Close()
	_, sub2 := dispatcher.Subscribe(t.Context(), "del_1", uuid.New(), 0)
	defer sub2.Close()

	status, ok := inspector.Delivery("del_1")
	if !ok {
		t.Fatal("expected delivery to be found")
	}
	if status.Subscribers != 2 {
		t.Fatalf("expected 2 subscribers, got %d", status.Subscribers)
	}
}
