// Package debug exposes the relay's live state for operators: which
// streams exist, who is connected, and how far each delivery has
// progressed.
package debug

import (
	"sort"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/dispatch"
	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
	"github.com/Ireoluwatomide/swift-track-relay/internal/registry"
	"github.com/Ireoluwatomide/swift-track-relay/internal/stream"
)

// ConnectionStatus is one live session on a delivery.
type ConnectionStatus struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	State        string    `json:"state"`
	AuthorizedAt time.Time `json:"authorized_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// DeliveryStatus is the live view of one delivery's stream.
type DeliveryStatus struct {
	DeliveryID  string             `json:"delivery_id"`
	Sequence    uint64             `json:"sequence"`
	LastAppend  time.Time          `json:"last_append,omitempty"`
	Subscribers int                `json:"subscribers"`
	Connections []ConnectionStatus `json:"connections"`
}

// Inspector reads live state from the relay's components. All reads are
// snapshots; nothing is locked across components.
type Inspector struct {
	registry   *registry.Registry
	streams    *stream.Streams
	dispatcher *dispatch.Dispatcher
}

// NewInspector creates an inspector.
func NewInspector(reg *registry.Registry, streams *stream.Streams, dispatcher *dispatch.Dispatcher) *Inspector {
	return &Inspector{registry: reg, streams: streams, dispatcher: dispatcher}
}

// Deliveries lists every delivery with a live stream or connection,
// ordered by delivery ID.
func (i *Inspector) Deliveries() []DeliveryStatus {
	seen := make(map[string]*DeliveryStatus)

	i.streams.ForEach(func(st *stream.Stream) {
		seen[st.DeliveryID()] = &DeliveryStatus{
			DeliveryID: st.DeliveryID(),
			Sequence:   st.Sequence(),
			LastAppend: st.LastAppend(),
		}
	})

	for _, conn := range i.registry.Snapshot() {
		status, ok := seen[conn.DeliveryID]
		if !ok {
			status = &DeliveryStatus{DeliveryID: conn.DeliveryID}
			seen[conn.DeliveryID] = status
		}
		status.Connections = append(status.Connections, connectionStatus(conn))
	}

	out := make([]DeliveryStatus, 0, len(seen))
	for _, status := range seen {
		status.Subscribers = i.dispatcher.DeliverySubscriberCount(status.DeliveryID)
		sortConnections(status.Connections)
		out = append(out, *status)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DeliveryID < out[b].DeliveryID })
	return out
}

// Delivery returns the live view of one delivery. ok is false when the
// delivery has neither a stream nor connections.
func (i *Inspector) Delivery(deliveryID string) (DeliveryStatus, bool) {
	status := DeliveryStatus{DeliveryID: deliveryID}
	found := false

	if st, ok := i.streams.Get(deliveryID); ok {
		status.Sequence = st.Sequence()
		status.LastAppend = st.LastAppend()
		found = true
	}

	if conn, ok := i.registry.DriverConnection(deliveryID); ok {
		status.Connections = append(status.Connections, connectionStatus(conn))
		found = true
	}
	for _, conn := range i.registry.ListCustomerConnections(deliveryID) {
		status.Connections = append(status.Connections, connectionStatus(conn))
		found = true
	}
	sortConnections(status.Connections)

	status.Subscribers = i.dispatcher.DeliverySubscriberCount(deliveryID)
	return status, found
}

func connectionStatus(conn domain.Connection) ConnectionStatus {
	return ConnectionStatus{
		ID:           conn.ID.String(),
		Role:         string(conn.Role),
		State:        string(conn.State),
		AuthorizedAt: conn.AuthorizedAt,
		LastSeenAt:   conn.LastSeenAt,
	}
}

func sortConnections(conns []ConnectionStatus) {
	sort.Slice(conns, func(a, b int) bool {
		if conns[a].Role != conns[b].Role {
			return conns[a].Role < conns[b].Role
		}
		return conns[a].ID < conns[b].ID
	})
}
