package domain

import (
	"context"
	"sync"
)

// DeliveryLifecycle answers questions about a delivery's status. Delivery
// CRUD lives in an external ordering system; the relay only needs to know
// whether a delivery exists and whether it has reached a terminal state.
type DeliveryLifecycle interface {
	// IsTerminal reports whether the delivery has reached a terminal status.
	// Returns ErrDeliveryNotFound for unknown deliveries.
	IsTerminal(ctx context.Context, deliveryID string) (bool, error)
}

// StaticLifecycle is an in-memory DeliveryLifecycle used by the default
// wiring and by tests. Deliveries are registered explicitly; unknown IDs are
// reported as not found unless AllowUnknown is set.
type StaticLifecycle struct {
	mu           sync.RWMutex
	terminal     map[string]bool
	allowUnknown bool
}

// NewStaticLifecycle creates an empty static lifecycle.
func NewStaticLifecycle() *StaticLifecycle {
	return &StaticLifecycle{terminal: make(map[string]bool)}
}

// AllowUnknown makes unknown delivery IDs resolve as active instead of
// returning ErrDeliveryNotFound. Used when the relay fronts an ordering
// system that does not push delivery registrations.
func (l *StaticLifecycle) AllowUnknown() *StaticLifecycle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowUnknown = true
	return l
}

// Register marks a delivery as known and active.
func (l *StaticLifecycle) Register(deliveryID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.terminal[deliveryID]; !ok {
		l.terminal[deliveryID] = false
	}
}

// MarkTerminal marks a delivery as terminal.
func (l *StaticLifecycle) MarkTerminal(deliveryID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminal[deliveryID] = true
}

// IsTerminal implements DeliveryLifecycle.
func (l *StaticLifecycle) IsTerminal(_ context.Context, deliveryID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	terminal, ok := l.terminal[deliveryID]
	if !ok {
		if l.allowUnknown {
			return false, nil
		}
		return false, ErrDeliveryNotFound
	}
	return terminal, nil
}
