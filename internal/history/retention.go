package history

import (
	"context"
	"sync"
	"time"
)

// Pruner is satisfied by Store, and by fakes in tests.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention deletes history rows older than the configured window on a
// fixed interval, keeping the position_history table bounded.
type Retention struct {
	store    Pruner
	window   time.Duration
	interval time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRetention creates a retention sweeper. Rows received more than
// window ago are deleted every interval.
func NewRetention(store Pruner, window, interval time.Duration) *Retention {
	return &Retention{
		store:    store,
		window:   window,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Returns immediately.
func (r *Retention) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop halts the loop. Idempotent.
func (r *Retention) Stop() {
	r.once.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.prune(ctx)
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Retention) prune(ctx context.Context) {
	cutoff := time.Now().Add(-r.window)
	pruned, err := r.store.PruneBefore(ctx, cutoff)
	if err != nil {
		log.Error("history prune failed", "error", err)
		return
	}
	if pruned > 0 {
		log.Info("pruned position history", "rows", pruned, "cutoff", cutoff)
	}
}
