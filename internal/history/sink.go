package history

import (
	"context"
	"sync"
	"time"

	"github.com/Ireoluwatomide/swift-track-relay/internal/logging"
	"github.com/Ireoluwatomide/swift-track-relay/internal/observability"
)

var log = logging.Component("history")

// Inserter is satisfied by Store, and by fakes in tests.
type Inserter interface {
	InsertBatch(ctx context.Context, records []Record) error
}

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
)

// Sink buffers records and writes them to the store in batches. Record is
// non-blocking: when the buffer is full the record is dropped and counted,
// because the live tracking path must never wait on Postgres.
type Sink struct {
	store   Inserter
	metrics *observability.Metrics

	bufferSize    int
	batchSize     int
	flushInterval time.Duration

	buf  chan Record
	stop chan struct{}
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	dropped uint64
}

// NewSink creates a sink with default buffering.
func NewSink(store Inserter, metrics *observability.Metrics) *Sink {
	return &Sink{
		store:         store,
		metrics:       metrics,
		bufferSize:    defaultBufferSize,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		buf:           make(chan Record, defaultBufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// WithBuffering overrides buffer size, batch size and flush interval.
func (s *Sink) WithBuffering(bufferSize, batchSize int, flushInterval time.Duration) *Sink {
	return &Sink{
		store:         s.store,
		metrics:       s.metrics,
		bufferSize:    bufferSize,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buf:           make(chan Record, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Record enqueues a sample for persistence. Never blocks; drops when the
// buffer is full.
func (s *Sink) Record(ctx context.Context, record Record) {
	select {
	case s.buf <- record:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.HistoryDropped(ctx, 1)
		}
	}
}

// Dropped reports how many records were shed due to a full buffer.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Start launches the flush loop. Returns immediately.
func (s *Sink) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop flushes what is buffered and stops the loop.
func (s *Sink) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.store.InsertBatch(ctx, batch); err != nil {
			log.Error("history flush failed", "error", err, "batch", len(batch))
		} else if s.metrics != nil {
			s.metrics.HistoryFlushed(ctx, len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case record := <-s.buf:
			batch = append(batch, record)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			// Drain whatever is still buffered, then flush once.
			for {
				select {
				case record := <-s.buf:
					batch = append(batch, record)
					if len(batch) >= s.batchSize {
						flush()
					}
					continue
				default:
				}
				break
			}
			flush()
			return
		case <-ctx.Done():
			flush()
			return
		}
	}
}
