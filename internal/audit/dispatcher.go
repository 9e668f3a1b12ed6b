// Package audit delivers committed history entries to an external audit
// trail. Delivery is best effort: the Dispatcher queues entries on a bounded
// buffer and a single worker forwards them to the configured sink.
package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"vaxtrax/internal/core"
	"vaxtrax/pkg/domain"
)

const (
	defaultBuffer  = 256
	defaultTimeout = 5 * time.Second
	flushPoll      = 2 * time.Millisecond
)

// Sink receives history entries.
type Sink interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
}

// Reader is implemented by sinks that can return the trail for one batch.
type Reader interface {
	Scans(ctx context.Context, batchNo string) ([]domain.HistoryEntry, error)
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("audit dispatcher closed")

// Stats counts dispatcher outcomes since construction.
type Stats struct {
	Enqueued  int64
	Delivered int64
	Dropped   int64
	Failed    int64
}

// Dispatcher decouples registry mutations from sink latency.
type Dispatcher struct {
	sink    Sink
	queue   chan domain.HistoryEntry
	timeout time.Duration
	logger  core.Logger
	metrics core.MetricsRecorder

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	enqueued, delivered, dropped, failed atomic.Int64
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBuffer sets the queue capacity. Non-positive values keep the default.
func WithBuffer(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.HistoryEntry, n)
		}
	}
}

// WithTimeout bounds every sink call.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger routes drop and failure logs.
func WithLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records every sink call as the "audit_append" operation.
func WithMetrics(metrics core.MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// NewDispatcher starts the worker goroutine. Callers must Close it.
func NewDispatcher(sink Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan domain.HistoryEntry, defaultBuffer),
		timeout: defaultTimeout,
		logger:  discardLogger{},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Append enqueues entry without blocking. A full buffer or a closed
// dispatcher drops the entry; the caller is never failed.
func (d *Dispatcher) Append(_ context.Context, entry domain.HistoryEntry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(entry, "closed")
		return nil
	}
	select {
	case d.queue <- entry:
		d.enqueued.Add(1)
	default:
		d.drop(entry, "buffer full")
	}
	return nil
}

func (d *Dispatcher) drop(entry domain.HistoryEntry, reason string) {
	d.dropped.Add(1)
	d.logger.Warn("audit entry dropped", "batch", entry.BatchNo, "action", entry.Action, "reason", reason)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for entry := range d.queue {
		d.deliver(entry)
	}
}

func (d *Dispatcher) deliver(entry domain.HistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	start := time.Now()
	err := d.sink.Append(ctx, entry)
	if d.metrics != nil {
		d.metrics.Observe(ctx, "audit_append", err == nil, time.Since(start))
	}
	if err != nil {
		d.failed.Add(1)
		d.logger.Warn("audit sink append failed", "batch", entry.BatchNo, "action", entry.Action, "error", domain.AuditUnavailable(err))
		return
	}
	d.delivered.Add(1)
}

// Close stops accepting entries and waits until the queue drains or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every entry enqueued before the call has been handed to
// the sink, successfully or not, or until ctx ends.
func (d *Dispatcher) Flush(ctx context.Context) error {
	target := d.enqueued.Load()
	ticker := time.NewTicker(flushPoll)
	defer ticker.Stop()
	for d.delivered.Load()+d.failed.Load() < target {
		select {
		case <-ticker.C:
		case <-d.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:  d.enqueued.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

// Sink returns the dispatcher as a registry audit sink. When the wrapped
// sink can read the trail back, the result also implements Reader. A read
// first flushes entries already queued, bounded by the sink timeout, so a
// trail read right after a mutation includes it unless the sink is stalled.
func (d *Dispatcher) Sink() core.AuditSink {
	if d == nil {
		return nil
	}
	if r, ok := d.sink.(Reader); ok {
		return readingDispatcher{Dispatcher: d, reader: r}
	}
	return d
}

type readingDispatcher struct {
	*Dispatcher
	reader Reader
}

func (r readingDispatcher) Scans(ctx context.Context, batchNo string) ([]domain.HistoryEntry, error) {
	flushCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.Flush(flushCtx); err != nil {
		r.logger.Warn("audit trail read before queue drained", "batch", batchNo, "error", err)
	}
	return r.reader.Scans(ctx, batchNo)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
