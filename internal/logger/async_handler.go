package logger

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultAsyncBufferSize   = 1024
	defaultAsyncFlushTimeout = 5 * time.Second
)

// Reasons passed to AsyncOptions.OnDrop.
const (
	DropQueueFull  = "queue_full"
	DropWriteError = "write_error"
	DropShutdown   = "shutdown"
)

// AsyncOptions configures the queue in front of a sink.
type AsyncOptions struct {
	BufferSize   int
	FlushTimeout time.Duration
	// OnDrop is called whenever a record does not reach its sink. It runs on
	// the caller's goroutine for queue_full and on the sink worker otherwise,
	// so it must not log through the same logger.
	OnDrop func(sink, reason string)
}

// Sink is a named slow handler, such as the SQLite log store or Better Stack.
type Sink struct {
	Name    string
	Handler slog.Handler
}

// SinkStats reports what happened to the records handed to one sink.
type SinkStats struct {
	Name      string `json:"name"`
	Queued    int    `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

type queuedRecord struct {
	ctx     context.Context
	record  slog.Record
	handler slog.Handler
}

// sinkWorker owns the queue and the single goroutine writing to one sink.
// mu guards closed and the close of queue so enqueue never sends on a
// closed channel.
type sinkWorker struct {
	name         string
	queue        chan queuedRecord
	flushTimeout time.Duration
	onDrop       func(sink, reason string)

	mu      sync.RWMutex
	closed  bool
	abandon atomic.Bool
	done    chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	errMu   sync.Mutex
	lastErr string
}

func newSinkWorker(name string, opts AsyncOptions) *sinkWorker {
	w := &sinkWorker{
		name:         name,
		queue:        make(chan queuedRecord, cmp.Or(max(opts.BufferSize, 0), defaultAsyncBufferSize)),
		flushTimeout: cmp.Or(max(opts.FlushTimeout, 0), defaultAsyncFlushTimeout),
		onDrop:       opts.OnDrop,
		done:         make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *sinkWorker) run() {
	defer close(w.done)
	for q := range w.queue {
		// After a timed-out shutdown the sink may already be closed.
		if w.abandon.Load() {
			w.drop(DropShutdown)
			continue
		}
		if err := q.handler.Handle(q.ctx, q.record); err != nil {
			w.failed.Add(1)
			w.errMu.Lock()
			w.lastErr = err.Error()
			w.errMu.Unlock()
			w.report(DropWriteError)
			continue
		}
		w.delivered.Add(1)
	}
}

func (w *sinkWorker) enqueue(ctx context.Context, r slog.Record, h slog.Handler) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop(DropShutdown)
		return
	}
	select {
	case w.queue <- queuedRecord{ctx: context.WithoutCancel(ctx), record: r, handler: h}:
	default:
		w.drop(DropQueueFull)
	}
}

func (w *sinkWorker) drop(reason string) {
	w.dropped.Add(1)
	w.report(reason)
}

func (w *sinkWorker) report(reason string) {
	if w.onDrop != nil {
		w.onDrop(w.name, reason)
	}
}

func (w *sinkWorker) shutdown(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.flushTimeout)
		defer cancel()
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.abandon.Store(true)
		return fmt.Errorf("log sink %s: %w", w.name, ctx.Err())
	}
}

func (w *sinkWorker) stats() SinkStats {
	w.errMu.Lock()
	lastErr := w.lastErr
	w.errMu.Unlock()
	return SinkStats{
		Name:      w.name,
		Queued:    len(w.queue),
		Delivered: w.delivered.Load(),
		Dropped:   w.dropped.Load(),
		Failed:    w.failed.Load(),
		LastError: lastErr,
	}
}

// AsyncHandler writes records to a sink on a background worker, keeping
// database writes and remote shipping off the event path. Records are dropped,
// never blocked on, when the queue is full.
type AsyncHandler struct {
	worker  *sinkWorker
	handler slog.Handler
}

// NewAsyncHandler starts a worker for sink.
func NewAsyncHandler(sink Sink, opts AsyncOptions) *AsyncHandler {
	return &AsyncHandler{
		worker:  newSinkWorker(sink.Name, opts),
		handler: sink.Handler,
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle enqueues a clone of the record.
func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.handler.Enabled(ctx, r.Level) {
		return nil
	}
	h.worker.enqueue(ctx, r.Clone(), h.handler)
	return nil
}

// WithAttrs returns a handler sharing the same worker.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{worker: h.worker, handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a handler sharing the same worker.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{worker: h.worker, handler: h.handler.WithGroup(name)}
}

// Stats returns the sink counters.
func (h *AsyncHandler) Stats() SinkStats {
	if h == nil || h.worker == nil {
		return SinkStats{}
	}
	return h.worker.stats()
}

// Shutdown stops accepting records and waits for the queue to drain. When ctx
// (or the flush timeout) expires first, the remaining records are discarded
// without touching the sink.
func (h *AsyncHandler) Shutdown(ctx context.Context) error {
	if h == nil || h.worker == nil {
		return nil
	}
	return h.worker.shutdown(ctx)
}
