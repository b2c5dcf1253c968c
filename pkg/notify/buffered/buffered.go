// Package buffered batches notifications before handing them to a slow sink
// such as email.
package buffered

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ArionMiles/homeledger/pkg/api"
)

// DefaultBatchSize is the default number of notifications to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// shutdownFlushTimeout bounds the final flush after the run context ends.
const shutdownFlushTimeout = 30 * time.Second

// Flusher delivers a batch of notifications. On failure the whole batch is
// kept for the next flush unless the error is a *PartialError.
type Flusher func(ctx context.Context, batch []api.Notification) error

// PartialError is returned by a flusher that delivered part of a batch.
// Only Undelivered is kept for the next flush.
type PartialError struct {
	Undelivered []api.Notification
	Err         error
}

func (e *PartialError) Error() string { return e.Err.Error() }

func (e *PartialError) Unwrap() error { return e.Err }

// Config holds configuration for buffered delivery.
type Config struct {
	// BatchSize is the number of notifications to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
	// QueueSize is the capacity of the intake channel. Defaults to 100.
	QueueSize int
	// MaxPending caps the buffer when failed batches are put back for the
	// next flush. The oldest notifications are dropped past it. Defaults to
	// ten batches.
	MaxPending int
}

// Notifier accepts notifications through Notify and delivers them in batches
// from Run.
type Notifier struct {
	in      chan api.Notification
	buffer  []api.Notification
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
}

var _ api.Notifier = (*Notifier)(nil)

// New creates a buffered notifier around flusher.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxPending < cfg.BatchSize {
		cfg.MaxPending = 10 * cfg.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		in:      make(chan api.Notification, cfg.QueueSize),
		buffer:  make([]api.Notification, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Notify queues n for delivery. It blocks when the queue is full and Run is
// not draining it.
func (n *Notifier) Notify(ctx context.Context, note api.Notification) error {
	select {
	case n.in <- note:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is canceled, flushing on batch size, on the
// flush interval and once more on shutdown.
func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.config.FlushInterval)
	defer ticker.Stop()

	n.logger.Info("buffered notifier started",
		"batch_size", n.config.BatchSize,
		"flush_interval", n.config.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			return n.shutdown()
		case <-ticker.C:
			if err := n.flush(ctx); err != nil {
				n.logger.Error("failed to flush on interval", "error", err)
			}
		case note := <-n.in:
			n.mu.Lock()
			n.buffer = append(n.buffer, note)
			full := len(n.buffer) >= n.config.BatchSize
			n.mu.Unlock()

			if full {
				if err := n.flush(ctx); err != nil {
					n.logger.Error("failed to flush on batch size", "error", err)
				}
			}
		}
	}
}

func (n *Notifier) shutdown() error {
	n.logger.Info("buffered notifier stopping, flushing remaining buffer")

	// Pick up anything queued after the last receive.
	for drained := false; !drained; {
		select {
		case note := <-n.in:
			n.mu.Lock()
			n.buffer = append(n.buffer, note)
			n.mu.Unlock()
		default:
			drained = true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	if err := n.flush(ctx); err != nil {
		n.logger.Error("failed to flush on shutdown", "error", err)
	}
	return context.Canceled
}

func (n *Notifier) flush(ctx context.Context) error {
	n.mu.Lock()
	if len(n.buffer) == 0 {
		n.mu.Unlock()
		return nil
	}

	toFlush := make([]api.Notification, len(n.buffer))
	copy(toFlush, n.buffer)
	n.buffer = n.buffer[:0]
	n.mu.Unlock()

	n.logger.Debug("flushing notifications", "count", len(toFlush))

	if err := n.flusher(ctx, toFlush); err != nil {
		failed := toFlush
		var partial *PartialError
		if errors.As(err, &partial) {
			failed = partial.Undelivered
		}
		n.requeue(failed)
		return err
	}

	n.logger.Info("delivered notifications", "count", len(toFlush))
	return nil
}

// requeue puts a failed batch back ahead of anything buffered since, keeping
// at most MaxPending notifications.
func (n *Notifier) requeue(batch []api.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	pending := append(slices.Clip(batch), n.buffer...)
	if over := len(pending) - n.config.MaxPending; over > 0 {
		n.logger.Warn("dropping oldest undelivered notifications", "count", over)
		pending = pending[over:]
	}
	n.buffer = pending
}

// BufferLen returns the number of notifications waiting for the next flush.
func (n *Notifier) BufferLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.buffer)
}
