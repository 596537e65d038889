package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const publishTimeout = 10 * time.Second

var (
	ErrQueueClosed = errors.New("bus: queue closed")
	ErrQueueFull   = errors.New("bus: queue full")
)

// Queue is a buffered channel of inbound events. Platform callbacks publish
// into it and a single consumer drains it, so moderation never blocks the
// platform connection and events of one bot are handled one at a time.
type Queue struct {
	events  chan Event
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewQueue creates a Queue with the given buffer size.
func NewQueue(bufferSize int, logger *slog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		events:  make(chan Event, bufferSize),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish enqueues ev. When the buffer is full it waits up to 10 seconds, or
// until ctx is done, before dropping the event.
func (q *Queue) Publish(ctx context.Context, ev Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("attempted to publish to closed queue", "event", ev.Kind())
		return ErrQueueClosed
	}

	select {
	case q.events <- ev:
		return nil
	default:
	}

	q.logger.Warn("event queue full, waiting", "event", ev.Kind())
	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	select {
	case q.events <- ev:
		q.logger.Info("event delivered after wait", "event", ev.Kind())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		q.logger.Error("event dropped: queue full", "event", ev.Kind(), "waited", q.timeout)
		return ErrQueueFull
	}
}

// Events returns the receive side of the queue. It is closed by Close.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.events)
	}
}
