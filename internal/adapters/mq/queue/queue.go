// Package queue provides the bounded backpressure queue that load workers
// pull pending events from.
//
// Producers never block: Enqueue fails fast when the queue is full. Consumers
// block on Poll for a bounded wait; an expired wait means the queue is drained.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 100000
	defaultPollTimeout   = 5 * time.Second
)

// Event represents the payload type flowing through the queue.
type Event = model.SkiEvent

// Queue provides non-blocking enqueue and bounded-wait dequeue semantics.
type Queue interface {
	// Enqueue adds an event to the queue.
	// Returns false if the queue is full or closed and the event was not enqueued.
	Enqueue(ctx context.Context, e Event) bool

	// Poll waits up to wait for the next event. The boolean is false when the
	// wait expired, the context ended, or the queue is closed and empty.
	Poll(ctx context.Context, wait time.Duration) (Event, bool)

	// Len returns the current number of queued events.
	Len() int

	// Close stops accepting new events. Events already queued can still be polled.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events      chan Event
	capacity    int
	pollTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:    defaultQueueCapacity,
		pollTimeout: defaultPollTimeout,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.events = make(chan Event, q.capacity)
	metrics.UpdateLoadQueueLength(0)

	return q
}

// Fill enqueues every event and reports how many were accepted.
func (q *InMemoryQueue) Fill(ctx context.Context, events []Event) int {
	n := 0
	for _, e := range events {
		if !q.Enqueue(ctx, e) {
			break
		}
		n++
	}
	return n
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	}

	select {
	case q.events <- e:
		metrics.UpdateLoadQueueLength(len(q.events))
		return true
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Poll returns the next event, waiting at most wait. A non-positive wait uses
// the queue's configured poll timeout.
func (q *InMemoryQueue) Poll(ctx context.Context, wait time.Duration) (Event, bool) {
	if wait <= 0 {
		wait = q.pollTimeout
	}

	if ctx.Err() != nil {
		return Event{}, false
	}

	// Fast path avoids allocating a timer while work is plentiful.
	select {
	case e, ok := <-q.events:
		if ok {
			metrics.UpdateLoadQueueLength(len(q.events))
		}
		return e, ok
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e, ok := <-q.events:
		if ok {
			metrics.UpdateLoadQueueLength(len(q.events))
		}
		return e, ok
	case <-timer.C:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the maximum number of queued events.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops the queue from accepting events. Pollers drain what is left and
// then observe the closed channel immediately instead of waiting out the timeout.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	close(q.events)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
