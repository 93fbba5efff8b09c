package broker

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryBroker is an in-process broker with durable-queue semantics close
// enough to RabbitMQ for tests: per-channel prefetch, manual ack, and
// redelivery of nacked or orphaned messages flagged as redelivered.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string]*memQueue
	changed chan struct{}
	nextTag uint64
	hook    func(queue string, msg Message) error
}

type memEntry struct {
	msg         Message
	redelivered bool
}

type memQueue struct {
	ready     []memEntry
	published []Message
}

// MemoryOption configures a MemoryBroker.
type MemoryOption func(*MemoryBroker)

// WithPublishHook runs fn before every publish; a non-nil error fails the
// publish. Tests use it to inject broker faults.
func WithPublishHook(fn func(queue string, msg Message) error) MemoryOption {
	return func(b *MemoryBroker) { b.hook = fn }
}

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker(opts ...MemoryOption) *MemoryBroker {
	b := &MemoryBroker{
		queues:  make(map[string]*memQueue),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect opens a new connection. Closing it closes only its own channels.
func (b *MemoryBroker) Connect() Connection {
	return &memConnection{b: b, channels: make(map[*memChannel]struct{})}
}

// Dialer adapts Connect to the Dialer signature; the URL is ignored.
func (b *MemoryBroker) Dialer() Dialer {
	return func(context.Context, string) (Connection, error) { return b.Connect(), nil }
}

// Ready returns the number of messages waiting for delivery.
func (b *MemoryBroker) Ready(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queue]; ok {
		return len(q.ready)
	}
	return 0
}

// Published returns every message ever accepted by queue, in order.
func (b *MemoryBroker) Published(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queue]; ok {
		return slices.Clone(q.published)
	}
	return nil
}

// DeadLetters returns the messages rejected from queue without requeue that
// wait in its dead-letter queue.
func (b *MemoryBroker) DeadLetters(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[DeadLetterQueue(queue)]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(q.ready))
	for _, e := range q.ready {
		out = append(out, e.msg)
	}
	return out
}

// broadcastLocked wakes every waiting consumer. Callers hold b.mu.
func (b *MemoryBroker) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

type memConnection struct {
	b        *MemoryBroker
	mu       sync.Mutex
	closed   bool
	channels map[*memChannel]struct{}
}

func (c *memConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	ch := &memChannel{
		b:       c.b,
		conn:    c,
		unacked: make(map[uint64]pendingDelivery),
		done:    make(chan struct{}),
	}
	c.channels[ch] = struct{}{}
	return ch, nil
}

func (c *memConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *memConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	channels := slices.Collect(maps.Keys(c.channels))
	c.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	return nil
}

func (c *memConnection) forget(ch *memChannel) {
	c.mu.Lock()
	delete(c.channels, ch)
	c.mu.Unlock()
}

type pendingDelivery struct {
	queue string
	entry memEntry
}

// memChannel state is guarded by b.mu, except done which is closed once.
type memChannel struct {
	b        *MemoryBroker
	conn     *memConnection
	prefetch int
	unacked  map[uint64]pendingDelivery
	closed   bool
	done     chan struct{}
}

func (c *memChannel) DeclareQueue(name string) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	for _, n := range []string{DeadLetterQueue(name), name} {
		if _, ok := c.b.queues[n]; !ok {
			c.b.queues[n] = &memQueue{}
		}
	}
	return nil
}

func (c *memChannel) Publish(ctx context.Context, queue string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	q, ok := c.b.queues[queue]
	if !ok {
		return ErrUnknownQueue
	}
	if c.b.hook != nil {
		if err := c.b.hook(queue, msg); err != nil {
			return err
		}
	}
	msg.Body = slices.Clone(msg.Body)
	q.ready = append(q.ready, memEntry{msg: msg})
	q.published = append(q.published, msg)
	c.b.broadcastLocked()
	return nil
}

func (c *memChannel) SetPrefetch(n int) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	c.prefetch = n
	c.b.broadcastLocked()
	return nil
}

func (c *memChannel) Consume(ctx context.Context, queue, _ string) (<-chan Delivery, error) {
	c.b.mu.Lock()
	if c.closed {
		c.b.mu.Unlock()
		return nil, ErrChannelClosed
	}
	if _, ok := c.b.queues[queue]; !ok {
		c.b.mu.Unlock()
		return nil, ErrUnknownQueue
	}
	c.b.mu.Unlock()

	out := make(chan Delivery)
	go c.deliver(ctx, queue, out)
	return out, nil
}

// deliver moves ready messages to out while the prefetch window has room.
func (c *memChannel) deliver(ctx context.Context, queue string, out chan<- Delivery) {
	defer close(out)
	for {
		c.b.mu.Lock()
		if c.closed {
			c.b.mu.Unlock()
			return
		}
		q := c.b.queues[queue]
		if len(q.ready) > 0 && (c.prefetch <= 0 || len(c.unacked) < c.prefetch) {
			e := q.ready[0]
			q.ready = q.ready[1:]
			c.b.nextTag++
			tag := c.b.nextTag
			c.unacked[tag] = pendingDelivery{queue: queue, entry: e}
			c.b.mu.Unlock()

			select {
			case out <- NewDelivery(tag, e.msg.ID, e.msg.Body, e.redelivered, c):
				continue
			case <-ctx.Done():
				c.unhand(tag)
				return
			case <-c.done:
				return
			}
		}
		wait := c.b.changed
		c.b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return
		case <-c.done:
		}
	}
}

// unhand puts back a message that was taken but never handed to a consumer.
func (c *memChannel) unhand(tag uint64) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	p, ok := c.unacked[tag]
	if !ok {
		return
	}
	delete(c.unacked, tag)
	q := c.b.queues[p.queue]
	q.ready = append([]memEntry{p.entry}, q.ready...)
	c.b.broadcastLocked()
}

func (c *memChannel) Ack(tag uint64) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if _, ok := c.unacked[tag]; !ok {
		return ErrUnknownTag
	}
	delete(c.unacked, tag)
	c.b.broadcastLocked()
	return nil
}

func (c *memChannel) Nack(tag uint64, requeue bool) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	p, ok := c.unacked[tag]
	if !ok {
		return ErrUnknownTag
	}
	delete(c.unacked, tag)
	q := c.b.queues[p.queue]
	if requeue {
		q.ready = append([]memEntry{{msg: p.entry.msg, redelivered: true}}, q.ready...)
	} else if dq, ok := c.b.queues[DeadLetterQueue(p.queue)]; ok {
		dq.ready = append(dq.ready, memEntry{msg: p.entry.msg})
		dq.published = append(dq.published, p.entry.msg)
	}
	c.b.broadcastLocked()
	return nil
}

func (c *memChannel) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

// Close returns every unsettled delivery to the front of its queue, flagged
// as redelivered.
func (c *memChannel) Close() error {
	c.b.mu.Lock()
	if c.closed {
		c.b.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	tags := slices.Sorted(maps.Keys(c.unacked))
	for i := len(tags) - 1; i >= 0; i-- {
		p := c.unacked[tags[i]]
		q := c.b.queues[p.queue]
		q.ready = append([]memEntry{{msg: p.entry.msg, redelivered: true}}, q.ready...)
	}
	clear(c.unacked)
	c.b.broadcastLocked()
	c.b.mu.Unlock()

	c.conn.forget(c)
	return nil
}
