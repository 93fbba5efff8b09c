// Package broker hides the message broker behind a narrow connection and
// channel contract. RabbitMQ is the production backend; MemoryBroker serves
// tests and local runs.
package broker

import (
	"context"
	"time"
)

// ContentTypeJSON is set on every lift-ride message.
const ContentTypeJSON = "application/json"

// DeadLetterQueue names the queue that receives messages rejected from queue
// without requeue.
func DeadLetterQueue(queue string) string { return queue + ".dead" }

// Message is what producers publish.
type Message struct {
	ID          string
	ContentType string
	Timestamp   time.Time
	Body        []byte
}

// Acknowledger settles a delivery on the channel it came from.
type Acknowledger interface {
	Ack(tag uint64) error
	Nack(tag uint64, requeue bool) error
}

// Delivery is a message handed to a consumer. It must be settled exactly once
// with Ack or Nack.
type Delivery struct {
	Tag         uint64
	MessageID   string
	Body        []byte
	Redelivered bool

	ack Acknowledger
}

// NewDelivery binds a delivery to its acknowledger.
func NewDelivery(tag uint64, id string, body []byte, redelivered bool, ack Acknowledger) Delivery {
	return Delivery{Tag: tag, MessageID: id, Body: body, Redelivered: redelivered, ack: ack}
}

// Ack confirms the message was processed.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return ErrNoAcknowledger
	}
	return d.ack.Ack(d.Tag)
}

// Nack rejects the message. With requeue the broker delivers it again.
func (d Delivery) Nack(requeue bool) error {
	if d.ack == nil {
		return ErrNoAcknowledger
	}
	return d.ack.Nack(d.Tag, requeue)
}

// Channel is a lightweight, independently flow-controlled session. A Channel
// is not safe for concurrent publishing; callers lease it exclusively.
type Channel interface {
	// DeclareQueue makes sure a durable, shared, non-auto-delete queue exists
	// together with its dead-letter queue.
	DeclareQueue(name string) error
	// Publish sends msg to queue as a persistent message.
	Publish(ctx context.Context, queue string, msg Message) error
	// SetPrefetch limits the unacknowledged deliveries held by this channel.
	SetPrefetch(n int) error
	// Consume starts a manual-ack subscription. The returned channel closes
	// when ctx ends or the Channel is closed.
	Consume(ctx context.Context, queue, consumer string) (<-chan Delivery, error)
	IsClosed() bool
	Close() error
}

// Connection multiplexes channels over one broker link.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a Connection.
type Dialer func(ctx context.Context, url string) (Connection, error)
