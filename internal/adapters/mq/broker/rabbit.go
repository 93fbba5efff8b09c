package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial connects to a RabbitMQ broker at url.
func Dial(_ context.Context, url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDial, err)
	}
	return &rabbitConnection{conn: conn}, nil
}

type rabbitConnection struct {
	conn *amqp.Connection
}

func (c *rabbitConnection) Channel() (Channel, error) {
	if c.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &rabbitChannel{ch: ch}, nil
}

func (c *rabbitConnection) IsClosed() bool { return c.conn.IsClosed() }

func (c *rabbitConnection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type rabbitChannel struct {
	ch *amqp.Channel
}

// queueArgs routes rejected messages through the default exchange to the
// dead-letter queue.
func queueArgs(name string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(name),
	}
}

func (c *rabbitChannel) DeclareQueue(name string) error {
	// durable, not auto-deleted, not exclusive, wait for the reply
	dead := DeadLetterQueue(name)
	if _, err := c.ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", dead, err)
	}
	if _, err := c.ch.QueueDeclare(name, true, false, false, false, queueArgs(name)); err != nil {
		return fmt.Errorf("declare queue %q: %w", name, err)
	}
	return nil
}

func (c *rabbitChannel) Publish(ctx context.Context, queue string, msg Message) error {
	if c.ch.IsClosed() {
		return ErrChannelClosed
	}
	err := c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         msg.Body,
	})
	if err != nil {
		return fmt.Errorf("publish to %q: %w", queue, err)
	}
	return nil
}

func (c *rabbitChannel) SetPrefetch(n int) error {
	if err := c.ch.Qos(n, 0, false); err != nil {
		return fmt.Errorf("set prefetch %d: %w", n, err)
	}
	return nil
}

func (c *rabbitChannel) Consume(ctx context.Context, queue, consumer string) (<-chan Delivery, error) {
	src, err := c.ch.ConsumeWithContext(ctx, queue, consumer, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range src {
			select {
			case out <- NewDelivery(d.DeliveryTag, d.MessageId, d.Body, d.Redelivered, rabbitAck{d.Acknowledger}):
			case <-ctx.Done():
				// Unsettled deliveries return to the queue when the channel closes.
				return
			}
		}
	}()
	return out, nil
}

func (c *rabbitChannel) IsClosed() bool { return c.ch.IsClosed() }

func (c *rabbitChannel) Close() error {
	if c.ch.IsClosed() {
		return nil
	}
	return c.ch.Close()
}

type rabbitAck struct {
	a amqp.Acknowledger
}

func (r rabbitAck) Ack(tag uint64) error { return r.a.Ack(tag, false) }

func (r rabbitAck) Nack(tag uint64, requeue bool) error { return r.a.Nack(tag, false, requeue) }
