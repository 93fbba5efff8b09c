// Package pool leases a fixed set of broker channels to concurrent publishers.
//
// Every channel is bound to one durable queue. A channel is held by at most
// one Lease at a time, and the number of outstanding leases never exceeds the
// pool size: Acquire blocks until a channel is returned.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	commons "github.com/jolestar/go-commons-pool/v2"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/pkg/logger"
	"github.com/okian/skilift/pkg/metrics"
)

// DefaultSize is the number of channels opened when none is configured.
const DefaultSize = 10

// Pool is a bounded set of reusable channels over one connection.
type Pool struct {
	conn    broker.Connection
	queue   string
	size    int
	log     logger.Logger
	objects *commons.ObjectPool

	inUse atomic.Int64

	mu        sync.Mutex
	closed    bool
	closedCtx context.Context
	markClose context.CancelFunc
}

// channelFactory opens, checks and closes the pooled channels.
type channelFactory struct {
	conn  broker.Connection
	queue string
	log   logger.Logger
}

func (f *channelFactory) MakeObject(ctx context.Context) (*commons.PooledObject, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.DeclareQueue(f.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return commons.NewPooledObject(ch), nil
}

func (f *channelFactory) DestroyObject(ctx context.Context, object *commons.PooledObject) error {
	ch := object.Object.(broker.Channel)
	if ch.IsClosed() {
		return nil
	}
	return ch.Close()
}

// ValidateObject runs on every borrow. A dead channel is destroyed and the
// pool opens a fresh one in its slot.
func (f *channelFactory) ValidateObject(ctx context.Context, object *commons.PooledObject) bool {
	if object.Object.(broker.Channel).IsClosed() {
		metrics.RecordPoolChannelReplaced()
		f.log.Warn(ctx, "replacing closed channel", logger.String("queue", f.queue))
		return false
	}
	return true
}

func (f *channelFactory) ActivateObject(context.Context, *commons.PooledObject) error  { return nil }
func (f *channelFactory) PassivateObject(context.Context, *commons.PooledObject) error { return nil }

// New opens size channels on conn and declares queue on each. On failure
// every channel opened so far is closed; conn is left to the caller.
func New(ctx context.Context, conn broker.Connection, queue string, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	p := &Pool{
		conn:  conn,
		queue: queue,
		size:  size,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("channel_pool")
	}
	p.closedCtx, p.markClose = context.WithCancel(context.Background())

	cfg := commons.NewDefaultPoolConfig()
	cfg.MaxTotal = size
	cfg.MaxIdle = size
	cfg.MinIdle = size
	cfg.BlockWhenExhausted = true
	cfg.TestOnBorrow = true
	p.objects = commons.NewObjectPool(ctx, &channelFactory{conn: conn, queue: queue, log: p.log}, cfg)

	for i := 0; i < size; i++ {
		if err := p.objects.AddObject(ctx); err != nil {
			p.objects.Close(ctx)
			p.markClose()
			return nil, fmt.Errorf("open channel %d of %d: %w", i+1, size, err)
		}
	}

	metrics.UpdatePoolCapacity(size)
	metrics.UpdatePoolInUse(0)
	p.log.Info(ctx, "channel pool ready", logger.String("queue", queue), logger.Int("size", size))
	return p, nil
}

// Lease is exclusive use of one channel until Release.
type Lease struct {
	pool *Pool
	ch   broker.Channel
	once sync.Once
}

// Channel returns the leased channel. It must not be used after Release.
func (l *Lease) Channel() broker.Channel { return l.ch }

// Release returns the channel to the pool. Only the first call has an effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.put(l.ch)
	})
}

// Acquire blocks until a channel is free, ctx ends, or the pool closes.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.IsClosed() {
		return nil, ErrPoolClosed
	}

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closedCtx, cancel)
	defer stop()

	start := time.Now()
	obj, err := p.objects.BorrowObject(bctx)
	if err != nil {
		switch {
		case p.IsClosed():
			return nil, ErrPoolClosed
		case ctx.Err() != nil:
			return nil, fmt.Errorf("acquire channel: %w", ctx.Err())
		default:
			metrics.RecordErrorByComponent("channel_pool", "borrow")
			return nil, fmt.Errorf("acquire channel: %w", err)
		}
	}
	metrics.RecordPoolAcquireWait(time.Since(start))
	metrics.UpdatePoolInUse(int(p.inUse.Add(1)))
	return &Lease{pool: p, ch: obj.(broker.Channel)}, nil
}

func (p *Pool) put(ch broker.Channel) {
	metrics.UpdatePoolInUse(int(p.inUse.Add(-1)))
	if p.IsClosed() {
		_ = ch.Close()
		return
	}
	if err := p.objects.ReturnObject(context.Background(), ch); err != nil {
		p.log.Warn(context.Background(), "return channel", logger.Error(err))
		_ = ch.Close()
	}
}

// Publish leases a channel, publishes msg to the pool's queue and returns the
// channel on every path.
func (p *Pool) Publish(ctx context.Context, msg broker.Message) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return lease.Channel().Publish(ctx, p.queue, msg)
}

// Queue returns the queue every channel is bound to.
func (p *Pool) Queue() string { return p.queue }

// Capacity returns the configured pool size.
func (p *Pool) Capacity() int { return p.size }

// InUse returns the number of outstanding leases.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// IsClosed reports whether Close was called.
func (p *Pool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes idle channels now, leased channels on release, and then the
// connection. Blocked acquirers return ErrPoolClosed. Calling it twice is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.markClose()

	p.objects.Close(context.Background())

	var err error
	if cerr := p.conn.Close(); cerr != nil {
		err = fmt.Errorf("close connection: %w", cerr)
	}
	p.log.Info(context.Background(), "channel pool closed", logger.Int("leased", p.InUse()))
	return err
}
