// Package worker runs the consumer pool that drains the lift-ride queue into
// the persistence store.
//
// Each worker owns one broker channel with its own prefetch window. A message
// is acknowledged only after its record is written; a failed write hands the
// message back to the broker for redelivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/logger"
	"github.com/okian/skilift/pkg/metrics"
)

// Default worker configuration constants.
const (
	DefaultWorkers        = 8
	DefaultPrefetch       = 50
	DefaultPersistTimeout = 10 * time.Second
	DefaultRequeueDelay   = 50 * time.Millisecond
)

// Persister is the part of the store the workers write through.
type Persister interface {
	Put(ctx context.Context, r model.Record) error
}

type outcome int

const (
	outcomeAcked outcome = iota
	outcomeRequeued
	outcomeRejected
	outcomeSettleFailed
)

// Stats is a snapshot of the pool's counters.
type Stats struct {
	Workers      int   `json:"workers"`
	Consumed     int64 `json:"consumed"`
	Acked        int64 `json:"acked"`
	Requeued     int64 `json:"requeued"`
	Rejected     int64 `json:"rejected"`
	SettleErrors int64 `json:"settle_errors"`
}

type counters struct {
	consumed, acked, requeued, rejected, settleErrors atomic.Int64
}

// Worker consumes from one channel.
type Worker struct {
	name     string
	queue    string
	ch       broker.Channel
	store    Persister
	cfg      *config
	counters *counters
	logger   logger.Logger

	shutdown chan struct{}
}

// Run consumes until ctx ends, the pool shuts down, or the broker stops
// delivering. The message being handled when shutdown arrives is settled first.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deliveries, err := w.ch.Consume(ctx, w.queue, w.name)
	if err != nil {
		return fmt.Errorf("%s: %w", w.name, err)
	}
	w.logger.Debug(ctx, "consuming", logger.String("queue", w.queue))

	for {
		select {
		case <-w.shutdown:
			return nil
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil || w.stopping() {
					return nil
				}
				return fmt.Errorf("%s: %w", w.name, ErrDeliveriesStopped)
			}
			if w.stopping() {
				// Left unsettled; closing the channel returns it to the queue.
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.shutdown:
		return true
	default:
		return false
	}
}

// handle decodes, persists and settles one delivery.
func (w *Worker) handle(ctx context.Context, d broker.Delivery) outcome {
	w.counters.consumed.Add(1)
	metrics.RecordMessageConsumed(d.Redelivered)

	ride, err := model.DecodeLiftRide(d.Body)
	if err != nil {
		w.logger.Error(ctx, "dead-lettering undecodable message",
			logger.String("messageID", d.MessageID),
			logger.Int("bytes", len(d.Body)),
			logger.Error(err))
		metrics.RecordMessageRejected()
		if err := d.Nack(false); err != nil {
			return w.settleFailed(ctx, d, err)
		}
		w.counters.rejected.Add(1)
		return outcomeRejected
	}

	rec := ride.Record()
	// Shutdown must not abort a write halfway; only the persist timeout may.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.persistTimeout)
	err = w.store.Put(pctx, rec)
	cancel()

	if err != nil {
		w.logger.Warn(ctx, "persist failed, requeueing",
			logger.String("key", rec.Key()),
			logger.Bool("redelivered", d.Redelivered),
			logger.Error(err))
		w.pause()
		if err := d.Nack(true); err != nil {
			return w.settleFailed(ctx, d, err)
		}
		w.counters.requeued.Add(1)
		metrics.RecordMessageRequeued()
		return outcomeRequeued
	}

	if err := d.Ack(); err != nil {
		// The record is stored; a redelivery will overwrite it with the same values.
		return w.settleFailed(ctx, d, err)
	}
	w.counters.acked.Add(1)
	metrics.RecordMessageAcked()
	return outcomeAcked
}

func (w *Worker) pause() {
	if w.cfg.requeueDelay <= 0 {
		return
	}
	t := time.NewTimer(w.cfg.requeueDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.shutdown:
	}
}

func (w *Worker) settleFailed(ctx context.Context, d broker.Delivery, err error) outcome {
	w.counters.settleErrors.Add(1)
	metrics.RecordErrorByComponent("consumer", "settle")
	w.logger.Error(ctx, "failed to settle message",
		logger.Int64("tag", int64(d.Tag)),
		logger.Error(err))
	return outcomeSettleFailed
}

// Pool manages the parallel consumers.
type Pool struct {
	conn  broker.Connection
	queue string
	store Persister
	cfg   config

	workers  []*Worker
	counters counters
	group    errgroup.Group
	done     chan struct{}
	shutdown chan struct{}
	err      error

	mu      sync.Mutex
	started bool
	stopped bool

	logger logger.Logger
}

// NewPool creates a consumer pool. Nothing is opened until Start.
func NewPool(conn broker.Connection, queue string, store Persister, opts ...Option) *Pool {
	cfg := config{
		workers:        DefaultWorkers,
		prefetch:       DefaultPrefetch,
		persistTimeout: DefaultPersistTimeout,
		requeueDelay:   DefaultRequeueDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("consumer-pool")
	}

	return &Pool{
		conn:     conn,
		queue:    queue,
		store:    store,
		cfg:      cfg,
		done:     make(chan struct{}),
		shutdown: make(chan struct{}),
		logger:   cfg.logger,
	}
}

// Start opens one channel per worker, declares the queue and sets the
// prefetch window on each, then starts consuming. Any failure while opening
// closes what was opened and is returned.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	workers := make([]*Worker, 0, p.cfg.workers)
	for i := 0; i < p.cfg.workers; i++ {
		ch, err := p.openChannel()
		if err != nil {
			for _, w := range workers {
				_ = w.ch.Close()
			}
			return fmt.Errorf("start worker %d: %w", i, err)
		}
		name := "consumer-" + strconv.Itoa(i)
		workers = append(workers, &Worker{
			name:     name,
			queue:    p.queue,
			ch:       ch,
			store:    p.store,
			cfg:      &p.cfg,
			counters: &p.counters,
			logger:   p.logger.Named(name),
			shutdown: p.shutdown,
		})
	}
	p.workers = workers
	p.started = true

	for _, w := range workers {
		p.group.Go(func() error { return w.Run(ctx) })
	}
	go func() {
		p.err = p.group.Wait()
		metrics.UpdateConsumerWorkers(0)
		close(p.done)
	}()

	metrics.UpdateConsumerWorkers(len(workers))
	p.logger.Info(ctx, "consumer pool started",
		logger.String("queue", p.queue),
		logger.Int("workers", len(workers)),
		logger.Int("prefetch", p.cfg.prefetch))
	return nil
}

func (p *Pool) openChannel() (broker.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.DeclareQueue(p.queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.SetPrefetch(p.cfg.prefetch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// Done is closed once every worker has returned.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Err returns the first worker error after Done is closed.
func (p *Pool) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:      len(p.workers),
		Consumed:     p.counters.consumed.Load(),
		Acked:        p.counters.acked.Load(),
		Requeued:     p.counters.requeued.Load(),
		Rejected:     p.counters.rejected.Load(),
		SettleErrors: p.counters.settleErrors.Load(),
	}
}

// Shutdown stops every worker, waits for in-flight messages to settle (bounded
// by ctx) and closes the channels. Unsettled messages return to the queue.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.shutdown)
	p.mu.Unlock()

	var waitErr error
	select {
	case <-p.done:
	case <-ctx.Done():
		p.logger.Warn(ctx, "consumer shutdown timed out")
		waitErr = fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}

	errs := []error{waitErr}
	for _, w := range p.workers {
		if err := w.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s channel: %w", w.name, err))
		}
	}
	p.logger.Info(ctx, "consumer pool stopped", logger.Any("stats", p.Stats()))
	return errors.Join(errs...)
}
