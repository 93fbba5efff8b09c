package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/internal/adapters/mq/worker"
	"github.com/okian/skilift/pkg/logger"
)

// Consumer drains the queue into the store through a worker pool.
type Consumer struct {
	mu      sync.Mutex
	url     string
	opts    options
	conn    broker.Connection
	pool    *worker.Pool
	started bool

	logger logger.Logger
}

// NewConsumer constructs a Consumer for the broker at url.
func NewConsumer(url string, opts ...Option) *Consumer {
	o := newOptions("consumer", opts)
	return &Consumer{url: url, opts: o, logger: o.logger}
}

// Start dials the broker and starts the workers.
func (s *Consumer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if s.opts.store == nil {
		return ErrNoStore
	}

	conn, err := s.opts.dial(ctx, s.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDial, err)
	}
	p := worker.NewPool(conn, s.opts.queue, s.opts.store,
		worker.WithWorkers(s.opts.workers),
		worker.WithPrefetch(s.opts.prefetch),
		worker.WithPersistTimeout(s.opts.persistTimeout),
		worker.WithRequeueDelay(s.opts.requeueDelay),
		worker.WithLogger(s.logger.Named("workers")),
	)
	if err := p.Start(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("consumer pool: %w", err)
	}

	s.conn = conn
	s.pool = p
	s.started = true
	return nil
}

// Done is closed when every worker has exited, e.g. because the broker
// connection dropped. It is nil before Start.
func (s *Consumer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return nil
	}
	return s.pool.Done()
}

// Err returns the reason the workers stopped, if they have.
func (s *Consumer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return nil
	}
	return s.pool.Err()
}

// GetStats returns consumer statistics for the /stats endpoint.
func (s *Consumer) GetStats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]any{
		"started":  s.started,
		"queue":    s.opts.queue,
		"workers":  s.opts.workers,
		"prefetch": s.opts.prefetch,
	}
	if s.pool != nil {
		ps := s.pool.Stats()
		stats["consumed"] = ps.Consumed
		stats["acked"] = ps.Acked
		stats["requeued"] = ps.Requeued
		stats["rejected"] = ps.Rejected
		stats["settleErrors"] = ps.SettleErrors
	}
	return stats
}

// Stop lets in-flight messages settle, bounded by ctx, then closes the
// channels and the connection. Unsettled messages go back to the queue.
func (s *Consumer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	s.logger.Info(ctx, "stopping consumer")
	err := s.pool.Shutdown(ctx)
	return errors.Join(err, s.conn.Close())
}
