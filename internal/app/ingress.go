package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/internal/adapters/mq/pool"
	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/logger"
	"github.com/okian/skilift/pkg/metrics"
)

// Ingress publishes validated lift rides through a bounded channel pool.
// It implements the HTTP layer's Publisher and StatsProvider.
type Ingress struct {
	mu      sync.RWMutex
	url     string
	opts    options
	pool    *pool.Pool
	started bool

	published atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewIngress constructs an Ingress for the broker at url. Nothing is dialed
// until Start.
func NewIngress(url string, opts ...Option) *Ingress {
	o := newOptions("ingress", opts)
	return &Ingress{url: url, opts: o, logger: o.logger}
}

// Start dials the broker and opens the channel pool. Any error here is a
// startup failure the caller should treat as fatal.
func (s *Ingress) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	conn, err := s.opts.dial(ctx, s.url)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDial, err)
	}
	p, err := pool.New(ctx, conn, s.opts.queue, s.opts.poolSize, pool.WithLogger(s.logger.Named("channel_pool")))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel pool: %w", err)
	}

	s.pool = p
	s.started = true
	s.logger.Info(ctx, "ingress started",
		logger.String("queue", s.opts.queue),
		logger.Int("poolSize", s.opts.poolSize),
		logger.Duration("publishTimeout", s.opts.publishTimeout))
	return nil
}

// Publish encodes ride and publishes it as a persistent JSON message with a
// fresh message id. It blocks while every channel is leased, up to the
// publish timeout.
func (s *Ingress) Publish(ctx context.Context, ride model.LiftRide) error {
	s.mu.RLock()
	p := s.pool
	s.mu.RUnlock()
	if p == nil {
		return ErrNotStarted
	}

	body, err := ride.Encode()
	if err != nil {
		return fmt.Errorf("encode lift ride: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.publishTimeout)
	defer cancel()

	start := time.Now()
	msg := broker.Message{
		ID:          uuid.NewString(),
		ContentType: broker.ContentTypeJSON,
		Timestamp:   start,
		Body:        body,
	}
	if err := p.Publish(ctx, msg); err != nil {
		s.failed.Add(1)
		metrics.RecordIngressPublishError()
		return err
	}
	s.published.Add(1)
	metrics.RecordIngressPublished(time.Since(start))
	return nil
}

// GetStats returns ingress statistics for the /stats endpoint.
func (s *Ingress) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"queue":         s.opts.queue,
		"published":     s.published.Load(),
		"publishFailed": s.failed.Load(),
	}
	if s.pool != nil {
		stats["poolCapacity"] = s.pool.Capacity()
		stats["poolInUse"] = s.pool.InUse()
	}
	return stats
}

// Stop closes the channel pool and the broker connection.
func (s *Ingress) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	s.logger.Info(context.Background(), "stopping ingress",
		logger.Int64("published", s.published.Load()),
		logger.Int64("publishFailed", s.failed.Load()))
	return s.pool.Close()
}
