package worker

import (
	"time"

	"github.com/okian/skilift/pkg/logger"
)

// Option applies a configuration option to the consumer pool.
type Option func(*config)

type config struct {
	workers        int
	prefetch       int
	persistTimeout time.Duration
	requeueDelay   time.Duration
	logger         logger.Logger
}

// WithWorkers sets the number of parallel consumers.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithPrefetch sets the unacknowledged window of each consumer's channel.
func WithPrefetch(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithPersistTimeout bounds a single store write.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.persistTimeout = d
		}
	}
}

// WithRequeueDelay pauses a worker before it hands a failed message back,
// so a broken store does not spin the redelivery loop.
func WithRequeueDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.requeueDelay = d
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
