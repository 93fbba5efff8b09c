// Package service wires the broker, channel pool, consumer pool and store
// into the two long-running processes: the ingress and the consumer.
package service

import (
	"errors"
	"time"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/internal/adapters/mq/pool"
	"github.com/okian/skilift/internal/adapters/mq/worker"
	"github.com/okian/skilift/internal/adapters/repository"
	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/logger"
)

// Sentinel kinds for service lifecycle errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrNoStore        = errors.New("consumer has no store")
	ErrDial           = errors.New("broker dial failed")
)

// Default service configuration constants.
const (
	DefaultPublishTimeout = 5 * time.Second
)

// Option applies a configuration option to a service.
type Option func(*options)

type options struct {
	logger         logger.Logger
	queue          string
	dial           broker.Dialer
	poolSize       int
	publishTimeout time.Duration
	workers        int
	prefetch       int
	persistTimeout time.Duration
	requeueDelay   time.Duration
	store          repository.Store
}

func newOptions(component string, opts []Option) options {
	o := options{
		queue:          model.QueueName,
		dial:           broker.Dial,
		poolSize:       pool.DefaultSize,
		publishTimeout: DefaultPublishTimeout,
		workers:        worker.DefaultWorkers,
		prefetch:       worker.DefaultPrefetch,
		persistTimeout: worker.DefaultPersistTimeout,
		requeueDelay:   worker.DefaultRequeueDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(component)
	}
	return o
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithQueueName overrides the durable queue name.
func WithQueueName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.queue = name
		}
	}
}

// WithDialer replaces the RabbitMQ dialer, e.g. with a MemoryBroker's.
func WithDialer(d broker.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dial = d
		}
	}
}

// WithPoolSize sets the number of ingress broker channels.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithPublishTimeout bounds one publish, waiting for a channel included.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

// WithWorkers sets the number of consumer workers.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPrefetch sets each consumer channel's unacknowledged window.
func WithPrefetch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.prefetch = n
		}
	}
}

// WithPersistTimeout bounds one store write.
func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.persistTimeout = d
		}
	}
}

// WithRequeueDelay sets the pause before a failed message is handed back.
func WithRequeueDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.requeueDelay = d
		}
	}
}

// WithStore sets the store consumers persist into. The caller keeps ownership.
func WithStore(s repository.Store) Option {
	return func(o *options) {
		o.store = s
	}
}
