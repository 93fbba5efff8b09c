// Package loadtest drives phased load against the ingress and measures it.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/okian/skilift/internal/adapters/http/client"
	"github.com/okian/skilift/internal/adapters/mq/queue"
	"github.com/okian/skilift/internal/domain/generator"
	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/logger"
	"github.com/okian/skilift/pkg/metrics"
)

// Transport is the part of the HTTP client the driver needs.
type Transport interface {
	Get(ctx context.Context, endpoint string) ([]byte, error)
	Post(ctx context.Context, endpoint string, body any) ([]byte, error)
}

// PhaseResult summarizes one finished phase.
type PhaseResult struct {
	Phase      Phase
	Dispatched int
	Failed     int
	Duration   time.Duration
}

// Driver runs phases of concurrent workers against a Transport.
type Driver struct {
	transport   Transport
	collector   *Collector
	gen         *generator.Generator
	log         logger.Logger
	attempts    uint
	retryDelay  time.Duration
	pollTimeout time.Duration
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithGenerator sets the event source.
func WithGenerator(g *generator.Generator) DriverOption {
	return func(d *Driver) {
		if g != nil {
			d.gen = g
		}
	}
}

// WithAttempts sets the total attempts per logical request.
func WithAttempts(n uint) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.attempts = n
		}
	}
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(delay time.Duration) DriverOption {
	return func(d *Driver) {
		if delay >= 0 {
			d.retryDelay = delay
		}
	}
}

// WithPollTimeout sets how long an idle worker waits before it concludes the
// phase queue is drained.
func WithPollTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.pollTimeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDriver wires a driver to a transport and a collector.
func NewDriver(t Transport, c *Collector, opts ...DriverOption) *Driver {
	d := &Driver{
		transport:   t,
		collector:   c,
		attempts:    DefaultAttempts,
		retryDelay:  DefaultRetryDelay,
		pollTimeout: DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.gen == nil {
		d.gen = generator.New()
	}
	if d.log == nil {
		d.log = logger.Get().Named("loadtest")
	}
	return d
}

// CheckLiveness issues a single GET against endpoint.
func (d *Driver) CheckLiveness(ctx context.Context, endpoint string) error {
	body, err := d.transport.Get(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("liveness check %q: %w", endpoint, err)
	}
	d.log.Info(ctx, "ingress is alive", logger.String("endpoint", endpoint), logger.String("body", string(body)))
	return nil
}

// Run executes the phases in order. Each phase completes fully before the
// next one starts. Individual request failures never abort the run; only
// context cancellation does.
func (d *Driver) Run(ctx context.Context, phases ...Phase) ([]PhaseResult, error) {
	results := make([]PhaseResult, 0, len(phases))
	for i, p := range phases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := d.runPhase(ctx, i+1, p)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Driver) runPhase(ctx context.Context, id int, p Phase) (PhaseResult, error) {
	log := d.log.With(logger.Int("phase", id))
	res := PhaseResult{Phase: p}
	if p.Workers <= 0 || p.RequestsPerWorker <= 0 {
		return res, fmt.Errorf("%w: phase %d is %s", ErrInvalidPhase, id, p)
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(p.Total()), queue.WithPollTimeout(d.pollTimeout))
	if n := q.Fill(ctx, d.gen.Batch(p.Total())); n < p.Total() {
		_ = q.Close()
		return res, fmt.Errorf("%w: phase %d accepted %d of %d events", queue.ErrQueueFull, id, n, p.Total())
	}
	// Closing after the fill lets workers stop as soon as the queue is empty.
	_ = q.Close()

	log.Info(ctx, "starting phase",
		logger.Int("workers", p.Workers),
		logger.Int("requestsPerWorker", p.RequestsPerWorker),
		logger.Int("total", p.Total()))

	var dispatched, failed atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.Workers; w++ {
		g.Go(func() error {
			for r := 0; r < p.RequestsPerWorker; r++ {
				if gctx.Err() != nil {
					return nil
				}
				e, ok := q.Poll(gctx, d.pollTimeout)
				if !ok {
					return nil
				}
				stat, sent := d.send(gctx, e)
				if !sent {
					return nil
				}
				dispatched.Add(1)
				if !stat.Success() {
					failed.Add(1)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	res.Dispatched = int(dispatched.Load())
	res.Failed = int(failed.Load())
	res.Duration = time.Since(start)
	log.Info(ctx, "phase done",
		logger.Int("dispatched", res.Dispatched),
		logger.Int("failed", res.Failed),
		logger.Duration("took", res.Duration))

	if err == nil {
		err = ctx.Err()
	}
	return res, err
}

// send performs one logical request with the retry budget and records it.
// The boolean is false when ctx ended before any attempt was made; nothing
// is recorded then because nothing reached the transport.
func (d *Driver) send(ctx context.Context, e model.SkiEvent) (RequestStat, bool) {
	start := time.Now()
	attempts := 0

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			attempts++
			_, err := d.transport.Post(ctx, e.Endpoint(), e)
			return err
		},
		retry.Attempts(d.attempts),
		retry.Delay(d.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(retryable),
	)

	if attempts == 0 {
		return RequestStat{}, false
	}

	latency := time.Since(start)
	code := CodeSuccess
	if err != nil {
		code = CodeFailure
		if sc := client.StatusCode(err); sc >= http.StatusBadRequest && sc < http.StatusInternalServerError {
			code = sc
		}
		d.log.Debug(ctx, "request failed",
			logger.String("endpoint", e.Endpoint()),
			logger.Int("attempts", attempts),
			logger.Error(err))
	}

	stat := RequestStat{
		StartTimeMillis: start.UnixMilli(),
		RequestType:     RequestTypePost,
		LatencyMillis:   latency.Milliseconds(),
		ResponseCode:    code,
		Attempts:        attempts,
	}
	d.collector.Add(stat)
	metrics.RecordLoadRequest(code == CodeSuccess, attempts, latency)
	return stat, true
}

// retryable reports whether another attempt could succeed. Client errors
// are final: the same payload would be rejected again.
func retryable(err error) bool {
	if errors.Is(err, client.ErrClientClosed) || errors.Is(err, context.Canceled) {
		return false
	}
	sc := client.StatusCode(err)
	return sc == 0 || sc >= http.StatusInternalServerError || sc == http.StatusTooManyRequests
}
