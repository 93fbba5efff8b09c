// Package client implements the shared HTTP transport used by the load driver.
//
// A single Client wraps one bounded connection pool. It never retries: the
// caller owns the retry policy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/skilift/pkg/logger"
)

// Default transport configuration constants.
const (
	DefaultMaxIdleConns    = 50
	DefaultIdleConnTimeout = 5 * time.Minute
	DefaultDialTimeout     = 30 * time.Second
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultRequestTimeout  = 60 * time.Second
	DefaultGracePeriod     = 5 * time.Second

	contentTypeJSON = "application/json"
)

// Client is safe for concurrent use by any number of workers.
type Client struct {
	base      string
	http      *http.Client
	transport *http.Transport
	timeout   time.Duration
	grace     time.Duration
	maxIdle   int
	log       logger.Logger

	// root is cancelled on Shutdown and aborts every in-flight request.
	root   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	shutdownOnce sync.Once
	shutdownErr  error
}

// New returns a Client that sends every request relative to baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: DefaultRequestTimeout,
		grace:   DefaultGracePeriod,
		maxIdle: DefaultMaxIdleConns,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("transport")
	}
	if c.transport == nil {
		c.transport = newTransport(c.maxIdle)
	}
	c.http = &http.Client{Transport: c.transport, Timeout: c.timeout}
	c.root, c.cancel = context.WithCancel(context.Background())

	return c, nil
}

// writeDeadlineConn bounds every write on the connection by timeout.
type writeDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *writeDeadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// dialWithWriteTimeout wraps each dialed connection in a writeDeadlineConn.
func dialWithWriteTimeout(d *net.Dialer, timeout time.Duration) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &writeDeadlineConn{Conn: conn, timeout: timeout}, nil
	}
}

// newTransport fixes the connect (dial), read (response header) and write
// timeouts; the client timeout bounds the request as a whole.
func newTransport(maxIdle int) *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultIdleConnTimeout}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialWithWriteTimeout(dialer, DefaultWriteTimeout),
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		ResponseHeaderTimeout: DefaultReadTimeout,
		TLSHandshakeTimeout:   DefaultDialTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// URL joins the base and endpoint with exactly one slash between them.
func (c *Client) URL(endpoint string) string {
	return c.base + "/" + strings.TrimLeft(endpoint, "/")
}

// Get fetches endpoint and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// Post sends body as JSON to endpoint and returns the body of a 2xx response.
func (c *Client) Post(ctx context.Context, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeRequestBody, err)
	}
	return c.do(ctx, http.MethodPost, endpoint, payload)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	defer c.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.root, cancel)
	defer stop()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		if c.root.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrClientClosed)
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Debug(ctx, "failed to close response body", logger.Error(cerr))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, endpoint, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return data, &StatusError{Code: resp.StatusCode, Body: data}
	}
	return data, nil
}

// enter registers an in-flight call unless the client is shut down.
func (c *Client) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.inflight.Add(1)
	return nil
}

// Shutdown refuses new calls, cancels in-flight ones and waits for them up to
// the grace period (or ctx, whichever ends first), then drops pooled
// connections. Calling it again returns the first result.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()

		done := make(chan struct{})
		go func() {
			c.inflight.Wait()
			close(done)
		}()

		timer := time.NewTimer(c.grace)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			c.shutdownErr = ErrShutdownTimeout
		case <-ctx.Done():
			c.shutdownErr = fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
		}

		c.transport.CloseIdleConnections()
		if c.shutdownErr != nil {
			c.log.Warn(ctx, "transport shut down with requests still running", logger.Error(c.shutdownErr))
			return
		}
		c.log.Info(ctx, "transport shut down")
	})
	return c.shutdownErr
}

// Closed reports whether Shutdown has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
