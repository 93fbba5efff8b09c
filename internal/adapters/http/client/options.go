package client

import (
	"net/http"
	"time"

	"github.com/okian/skilift/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request end to end.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithGracePeriod bounds how long Shutdown waits for in-flight calls.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithMaxIdleConns sizes the connection pool.
func WithMaxIdleConns(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxIdle = n
		}
	}
}

// WithTransport replaces the default transport. Tests use it to inject
// httptest transports.
func WithTransport(rt *http.Transport) Option {
	return func(c *Client) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
