package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/pkg/logger"
	"github.com/okian/skilift/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	ShutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

// memoryScheme selects an in-process broker instead of RabbitMQ.
const memoryScheme = "memory://"

// DialerFor returns the dialer for url: an in-process MemoryBroker for
// memory:// and RabbitMQ otherwise. The memory broker only lives as long as
// the process, so it suits running one service without a broker at hand.
func DialerFor(url string) broker.Dialer {
	if strings.HasPrefix(url, memoryScheme) {
		return broker.NewMemoryBroker().Dialer()
	}
	return broker.Dial
}

// NewHTTPServer returns a server with the project's timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Serve listens on srv.Addr and serves until ctx ends, then shuts the server
// down within ShutdownTimeout. The listener is bound before Serve returns
// control to the accept loop, so a bad address fails fast.
func Serve(ctx context.Context, srv *http.Server, log logger.Logger) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	log.Info(ctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// RunSystemMetrics refreshes memory and goroutine gauges until ctx ends.
func RunSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
