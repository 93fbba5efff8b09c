package client

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/skilift/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newClient(base string, opts ...Option) *Client {
	c, err := New(base, append([]Option{WithLogger(logger.Nop())}, opts...)...)
	if err != nil {
		panic(err)
	}
	return c
}

func TestURLJoin(t *testing.T) {
	Convey("Given base URLs with and without a trailing slash", t, func() {
		a := newClient("http://localhost:8080/api")
		b := newClient("http://localhost:8080/api/")
		defer a.Shutdown(context.Background())
		defer b.Shutdown(context.Background())

		Convey("Then exactly one slash joins base and endpoint", func() {
			So(a.URL("skiers/1"), ShouldEqual, "http://localhost:8080/api/skiers/1")
			So(b.URL("skiers/1"), ShouldEqual, "http://localhost:8080/api/skiers/1")
			So(b.URL("/skiers/1"), ShouldEqual, "http://localhost:8080/api/skiers/1")
		})
	})

	Convey("Given a base URL without a scheme", t, func() {
		_, err := New("localhost:8080", WithLogger(logger.Nop()))
		So(errors.Is(err, ErrInvalidBaseURL), ShouldBeTrue)
	})
}

func TestRequests(t *testing.T) {
	Convey("Given a server that echoes POST bodies", t, func() {
		var gotType atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/skiers/ok" && r.Method == http.MethodPost:
				gotType.Store(r.Header.Get("Content-Type"))
				body, _ := io.ReadAll(r.Body)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write(body)
			case r.URL.Path == "/skiers" && r.Method == http.MethodGet:
				_, _ = w.Write([]byte("It works!"))
			default:
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
			}
		}))
		defer srv.Close()
		c := newClient(srv.URL)
		defer c.Shutdown(context.Background())
		ctx := context.Background()

		Convey("When posting JSON", func() {
			body, err := c.Post(ctx, "skiers/ok", map[string]int{"skierID": 42})

			Convey("Then the 2xx body comes back", func() {
				So(err, ShouldBeNil)
				So(string(body), ShouldEqual, `{"skierID":42}`)
				So(gotType.Load(), ShouldEqual, "application/json")
			})
		})

		Convey("When getting the liveness endpoint", func() {
			body, err := c.Get(ctx, "/skiers")
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "It works!")
		})

		Convey("When the server answers 500", func() {
			_, err := c.Post(ctx, "skiers/bad", map[string]int{})

			Convey("Then a StatusError is returned and no retry happens", func() {
				So(errors.Is(err, ErrUnexpectedStatus), ShouldBeTrue)
				So(StatusCode(err), ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the body cannot be encoded", func() {
			_, err := c.Post(ctx, "skiers/ok", make(chan int))
			So(errors.Is(err, ErrEncodeRequestBody), ShouldBeTrue)
		})
	})

	Convey("Given a server that counts hits and always fails", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		c := newClient(srv.URL)
		defer c.Shutdown(context.Background())

		_, err := c.Post(context.Background(), "x", struct{}{})

		Convey("Then the client sends exactly one attempt", func() {
			So(err, ShouldNotBeNil)
			So(hits.Load(), ShouldEqual, 1)
		})
	})
}

func TestShutdown(t *testing.T) {
	Convey("Given a request stuck on a slow server", t, func() {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := newClient(srv.URL, WithGracePeriod(2*time.Second))
		errCh := make(chan error, 1)
		go func() {
			_, err := c.Get(context.Background(), "slow")
			errCh <- err
		}()
		time.Sleep(50 * time.Millisecond)

		Convey("When shutting down", func() {
			err := c.Shutdown(context.Background())

			Convey("Then the in-flight call is cancelled within the grace period", func() {
				So(err, ShouldBeNil)
				So(errors.Is(<-errCh, ErrClientClosed), ShouldBeTrue)
				So(c.Closed(), ShouldBeTrue)
			})

			Convey("Then new calls are refused", func() {
				<-errCh
				_, err := c.Get(context.Background(), "slow")
				So(errors.Is(err, ErrClientClosed), ShouldBeTrue)
			})

			Convey("Then a second shutdown is a no-op", func() {
				<-errCh
				So(c.Shutdown(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestWriteTimeout(t *testing.T) {
	Convey("Given a connection whose peer never reads", t, func() {
		local, remote := net.Pipe()
		defer remote.Close()
		conn := &writeDeadlineConn{Conn: local, timeout: 20 * time.Millisecond}
		defer conn.Close()

		start := time.Now()
		_, err := conn.Write([]byte("POST /skiers HTTP/1.1\r\n"))

		Convey("Then the write gives up at the deadline", func() {
			So(errors.Is(err, os.ErrDeadlineExceeded), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})
	})

	Convey("Given the default transport", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		defer srv.Close()
		tr := newTransport(DefaultMaxIdleConns)

		conn, err := tr.DialContext(context.Background(), "tcp", srv.Listener.Addr().String())
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("Then dialed connections carry the write timeout", func() {
			wc, ok := conn.(*writeDeadlineConn)
			So(ok, ShouldBeTrue)
			So(wc.timeout, ShouldEqual, DefaultWriteTimeout)
			So(tr.ResponseHeaderTimeout, ShouldEqual, DefaultReadTimeout)
		})
	})
}
