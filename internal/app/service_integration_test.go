package service_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skilift/internal/adapters/http/api"
	"github.com/okian/skilift/internal/adapters/http/client"
	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/internal/adapters/repository"
	service "github.com/okian/skilift/internal/app"
	"github.com/okian/skilift/internal/domain/generator"
	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/internal/loadtest"
	"github.com/okian/skilift/pkg/logger"
)

type pipeline struct {
	broker   *broker.MemoryBroker
	store    *repository.MemoryStore
	ingress  *service.Ingress
	consumer *service.Consumer
	server   *httptest.Server
}

func startPipeline(ctx context.Context) *pipeline {
	p := &pipeline{broker: broker.NewMemoryBroker(), store: repository.NewMemoryStore()}

	p.ingress = service.NewIngress("amqp://memory", service.WithDialer(p.broker.Dialer()), service.WithPoolSize(4))
	So(p.ingress.Start(ctx), ShouldBeNil)

	p.consumer = service.NewConsumer("amqp://memory",
		service.WithDialer(p.broker.Dialer()),
		service.WithStore(p.store),
		service.WithWorkers(8),
		service.WithPrefetch(50))
	So(p.consumer.Start(ctx), ShouldBeNil)

	p.server = httptest.NewServer(api.NewServer(p.ingress, p.ingress, api.WithLogger(logger.Nop())).Handler())
	return p
}

func (p *pipeline) stop() {
	p.server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.consumer.Stop(ctx)
	_ = p.ingress.Stop()
}

func (p *pipeline) waitForWrites(n int) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.store.Writes() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func post(url, body string) int {
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestPipelineEndToEnd(t *testing.T) {
	Convey("Given ingress, broker, consumer and store wired together", t, func() {
		ctx := context.Background()
		p := startPipeline(ctx)
		defer p.stop()

		Convey("When a valid ride is posted", func() {
			code := post(p.server.URL+"/skiers/3/seasons/2025/days/1/skiers/42", `{"skierID":42,"liftID":5,"time":120}`)

			Convey("Then it is accepted, queued and persisted under (42, 1#2025)", func() {
				So(code, ShouldEqual, http.StatusCreated)
				So(p.waitForWrites(1), ShouldBeTrue)

				msgs := p.broker.Published(model.QueueName)
				So(len(msgs), ShouldEqual, 1)
				So(string(msgs[0].Body), ShouldEqual,
					`{"resortID":3,"seasonID":2025,"dayID":1,"skierID":42,"liftID":5,"time":120}`)

				rec, err := p.store.Get(ctx, 42, "1#2025")
				So(err, ShouldBeNil)
				So(rec, ShouldResemble, model.Record{SkierID: 42, DaySeason: "1#2025", LiftID: 5, ResortID: 3, Time: 120})
			})
		})

		Convey("When the body's skier does not match the URL", func() {
			code := post(p.server.URL+"/skiers/3/seasons/2025/days/1/skiers/7", `{"skierID":42,"liftID":5,"time":120}`)

			Convey("Then it is rejected and nothing is published", func() {
				So(code, ShouldEqual, http.StatusBadRequest)
				So(p.broker.Published(model.QueueName), ShouldBeEmpty)
			})
		})

		Convey("When the load driver runs two phases through the HTTP transport", func() {
			transport, err := client.New(p.server.URL, client.WithLogger(logger.Nop()))
			So(err, ShouldBeNil)
			defer transport.Shutdown(ctx)

			collector := loadtest.NewCollector(100)
			driver := loadtest.NewDriver(transport, collector,
				loadtest.WithGenerator(generator.New(generator.WithSeed(7))),
				loadtest.WithLogger(logger.Nop()))
			So(driver.CheckLiveness(ctx, loadtest.DefaultLivenessEndpoint), ShouldBeNil)

			start := time.Now()
			results, err := driver.Run(ctx,
				loadtest.Phase{Workers: 4, RequestsPerWorker: 10},
				loadtest.Phase{Workers: 8, RequestsPerWorker: 5})
			summary := collector.Summarize(time.Since(start))

			Convey("Then every request succeeds once and every ride reaches the store", func() {
				So(err, ShouldBeNil)
				So(len(results), ShouldEqual, 2)
				So(summary.Total, ShouldEqual, 80)
				So(summary.Successful, ShouldEqual, 80)
				So(summary.Failed, ShouldEqual, 0)
				for _, s := range collector.Stats() {
					So(s.Attempts, ShouldEqual, 1)
				}

				So(p.waitForWrites(80), ShouldBeTrue)
				So(p.store.Writes(), ShouldEqual, 80)
				So(p.ingress.GetStats()["published"], ShouldEqual, int64(80))
			})
		})
	})
}
