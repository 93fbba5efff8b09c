package service_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skilift/internal/adapters/mq/broker"
	"github.com/okian/skilift/internal/adapters/mq/pool"
	"github.com/okian/skilift/internal/adapters/repository"
	service "github.com/okian/skilift/internal/app"
	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

var ride = model.LiftRide{ResortID: 3, SeasonID: 2025, DayID: 1, SkierID: 42, LiftID: 5, Time: 120}

func failingDialer(context.Context, string) (broker.Connection, error) {
	return nil, errors.New("connection refused")
}

func TestIngress(t *testing.T) {
	Convey("Given an ingress on a memory broker", t, func() {
		ctx := context.Background()
		b := broker.NewMemoryBroker()
		svc := service.NewIngress("amqp://unused", service.WithDialer(b.Dialer()), service.WithPoolSize(3))

		Convey("When publishing before start", func() {
			err := svc.Publish(ctx, ride)

			Convey("Then it is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started and a ride is published", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			So(svc.Publish(ctx, ride), ShouldBeNil)

			Convey("Then a JSON message with a fresh id lands on the queue", func() {
				msgs := b.Published(model.QueueName)
				So(len(msgs), ShouldEqual, 1)
				So(msgs[0].ContentType, ShouldEqual, broker.ContentTypeJSON)
				_, err := uuid.Parse(msgs[0].ID)
				So(err, ShouldBeNil)
				So(string(msgs[0].Body), ShouldEqual,
					`{"resortID":3,"seasonID":2025,"dayID":1,"skierID":42,"liftID":5,"time":120}`)

				decoded, err := model.DecodeLiftRide(msgs[0].Body)
				So(err, ShouldBeNil)
				So(decoded, ShouldResemble, ride)
			})

			Convey("Then stats reflect the pool and the publish", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["published"], ShouldEqual, int64(1))
				So(stats["poolCapacity"], ShouldEqual, 3)
				So(stats["poolInUse"], ShouldEqual, 0)
			})

			Convey("Then a second start is an error", func() {
				So(errors.Is(svc.Start(ctx), service.ErrAlreadyStarted), ShouldBeTrue)
			})
		})

		Convey("When the broker refuses publishes", func() {
			faulty := broker.NewMemoryBroker(broker.WithPublishHook(func(string, broker.Message) error {
				return errors.New("nack from broker")
			}))
			svc := service.NewIngress("amqp://unused", service.WithDialer(faulty.Dialer()))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			err := svc.Publish(ctx, ride)

			Convey("Then the error surfaces and is counted", func() {
				So(err, ShouldNotBeNil)
				So(svc.GetStats()["publishFailed"], ShouldEqual, int64(1))
			})
		})

		Convey("When the broker cannot be reached", func() {
			svc := service.NewIngress("amqp://nowhere", service.WithDialer(failingDialer))

			Convey("Then start fails with a dial error", func() {
				So(errors.Is(svc.Start(ctx), service.ErrDial), ShouldBeTrue)
			})
		})

		Convey("When the ingress is stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Stop(), ShouldBeNil)

			Convey("Then publishing reports the closed pool", func() {
				So(errors.Is(svc.Publish(ctx, ride), pool.ErrPoolClosed), ShouldBeTrue)
				So(svc.Stop(), ShouldBeNil)
			})
		})
	})
}

func TestConsumer(t *testing.T) {
	Convey("Given a consumer on a memory broker", t, func() {
		ctx := context.Background()
		b := broker.NewMemoryBroker()
		store := repository.NewMemoryStore()

		Convey("When no store is configured", func() {
			svc := service.NewConsumer("amqp://unused", service.WithDialer(b.Dialer()))

			Convey("Then start fails", func() {
				So(errors.Is(svc.Start(ctx), service.ErrNoStore), ShouldBeTrue)
				So(svc.Done(), ShouldBeNil)
			})
		})

		Convey("When the broker cannot be reached", func() {
			svc := service.NewConsumer("amqp://nowhere", service.WithDialer(failingDialer), service.WithStore(store))

			Convey("Then start fails with a dial error", func() {
				So(errors.Is(svc.Start(ctx), service.ErrDial), ShouldBeTrue)
			})
		})

		Convey("When started with rides waiting", func() {
			ingress := service.NewIngress("amqp://unused", service.WithDialer(b.Dialer()))
			So(ingress.Start(ctx), ShouldBeNil)
			defer ingress.Stop()
			for skier := 1; skier <= 10; skier++ {
				r := ride
				r.SkierID = skier
				So(ingress.Publish(ctx, r), ShouldBeNil)
			}

			svc := service.NewConsumer("amqp://unused",
				service.WithDialer(b.Dialer()),
				service.WithStore(store),
				service.WithWorkers(2),
				service.WithPrefetch(5))
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then every ride is persisted and acked", func() {
				deadline := time.Now().Add(2 * time.Second)
				for store.Len() < 10 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(store.Len(), ShouldEqual, 10)

				stopCtx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				So(svc.Stop(stopCtx), ShouldBeNil)

				stats := svc.GetStats()
				So(stats["acked"], ShouldEqual, int64(10))
				So(stats["workers"], ShouldEqual, 2)
				So(b.Ready(model.QueueName), ShouldEqual, 0)
				<-svc.Done()
				So(svc.Err(), ShouldBeNil)
			})
		})
	})
}
