package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then every series should be registered under the default namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.poolCapacity.Set(10)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)

				found := false
				for _, f := range families {
					if f.GetName() == "skilift_pipeline_channel_pool_capacity" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("sub"),
				WithMetricPrefix("pfx"),
				WithHistogramBuckets([]float64{1, 10}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names should carry namespace, subsystem and prefix", func() {
				manager.poolInUse.Set(1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_sub_pfx_channel_pool_in_use")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ingress activity", func() {
			before := testutil.ToFloat64(globalManager.ingressPublished)
			RecordIngressPublished(3 * time.Millisecond)
			RecordIngressRejected("skier_mismatch")
			RecordIngressPublishError()

			Convey("Then the counters should move", func() {
				So(testutil.ToFloat64(globalManager.ingressPublished), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.ingressRejected.WithLabelValues("skier_mismatch")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording pool activity", func() {
			UpdatePoolCapacity(10)
			UpdatePoolInUse(4)
			RecordPoolAcquireWait(time.Millisecond)

			Convey("Then the gauges should reflect the latest values", func() {
				So(testutil.ToFloat64(globalManager.poolCapacity), ShouldEqual, 10)
				So(testutil.ToFloat64(globalManager.poolInUse), ShouldEqual, 4)
			})
		})

		Convey("When recording consumer activity", func() {
			acked := testutil.ToFloat64(globalManager.messagesAcked)
			redelivered := testutil.ToFloat64(globalManager.messagesRedeliver)
			RecordMessageConsumed(true)
			RecordMessageAcked()
			RecordStorePut("memory", time.Millisecond, errors.New("down"))

			Convey("Then ack and redelivery counters should move", func() {
				So(testutil.ToFloat64(globalManager.messagesAcked), ShouldEqual, acked+1)
				So(testutil.ToFloat64(globalManager.messagesRedeliver), ShouldEqual, redelivered+1)
				So(testutil.ToFloat64(globalManager.persistErrors.WithLabelValues("memory")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording load driver requests", func() {
			retries := testutil.ToFloat64(globalManager.loadRetries)
			RecordLoadRequest(false, 5, 60*time.Millisecond)

			Convey("Then extra attempts should count as retries", func() {
				So(testutil.ToFloat64(globalManager.loadRetries), ShouldEqual, retries+4)
			})
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the package registry", t, func() {
		So(GetRegistry(), ShouldNotBeNil)
		_, err := GetRegistry().Gather()
		So(err, ShouldBeNil)
	})
}
