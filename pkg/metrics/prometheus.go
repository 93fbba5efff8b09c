// Package metrics provides Prometheus metrics for the skilift ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// HTTP ingress
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ingressPublished    prometheus.Counter
	ingressRejected     *prometheus.CounterVec
	ingressPublishError prometheus.Counter
	publishLatency      prometheus.Histogram

	// Channel pool
	poolCapacity    prometheus.Gauge
	poolInUse       prometheus.Gauge
	poolAcquireWait prometheus.Histogram
	poolReplaced    prometheus.Counter

	// Consumer
	consumerWorkers   prometheus.Gauge
	messagesConsumed  prometheus.Counter
	messagesAcked     prometheus.Counter
	messagesRequeued  prometheus.Counter
	messagesRejected  prometheus.Counter
	messagesRedeliver prometheus.Counter
	persistLatency    *prometheus.HistogramVec
	persistErrors     *prometheus.CounterVec

	// Load driver
	loadRequests *prometheus.CounterVec
	loadRetries  prometheus.Counter
	loadLatency  prometheus.Histogram
	loadQueueLen prometheus.Gauge

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skilift",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.ingressPublished = m.counter("ingress_published_total", "Lift rides published to the queue")
	m.ingressRejected = m.counterVec("ingress_rejected_total", "Requests rejected by validation", "reason")
	m.ingressPublishError = m.counter("ingress_publish_errors_total", "Publish attempts that failed")
	m.publishLatency = m.histogram("ingress_publish_latency_milliseconds", "Time spent publishing one message, including the channel lease")

	m.poolCapacity = m.gauge("channel_pool_capacity", "Configured number of broker channels")
	m.poolInUse = m.gauge("channel_pool_in_use", "Broker channels currently leased")
	m.poolAcquireWait = m.histogram("channel_pool_acquire_wait_milliseconds", "Time spent waiting for a free broker channel")
	m.poolReplaced = m.counter("channel_pool_replaced_total", "Broker channels replaced after being found closed")

	m.consumerWorkers = m.gauge("consumer_workers", "Consumer workers currently running")
	m.messagesConsumed = m.counter("consumer_messages_total", "Messages delivered to consumer workers")
	m.messagesAcked = m.counter("consumer_acked_total", "Messages persisted and acknowledged")
	m.messagesRequeued = m.counter("consumer_requeued_total", "Messages negatively acknowledged for redelivery")
	m.messagesRejected = m.counter("consumer_rejected_total", "Undecodable messages rejected without requeue")
	m.messagesRedeliver = m.counter("consumer_redelivered_total", "Messages that arrived flagged as redelivered")
	m.persistLatency = m.histogramVec("store_put_latency_milliseconds", "Persistence write latency", "backend")
	m.persistErrors = m.counterVec("store_put_errors_total", "Persistence write failures", "backend")

	m.loadRequests = m.counterVec("load_requests_total", "Logical requests issued by the load driver", "outcome")
	m.loadRetries = m.counter("load_retries_total", "Extra attempts made by the load driver")
	m.loadLatency = m.histogram("load_request_latency_milliseconds", "End-to-end latency of a logical load request")
	m.loadQueueLen = m.gauge("load_queue_length", "Events waiting in the current phase queue")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordIngressPublished counts a lift ride handed to the broker.
func RecordIngressPublished(took time.Duration) {
	globalManager.ingressPublished.Inc()
	globalManager.publishLatency.Observe(ms(took))
}

// RecordIngressRejected counts a validation rejection.
func RecordIngressRejected(reason string) {
	globalManager.ingressRejected.WithLabelValues(reason).Inc()
}

// RecordIngressPublishError counts a failed publish.
func RecordIngressPublishError() {
	globalManager.ingressPublishError.Inc()
	RecordErrorByComponent("ingress", "publish")
}

// UpdatePoolCapacity sets the channel pool capacity gauge.
func UpdatePoolCapacity(n int) { globalManager.poolCapacity.Set(float64(n)) }

// UpdatePoolInUse sets the leased channel gauge.
func UpdatePoolInUse(n int) { globalManager.poolInUse.Set(float64(n)) }

// RecordPoolAcquireWait observes how long an acquire blocked.
func RecordPoolAcquireWait(d time.Duration) { globalManager.poolAcquireWait.Observe(ms(d)) }

// RecordPoolChannelReplaced counts a dead channel swapped for a fresh one.
func RecordPoolChannelReplaced() { globalManager.poolReplaced.Inc() }

// UpdateConsumerWorkers sets the running consumer worker gauge.
func UpdateConsumerWorkers(n int) { globalManager.consumerWorkers.Set(float64(n)) }

// RecordMessageConsumed counts a delivery.
func RecordMessageConsumed(redelivered bool) {
	globalManager.messagesConsumed.Inc()
	if redelivered {
		globalManager.messagesRedeliver.Inc()
	}
}

// RecordMessageAcked counts an acknowledged message.
func RecordMessageAcked() { globalManager.messagesAcked.Inc() }

// RecordMessageRequeued counts a message handed back for redelivery.
func RecordMessageRequeued() { globalManager.messagesRequeued.Inc() }

// RecordMessageRejected counts a poison message.
func RecordMessageRejected() {
	globalManager.messagesRejected.Inc()
	RecordErrorByComponent("consumer", "decode")
}

// RecordStorePut observes a persistence write.
func RecordStorePut(backend string, took time.Duration, err error) {
	globalManager.persistLatency.WithLabelValues(backend).Observe(ms(took))
	if err != nil {
		globalManager.persistErrors.WithLabelValues(backend).Inc()
		RecordErrorByComponent("store", backend)
	}
}

// RecordLoadRequest counts one logical load-driver request.
func RecordLoadRequest(success bool, attempts int, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	globalManager.loadRequests.WithLabelValues(outcome).Inc()
	if attempts > 1 {
		globalManager.loadRetries.Add(float64(attempts - 1))
	}
	globalManager.loadLatency.Observe(ms(latency))
}

// UpdateLoadQueueLength sets the phase queue length gauge.
func UpdateLoadQueueLength(n int) { globalManager.loadQueueLen.Set(float64(n)) }

// RecordErrorByComponent records an error by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage updates the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom registry used by the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
