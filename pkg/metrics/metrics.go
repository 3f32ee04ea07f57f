package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pyazkv"

// Metrics holds all Prometheus metrics for the key-value service.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestInFlight prometheus.Gauge

	// gRPC request metrics
	GrpcRequestDuration *prometheus.HistogramVec
	GrpcRequestTotal    *prometheus.CounterVec

	// Storage operation metrics
	StorageOperationDuration *prometheus.HistogramVec
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationErrors   *prometheus.CounterVec

	// Expiry metrics
	ExpiredTotal prometheus.Counter

	RateLimitHits   *prometheus.CounterVec
	PanicsRecovered *prometheus.CounterVec
}

// New creates and registers all metrics on registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Histogram of HTTP request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),

		HTTPRequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),

		HTTPRequestInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_in_flight",
				Help:      "Current number of in-flight HTTP requests",
			},
		),

		GrpcRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_duration_seconds",
				Help:      "Histogram of gRPC request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),

		GrpcRequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grpc",
				Name:      "request_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),

		StorageOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_duration_seconds",
				Help:      "Histogram of storage operation latencies",
				Buckets:   []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2},
			},
			[]string{"operation", "status"},
		),

		StorageOperationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_total",
				Help:      "Total number of storage operations",
			},
			[]string{"operation"},
		),

		StorageOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_errors_total",
				Help:      "Total number of storage operation errors",
			},
			[]string{"operation"},
		),

		ExpiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "expired_total",
				Help:      "Total number of expired entries removed by the janitor",
			},
		),

		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "rate_limit_hits_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
			[]string{"transport"}, // "http", "grpc"
		),

		PanicsRecovered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered in request handlers",
			},
			[]string{"transport"},
		),
	}
}

// RegisterKeyCount exposes the current number of stored keys as a gauge
// evaluated at scrape time.
func RegisterKeyCount(registry *prometheus.Registry, count func() int) {
	promauto.With(registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "keys",
			Help:      "Current number of stored keys, including unswept expired keys",
		},
		func() float64 { return float64(count()) },
	)
}

// RecordHTTPRequest records an HTTP request's duration and status code
func (m *Metrics) RecordHTTPRequest(route, code string, duration time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(route, code).Observe(duration.Seconds())
	m.HTTPRequestTotal.WithLabelValues(route, code).Inc()
}

// RecordGrpcRequest records a gRPC request's duration and status
func (m *Metrics) RecordGrpcRequest(method, code string, duration time.Duration) {
	m.GrpcRequestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
	m.GrpcRequestTotal.WithLabelValues(method, code).Inc()
}

// RecordStorageOperation records a storage operation's duration and status
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	m.StorageOperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	m.StorageOperationTotal.WithLabelValues(operation).Inc()
}

// RecordStorageError records a failed storage operation
func (m *Metrics) RecordStorageError(operation string) {
	m.StorageOperationErrors.WithLabelValues(operation).Inc()
}

// RecordExpired records entries removed by an expiry sweep
func (m *Metrics) RecordExpired(n int) {
	m.ExpiredTotal.Add(float64(n))
}

// RecordRateLimitHit records a request rejected by the rate limiter
func (m *Metrics) RecordRateLimitHit(transport string) {
	m.RateLimitHits.WithLabelValues(transport).Inc()
}

// RecordPanicRecovered records a recovered panic
func (m *Metrics) RecordPanicRecovered(transport string) {
	m.PanicsRecovered.WithLabelValues(transport).Inc()
}
