package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	writeResultOK    = "ok"
	writeResultError = "error"
)

type busyCounter interface {
	Count() int
}

// MetricsSnapshot is a JSON friendly summary of the process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	SnapshotsTotal           uint64    `json:"snapshotsTotal"`
	SubscriptionErrors       uint64    `json:"subscriptionErrors"`
	RemoteWrites             uint64    `json:"remoteWrites"`
	RemoteWriteFailures      uint64    `json:"remoteWriteFailures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the collection syncs, and provides lightweight snapshots for the API.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	collectionRecords  *prometheus.GaugeVec
	snapshots          *prometheus.CounterVec
	subscriptionErrors *prometheus.CounterVec
	remoteWrites       *prometheus.CounterVec
	remoteWriteLatency *prometheus.HistogramVec

	busyOnce sync.Once

	requestCount         uint64
	requestDurationTotal uint64
	snapshotCount        uint64
	subscriptionErrCount uint64
	writeCount           uint64
	writeFailureCount    uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	collectionRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dicampus_collection_records",
		Help: "Number of records in the latest snapshot of each collection",
	}, []string{"collection"})

	snapshots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dicampus_snapshots_total",
		Help: "Total snapshots applied per collection",
	}, []string{"collection"})

	subscriptionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dicampus_subscription_errors_total",
		Help: "Total subscription failures per collection",
	}, []string{"collection"})

	remoteWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dicampus_remote_writes_total",
		Help: "Total create, update and delete calls against the store",
	}, []string{"collection", "operation", "result"})

	remoteWriteLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dicampus_remote_write_duration_seconds",
		Help:    "Latency of store writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, collectionRecords, snapshots, subscriptionErrors, remoteWrites, remoteWriteLatency, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		collectionRecords:  collectionRecords,
		snapshots:          snapshots,
		subscriptionErrors: subscriptionErrors,
		remoteWrites:       remoteWrites,
		remoteWriteLatency: remoteWriteLatency,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// TrackBusy publishes the outstanding operation count of counter as the
// dicampus_busy_operations gauge. Only the first call has an effect.
func (m *MetricsService) TrackBusy(counter busyCounter) {
	if m == nil || counter == nil {
		return
	}
	m.busyOnce.Do(func() {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dicampus_busy_operations",
			Help: "Operations currently holding the busy indicator",
		}, func() float64 {
			return float64(counter.Count())
		}))
	})
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveSnapshot records one applied snapshot of size records.
func (m *MetricsService) ObserveSnapshot(collection string, records int) {
	if m == nil {
		return
	}
	m.collectionRecords.WithLabelValues(collection).Set(float64(records))
	m.snapshots.WithLabelValues(collection).Inc()
	atomic.AddUint64(&m.snapshotCount, 1)
}

// ObserveSubscriptionError records a failed collection subscription.
func (m *MetricsService) ObserveSubscriptionError(collection string) {
	if m == nil {
		return
	}
	m.subscriptionErrors.WithLabelValues(collection).Inc()
	atomic.AddUint64(&m.subscriptionErrCount, 1)
}

// ObserveRemoteWrite records the outcome and latency of one store write.
func (m *MetricsService) ObserveRemoteWrite(collection, operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := writeResultOK
	if err != nil {
		result = writeResultError
		atomic.AddUint64(&m.writeFailureCount, 1)
	}
	m.remoteWrites.WithLabelValues(collection, operation, result).Inc()
	m.remoteWriteLatency.WithLabelValues(collection, operation).Observe(duration.Seconds())
	atomic.AddUint64(&m.writeCount, 1)
}

// Snapshot returns aggregated metrics suitable for the health endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SnapshotsTotal:           atomic.LoadUint64(&m.snapshotCount),
		SubscriptionErrors:       atomic.LoadUint64(&m.subscriptionErrCount),
		RemoteWrites:             atomic.LoadUint64(&m.writeCount),
		RemoteWriteFailures:      atomic.LoadUint64(&m.writeFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
