package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssargent/glogstore/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API. Each instance owns its
// registry so that servers and tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Stream operation metrics
	streamOperationsTotal   *prometheus.CounterVec
	streamOperationDuration *prometheus.HistogramVec

	// Stream state, polled from store.Stats
	streamSequence      *prometheus.GaugeVec
	streamCacheRecords  *prometheus.GaugeVec
	streamCacheBytes    *prometheus.GaugeVec
	streamArchiveFiles  *prometheus.GaugeVec
	streamArchiveBytes  *prometheus.GaugeVec
	streamQueueDepth    *prometheus.GaugeVec
	streamRotations     *prometheus.GaugeVec
	streamRejected      *prometheus.GaugeVec
	streamWriteFailures *prometheus.GaugeVec
	streamRemovedFiles  *prometheus.GaugeVec

	authRequestsTotal *prometheus.CounterVec
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	streamGauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"stream"})
	}

	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "glog_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		streamOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glog_stream_operations_total",
				Help: "Total number of stream operations",
			},
			[]string{"stream", "operation", "status"},
		),

		streamOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glog_stream_operation_duration_seconds",
				Help:    "Stream operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream", "operation"},
		),

		streamSequence:      streamGauge("glog_stream_sequence", "Records accepted by the live instance"),
		streamCacheRecords:  streamGauge("glog_stream_cache_records", "Records in the cache file"),
		streamCacheBytes:    streamGauge("glog_stream_cache_bytes", "Bytes used in the cache file"),
		streamArchiveFiles:  streamGauge("glog_stream_archive_files", "Archive files on disk"),
		streamArchiveBytes:  streamGauge("glog_stream_archive_bytes", "Total size of archive files"),
		streamQueueDepth:    streamGauge("glog_stream_queue_depth", "Writes waiting for the async worker"),
		streamRotations:     streamGauge("glog_stream_rotations", "Cache rotations since the instance opened"),
		streamRejected:      streamGauge("glog_stream_rejected_records", "Writes rejected by validation"),
		streamWriteFailures: streamGauge("glog_stream_write_failures", "Writes that failed after validation"),
		streamRemovedFiles:  streamGauge("glog_stream_removed_archives", "Archives removed by retention"),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glog_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glog_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

// Handler serves the metrics of this instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStreamOperation records one engine call made for a request
func (m *Metrics) RecordStreamOperation(stream, operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	m.streamOperationsTotal.WithLabelValues(stream, operation, status).Inc()
	m.streamOperationDuration.WithLabelValues(stream, operation).Observe(duration.Seconds())
}

// UpdateStreamStats copies one stats snapshot into the stream gauges
func (m *Metrics) UpdateStreamStats(st store.Stats) {
	s := st.ProtoName
	m.streamSequence.WithLabelValues(s).Set(float64(st.Sequence))
	m.streamCacheRecords.WithLabelValues(s).Set(float64(st.CacheRecords))
	m.streamCacheBytes.WithLabelValues(s).Set(float64(st.CacheBytes))
	m.streamArchiveFiles.WithLabelValues(s).Set(float64(st.ArchiveFiles))
	m.streamArchiveBytes.WithLabelValues(s).Set(float64(st.ArchiveBytes))
	m.streamQueueDepth.WithLabelValues(s).Set(float64(st.QueueDepth))
	m.streamRotations.WithLabelValues(s).Set(float64(st.Rotations))
	m.streamRejected.WithLabelValues(s).Set(float64(st.Rejected))
	m.streamWriteFailures.WithLabelValues(s).Set(float64(st.WriteFailures))
	m.streamRemovedFiles.WithLabelValues(s).Set(float64(st.RemovedFiles))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Create response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
