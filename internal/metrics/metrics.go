// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	threadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_threads_total",
			Help: "Thread fetches, labeled by board and result.",
		},
		[]string{"board", "result"},
	)

	postsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_posts_total",
			Help: "Posts processed, labeled by board and status.",
		},
		[]string{"board", "status"},
	)

	blobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_blobs_total",
			Help: "Blob save attempts, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	blobBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_blob_bytes_total",
			Help: "Bytes written to the blob store, labeled by kind.",
		},
		[]string{"kind"},
	)

	unitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archiver_units_in_flight",
			Help: "Number of post work units currently holding a permit.",
		},
	)

	cycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archiver_cycle_duration_seconds",
			Help:    "Histogram of full archival cycle durations.",
			Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_cycles_total",
			Help: "Completed archival cycles, labeled by status.",
		},
		[]string{"status"},
	)

	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_remote_requests_total",
			Help: "Requests sent to the remote API, labeled by endpoint and code.",
		},
		[]string{"endpoint", "code"},
	)

	remoteRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_remote_request_duration_seconds",
			Help:    "Histogram of remote request latencies, labeled by endpoint.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_http_requests_total",
			Help: "Requests served by the ops API, labeled by method, route and code.",
		},
		[]string{"method", "route", "code"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveThread counts a thread fetch outcome.
func ObserveThread(board, result string) {
	threadsTotal.WithLabelValues(board, result).Inc()
}

// ObservePost counts a processed post. Status is "archived" or "failed".
func ObservePost(board, status string) {
	postsTotal.WithLabelValues(board, status).Inc()
}

// ObserveBlob counts a blob save attempt and, for stored blobs, its size.
func ObserveBlob(kind, outcome string, size int) {
	blobsTotal.WithLabelValues(kind, outcome).Inc()
	if size > 0 {
		blobBytesTotal.WithLabelValues(kind).Add(float64(size))
	}
}

// IncUnitsInFlight increments the in-flight units gauge.
func IncUnitsInFlight() {
	unitsInFlight.Inc()
}

// DecUnitsInFlight decrements the in-flight units gauge.
func DecUnitsInFlight() {
	unitsInFlight.Dec()
}

// ObserveCycle records a finished cycle.
func ObserveCycle(status string, duration time.Duration) {
	cyclesTotal.WithLabelValues(status).Inc()
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveRemoteRequest records a single request to the remote API. A code of
// zero means no response was received.
func ObserveRemoteRequest(endpoint string, code int, duration time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	remoteRequestsTotal.WithLabelValues(endpoint, label).Inc()
	remoteRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest counts a request served by the ops API.
func ObserveHTTPRequest(method, route string, code int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
