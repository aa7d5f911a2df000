// Package metrics provides Prometheus metrics for the game backend.
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
	// PoolLookups counts pool cache reads partitioned by kind and result (hit, miss, expired).
	PoolLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_pool_lookups_total",
			Help: "Track pool cache lookups",
		},
		[]string{"kind", "result"},
	)

	// PoolBuilds counts upstream pool builds partitioned by kind and status.
	PoolBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_pool_builds_total",
			Help: "Track pool builds from upstream sources",
		},
		[]string{"kind", "status"},
	)

	// PoolSourceFailures counts individual playlist or artist source failures.
	PoolSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_pool_source_failures_total",
			Help: "Pool source fetch failures that were skipped",
		},
		[]string{"source"},
	)

	// ProbeAttempts counts readability probe fetches partitioned by result.
	ProbeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_probe_attempts_total",
			Help: "Readability probe fetches",
		},
		[]string{"result"},
	)

	// Selections counts free-play selections partitioned by kind and outcome.
	Selections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_selections_total",
			Help: "Free-play selections",
		},
		[]string{"kind", "outcome"},
	)

	// Rotations counts daily rotation outcomes per context.
	Rotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_rotations_total",
			Help: "Daily challenge rotation outcomes",
		},
		[]string{"context", "outcome"},
	)

	// RotationDuration observes the duration of a full rotation pass.
	RotationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "muser_rotation_duration_seconds",
			Help:    "Duration of a rotateAll pass",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muser_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "muser_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "muser_http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RouteFunc resolves the low-cardinality route label for a request.
type RouteFunc func(r *http.Request) string

// Middleware records request count, latency and in-flight requests.
// Labels stay low-cardinality by using the matched route template.
func Middleware(route RouteFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			labels := prometheus.Labels{
				"method": r.Method,
				"route":  route(r),
				"status": strconv.Itoa(rec.status),
			}
			httpRequestsTotal.With(labels).Inc()
			httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
