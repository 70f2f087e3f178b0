package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readiness = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

// Account deletion metrics
var (
	deletionResourceOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_deletion_resource_outcomes_total",
			Help: "Per-collection outcomes recorded by the deletion sweep.",
		},
		[]string{"status"},
	)

	deletionIdentity = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_deletion_identity_total",
			Help: "Identity removal decisions by strategy.",
		},
		[]string{"strategy", "deleted"},
	)

	deletionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "account_deletion_duration_seconds",
		Help:    "Wall time of complete account deletion runs.",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
)

var registerOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readiness,
			deletionResourceOutcomes, deletionIdentity, deletionDuration,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the latest readiness check.
func SetReady(ok bool) {
	if ok {
		readiness.Set(1)
		return
	}
	readiness.Set(0)
}

// ObserveResourceOutcome counts one sweep outcome.
func ObserveResourceOutcome(status string) {
	deletionResourceOutcomes.WithLabelValues(status).Inc()
}

// ObserveIdentityOutcome counts the identity removal decision. Empty strategy is reported as "none".
func ObserveIdentityOutcome(strategy string, deleted bool) {
	if strategy == "" {
		strategy = "none"
	}
	deletionIdentity.WithLabelValues(strategy, strconv.FormatBool(deleted)).Inc()
}

// ObserveDeletionDuration records the duration of one deletion run.
func ObserveDeletionDuration(d time.Duration) {
	deletionDuration.Observe(d.Seconds())
}

var knownPaths = map[string]struct{}{
	"/":                                  {},
	"/healthz":                           {},
	"/readyz":                            {},
	"/metrics":                           {},
	"/openapi.yaml":                      {},
	"/v1/info":                           {},
	"/v1/account/delete":                 {},
	"/.netlify/functions/delete-account": {},
}

// CanonicalPath bounds label cardinality: known routes pass through, anything else is "other".
func CanonicalPath(raw string) string {
	if raw == "" {
		return "/"
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if _, ok := knownPaths[raw]; ok {
		return raw
	}
	return "other"
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
