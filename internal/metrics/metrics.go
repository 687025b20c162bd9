// Package metrics exposes Prometheus collectors for the content relay service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	cacheEventsTotal           *prometheus.CounterVec
	transcriptBackendTotal     *prometheus.CounterVec
	browserActiveContexts      prometheus.Gauge
	browserSessionsTotal       prometheus.Counter
	browserPagesTotal          prometheus.Counter
	browserAcquireWaitSeconds  prometheus.Histogram
	browserAcquireTimeouts     prometheus.Counter
	rateLimitRejectionsTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentrelay_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contentrelay_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentrelay_fetch_total",
				Help: "Total number of fetches, labeled by content kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contentrelay_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by content kind.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		)

		cacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentrelay_cache_events_total",
				Help: "Cache lookups, labeled by content kind and event (hit or miss).",
			},
			[]string{"kind", "event"},
		)

		transcriptBackendTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentrelay_transcript_backend_total",
				Help: "Transcript backend attempts, labeled by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		)

		browserActiveContexts = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "contentrelay_browser_active_contexts",
				Help: "Number of browser sessions currently leased.",
			},
		)

		browserSessionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "contentrelay_browser_sessions_total",
				Help: "Total number of browser sessions created.",
			},
		)

		browserPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "contentrelay_browser_pages_total",
				Help: "Total number of browser pages opened.",
			},
		)

		browserAcquireWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contentrelay_browser_acquire_wait_seconds",
				Help:    "Histogram of time spent waiting for a browser session.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		browserAcquireTimeouts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "contentrelay_browser_acquire_timeouts_total",
				Help: "Total number of session acquisitions that timed out.",
			},
		)

		rateLimitRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentrelay_ratelimit_rejections_total",
				Help: "Requests rejected by the API rate limiter, labeled by route.",
			},
			[]string{"route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetch records the outcome of a transcript, page or social fetch.
// Outcome is "success" or the lower-cased error type.
func ObserveFetch(kind, outcome string, duration time.Duration) {
	Init()
	fetchTotal.WithLabelValues(kind, strings.ToLower(outcome)).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCache records a cache hit or miss for kind.
func ObserveCache(kind string, hit bool) {
	Init()
	event := "miss"
	if hit {
		event = "hit"
	}
	cacheEventsTotal.WithLabelValues(kind, event).Inc()
}

// ObserveTranscriptBackend records one backend attempt.
func ObserveTranscriptBackend(backend, outcome string) {
	Init()
	transcriptBackendTotal.WithLabelValues(backend, strings.ToLower(outcome)).Inc()
}

// SetBrowserActiveContexts sets the leased-session gauge.
func SetBrowserActiveContexts(n int) {
	Init()
	browserActiveContexts.Set(float64(n))
}

// IncBrowserSessions counts a newly created browser session.
func IncBrowserSessions() {
	Init()
	browserSessionsTotal.Inc()
}

// IncBrowserPages counts a newly opened page.
func IncBrowserPages() {
	Init()
	browserPagesTotal.Inc()
}

// ObserveAcquireWait records how long a caller waited for a session.
func ObserveAcquireWait(duration time.Duration, timedOut bool) {
	Init()
	browserAcquireWaitSeconds.Observe(duration.Seconds())
	if timedOut {
		browserAcquireTimeouts.Inc()
	}
}

// ObserveRateLimitRejection counts a request rejected by the API limiter.
func ObserveRateLimitRejection(route string) {
	Init()
	rateLimitRejectionsTotal.WithLabelValues(route).Inc()
}
