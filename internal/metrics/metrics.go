// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRecordsTotal          *prometheus.CounterVec
	ingestAdapterAttemptsTotal  *prometheus.CounterVec
	ingestSourceHealthScore     *prometheus.GaugeVec
	ingestRunsTotal             *prometheus.CounterVec
	ingestPhaseTransitionsTotal *prometheus.CounterVec
	ingestActiveRuns            prometheus.Gauge
	ingestFetchBytesTotal       *prometheus.CounterVec
	ingestRobotsFallbackTotal   prometheus.Counter
	ingestRateLimitDelaySeconds *prometheus.HistogramVec
	apiRequestsTotal            *prometheus.CounterVec
	apiRequestDurationSeconds   *prometheus.HistogramVec
	apiRequestsInFlight         prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Records processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		ingestAdapterAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_adapter_attempts_total",
				Help: "Source adapter calls, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		ingestSourceHealthScore = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_source_health_score",
				Help: "Latest structural health score (0-100) per source.",
			},
			[]string{"source"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Sealed operation runs, labeled by status.",
			},
			[]string{"status"},
		)

		ingestPhaseTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_phase_transitions_total",
				Help: "Orchestrator state transitions, labeled by phase entered.",
			},
			[]string{"phase"},
		)

		ingestActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_active_runs",
				Help: "Number of runs currently executing.",
			},
		)

		ingestFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_bytes_total",
				Help: "Bytes fetched from listing pages, labeled by site.",
			},
			[]string{"site"},
		)

		ingestRobotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_robots_fallback_total",
				Help: "robots.txt probes that fell back to allow-all after TLS handshake timeouts.",
			},
		)

		ingestRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_api_requests_total",
				Help: "Control API requests, labeled by method, route pattern and status code.",
			},
			[]string{"method", "route", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_api_request_duration_seconds",
				Help:    "Control API latency, labeled by method and route pattern.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		apiRequestsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_api_requests_in_flight",
				Help: "Control API requests currently being served.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord counts one record outcome for source.
func ObserveRecord(source, outcome string) {
	Init()
	ingestRecordsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveAdapterAttempt counts one adapter call for source.
func ObserveAdapterAttempt(source, result string) {
	Init()
	ingestAdapterAttemptsTotal.WithLabelValues(source, result).Inc()
}

// SetSourceHealth records the latest health score for source.
func SetSourceHealth(source string, score int) {
	Init()
	ingestSourceHealthScore.WithLabelValues(source).Set(float64(score))
}

// ObserveRun counts a sealed run.
func ObserveRun(status string) {
	Init()
	ingestRunsTotal.WithLabelValues(status).Inc()
}

// ObservePhase counts a transition into phase.
func ObservePhase(phase string) {
	Init()
	ingestPhaseTransitionsTotal.WithLabelValues(phase).Inc()
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	Init()
	ingestActiveRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	Init()
	ingestActiveRuns.Dec()
}

// ObserveFetch records the bytes fetched from site.
func ObserveFetch(site string, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		ingestFetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveRobotsFallback increments the robots.txt fallback counter.
func ObserveRobotsFallback() {
	Init()
	ingestRobotsFallbackTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	ingestRateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveAPIRequest records one finished control API request.
func ObserveAPIRequest(method, route string, code int, duration time.Duration) {
	Init()
	apiRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
