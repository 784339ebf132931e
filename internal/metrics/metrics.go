// Package metrics exposes Prometheus collectors for the headhunter service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiFetchesTotal      *prometheus.CounterVec
	cacheHitsTotal       prometheus.Counter
	keyEvictionsTotal    prometheus.Counter
	budgetAbortsTotal    prometheus.Counter
	scanPhaseSeconds     *prometheus.HistogramVec
	scansTotal           *prometheus.CounterVec
	recruitPoolSize      prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	blacklistActiveGauge prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headhunter_api_fetches_total",
				Help: "Total outbound game-API fetch outcomes, labeled by result.",
			},
			[]string{"result"},
		)

		cacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "headhunter_execution_cache_hits_total",
				Help: "Fetches satisfied from the run-scoped execution cache.",
			},
		)

		keyEvictionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "headhunter_key_evictions_total",
				Help: "API keys removed from the pool after 403/429 responses.",
			},
		)

		budgetAbortsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "headhunter_fetch_budget_aborts_total",
				Help: "Batches refused because the per-run fetch budget was spent.",
			},
		)

		scanPhaseSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "headhunter_scan_phase_seconds",
				Help:    "Histogram of scan phase durations, labeled by phase.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"phase"},
		)

		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headhunter_scans_total",
				Help: "Total scout runs, labeled by status.",
			},
			[]string{"status"},
		)

		recruitPoolSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "headhunter_recruit_pool_size",
				Help: "Number of candidates in the active recruit pool.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "headhunter_http_requests_total",
				Help: "Total inbound HTTP requests, labeled by route and code.",
			},
			[]string{"route", "code"},
		)

		blacklistActiveGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "headhunter_blacklist_active_entries",
				Help: "Active (unexpired) blacklist entries after the last prune.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIFetch increments the outbound fetch counter for a result class.
func ObserveAPIFetch(result string) {
	Init()
	apiFetchesTotal.WithLabelValues(result).Inc()
}

// ObserveCacheHit increments the execution-cache hit counter.
func ObserveCacheHit() {
	Init()
	cacheHitsTotal.Inc()
}

// ObserveKeyEviction increments the key eviction counter.
func ObserveKeyEviction() {
	Init()
	keyEvictionsTotal.Inc()
}

// ObserveBudgetAbort increments the fetch-budget abort counter.
func ObserveBudgetAbort() {
	Init()
	budgetAbortsTotal.Inc()
}

// ObserveScanPhase records the duration of one scan phase.
func ObserveScanPhase(phase string, duration time.Duration) {
	Init()
	scanPhaseSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveScan increments the scan counter for the given status.
func ObserveScan(status string) {
	Init()
	scansTotal.WithLabelValues(status).Inc()
}

// SetPoolSize records the current recruit pool size.
func SetPoolSize(n int) {
	Init()
	recruitPoolSize.Set(float64(n))
}

// SetBlacklistActive records the active blacklist entry count.
func SetBlacklistActive(n int) {
	Init()
	blacklistActiveGauge.Set(float64(n))
}

// ObserveHTTPRequest increments the inbound HTTP request counter.
func ObserveHTTPRequest(route string, code int) {
	Init()
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
