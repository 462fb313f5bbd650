package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ==========================================================================
	// HTTP Metrics
	// ==========================================================================
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// ==========================================================================
	// Database Metrics
	// ==========================================================================
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_total",
			Help: "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// ==========================================================================
	// Scrape Job / Task Metrics
	// ==========================================================================
	ScrapeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_total",
			Help: "Total number of scrape jobs closed, by final status",
		},
		[]string{"status"}, // success, partial, failed
	)

	ScrapeTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_tasks_total",
			Help: "Total number of scrape tasks completed, by final status and backend",
		},
		[]string{"status", "backend"},
	)

	ScrapeTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_task_duration_seconds",
			Help:    "Time to complete a single dealer scrape task",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50},
		},
		[]string{"backend"},
	)

	ScrapeFetchRetries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scrape_fetch_retries",
			Help:    "Attempt number after which a task's fetch was retried, observed once per retry",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	ScrapeFallbacksUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_fallbacks_used_total",
			Help: "Total number of times a parser fallback chain was invoked, by discovered backend",
		},
		[]string{"fallback_backend"},
	)

	// ==========================================================================
	// Rate Limiter / Concurrency Gate Metrics
	// ==========================================================================
	RateLimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rate_limiter_wait_seconds",
			Help:    "Time spent waiting to acquire a rate-limit token",
			Buckets: []float64{0, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	ConcurrencyGateInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "concurrency_gate_in_use",
			Help: "Number of concurrency gate slots currently held",
		},
	)

	// ==========================================================================
	// Ingest / Reconciler Metrics
	// ==========================================================================
	ObservationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "observations_total",
			Help: "Total number of observation rows persisted",
		},
	)

	ListingsUpsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listings_upserted_total",
			Help: "Total number of listing upserts performed",
		},
	)

	PriceEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "price_events_total",
			Help: "Total number of price-change events emitted",
		},
	)

	ListingsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listings_total",
			Help: "Total number of listings by status",
		},
		[]string{"status"},
	)

	AbsenceTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "absence_transitions_total",
			Help: "Total number of listing status transitions applied by the Absence Reconciler",
		},
		[]string{"to_status"}, // missing, sold
	)

	// ==========================================================================
	// External API Metrics
	// ==========================================================================
	ExternalAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_api_calls_total",
			Help: "Total external API calls",
		},
		[]string{"service", "endpoint", "status"},
	)

	ExternalAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_api_latency_seconds",
			Help:    "External API call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "endpoint"},
	)
)
