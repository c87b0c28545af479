// Package metrics provides Prometheus metrics for the price engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PriceQueriesTotal counts price reads by variant and by whether the cached observation was served.
	PriceQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_queries_total",
			Help: "Total number of price queries by variant and resolution path",
		},
		[]string{"variant", "path"},
	)

	// FeedFailuresTotal counts feed calls that failed or returned zero during aggregation.
	FeedFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_feed_failures_total",
			Help: "Total number of failed or zero-valued feed queries",
		},
		[]string{"asset", "submodule"},
	)

	// PriceAggregationDuration is a histogram of price aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Duration of price aggregation operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ObservationsStoredTotal counts observations written to the ring buffer.
	ObservationsStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_observations_stored_total",
			Help: "Total number of price observations stored",
		},
		[]string{"asset"},
	)

	// LastObservationTimestamp is the ledger time of the most recent stored observation.
	LastObservationTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "price_last_observation_timestamp",
			Help: "Unix timestamp of the last stored observation per asset",
		},
		[]string{"asset"},
	)

	// ApprovedAssets is the number of assets currently approved.
	ApprovedAssets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_approved_assets",
			Help: "Number of approved assets",
		},
	)

	// EngineErrorsTotal counts failed engine operations by error code.
	EngineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_engine_errors_total",
			Help: "Total number of failed engine operations",
		},
		[]string{"operation", "code"},
	)

	// KeeperRunsTotal counts keeper executions.
	KeeperRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_keeper_runs_total",
			Help: "Total number of keeper store runs",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

// Init initializes Prometheus metrics registry.
func Init() {
	prometheus.MustRegister(
		PriceQueriesTotal,
		FeedFailuresTotal,
		PriceAggregationDuration,
		ObservationsStoredTotal,
		LastObservationTimestamp,
		ApprovedAssets,
		EngineErrorsTotal,
		KeeperRunsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordPriceQuery records a price read.
func RecordPriceQuery(variant, path string) {
	PriceQueriesTotal.WithLabelValues(variant, path).Inc()
}

// RecordFeedFailure records a failed or zero-valued feed.
func RecordFeedFailure(asset, submodule string) {
	FeedFailuresTotal.WithLabelValues(asset, submodule).Inc()
}

// RecordAggregation records a price aggregation operation.
func RecordAggregation(method string, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordObservation records a stored observation at the given ledger time.
func RecordObservation(asset string, timestamp uint64) {
	ObservationsStoredTotal.WithLabelValues(asset).Inc()
	LastObservationTimestamp.WithLabelValues(asset).Set(float64(timestamp))
}

// SetApprovedAssets sets the approved asset gauge.
func SetApprovedAssets(n int) {
	ApprovedAssets.Set(float64(n))
}

// RecordEngineError records a failed engine operation.
func RecordEngineError(operation, code string) {
	EngineErrorsTotal.WithLabelValues(operation, code).Inc()
}

// RecordKeeperRun records a keeper execution.
func RecordKeeperRun(status string) {
	KeeperRunsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
