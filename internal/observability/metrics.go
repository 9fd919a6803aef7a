// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Telemetry store metrics
	SnapshotsIngested   prometheus.Counter
	SnapshotsEvicted    prometheus.Counter
	MarketsEvicted      prometheus.Counter
	OutOfOrderSnapshots prometheus.Counter
	TrackedMarkets      prometheus.Gauge
	StoredSnapshots     prometheus.Gauge

	// Market query metrics
	MarketFetchesTotal   *prometheus.CounterVec
	MarketFetchDuration  prometheus.Histogram
	MarketsLoaded        prometheus.Gauge
	StaleResultsDropped  prometheus.Counter
	CoalescedRequests    prometheus.Counter
	AccountDecodeErrors  prometheus.Counter
	UnrecognizedEncoding *prometheus.CounterVec

	// Transport metrics
	RPCCallLatency       *prometheus.HistogramVec
	RPCCallErrors        *prometheus.CounterVec
	AccountNotifications prometheus.Counter

	// HTTP metrics
	ChartRequests *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFetch prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "foundersnet"
	}

	return &Metrics{
		// Telemetry store metrics
		SnapshotsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "snapshots_ingested_total",
			Help:      "Total number of pool snapshots ingested",
		}),
		SnapshotsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "snapshots_evicted_total",
			Help:      "Total number of snapshots dropped by the per-market history cap",
		}),
		MarketsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "markets_evicted_total",
			Help:      "Total number of market histories dropped by the market cap",
		}),
		OutOfOrderSnapshots: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "out_of_order_snapshots_total",
			Help:      "Snapshots ingested with a timestamp older than the previous one",
		}),
		TrackedMarkets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "tracked_markets",
			Help:      "Number of markets with a stored history",
		}),
		StoredSnapshots: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "stored_snapshots",
			Help:      "Number of snapshots held across all histories",
		}),

		// Market query metrics
		MarketFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "fetches_total",
			Help:      "Total number of market account fetches by result",
		}, []string{"status"}),
		MarketFetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of market account fetches",
			Buckets:   prometheus.DefBuckets,
		}),
		MarketsLoaded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "loaded",
			Help:      "Number of markets in the latest committed result",
		}),
		StaleResultsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "stale_results_dropped_total",
			Help:      "Fetch results discarded because a newer request already committed",
		}),
		CoalescedRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "coalesced_requests_total",
			Help:      "Requests that shared an in-flight fetch",
		}),
		AccountDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "account_decode_errors_total",
			Help:      "Market accounts skipped because they failed to decode",
		}),
		UnrecognizedEncoding: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "markets",
			Name:      "unrecognized_encoding_total",
			Help:      "On-chain enum codes that did not map to a known value",
		}, []string{"field"}),

		// Transport metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Solana RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Solana RPC call failures by method",
		}, []string{"method"}),
		AccountNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "account_notifications_total",
			Help:      "Program account change notifications received",
		}),

		// HTTP metrics
		ChartRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "chart_requests_total",
			Help:      "Chart series requests by timeframe and whether the fallback point was used",
		}, []string{"timeframe", "fallback"}),

		// Health metrics
		LastSuccessfulFetch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_fetch_timestamp",
			Help:      "Unix timestamp of last successful market fetch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSnapshotIngested increments the ingested counter, and the evicted
// counter when the cap dropped an entry.
func RecordSnapshotIngested(evicted bool) {
	DefaultMetrics.SnapshotsIngested.Inc()
	if evicted {
		DefaultMetrics.SnapshotsEvicted.Inc()
	}
}

// RecordMarketEvicted increments the market eviction counter.
func RecordMarketEvicted() {
	DefaultMetrics.MarketsEvicted.Inc()
}

// RecordOutOfOrderSnapshot increments the out-of-order snapshot counter.
func RecordOutOfOrderSnapshot() {
	DefaultMetrics.OutOfOrderSnapshots.Inc()
}

// UpdateTelemetrySize updates the store size gauges.
func UpdateTelemetrySize(markets, snapshots int) {
	DefaultMetrics.TrackedMarkets.Set(float64(markets))
	DefaultMetrics.StoredSnapshots.Set(float64(snapshots))
}

// RecordMarketFetch records a market fetch outcome and its duration.
func RecordMarketFetch(status string, seconds float64, loaded int) {
	DefaultMetrics.MarketFetchesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.MarketFetchDuration.Observe(seconds)
	if status == "success" {
		DefaultMetrics.MarketsLoaded.Set(float64(loaded))
	}
}

// RecordStaleResultDropped increments the dropped stale result counter.
func RecordStaleResultDropped() {
	DefaultMetrics.StaleResultsDropped.Inc()
}

// RecordCoalescedRequest increments the coalesced request counter.
func RecordCoalescedRequest() {
	DefaultMetrics.CoalescedRequests.Inc()
}

// RecordAccountDecodeError increments the decode error counter.
func RecordAccountDecodeError() {
	DefaultMetrics.AccountDecodeErrors.Inc()
}

// RecordUnrecognizedEncoding records an unknown enum code for a field.
func RecordUnrecognizedEncoding(field string) {
	DefaultMetrics.UnrecognizedEncoding.WithLabelValues(field).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordAccountNotification increments the account notification counter.
func RecordAccountNotification() {
	DefaultMetrics.AccountNotifications.Inc()
}

// RecordChartRequest records a chart request.
func RecordChartRequest(timeframe string, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	DefaultMetrics.ChartRequests.WithLabelValues(timeframe, label).Inc()
}

// UpdateLastSuccessfulFetch sets the last successful fetch timestamp.
func UpdateLastSuccessfulFetch(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulFetch.Set(float64(unixSeconds))
}
