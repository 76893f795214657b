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
	// Ingestion metrics
	TransactionsReceived *prometheus.CounterVec
	TransactionsSkipped  *prometheus.CounterVec
	ProcessingErrors     *prometheus.CounterVec
	EnrichmentDrops      prometheus.Counter

	// Detection metrics
	BuysDetected         *prometheus.CounterVec
	DuplicatesSuppressed prometheus.Counter
	SolSpentTotal        prometheus.Counter

	// Subscription metrics
	WSConnectionState prometheus.Gauge
	WSReconnects      prometheus.Counter
	WSNotifications   prometheus.Counter

	// Broadcast metrics
	Subscribers        prometheus.Gauge
	SubscribersDropped prometheus.Counter

	// Latency metrics
	ProcessingLatency prometheus.Histogram
	RPCCallLatency    *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_buy_monitor"
	}

	return &Metrics{
		// Ingestion metrics
		TransactionsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_received_total",
			Help:      "Total number of transaction payloads received by source",
		}, []string{"source"}),
		TransactionsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_skipped_total",
			Help:      "Total number of transactions skipped by reason",
		}, []string{"reason"}),
		ProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "processing_errors_total",
			Help:      "Total number of processing errors by type",
		}, []string{"error_type"}),
		EnrichmentDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "enrichment_drops_total",
			Help:      "Total number of notifications dropped after failed detail fetches",
		}),

		// Detection metrics
		BuysDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "buys_detected_total",
			Help:      "Total number of buy events detected by source",
		}, []string{"source"}),
		DuplicatesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of duplicate signatures suppressed",
		}),
		SolSpentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "sol_spent_total",
			Help:      "Cumulative SOL spent across detected buys",
		}),

		// Subscription metrics
		WSConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_connection_state",
			Help:      "WebSocket connection state (0=disconnected, 1=connecting, 2=subscribed)",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),
		WSNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Total number of log notifications received",
		}),

		// Broadcast metrics
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Current number of push subscribers",
		}),
		SubscribersDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers_dropped_total",
			Help:      "Total number of subscribers dropped for falling behind",
		}),

		// Latency metrics
		ProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "processing_latency_seconds",
			Help:      "Transaction processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordReceived increments the received counter for a source.
func RecordReceived(source string) {
	DefaultMetrics.TransactionsReceived.WithLabelValues(source).Inc()
}

// RecordSkipped increments the skipped counter for a reason.
func RecordSkipped(reason string) {
	DefaultMetrics.TransactionsSkipped.WithLabelValues(reason).Inc()
}

// RecordProcessingError records a processing error by type.
func RecordProcessingError(errorType string) {
	DefaultMetrics.ProcessingErrors.WithLabelValues(errorType).Inc()
}

// RecordEnrichmentDrop increments the enrichment drop counter.
func RecordEnrichmentDrop() {
	DefaultMetrics.EnrichmentDrops.Inc()
}

// RecordBuy records one detected buy and the SOL it spent.
func RecordBuy(source string, solSpent float64) {
	DefaultMetrics.BuysDetected.WithLabelValues(source).Inc()
	DefaultMetrics.SolSpentTotal.Add(solSpent)
}

// RecordDuplicate increments the duplicate suppression counter.
func RecordDuplicate() {
	DefaultMetrics.DuplicatesSuppressed.Inc()
}

// UpdateConnectionState updates the WebSocket connection state gauge.
func UpdateConnectionState(state int32) {
	DefaultMetrics.WSConnectionState.Set(float64(state))
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordNotification increments the notification counter.
func RecordNotification() {
	DefaultMetrics.WSNotifications.Inc()
}

// UpdateSubscribers updates the push subscriber gauge.
func UpdateSubscribers(n int) {
	DefaultMetrics.Subscribers.Set(float64(n))
}

// RecordSubscriberDropped increments the dropped subscriber counter.
func RecordSubscriberDropped() {
	DefaultMetrics.SubscribersDropped.Inc()
}

// RecordProcessingLatency records transaction processing latency.
func RecordProcessingLatency(seconds float64) {
	DefaultMetrics.ProcessingLatency.Observe(seconds)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
