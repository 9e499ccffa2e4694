package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the aggregator.
type Metrics struct {
	// --- Workflows ---
	WorkflowsCompleted *prometheus.CounterVec
	WorkflowsRejected  *prometheus.CounterVec
	WorkflowDuration   *prometheus.HistogramVec
	WorkflowAmount     *prometheus.CounterVec
	WaterfallLegs      *prometheus.HistogramVec
	PartialDeliveries  *prometheus.CounterVec

	// --- Providers ---
	AdapterErrors *prometheus.CounterVec
	QuoteLatency  *prometheus.HistogramVec

	// --- Reserves ---
	ReserveTotalLiquidity     *prometheus.GaugeVec
	ReserveAvailableLiquidity *prometheus.GaugeVec
	ReconciliationGap         *prometheus.GaugeVec
	ReconciliationRuns        *prometheus.CounterVec

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter

	// --- Ingestion & Publishing ---
	CommandsReceived *prometheus.CounterVec
	PublishErrors    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
		0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
	}

	return &Metrics{
		// Workflows
		WorkflowsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_workflows_completed_total",
			Help: "Workflows that committed to the ledger",
		}, []string{"workflow", "asset"}),

		WorkflowsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_workflows_rejected_total",
			Help: "Workflows that failed, by error code",
		}, []string{"workflow", "asset", "code"}),

		WorkflowDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagg_workflow_duration_seconds",
			Help:    "End to end workflow latency including provider calls",
			Buckets: latencyBuckets,
		}, []string{"workflow"}),

		WorkflowAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_workflow_amount_total",
			Help: "Committed amount in whole asset units",
		}, []string{"workflow", "asset"}),

		WaterfallLegs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagg_waterfall_legs",
			Help:    "Providers drawn from per withdrawal or borrow",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}, []string{"workflow"}),

		PartialDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_partial_deliveries_total",
			Help: "Waterfalls that stopped after delivering some chunks",
		}, []string{"workflow", "asset"}),

		// Providers
		AdapterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_adapter_errors_total",
			Help: "Provider adapter call failures",
		}, []string{"provider", "op"}),

		QuoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagg_router_quote_duration_seconds",
			Help:    "Time to quote every provider of an asset",
			Buckets: latencyBuckets,
		}, []string{"asset"}),

		// Reserves
		ReserveTotalLiquidity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagg_reserve_total_liquidity",
			Help: "Ledger total liquidity in whole asset units",
		}, []string{"asset"}),

		ReserveAvailableLiquidity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagg_reserve_available_liquidity",
			Help: "Ledger available liquidity in whole asset units",
		}, []string{"asset"}),

		ReconciliationGap: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lagg_reconciliation_gap",
			Help: "Provider liquidity minus ledger available liquidity, whole asset units",
		}, []string{"asset"}),

		ReconciliationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_reconciliation_runs_total",
			Help: "Reconciliation job runs",
		}, []string{"status"}),

		// Idempotency
		IdempotencyDuplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/store)",
		}, []string{"workflow", "tier"}),

		DedupLRUSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lagg_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "lagg_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		// Ingestion & Publishing
		CommandsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_commands_received_total",
			Help: "Commands received over NATS",
		}, []string{"command", "status"}),

		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lagg_publish_errors_total",
			Help: "Outbound event publish failures",
		}),

		// Query API
		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lagg_query_requests_total",
			Help: "RPC requests",
		}, []string{"method", "code"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lagg_query_duration_seconds",
			Help:    "RPC latency",
			Buckets: latencyBuckets,
		}, []string{"method"}),
	}
}
