package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the reconciliation service.
type Metrics struct {
	// Reconciliation pass metrics
	PassesStarted   prometheus.Counter
	PassesPublished prometheus.Counter
	PassesAborted   *prometheus.CounterVec
	PassesDiscarded prometheus.Counter
	PassLatency     prometheus.Histogram
	SnapshotRecords prometheus.Gauge

	// Trigger metrics
	Triggers          *prometheus.CounterVec
	CoalescedTriggers prometheus.Counter

	// Data quality metrics
	ConservationMismatches prometheus.Counter
	UnclassifiedCampaigns  prometheus.Gauge
	UnclassifiedSpend      prometheus.Gauge

	// Import metrics
	ImportedRows *prometheus.CounterVec
	RejectedRows *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PassesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_passes_started_total",
			Help:      "Reconciliation passes started",
		}),
		PassesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_passes_published_total",
			Help:      "Reconciliation passes that published a snapshot",
		}),
		PassesAborted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_passes_aborted_total",
				Help:      "Reconciliation passes aborted before publishing",
			},
			[]string{"reason"},
		),
		PassesDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_passes_discarded_total",
			Help:      "Completed passes discarded because a newer pass had started",
		}),
		PassLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_pass_latency_seconds",
			Help:      "Full reconciliation pass latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SnapshotRecords: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Records in the last published snapshot",
		}),

		Triggers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_triggers_total",
				Help:      "Triggers received by type",
			},
			[]string{"type"},
		),
		CoalescedTriggers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_triggers_coalesced_total",
			Help:      "Triggers folded into an already scheduled pass",
		}),

		ConservationMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conservation_mismatches_total",
			Help:      "Aggregations whose native total drifted from the input total",
		}),
		UnclassifiedCampaigns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unclassified_campaigns",
			Help:      "Spend rows in the fallback bucket in the last pass",
		}),
		UnclassifiedSpend: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unclassified_spend_usd",
			Help:      "Native spend in the fallback bucket in the last pass",
		}),

		ImportedRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_rows_total",
				Help:      "Rows accepted by import, by feed",
			},
			[]string{"feed"},
		),
		RejectedRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_rows_total",
				Help:      "Rows rejected at the ingestion boundary, by feed and reason",
			},
			[]string{"feed", "reason"},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by rate limiting",
			},
			[]string{"endpoint"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPassPublished records a successful pass.
func (m *Metrics) RecordPassPublished(records int, latency time.Duration) {
	m.PassesPublished.Inc()
	m.PassLatency.Observe(latency.Seconds())
	m.SnapshotRecords.Set(float64(records))
}

// RecordUnclassified updates the fallback-bucket gauges.
func (m *Metrics) RecordUnclassified(count int, totalSpend float64) {
	m.UnclassifiedCampaigns.Set(float64(count))
	m.UnclassifiedSpend.Set(totalSpend)
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
