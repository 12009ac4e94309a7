package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "herald"

var (
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Total poll passes by outcome",
		},
		[]string{"status"}, // "committed", "commit_failed", "cancelled"
	)

	PassesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_skipped_total",
			Help:      "Scheduled passes skipped because the previous pass was still running",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of complete poll passes in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
		},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Sources that failed during a pass, by stage",
		},
		[]string{"stage"},
	)

	SourcesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_skipped_total",
			Help:      "Sources skipped during a pass",
		},
		[]string{"reason"},
	)

	ItemsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_detected_total",
			Help:      "Fetched items by variant and classification",
		},
		[]string{"variant", "kind"}, // kind: "new", "seen", "screened", "tokenless"
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification requests sent to endpoints",
		},
		[]string{"variant", "status"}, // status: "sent", "failed", "rate_limited"
	)

	LedgerSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_sources",
			Help:      "Number of sources held in the last committed ledger",
		},
	)
)
