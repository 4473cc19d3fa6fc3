package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// evaluationsTotal counts BookUpdated events the detector inspected.
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fletcher_arb_evaluations_total",
		Help: "Total number of top-of-book evaluations",
	})

	// opportunitiesFound counts published opportunities by direction.
	opportunitiesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_arb_opportunities_found_total",
			Help: "Total number of arbitrage opportunities found",
		},
		[]string{"direction"},
	)

	// evaluationsRejected counts skipped directions by reason.
	evaluationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_arb_evaluations_rejected_total",
			Help: "Total number of direction evaluations rejected",
		},
		[]string{"direction", "reason"},
	)

	// opportunityProfitBPS tracks profit margins in basis points.
	opportunityProfitBPS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fletcher_arb_opportunity_profit_bps",
		Help:    "Arbitrage opportunity profit margin in basis points",
		Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
	})

	// detectionDurationSeconds tracks per-evaluation latency.
	detectionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fletcher_arb_detection_duration_seconds",
		Help:    "Duration of one arbitrage evaluation",
		Buckets: prometheus.DefBuckets,
	})

	// tradeInProgressGauge is 1 while an attempt is in flight.
	tradeInProgressGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fletcher_arb_trade_in_progress",
		Help: "Whether a trade attempt is currently in flight",
	})
)
