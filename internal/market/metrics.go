package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// updatesApplied counts snapshot/delta applications by platform.
	updatesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_market_updates_applied_total",
			Help: "Total number of book updates applied",
		},
		[]string{"platform", "update_type"},
	)

	// bookUpdatesEmitted counts BookUpdated events published.
	bookUpdatesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_market_book_updates_emitted_total",
			Help: "Total number of top-of-book change events emitted",
		},
		[]string{"platform"},
	)

	// marketsRegistered tracks the number of registered market pairs.
	marketsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fletcher_market_pairs_registered",
		Help: "Number of market pairs registered with the state manager",
	})
)
