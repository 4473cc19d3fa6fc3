package pairs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pairsResolved = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fletcher_pairs_resolved",
			Help: "Number of market pairs that resolved as tradable",
		},
	)

	pairsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fletcher_pairs_skipped_total",
			Help: "Total number of configured pairs skipped during resolution",
		},
	)
)
