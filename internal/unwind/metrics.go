package unwind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unwindsTotal counts unwind attempts by platform and outcome.
var unwindsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fletcher_unwind_attempts_total",
		Help: "Total number of unwind attempts",
	},
	[]string{"platform", "outcome"},
)
