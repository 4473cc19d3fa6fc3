package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// attemptsTotal counts trade attempts by outcome.
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_execution_attempts_total",
			Help: "Total number of trade attempts by outcome",
		},
		[]string{"outcome"},
	)

	// legErrorsTotal counts failed legs by platform.
	legErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_execution_leg_errors_total",
			Help: "Total number of failed trade legs by platform",
		},
		[]string{"platform"},
	)
)
