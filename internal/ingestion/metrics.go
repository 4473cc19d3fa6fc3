package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_ingestion_messages_total",
			Help: "Total number of wire messages processed",
		},
		[]string{"platform", "type"},
	)

	messagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_ingestion_messages_dropped_total",
			Help: "Total number of wire messages dropped",
		},
		[]string{"platform", "reason"},
	)

	sequenceGaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fletcher_ingestion_sequence_gaps_total",
			Help: "Total number of sequence gaps detected on the shared counter",
		},
	)

	reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_ingestion_reconnects_total",
			Help: "Total number of reconnect cycles",
		},
		[]string{"platform"},
	)

	connected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fletcher_ingestion_connected",
			Help: "Whether the venue WebSocket is currently connected",
		},
		[]string{"platform"},
	)
)
