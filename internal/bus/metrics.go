package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// messagesPublished counts messages enqueued, by kind.
	messagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_bus_messages_published_total",
			Help: "Total number of messages published to the bus",
		},
		[]string{"kind"},
	)

	// messagesProcessed counts messages fully dispatched, by kind.
	messagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_bus_messages_processed_total",
			Help: "Total number of messages dispatched to handlers",
		},
		[]string{"kind"},
	)

	// handlerErrors counts handler invocations that returned an error.
	handlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_bus_handler_errors_total",
			Help: "Total number of handler errors by message kind",
		},
		[]string{"kind"},
	)

	// queueDepth tracks the current queue length.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fletcher_bus_queue_depth",
		Help: "Current number of messages waiting in the bus queue",
	})
)
