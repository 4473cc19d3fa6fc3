package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fletcher_storage_flushes_total",
			Help: "Total number of storage flush attempts",
		},
		[]string{"outcome"},
	)

	recordsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fletcher_storage_records_stored_total",
			Help: "Total number of trade records persisted",
		},
	)

	recordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fletcher_storage_records_dropped_total",
			Help: "Total number of trade records dropped due to a full buffer",
		},
	)

	recordsBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fletcher_storage_records_buffered",
			Help: "Number of trade records waiting to be flushed",
		},
	)
)
