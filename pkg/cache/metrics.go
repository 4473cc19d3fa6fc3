package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fletcher_cache_hits_total",
		Help: "Metadata cache lookups served from the cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fletcher_cache_misses_total",
		Help: "Metadata cache lookups that fell through to the venue API",
	})

	cacheSets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fletcher_cache_sets_total",
		Help: "Entries admitted to the metadata cache",
	})

	cacheDeletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fletcher_cache_deletes_total",
		Help: "Entries removed from the metadata cache",
	})
)
