package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache backs Cache with a ristretto admission cache. Cost is
// counted per entry, so MaxCost bounds the entry count, not bytes.
type RistrettoCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig sizes the cache. NumCounters should be roughly ten times
// the expected entry count.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Logger      *zap.Logger
}

func NewRistrettoCache(cfg *RistrettoConfig) (Cache, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{cache: c, logger: cfg.Logger}, nil
}

func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	if found {
		cacheHits.Inc()
	} else {
		cacheMisses.Inc()
	}
	return value, found
}

// Set stores one entry at unit cost. Admission is best effort; a false
// return means ristretto rejected the entry and callers must refetch.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		cacheSets.Inc()
		r.logger.Debug("cache-set", zap.String("key", key), zap.Duration("ttl", ttl))
	}
	return ok
}

func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
	cacheDeletes.Inc()
}

func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared")
}

func (r *RistrettoCache) Close() {
	r.cache.Close()
}

// Wait blocks until pending writes are applied. Tests use it to make
// admission deterministic before asserting on Get.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
