// Package cache provides the metadata cache used by pair resolution.
package cache

import "time"

// Cache stores venue metadata between resolution rounds.
type Cache interface {
	// Get returns (value, true) if the key is present and unexpired.
	Get(key string) (interface{}, bool)

	// Set stores a value with a TTL. Returns false if the entry was not
	// admitted.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	// Close releases cache resources.
	Close()
}
