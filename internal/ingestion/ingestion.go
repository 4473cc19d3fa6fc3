// Package ingestion holds the venue WebSocket adapters. Each adapter owns one
// connection, normalizes the venue's wire format into order book events, and
// publishes them on the bus. Book state itself lives in the market manager;
// the adapters only translate.
package ingestion

import (
	"errors"
	"time"
)

// ErrNotConfigured is returned by Run when SetMarkets or SetBus was skipped.
var ErrNotConfigured = errors.New("adapter not configured")

// errResubscribe signals local state corruption. The session closes the
// socket and the reconnect path subscribes from scratch.
var errResubscribe = errors.New("resubscribe required")

const (
	defaultCooldown         = 3 * time.Second
	defaultDialTimeout      = 10 * time.Second
	defaultPingInterval     = 15 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultSubscribeTimeout = 10 * time.Second
)
