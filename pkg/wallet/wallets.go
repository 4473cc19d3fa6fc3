package wallet

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

// Currency names a balance denomination held at a venue.
type Currency string

const (
	CurrencyUSD   Currency = "USD"    // Kalshi cash balance
	CurrencyUSDCE Currency = "USDC_E" // Polymarket collateral
	CurrencyPOL   Currency = "POL"    // Polygon gas token
)

// Snapshot is an immutable point-in-time view of venue balances, safe to
// attach to bus messages.
type Snapshot map[types.Platform]map[Currency]decimal.Decimal

// Balance returns the snapshot balance for (platform, currency).
func (s Snapshot) Balance(p types.Platform, c Currency) (decimal.Decimal, bool) {
	byCurrency, ok := s[p]
	if !ok {
		return decimal.Zero, false
	}
	amount, ok := byCurrency[c]
	return amount, ok
}

// Wallets holds the per-venue balances known to the engine. Balances are
// refreshed at startup and debited optimistically after confirmed spends;
// authoritative reconciliation happens outside the trading loop.
type Wallets struct {
	mu       sync.RWMutex
	balances map[types.Platform]map[Currency]decimal.Decimal
}

func NewWallets() *Wallets {
	return &Wallets{balances: make(map[types.Platform]map[Currency]decimal.Decimal)}
}

// Set records the balance for (platform, currency).
func (w *Wallets) Set(p types.Platform, c Currency, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()

	byCurrency, ok := w.balances[p]
	if !ok {
		byCurrency = make(map[Currency]decimal.Decimal)
		w.balances[p] = byCurrency
	}
	byCurrency[c] = amount
}

// Balance returns the current balance for (platform, currency).
func (w *Wallets) Balance(p types.Platform, c Currency) (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	byCurrency, ok := w.balances[p]
	if !ok {
		return decimal.Zero, false
	}
	amount, ok := byCurrency[c]
	return amount, ok
}

// Debit subtracts amount from (platform, currency), flooring at zero. A debit
// against an unknown balance is a no-op.
func (w *Wallets) Debit(p types.Platform, c Currency, amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()

	byCurrency, ok := w.balances[p]
	if !ok {
		return
	}
	current, ok := byCurrency[c]
	if !ok {
		return
	}
	next := current.Sub(amount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	byCurrency[c] = next
}

// Snapshot returns a deep copy of all balances.
func (w *Wallets) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(Snapshot, len(w.balances))
	for p, byCurrency := range w.balances {
		copied := make(map[Currency]decimal.Decimal, len(byCurrency))
		for c, amount := range byCurrency {
			copied[c] = amount
		}
		out[p] = copied
	}
	return out
}
