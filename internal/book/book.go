// Package book implements the two-sided price ladder backing every
// (venue, market, outcome) order book.
package book

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

// Book holds sorted bid and ask ladders. Bids are kept best-first descending,
// asks best-first ascending. Applying a zero size deletes the level, so no
// zero-size level is ever retained. Crossed books are allowed; venues may
// briefly cross and the detector re-reads state on every update.
//
// Book is not safe for concurrent use; the market state manager owns all
// books and mutates them only from bus handlers.
type Book struct {
	bids       ladder
	asks       ladder
	lastUpdate time.Time
}

func New() *Book {
	return &Book{bids: ladder{descending: true}}
}

// Apply sets or deletes one level. O(log n) search plus slice shift.
func (b *Book) Apply(side types.Side, price, size decimal.Decimal) {
	b.side(side).apply(price, size)
	b.lastUpdate = time.Now()
}

// ApplyMany applies levels in order with identical semantics to Apply.
func (b *Book) ApplyMany(side types.Side, levels []types.PriceLevel) {
	l := b.side(side)
	for _, lvl := range levels {
		l.apply(lvl.Price, lvl.Size)
	}
	b.lastUpdate = time.Now()
}

// BestBid returns the top bid level, if any.
func (b *Book) BestBid() (types.PriceLevel, bool) {
	return b.bids.best()
}

// BestAsk returns the top ask level, if any.
func (b *Book) BestAsk() (types.PriceLevel, bool) {
	return b.asks.best()
}

// Top returns the (best bid, best ask) pair; nil when a side is empty.
func (b *Book) Top() (bid, ask *types.PriceLevel) {
	if lvl, ok := b.bids.best(); ok {
		bid = &lvl
	}
	if lvl, ok := b.asks.best(); ok {
		ask = &lvl
	}
	return bid, ask
}

// Snapshot returns copies of the top depth levels per side for diagnostics.
func (b *Book) Snapshot(depth int) (bids, asks []types.PriceLevel) {
	return b.bids.top(depth), b.asks.top(depth)
}

// Clear empties both ladders.
func (b *Book) Clear() {
	b.bids.levels = nil
	b.asks.levels = nil
	b.lastUpdate = time.Now()
}

// LastUpdate is the time of the most recent mutation.
func (b *Book) LastUpdate() time.Time {
	return b.lastUpdate
}

func (b *Book) side(s types.Side) *ladder {
	if s == types.SideBid {
		return &b.bids
	}
	return &b.asks
}

// ladder is a slice of levels kept sorted best-first.
type ladder struct {
	descending bool
	levels     []types.PriceLevel
}

// search returns the index where price belongs in best-first order.
func (l *ladder) search(price decimal.Decimal) int {
	return sort.Search(len(l.levels), func(i int) bool {
		if l.descending {
			return l.levels[i].Price.LessThanOrEqual(price)
		}
		return l.levels[i].Price.GreaterThanOrEqual(price)
	})
}

func (l *ladder) apply(price, size decimal.Decimal) {
	i := l.search(price)
	found := i < len(l.levels) && l.levels[i].Price.Equal(price)
	switch {
	case size.IsZero():
		if found {
			l.levels = append(l.levels[:i], l.levels[i+1:]...)
		}
	case found:
		l.levels[i].Size = size
	default:
		l.levels = append(l.levels, types.PriceLevel{})
		copy(l.levels[i+1:], l.levels[i:])
		l.levels[i] = types.PriceLevel{Price: price, Size: size}
	}
}

func (l *ladder) best() (types.PriceLevel, bool) {
	if len(l.levels) == 0 {
		return types.PriceLevel{}, false
	}
	return l.levels[0], true
}

func (l *ladder) top(depth int) []types.PriceLevel {
	if depth > len(l.levels) {
		depth = len(l.levels)
	}
	out := make([]types.PriceLevel, depth)
	copy(out, l.levels[:depth])
	return out
}
