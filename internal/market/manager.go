// Package market owns all live order books. The manager applies normalized
// snapshot and delta events and emits BookUpdated when and only when
// top-of-book moves.
package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/book"
	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

// Outcomes groups the YES and, where the venue trades it separately, NO book
// for one (market, venue).
type Outcomes struct {
	books map[types.Outcome]*book.Book
}

func newOutcomes(outcomes ...types.Outcome) *Outcomes {
	o := &Outcomes{books: make(map[types.Outcome]*book.Book, len(outcomes))}
	for _, outcome := range outcomes {
		o.books[outcome] = book.New()
	}
	return o
}

// Book returns the book for an outcome, if the venue carries it.
func (o *Outcomes) Book(outcome types.Outcome) (*book.Book, bool) {
	b, ok := o.books[outcome]
	return b, ok
}

func (o *Outcomes) reset() {
	for _, b := range o.books {
		b.Clear()
	}
}

// State is the per-market container of venue books.
type State struct {
	MarketID string
	venues   map[types.Platform]*Outcomes
}

// Outcomes returns the venue's book container.
func (s *State) Outcomes(p types.Platform) (*Outcomes, bool) {
	o, ok := s.venues[p]
	return o, ok
}

// Manager maps market id to per-venue outcome books. Books are mutated only
// from bus handlers; the mutex exists so the diagnostics surface can read
// concurrently with the consumer goroutine.
type Manager struct {
	logger *zap.Logger
	bus    *bus.Bus

	mu     sync.RWMutex
	states map[string]*State
}

func NewManager(b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger,
		bus:    b,
		states: make(map[string]*State),
	}
}

// Register wires the manager's handlers onto the bus.
func (m *Manager) Register() {
	m.bus.Subscribe(events.KindOrderBookSnapshotReceived, m.HandleSnapshot)
	m.bus.Subscribe(events.KindOrderBookDeltaReceived, m.HandleDelta)
}

// RegisterMarket allocates empty books for both venues. Kalshi streams a
// single book so only YES is allocated; Polymarket trades YES and NO as
// separate instruments. Idempotent.
func (m *Manager) RegisterMarket(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[marketID]; ok {
		return
	}
	m.states[marketID] = &State{
		MarketID: marketID,
		venues: map[types.Platform]*Outcomes{
			types.PlatformKalshi:     newOutcomes(types.OutcomeYes),
			types.PlatformPolymarket: newOutcomes(types.OutcomeYes, types.OutcomeNo),
		},
	}
	marketsRegistered.Set(float64(len(m.states)))
}

// Reset clears every book across all markets. Used during soft reset; the
// market registrations themselves survive.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, state := range m.states {
		for _, outcomes := range state.venues {
			outcomes.reset()
		}
	}
	m.logger.Info("market-state-reset", zap.Int("markets", len(m.states)))
}

// HandleSnapshot replaces one outcome book and emits BookUpdated if
// top-of-book moved.
func (m *Manager) HandleSnapshot(_ context.Context, msg events.Message) error {
	snap, ok := msg.(events.OrderBookSnapshotReceived)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.lookupBook(snap.MarketID, snap.Platform, snap.Outcome)
	if err != nil {
		m.logger.Warn("snapshot-for-unknown-book",
			zap.String("market", snap.MarketID),
			zap.String("platform", string(snap.Platform)),
			zap.Error(err))
		return nil
	}

	beforeBid, beforeAsk := b.Top()
	b.Clear()
	b.ApplyMany(types.SideBid, snap.Bids)
	b.ApplyMany(types.SideAsk, snap.Asks)
	afterBid, afterAsk := b.Top()

	updatesApplied.WithLabelValues(string(snap.Platform), "snapshot").Inc()
	m.emitIfTopMoved(snap.MarketID, snap.Platform, beforeBid, beforeAsk, afterBid, afterAsk)
	return nil
}

// HandleDelta applies one absolute-size level change and emits BookUpdated if
// top-of-book moved.
func (m *Manager) HandleDelta(_ context.Context, msg events.Message) error {
	delta, ok := msg.(events.OrderBookDeltaReceived)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.lookupBook(delta.MarketID, delta.Platform, delta.Outcome)
	if err != nil {
		m.logger.Warn("delta-for-unknown-book",
			zap.String("market", delta.MarketID),
			zap.String("platform", string(delta.Platform)),
			zap.Error(err))
		return nil
	}

	beforeBid, beforeAsk := b.Top()
	b.Apply(delta.Side, delta.Price, delta.Size)
	afterBid, afterAsk := b.Top()

	updatesApplied.WithLabelValues(string(delta.Platform), "delta").Inc()
	m.emitIfTopMoved(delta.MarketID, delta.Platform, beforeBid, beforeAsk, afterBid, afterAsk)
	return nil
}

// TopOfBook returns the best bid/ask (nil when a side is empty) and the
// book's last-update time.
func (m *Manager) TopOfBook(marketID string, p types.Platform, outcome types.Outcome) (bid, ask *types.PriceLevel, lastUpdate time.Time, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.lookupBook(marketID, p, outcome)
	if err != nil {
		return nil, nil, time.Time{}, false
	}
	bid, ask = b.Top()
	return bid, ask, b.LastUpdate(), true
}

// BookSnapshot is the diagnostics view of one outcome book.
type BookSnapshot struct {
	Outcome    types.Outcome      `json:"outcome"`
	Bids       []types.PriceLevel `json:"bids"`
	Asks       []types.PriceLevel `json:"asks"`
	LastUpdate time.Time          `json:"last_update"`
}

// VenueSnapshot groups a venue's outcome books.
type VenueSnapshot struct {
	Platform types.Platform `json:"platform"`
	Books    []BookSnapshot `json:"books"`
}

// MarketSnapshot is the diagnostics view of one market.
type MarketSnapshot struct {
	MarketID string          `json:"market_id"`
	Venues   []VenueSnapshot `json:"venues"`
}

// SnapshotAll returns a read-only copy of every market's books at the given
// depth per side.
func (m *Manager) SnapshotAll(depth int) []MarketSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MarketSnapshot, 0, len(m.states))
	for _, state := range m.states {
		ms := MarketSnapshot{MarketID: state.MarketID}
		for _, platform := range []types.Platform{types.PlatformKalshi, types.PlatformPolymarket} {
			outcomes, ok := state.venues[platform]
			if !ok {
				continue
			}
			vs := VenueSnapshot{Platform: platform}
			for _, outcome := range []types.Outcome{types.OutcomeYes, types.OutcomeNo} {
				b, ok := outcomes.Book(outcome)
				if !ok {
					continue
				}
				bids, asks := b.Snapshot(depth)
				vs.Books = append(vs.Books, BookSnapshot{
					Outcome:    outcome,
					Bids:       bids,
					Asks:       asks,
					LastUpdate: b.LastUpdate(),
				})
			}
			ms.Venues = append(ms.Venues, vs)
		}
		out = append(out, ms)
	}
	return out
}

// lookupBook must be called with m.mu held.
func (m *Manager) lookupBook(marketID string, p types.Platform, outcome types.Outcome) (*book.Book, error) {
	state, ok := m.states[marketID]
	if !ok {
		return nil, fmt.Errorf("market %q not registered", marketID)
	}
	outcomes, ok := state.venues[p]
	if !ok {
		return nil, fmt.Errorf("platform %q not tracked for market %q", p, marketID)
	}
	b, ok := outcomes.Book(outcome)
	if !ok {
		return nil, fmt.Errorf("outcome %q not tracked for market %q on %q", outcome, marketID, p)
	}
	return b, nil
}

func (m *Manager) emitIfTopMoved(marketID string, p types.Platform, beforeBid, beforeAsk, afterBid, afterAsk *types.PriceLevel) {
	if levelEqual(beforeBid, afterBid) && levelEqual(beforeAsk, afterAsk) {
		return
	}
	bookUpdatesEmitted.WithLabelValues(string(p)).Inc()
	m.bus.Publish(events.BookUpdated{
		Base:     events.NewBase(),
		MarketID: marketID,
		Platform: p,
	})
}

// levelEqual compares price AND size; any change at the top emits one event.
func levelEqual(a, b *types.PriceLevel) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Price.Equal(b.Price) && a.Size.Equal(b.Size)
}
