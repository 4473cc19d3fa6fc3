// Package events defines the tagged message variants carried by the bus.
// Every variant embeds Base and reports a Kind; handlers register per Kind
// and type-assert the concrete variant.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

// Kind tags each message variant.
type Kind string

const (
	KindOrderBookSnapshotReceived Kind = "order-book-snapshot-received"
	KindOrderBookDeltaReceived    Kind = "order-book-delta-received"
	KindBookUpdated               Kind = "book-updated"
	KindOpportunityFound          Kind = "arbitrage-opportunity-found"
	KindExecuteTrade              Kind = "execute-trade"
	KindStoreTradeResults         Kind = "store-trade-results"
	KindTradeFailed               Kind = "trade-failed"
	KindTradeAttemptCompleted     Kind = "trade-attempt-completed"
	KindArbitrageTradeSuccessful  Kind = "arbitrage-trade-successful"
)

// Message is implemented by every event placed on the bus.
type Message interface {
	Kind() Kind
}

// Base carries the identity fields shared by all events.
type Base struct {
	MessageID uuid.UUID
	Timestamp time.Time
}

func NewBase() Base {
	return Base{MessageID: uuid.New(), Timestamp: time.Now().UTC()}
}

// OrderBookSnapshotReceived is a full replacement of one outcome book.
type OrderBookSnapshotReceived struct {
	Base
	Platform types.Platform
	MarketID string
	Outcome  types.Outcome
	Bids     []types.PriceLevel
	Asks     []types.PriceLevel
}

func (OrderBookSnapshotReceived) Kind() Kind { return KindOrderBookSnapshotReceived }

// OrderBookDeltaReceived carries one level change with the absolute
// post-change size.
type OrderBookDeltaReceived struct {
	Base
	Platform types.Platform
	MarketID string
	Outcome  types.Outcome
	Side     types.Side
	Price    decimal.Decimal
	Size     decimal.Decimal
}

func (OrderBookDeltaReceived) Kind() Kind { return KindOrderBookDeltaReceived }

// BookUpdated signals that top-of-book moved for (market, platform).
type BookUpdated struct {
	Base
	MarketID string
	Platform types.Platform
}

func (BookUpdated) Kind() Kind { return KindBookUpdated }

// OpportunityFound announces a qualifying arbitrage.
type OpportunityFound struct {
	Base
	Opportunity types.Opportunity
}

func (OpportunityFound) Kind() Kind { return KindOpportunityFound }

// ExecuteTrade instructs the executor to attempt both legs.
type ExecuteTrade struct {
	Base
	Opportunity types.Opportunity
	Wallets     wallet.Snapshot
}

func (ExecuteTrade) Kind() Kind { return KindExecuteTrade }

// ArbTradeResult is the full outcome of a two-leg attempt. It is the payload
// of StoreTradeResults, not a bus message of its own.
type ArbTradeResult struct {
	Category        string
	Opportunity     types.Opportunity
	TradeSize       decimal.Decimal
	KalshiOrder     *types.KalshiOrder
	KalshiError     string
	PolymarketOrder *types.PolymarketOrder
	PolymarketError string
}

// StoreTradeResults hands a trade attempt to the storage batcher.
type StoreTradeResults struct {
	Base
	Result ArbTradeResult
}

func (StoreTradeResults) Kind() Kind { return KindStoreTradeResults }

// TradeFailed reports exactly one failed leg alongside the surviving one.
type TradeFailed struct {
	Base
	FailedPlatform types.Platform
	SuccessfulLeg  types.TradeDetails
	Opportunity    types.Opportunity
	ErrorMessage   string
}

func (TradeFailed) Kind() Kind { return KindTradeFailed }

// TradeAttemptCompleted unlocks the detector. Published exactly once per
// ExecuteTrade on every code path.
type TradeAttemptCompleted struct {
	Base
}

func (TradeAttemptCompleted) Kind() Kind { return KindTradeAttemptCompleted }

// ArbitrageTradeSuccessful reports a fully filled buy-both round and triggers
// the orchestrator's soft reset.
type ArbitrageTradeSuccessful struct {
	Base
	MarketID    string
	Opportunity types.Opportunity
}

func (ArbitrageTradeSuccessful) Kind() Kind { return KindArbitrageTradeSuccessful }
