package storage

import (
	"context"
	"time"

	"github.com/fletcherlabs/fletcher/internal/events"
)

// Record is the flattened, serializable form of one trade attempt. Decimals
// are carried as strings and timestamps as UTC so the sink never sees binary
// floating point.
type Record struct {
	Category           string
	DetectedAt         time.Time
	MarketID           string
	BuyYesPlatform     string
	BuyYesPrice        string
	BuyNoPlatform      string
	BuyNoPrice         string
	ProfitMargin       string
	PotentialTradeSize string
	TradeSize          string
	KalshiTicker       string
	PolyYesTokenID     string
	PolyNoTokenID      string
	KalshiFees         string
	KalshiExecuted     bool
	KalshiOrderID      string
	KalshiError        string
	PolyExecuted       bool
	PolyOrderID        string
	PolyError          string
}

// NewRecord flattens a trade result for persistence.
func NewRecord(result events.ArbTradeResult) Record {
	opp := result.Opportunity
	r := Record{
		Category:           result.Category,
		DetectedAt:         opp.DetectedAt.UTC(),
		MarketID:           opp.MarketID,
		BuyYesPlatform:     string(opp.BuyYesPlatform),
		BuyYesPrice:        opp.BuyYesPrice.String(),
		BuyNoPlatform:      string(opp.BuyNoPlatform),
		BuyNoPrice:         opp.BuyNoPrice.String(),
		ProfitMargin:       opp.ProfitMargin.String(),
		PotentialTradeSize: opp.PotentialTradeSize.String(),
		TradeSize:          result.TradeSize.String(),
		KalshiTicker:       opp.KalshiTicker,
		PolyYesTokenID:     opp.PolyYesTokenID,
		PolyNoTokenID:      opp.PolyNoTokenID,
		KalshiFees:         opp.KalshiFees.String(),
		KalshiError:        result.KalshiError,
		PolyError:          result.PolymarketError,
	}
	if result.KalshiOrder != nil {
		r.KalshiExecuted = result.KalshiError == ""
		r.KalshiOrderID = result.KalshiOrder.OrderID
	}
	if result.PolymarketOrder != nil {
		r.PolyExecuted = result.PolymarketError == ""
		r.PolyOrderID = result.PolymarketOrder.OrderID
	}
	return r
}

// Sink persists batches of trade-attempt records. Idempotency is not
// assumed; duplicates are possible across restarts.
type Sink interface {
	Insert(ctx context.Context, records []Record) error
	Close() error
}
