package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketPair binds one canonical market id to its venue-specific instrument
// identifiers: the Kalshi ticker and the Polymarket YES/NO token ids.
type MarketPair struct {
	MarketID       string `json:"market_id"`
	KalshiTicker   string `json:"kalshi_ticker"`
	PolymarketID   string `json:"polymarket_id"`
	PolyYesTokenID string `json:"poly_yes_token_id"`
	PolyNoTokenID  string `json:"poly_no_token_id"`
}

// Opportunity is a detected buy-both arbitrage. Immutable once produced.
type Opportunity struct {
	MarketID           string
	BuyYesPlatform     Platform
	BuyYesPrice        decimal.Decimal
	BuyNoPlatform      Platform
	BuyNoPrice         decimal.Decimal
	ProfitMargin       decimal.Decimal
	PotentialTradeSize decimal.Decimal
	KalshiTicker       string
	PolyYesTokenID     string
	PolyNoTokenID      string
	KalshiFees         decimal.Decimal
	DetectedAt         time.Time
}
