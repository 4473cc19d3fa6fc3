package types

import "github.com/shopspring/decimal"

// KalshiOrder is the order object returned by the Kalshi create-order call.
type KalshiOrder struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Status        string `json:"status"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int64  `json:"count"`
	YesPrice      int64  `json:"yes_price,omitempty"`
	NoPrice       int64  `json:"no_price,omitempty"`
}

// PolymarketOrder is the response to a signed CLOB order submission.
type PolymarketOrder struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg"`
	OrderID            string   `json:"orderID"`
	Status             string   `json:"status"`
	TakerAmount        string   `json:"takerAmount"`
	MakingAmount       string   `json:"makingAmount"`
	TransactionsHashes []string `json:"transactionsHashes"`

	// TokenID is set by the client after submission; it is not part of the
	// venue response.
	TokenID string `json:"-"`
}

// TradeDetails describes one successfully executed leg.
type TradeDetails struct {
	Platform  Platform
	TradeSize decimal.Decimal
	OrderID   string
	Outcome   Outcome
	Ticker    string // Kalshi leg
	TokenID   string // Polymarket leg
}
