package types

import "github.com/shopspring/decimal"

// PriceLevel is one normalized book level. Prices are in [0,1] units of
// account; a size of zero means "delete this level".
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}
