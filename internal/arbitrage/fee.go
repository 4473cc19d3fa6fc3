package arbitrage

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// KalshiFee returns the exchange fee for n contracts at price p:
// rate * n * p * (1 - p), rounded up to the next whole cent. The fee is zero
// outside (0, 1) because the quadratic vanishes at the boundary.
func KalshiFee(contracts, price, rate decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(one) {
		return decimal.Zero
	}
	raw := rate.Mul(contracts).Mul(price).Mul(one.Sub(price))
	return raw.Mul(decimal.NewFromInt(100)).Ceil().Div(decimal.NewFromInt(100))
}
