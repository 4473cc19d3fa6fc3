package execution

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

// kalshiHeadroom reserves part of the Kalshi balance for fees and rounding.
var kalshiHeadroom = decimal.RequireFromString("0.95")

// SizerConfig holds the sizing policy parameters.
type SizerConfig struct {
	// ShutdownBalance is the floor: a computed size below it becomes zero.
	ShutdownBalance decimal.Decimal
	// MinimumWalletBalance anchors the max-spend guard; zero disables it.
	// Cumulative spend may not exceed MinimumWalletBalance - ShutdownBalance.
	MinimumWalletBalance decimal.Decimal
}

// Sizer computes per-attempt trade sizes. Sub-linear in book depth to cap
// slippage, bounded by wallet budgets, and cut off entirely once cumulative
// spend reaches the max-spend guard. Mutated only from bus handlers.
type Sizer struct {
	config SizerConfig
	spent  decimal.Decimal
}

func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{config: cfg}
}

// TradeSize returns the integer contract count for the attempt, or zero when
// the attempt should be skipped.
func (s *Sizer) TradeSize(opp types.Opportunity, wallets wallet.Snapshot) decimal.Decimal {
	if s.config.MinimumWalletBalance.IsPositive() {
		maxSpend := s.config.MinimumWalletBalance.Sub(s.config.ShutdownBalance)
		if s.spent.GreaterThanOrEqual(maxSpend) {
			return decimal.Zero
		}
	}

	kalshiUSD, ok := wallets.Balance(types.PlatformKalshi, wallet.CurrencyUSD)
	if !ok {
		return decimal.Zero
	}
	polyUSDC, ok := wallets.Balance(types.PlatformPolymarket, wallet.CurrencyUSDCE)
	if !ok {
		return decimal.Zero
	}

	size := decimal.Min(sqrtFloor(opp.PotentialTradeSize), s.walletBudget(kalshiUSD, polyUSDC, opp.KalshiFees))
	if size.LessThan(s.config.ShutdownBalance) {
		return decimal.Zero
	}
	return size
}

// walletBudget is floor(min(0.95*kalshi_usd - ceil(fee), poly_usdc)), never
// negative.
func (s *Sizer) walletBudget(kalshiUSD, polyUSDC, fee decimal.Decimal) decimal.Decimal {
	kalshiBudget := kalshiHeadroom.Mul(kalshiUSD).Sub(fee.Ceil())
	budget := decimal.Min(kalshiBudget, polyUSDC).Floor()
	if budget.IsNegative() {
		return decimal.Zero
	}
	return budget
}

// RecordSpend advances the cumulative-spend counter after a confirmed trade.
func (s *Sizer) RecordSpend(amount decimal.Decimal) {
	s.spent = s.spent.Add(amount)
}

// Spent reports cumulative confirmed spend.
func (s *Sizer) Spent() decimal.Decimal {
	return s.spent
}

// sqrtFloor is the integer square root of the integer part of d.
func sqrtFloor(d decimal.Decimal) decimal.Decimal {
	n := d.Floor().BigInt()
	if n.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).Sqrt(n), 0)
}
