// Package gateway adapts the venue clients to the leg-placement operations
// the executor and unwinder need.
package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/pkg/kalshi"
	"github.com/fletcherlabs/fletcher/pkg/polymarket"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

// Trader places and unwinds orders on both venues. The executor and unwinder
// depend on this interface so tests can stub the venues.
type Trader interface {
	// BuyKalshi places a FOK limit buy for count contracts on the given side
	// at priceCents.
	BuyKalshi(ctx context.Context, ticker string, side types.Outcome, count, priceCents int64) (*types.KalshiOrder, error)
	// SellKalshiMarket places a true market sell for count contracts.
	SellKalshiMarket(ctx context.Context, ticker string, side types.Outcome, count int64) (*types.KalshiOrder, error)
	// BuyPolymarket places a FOK limit buy for size tokens at price.
	BuyPolymarket(ctx context.Context, tokenID string, price, size decimal.Decimal) (*types.PolymarketOrder, error)
	// SellPolymarketMarket places a market-like sell for size tokens.
	SellPolymarketMarket(ctx context.Context, tokenID string, size decimal.Decimal) (*types.PolymarketOrder, error)
}

// Gateway is the production Trader backed by the signed venue clients.
type Gateway struct {
	kalshi *kalshi.Client
	poly   *polymarket.Client
	logger *zap.Logger
}

func New(kalshiClient *kalshi.Client, polyClient *polymarket.Client, logger *zap.Logger) *Gateway {
	return &Gateway{kalshi: kalshiClient, poly: polyClient, logger: logger}
}

func (g *Gateway) BuyKalshi(ctx context.Context, ticker string, side types.Outcome, count, priceCents int64) (*types.KalshiOrder, error) {
	req := &kalshi.CreateOrderRequest{
		Action:        kalshi.ActionBuy,
		ClientOrderID: uuid.New().String(),
		Count:         count,
		Ticker:        ticker,
		Type:          kalshi.TypeLimit,
		TimeInForce:   kalshi.TimeInForceFillOrKill,
	}
	if side == types.OutcomeYes {
		req.Side = kalshi.SideYes
		req.YesPrice = &priceCents
	} else {
		req.Side = kalshi.SideNo
		req.NoPrice = &priceCents
	}

	g.logger.Info("kalshi-buy",
		zap.String("ticker", ticker),
		zap.String("side", string(side)),
		zap.Int64("count", count),
		zap.Int64("price-cents", priceCents))
	return g.kalshi.CreateOrder(ctx, req)
}

func (g *Gateway) SellKalshiMarket(ctx context.Context, ticker string, side types.Outcome, count int64) (*types.KalshiOrder, error) {
	req := &kalshi.CreateOrderRequest{
		Action:        kalshi.ActionSell,
		ClientOrderID: uuid.New().String(),
		Count:         count,
		Ticker:        ticker,
		Type:          kalshi.TypeMarket,
	}
	if side == types.OutcomeYes {
		req.Side = kalshi.SideYes
	} else {
		req.Side = kalshi.SideNo
	}

	g.logger.Info("kalshi-market-sell",
		zap.String("ticker", ticker),
		zap.String("side", string(side)),
		zap.Int64("count", count))
	return g.kalshi.CreateOrder(ctx, req)
}

func (g *Gateway) BuyPolymarket(ctx context.Context, tokenID string, price, size decimal.Decimal) (*types.PolymarketOrder, error) {
	g.logger.Info("polymarket-buy",
		zap.String("token", tokenID),
		zap.String("price", price.String()),
		zap.String("size", size.String()))
	return g.poly.PlaceOrder(ctx, tokenID, price, size, polymarket.SideBuy)
}

func (g *Gateway) SellPolymarketMarket(ctx context.Context, tokenID string, size decimal.Decimal) (*types.PolymarketOrder, error) {
	g.logger.Info("polymarket-market-sell",
		zap.String("token", tokenID),
		zap.String("size", size.String()))
	return g.poly.PlaceMarketOrder(ctx, tokenID, size, polymarket.SideSell)
}
