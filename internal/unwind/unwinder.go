// Package unwind restores flat exposure after a one-leg failure by selling
// the surviving leg at market.
package unwind

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/internal/gateway"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

// Unwinder handles TradeFailed. A failed unwind leaves naked exposure and is
// treated as fatal; operators reconcile manually.
type Unwinder struct {
	logger   *zap.Logger
	bus      *bus.Bus
	trader   gateway.Trader
	shutdown func(reason string)
}

func New(b *bus.Bus, trader gateway.Trader, shutdown func(reason string), logger *zap.Logger) *Unwinder {
	return &Unwinder{
		logger:   logger,
		bus:      b,
		trader:   trader,
		shutdown: shutdown,
	}
}

// Register wires the unwinder onto the bus.
func (u *Unwinder) Register() {
	u.bus.Subscribe(events.KindTradeFailed, u.HandleTradeFailed)
}

// HandleTradeFailed sells the successful leg at market.
func (u *Unwinder) HandleTradeFailed(ctx context.Context, msg events.Message) error {
	ev, ok := msg.(events.TradeFailed)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}
	leg := ev.SuccessfulLeg

	u.logger.Warn("unwinding-leg",
		zap.String("market", ev.Opportunity.MarketID),
		zap.String("platform", string(leg.Platform)),
		zap.String("size", leg.TradeSize.String()),
		zap.String("failed-platform", string(ev.FailedPlatform)),
		zap.String("failure", ev.ErrorMessage))

	var err error
	switch leg.Platform {
	case types.PlatformKalshi:
		_, err = u.trader.SellKalshiMarket(ctx, leg.Ticker, leg.Outcome, leg.TradeSize.IntPart())
	case types.PlatformPolymarket:
		_, err = u.trader.SellPolymarketMarket(ctx, leg.TokenID, leg.TradeSize)
	default:
		err = fmt.Errorf("unknown platform %q", leg.Platform)
	}

	if err != nil {
		unwindsTotal.WithLabelValues(string(leg.Platform), "failed").Inc()
		u.logger.Error("unwind-failed",
			zap.String("market", ev.Opportunity.MarketID),
			zap.String("platform", string(leg.Platform)),
			zap.Error(err))
		u.shutdown("unwind failed, manual reconciliation required")
		return nil
	}

	unwindsTotal.WithLabelValues(string(leg.Platform), "success").Inc()
	u.logger.Info("unwind-complete",
		zap.String("market", ev.Opportunity.MarketID),
		zap.String("platform", string(leg.Platform)))
	return nil
}
