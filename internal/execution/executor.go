// Package execution places both legs of an opportunity concurrently and
// classifies the outcome.
package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/internal/gateway"
	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

// CategoryBuyBoth labels every record this executor produces.
const CategoryBuyBoth = "buy both"

// Config holds executor settings.
type Config struct {
	// DryRun short-circuits both legs to synthetic placed results; the
	// classification pipeline still runs.
	DryRun bool
	Logger *zap.Logger
}

// ShutdownFunc requests a process shutdown with a reason.
type ShutdownFunc func(reason string)

// Executor handles ExecuteTrade: sizes the attempt, dispatches both legs
// concurrently, stores the result, and emits exactly one follow-up event
// (success, TradeFailed, or shutdown) plus a final TradeAttemptCompleted on
// every code path.
type Executor struct {
	config   Config
	logger   *zap.Logger
	bus      *bus.Bus
	trader   gateway.Trader
	sizer    *Sizer
	wallets  *wallet.Wallets
	shutdown ShutdownFunc
}

func New(cfg Config, b *bus.Bus, trader gateway.Trader, sizer *Sizer, wallets *wallet.Wallets, shutdown ShutdownFunc) *Executor {
	return &Executor{
		config:   cfg,
		logger:   cfg.Logger,
		bus:      b,
		trader:   trader,
		sizer:    sizer,
		wallets:  wallets,
		shutdown: shutdown,
	}
}

// Register wires the executor onto the bus.
func (e *Executor) Register() {
	e.bus.Subscribe(events.KindExecuteTrade, e.HandleExecuteTrade)
}

// HandleExecuteTrade runs one two-leg attempt.
func (e *Executor) HandleExecuteTrade(ctx context.Context, msg events.Message) error {
	ev, ok := msg.(events.ExecuteTrade)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}

	// The detector unlocks on this; it must be the last event of the attempt
	// regardless of the path taken.
	defer e.bus.Publish(events.TradeAttemptCompleted{Base: events.NewBase()})

	opp := ev.Opportunity
	size := e.sizer.TradeSize(opp, ev.Wallets)
	if size.IsZero() {
		attemptsTotal.WithLabelValues("zero-size").Inc()
		e.logger.Info("trade-skipped-zero-size",
			zap.String("market", opp.MarketID),
			zap.String("potential-size", opp.PotentialTradeSize.String()))
		return nil
	}

	e.logger.Info("executing-trade",
		zap.String("market", opp.MarketID),
		zap.String("size", size.String()),
		zap.Bool("dry-run", e.config.DryRun))

	kalshiOrder, kalshiErr, polyOrder, polyErr := e.placeLegs(ctx, opp, size)

	result := events.ArbTradeResult{
		Category:        CategoryBuyBoth,
		Opportunity:     opp,
		TradeSize:       size,
		KalshiOrder:     kalshiOrder,
		KalshiError:     errString(kalshiErr),
		PolymarketOrder: polyOrder,
		PolymarketError: errString(polyErr),
	}
	e.bus.Publish(events.StoreTradeResults{Base: events.NewBase(), Result: result})

	switch {
	case kalshiErr == nil && polyErr == nil:
		attemptsTotal.WithLabelValues("success").Inc()
		e.settleSuccess(opp, size)
		e.bus.Publish(events.ArbitrageTradeSuccessful{
			Base:        events.NewBase(),
			MarketID:    opp.MarketID,
			Opportunity: opp,
		})

	case kalshiErr != nil && polyErr != nil:
		attemptsTotal.WithLabelValues("total-failure").Inc()
		e.logger.Error("both-legs-failed",
			zap.String("market", opp.MarketID),
			zap.NamedError("kalshi-error", kalshiErr),
			zap.NamedError("polymarket-error", polyErr))
		e.shutdown("both trade legs failed")

	case kalshiErr != nil:
		attemptsTotal.WithLabelValues("partial-failure").Inc()
		legErrorsTotal.WithLabelValues(string(types.PlatformKalshi)).Inc()
		e.bus.Publish(events.TradeFailed{
			Base:           events.NewBase(),
			FailedPlatform: types.PlatformKalshi,
			SuccessfulLeg:  e.polyDetails(opp, polyOrder, size),
			Opportunity:    opp,
			ErrorMessage:   kalshiErr.Error(),
		})

	default:
		attemptsTotal.WithLabelValues("partial-failure").Inc()
		legErrorsTotal.WithLabelValues(string(types.PlatformPolymarket)).Inc()
		e.bus.Publish(events.TradeFailed{
			Base:           events.NewBase(),
			FailedPlatform: types.PlatformPolymarket,
			SuccessfulLeg:  e.kalshiDetails(opp, kalshiOrder, size),
			Opportunity:    opp,
			ErrorMessage:   polyErr.Error(),
		})
	}

	return nil
}

// placeLegs dispatches both orders concurrently and waits for both.
func (e *Executor) placeLegs(ctx context.Context, opp types.Opportunity, size decimal.Decimal) (kalshiOrder *types.KalshiOrder, kalshiErr error, polyOrder *types.PolymarketOrder, polyErr error) {
	if e.config.DryRun {
		return e.dryRunLegs(opp, size)
	}

	kalshiOutcome, kalshiPrice := kalshiLeg(opp)
	polyToken, _, polyPrice := polyLeg(opp)
	priceCents := kalshiPrice.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		kalshiOrder, kalshiErr = e.trader.BuyKalshi(ctx, opp.KalshiTicker, kalshiOutcome, size.IntPart(), priceCents)
	}()
	go func() {
		defer wg.Done()
		polyOrder, polyErr = e.trader.BuyPolymarket(ctx, polyToken, polyPrice, size)
	}()
	wg.Wait()
	return kalshiOrder, kalshiErr, polyOrder, polyErr
}

// dryRunLegs fabricates placed results. The synthetic orders carry no order
// id; downstream consumers treat a missing id as absent.
func (e *Executor) dryRunLegs(opp types.Opportunity, size decimal.Decimal) (*types.KalshiOrder, error, *types.PolymarketOrder, error) {
	kalshiOutcome, _ := kalshiLeg(opp)
	polyToken, _, _ := polyLeg(opp)

	e.logger.Info("dry-run-legs-skipped", zap.String("market", opp.MarketID))
	kalshiOrder := &types.KalshiOrder{
		Ticker: opp.KalshiTicker,
		Status: "executed",
		Action: "buy",
		Side:   string(kalshiOutcome),
		Count:  size.IntPart(),
	}
	polyOrder := &types.PolymarketOrder{
		Success: true,
		Status:  "matched",
		TokenID: polyToken,
	}
	return kalshiOrder, nil, polyOrder, nil
}

// settleSuccess debits both wallets optimistically and advances the
// cumulative-spend counter.
func (e *Executor) settleSuccess(opp types.Opportunity, size decimal.Decimal) {
	_, kalshiPrice := kalshiLeg(opp)
	_, _, polyPrice := polyLeg(opp)

	kalshiCost := size.Mul(kalshiPrice).Add(opp.KalshiFees)
	polyCost := size.Mul(polyPrice)
	e.wallets.Debit(types.PlatformKalshi, wallet.CurrencyUSD, kalshiCost)
	e.wallets.Debit(types.PlatformPolymarket, wallet.CurrencyUSDCE, polyCost)
	e.sizer.RecordSpend(kalshiCost.Add(polyCost))

	e.logger.Info("arbitrage-trade-successful",
		zap.String("market", opp.MarketID),
		zap.String("size", size.String()),
		zap.String("kalshi-cost", kalshiCost.String()),
		zap.String("polymarket-cost", polyCost.String()))
}

func (e *Executor) kalshiDetails(opp types.Opportunity, order *types.KalshiOrder, size decimal.Decimal) types.TradeDetails {
	outcome, _ := kalshiLeg(opp)
	details := types.TradeDetails{
		Platform:  types.PlatformKalshi,
		TradeSize: size,
		Outcome:   outcome,
		Ticker:    opp.KalshiTicker,
	}
	if order != nil {
		details.OrderID = order.OrderID
	}
	return details
}

func (e *Executor) polyDetails(opp types.Opportunity, order *types.PolymarketOrder, size decimal.Decimal) types.TradeDetails {
	token, outcome, _ := polyLeg(opp)
	details := types.TradeDetails{
		Platform:  types.PlatformPolymarket,
		TradeSize: size,
		Outcome:   outcome,
		TokenID:   token,
	}
	if order != nil {
		details.OrderID = order.OrderID
	}
	return details
}

// kalshiLeg returns the outcome and price the Kalshi leg buys.
func kalshiLeg(opp types.Opportunity) (types.Outcome, decimal.Decimal) {
	if opp.BuyYesPlatform == types.PlatformKalshi {
		return types.OutcomeYes, opp.BuyYesPrice
	}
	return types.OutcomeNo, opp.BuyNoPrice
}

// polyLeg returns the token, outcome, and price the Polymarket leg buys.
func polyLeg(opp types.Opportunity) (string, types.Outcome, decimal.Decimal) {
	if opp.BuyNoPlatform == types.PlatformPolymarket {
		return opp.PolyNoTokenID, types.OutcomeNo, opp.BuyNoPrice
	}
	return opp.PolyYesTokenID, types.OutcomeYes, opp.BuyYesPrice
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
