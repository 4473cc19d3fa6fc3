// Package arbitrage evaluates both buy-both directions on every top-of-book
// change and publishes at most one opportunity per update.
package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/internal/market"
	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

const (
	directionKalshiYes = "kalshi-yes-poly-no"
	directionPolyYes   = "poly-yes-kalshi-no"
)

// Config holds detector tuning.
type Config struct {
	ProfitabilityBuffer decimal.Decimal
	StalenessThreshold  time.Duration
	KalshiFeeRate       decimal.Decimal
	Logger              *zap.Logger
}

// Detector watches BookUpdated events and publishes OpportunityFound when a
// direction clears the profitability buffer. A single in-flight trade is
// enforced through tradeInProgress, which only bus handlers touch; the
// single-consumer bus makes it race-free without a lock.
type Detector struct {
	config  Config
	logger  *zap.Logger
	bus     *bus.Bus
	manager *market.Manager
	wallets *wallet.Wallets
	pairs   map[string]types.MarketPair

	tradeInProgress bool
}

// New creates a detector for the given market pairs.
func New(cfg Config, b *bus.Bus, mgr *market.Manager, wallets *wallet.Wallets, pairs []types.MarketPair) *Detector {
	if cfg.ProfitabilityBuffer.IsZero() {
		cfg.ProfitabilityBuffer = decimal.RequireFromString("0.01")
	}
	if cfg.StalenessThreshold == 0 {
		cfg.StalenessThreshold = 5 * time.Second
	}
	if cfg.KalshiFeeRate.IsZero() {
		cfg.KalshiFeeRate = decimal.RequireFromString("0.07")
	}

	byID := make(map[string]types.MarketPair, len(pairs))
	for _, p := range pairs {
		byID[p.MarketID] = p
	}

	return &Detector{
		config:  cfg,
		logger:  cfg.Logger,
		bus:     b,
		manager: mgr,
		wallets: wallets,
		pairs:   byID,
	}
}

// Register wires the detector's handlers onto the bus.
func (d *Detector) Register() {
	d.bus.Subscribe(events.KindBookUpdated, d.HandleBookUpdated)
	d.bus.Subscribe(events.KindOpportunityFound, d.HandleOpportunityFound)
	d.bus.Subscribe(events.KindTradeAttemptCompleted, d.HandleTradeAttemptCompleted)
}

// HandleBookUpdated evaluates both directions for the updated market.
func (d *Detector) HandleBookUpdated(_ context.Context, msg events.Message) error {
	if d.tradeInProgress {
		return nil
	}
	ev, ok := msg.(events.BookUpdated)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}
	pair, ok := d.pairs[ev.MarketID]
	if !ok {
		return nil
	}

	start := time.Now()
	evaluationsTotal.Inc()
	opp, direction, found := d.evaluate(pair)
	detectionDurationSeconds.Observe(time.Since(start).Seconds())
	if !found {
		return nil
	}

	d.tradeInProgress = true
	tradeInProgressGauge.Set(1)
	opportunitiesFound.WithLabelValues(direction).Inc()
	opportunityProfitBPS.Observe(opp.ProfitMargin.Mul(decimal.NewFromInt(10000)).InexactFloat64())

	d.logger.Info("arbitrage-opportunity-found",
		zap.String("market", opp.MarketID),
		zap.String("direction", direction),
		zap.String("buy-yes-platform", string(opp.BuyYesPlatform)),
		zap.String("buy-yes-price", opp.BuyYesPrice.String()),
		zap.String("buy-no-platform", string(opp.BuyNoPlatform)),
		zap.String("buy-no-price", opp.BuyNoPrice.String()),
		zap.String("profit-margin", opp.ProfitMargin.String()),
		zap.String("potential-size", opp.PotentialTradeSize.String()),
		zap.String("kalshi-fees", opp.KalshiFees.String()))

	d.bus.Publish(events.OpportunityFound{Base: events.NewBase(), Opportunity: opp})
	return nil
}

// HandleOpportunityFound forwards the opportunity to the executor with a
// wallet snapshot.
func (d *Detector) HandleOpportunityFound(_ context.Context, msg events.Message) error {
	ev, ok := msg.(events.OpportunityFound)
	if !ok {
		return fmt.Errorf("unexpected message type %T", msg)
	}
	d.bus.Publish(events.ExecuteTrade{
		Base:        events.NewBase(),
		Opportunity: ev.Opportunity,
		Wallets:     d.wallets.Snapshot(),
	})
	return nil
}

// HandleTradeAttemptCompleted unlocks the detector.
func (d *Detector) HandleTradeAttemptCompleted(_ context.Context, _ events.Message) error {
	d.tradeInProgress = false
	tradeInProgressGauge.Set(0)
	d.logger.Debug("trade-attempt-completed")
	return nil
}

// TradeInProgress reports the in-flight flag. Only meaningful when read from
// a bus handler or after the bus has drained.
func (d *Detector) TradeInProgress() bool {
	return d.tradeInProgress
}

// evaluate checks direction 1 (buy YES on Kalshi, NO on Polymarket) then
// direction 2 (buy YES on Polymarket, NO on Kalshi, derived). The first
// qualifying direction wins.
func (d *Detector) evaluate(pair types.MarketPair) (types.Opportunity, string, bool) {
	kalshiBid, kalshiAsk, kalshiUpdated, ok := d.manager.TopOfBook(pair.MarketID, types.PlatformKalshi, types.OutcomeYes)
	if !ok {
		return types.Opportunity{}, "", false
	}
	_, polyYesAsk, polyYesUpdated, ok := d.manager.TopOfBook(pair.MarketID, types.PlatformPolymarket, types.OutcomeYes)
	if !ok {
		return types.Opportunity{}, "", false
	}
	_, polyNoAsk, polyNoUpdated, ok := d.manager.TopOfBook(pair.MarketID, types.PlatformPolymarket, types.OutcomeNo)
	if !ok {
		return types.Opportunity{}, "", false
	}

	// Direction 1: Kalshi YES ask + Polymarket NO ask.
	if opp, ok := d.checkDirection1(pair, kalshiAsk, polyNoAsk, kalshiUpdated, polyNoUpdated); ok {
		return opp, directionKalshiYes, true
	}

	// Direction 2: Polymarket YES ask + Kalshi NO derived from the YES bid.
	if opp, ok := d.checkDirection2(pair, polyYesAsk, kalshiBid, polyYesUpdated, kalshiUpdated); ok {
		return opp, directionPolyYes, true
	}

	return types.Opportunity{}, "", false
}

func (d *Detector) checkDirection1(pair types.MarketPair, kalshiYesAsk, polyNoAsk *types.PriceLevel, kalshiUpdated, polyUpdated time.Time) (types.Opportunity, bool) {
	if kalshiYesAsk == nil || polyNoAsk == nil || kalshiYesAsk.Size.IsZero() || polyNoAsk.Size.IsZero() {
		evaluationsRejected.WithLabelValues(directionKalshiYes, "no-liquidity").Inc()
		return types.Opportunity{}, false
	}
	if d.stale(kalshiUpdated, polyUpdated) {
		evaluationsRejected.WithLabelValues(directionKalshiYes, "stale-books").Inc()
		return types.Opportunity{}, false
	}

	size := decimal.Min(kalshiYesAsk.Size, polyNoAsk.Size).Floor()
	if size.IsZero() {
		evaluationsRejected.WithLabelValues(directionKalshiYes, "no-liquidity").Inc()
		return types.Opportunity{}, false
	}

	fee := KalshiFee(size, kalshiYesAsk.Price, d.config.KalshiFeeRate)
	margin, ok := d.margin(kalshiYesAsk.Price, polyNoAsk.Price, fee, size)
	if !ok {
		evaluationsRejected.WithLabelValues(directionKalshiYes, "unprofitable").Inc()
		return types.Opportunity{}, false
	}

	return types.Opportunity{
		MarketID:           pair.MarketID,
		BuyYesPlatform:     types.PlatformKalshi,
		BuyYesPrice:        kalshiYesAsk.Price,
		BuyNoPlatform:      types.PlatformPolymarket,
		BuyNoPrice:         polyNoAsk.Price,
		ProfitMargin:       margin,
		PotentialTradeSize: size,
		KalshiTicker:       pair.KalshiTicker,
		PolyYesTokenID:     pair.PolyYesTokenID,
		PolyNoTokenID:      pair.PolyNoTokenID,
		KalshiFees:         fee,
		DetectedAt:         time.Now().UTC(),
	}, true
}

func (d *Detector) checkDirection2(pair types.MarketPair, polyYesAsk, kalshiYesBid *types.PriceLevel, polyUpdated, kalshiUpdated time.Time) (types.Opportunity, bool) {
	if polyYesAsk == nil || kalshiYesBid == nil || polyYesAsk.Size.IsZero() || kalshiYesBid.Size.IsZero() {
		evaluationsRejected.WithLabelValues(directionPolyYes, "no-liquidity").Inc()
		return types.Opportunity{}, false
	}
	if d.stale(polyUpdated, kalshiUpdated) {
		evaluationsRejected.WithLabelValues(directionPolyYes, "stale-books").Inc()
		return types.Opportunity{}, false
	}

	// Buying NO on Kalshi fills against YES bids at the complement price. The
	// YES bid size is used as the fillable size; this mirrors the venue's
	// single-book structure.
	kalshiNoAsk := one.Sub(kalshiYesBid.Price)
	size := decimal.Min(polyYesAsk.Size, kalshiYesBid.Size).Floor()
	if size.IsZero() {
		evaluationsRejected.WithLabelValues(directionPolyYes, "no-liquidity").Inc()
		return types.Opportunity{}, false
	}

	fee := KalshiFee(size, kalshiNoAsk, d.config.KalshiFeeRate)
	margin, ok := d.margin(polyYesAsk.Price, kalshiNoAsk, fee, size)
	if !ok {
		evaluationsRejected.WithLabelValues(directionPolyYes, "unprofitable").Inc()
		return types.Opportunity{}, false
	}

	return types.Opportunity{
		MarketID:           pair.MarketID,
		BuyYesPlatform:     types.PlatformPolymarket,
		BuyYesPrice:        polyYesAsk.Price,
		BuyNoPlatform:      types.PlatformKalshi,
		BuyNoPrice:         kalshiNoAsk,
		ProfitMargin:       margin,
		PotentialTradeSize: size,
		KalshiTicker:       pair.KalshiTicker,
		PolyYesTokenID:     pair.PolyYesTokenID,
		PolyNoTokenID:      pair.PolyNoTokenID,
		KalshiFees:         fee,
		DetectedAt:         time.Now().UTC(),
	}, true
}

// margin returns 1 - (leg1 + leg2 + fee/size) when it clears the buffer.
func (d *Detector) margin(leg1, leg2, fee, size decimal.Decimal) (decimal.Decimal, bool) {
	effectiveCost := leg1.Add(leg2).Add(fee.Div(size))
	if effectiveCost.GreaterThanOrEqual(one.Sub(d.config.ProfitabilityBuffer)) {
		return decimal.Zero, false
	}
	return one.Sub(effectiveCost), true
}

func (d *Detector) stale(a, b time.Time) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff > d.config.StalenessThreshold
}
