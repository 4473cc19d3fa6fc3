package arbitrage

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/internal/market"
	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

var testPair = types.MarketPair{
	MarketID:       "m1",
	KalshiTicker:   "K1",
	PolymarketID:   "p1",
	PolyYesTokenID: "Y1",
	PolyNoTokenID:  "N1",
}

type detectorFixture struct {
	bus           *bus.Bus
	manager       *market.Manager
	detector      *Detector
	opportunities chan events.OpportunityFound
	executions    chan events.ExecuteTrade
}

func newFixture(t *testing.T, cfg Config) *detectorFixture {
	t.Helper()

	cfg.Logger = zap.NewNop()
	b := bus.New(zap.NewNop())
	f := &detectorFixture{
		bus:           b,
		manager:       market.NewManager(b, zap.NewNop()),
		opportunities: make(chan events.OpportunityFound, 8),
		executions:    make(chan events.ExecuteTrade, 8),
	}
	f.manager.RegisterMarket("m1")

	wallets := wallet.NewWallets()
	wallets.Set(types.PlatformKalshi, wallet.CurrencyUSD, d("1000"))
	wallets.Set(types.PlatformPolymarket, wallet.CurrencyUSDCE, d("1000"))
	f.detector = New(cfg, b, f.manager, wallets, []types.MarketPair{testPair})

	b.Subscribe(events.KindOpportunityFound, func(_ context.Context, msg events.Message) error {
		f.opportunities <- msg.(events.OpportunityFound)
		return nil
	})
	b.Subscribe(events.KindExecuteTrade, func(_ context.Context, msg events.Message) error {
		f.executions <- msg.(events.ExecuteTrade)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	t.Cleanup(cancel)
	return f
}

// feedScenarioBooks loads the books used across tests: Kalshi YES
// bids=[(0.60,10)] asks=[(0.45,10)], Polymarket YES asks=[(0.50,10)],
// NO asks=[(0.40,10)].
func (f *detectorFixture) feedScenarioBooks(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	snaps := []events.OrderBookSnapshotReceived{
		{
			Base: events.NewBase(), Platform: types.PlatformKalshi, MarketID: "m1", Outcome: types.OutcomeYes,
			Bids: []types.PriceLevel{{Price: d("0.60"), Size: d("10")}},
			Asks: []types.PriceLevel{{Price: d("0.45"), Size: d("10")}},
		},
		{
			Base: events.NewBase(), Platform: types.PlatformPolymarket, MarketID: "m1", Outcome: types.OutcomeYes,
			Asks: []types.PriceLevel{{Price: d("0.50"), Size: d("10")}},
		},
		{
			Base: events.NewBase(), Platform: types.PlatformPolymarket, MarketID: "m1", Outcome: types.OutcomeNo,
			Asks: []types.PriceLevel{{Price: d("0.40"), Size: d("10")}},
		},
	}
	for _, snap := range snaps {
		if err := f.manager.HandleSnapshot(ctx, snap); err != nil {
			t.Fatalf("handle snapshot: %v", err)
		}
	}
}

func (f *detectorFixture) bookUpdated() events.BookUpdated {
	return events.BookUpdated{Base: events.NewBase(), MarketID: "m1", Platform: types.PlatformKalshi}
}

func TestDetectorDirection1Wins(t *testing.T) {
	f := newFixture(t, Config{})
	f.feedScenarioBooks(t)

	if err := f.detector.HandleBookUpdated(context.Background(), f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}

	var found events.OpportunityFound
	select {
	case found = <-f.opportunities:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an opportunity")
	}

	opp := found.Opportunity
	if opp.BuyYesPlatform != types.PlatformKalshi || opp.BuyNoPlatform != types.PlatformPolymarket {
		t.Fatalf("direction: buy YES on %s, buy NO on %s", opp.BuyYesPlatform, opp.BuyNoPlatform)
	}
	if !opp.BuyYesPrice.Equal(d("0.45")) || !opp.BuyNoPrice.Equal(d("0.40")) {
		t.Fatalf("prices: YES %s, NO %s", opp.BuyYesPrice, opp.BuyNoPrice)
	}
	if !opp.PotentialTradeSize.Equal(d("10")) {
		t.Fatalf("potential size: got %s, want 10", opp.PotentialTradeSize)
	}
	// fee = ceil_cents(0.07*10*0.45*0.55) = 0.18, margin = 1 - 0.868 = 0.132
	if !opp.KalshiFees.Equal(d("0.18")) {
		t.Fatalf("kalshi fees: got %s, want 0.18", opp.KalshiFees)
	}
	if !opp.ProfitMargin.Equal(d("0.132")) {
		t.Fatalf("profit margin: got %s, want 0.132", opp.ProfitMargin)
	}
	if opp.KalshiTicker != "K1" || opp.PolyYesTokenID != "Y1" || opp.PolyNoTokenID != "N1" {
		t.Fatalf("instrument identifiers not carried: %+v", opp)
	}
}

func TestDetectorSingleInFlight(t *testing.T) {
	f := newFixture(t, Config{})
	f.feedScenarioBooks(t)
	ctx := context.Background()

	if err := f.detector.HandleBookUpdated(ctx, f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}
	select {
	case <-f.opportunities:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an opportunity")
	}
	if !f.detector.TradeInProgress() {
		t.Fatal("trade-in-progress not set")
	}

	// Locked: further updates are ignored.
	if err := f.detector.HandleBookUpdated(ctx, f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}
	select {
	case <-f.opportunities:
		t.Fatal("opportunity emitted while trade in progress")
	case <-time.After(100 * time.Millisecond):
	}

	// TradeAttemptCompleted unlocks.
	if err := f.detector.HandleTradeAttemptCompleted(ctx, events.TradeAttemptCompleted{Base: events.NewBase()}); err != nil {
		t.Fatalf("handle completed: %v", err)
	}
	if err := f.detector.HandleBookUpdated(ctx, f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}
	select {
	case <-f.opportunities:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an opportunity after unlock")
	}
}

func TestDetectorUnprofitableIsSilent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// 0.55 + 0.50 > 0.99 in both directions.
	snaps := []events.OrderBookSnapshotReceived{
		{
			Base: events.NewBase(), Platform: types.PlatformKalshi, MarketID: "m1", Outcome: types.OutcomeYes,
			Bids: []types.PriceLevel{{Price: d("0.45"), Size: d("10")}},
			Asks: []types.PriceLevel{{Price: d("0.55"), Size: d("10")}},
		},
		{
			Base: events.NewBase(), Platform: types.PlatformPolymarket, MarketID: "m1", Outcome: types.OutcomeYes,
			Asks: []types.PriceLevel{{Price: d("0.52"), Size: d("10")}},
		},
		{
			Base: events.NewBase(), Platform: types.PlatformPolymarket, MarketID: "m1", Outcome: types.OutcomeNo,
			Asks: []types.PriceLevel{{Price: d("0.50"), Size: d("10")}},
		},
	}
	for _, snap := range snaps {
		if err := f.manager.HandleSnapshot(ctx, snap); err != nil {
			t.Fatalf("handle snapshot: %v", err)
		}
	}

	if err := f.detector.HandleBookUpdated(ctx, f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}
	select {
	case <-f.opportunities:
		t.Fatal("unprofitable books produced an opportunity")
	case <-time.After(100 * time.Millisecond):
	}
	if f.detector.TradeInProgress() {
		t.Fatal("trade-in-progress set without an opportunity")
	}
}

func TestDetectorZeroSizeSkipsDirection(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// Kalshi YES ask present but empty NO-side liquidity on Polymarket kills
	// direction 1; no Kalshi bid kills direction 2.
	snaps := []events.OrderBookSnapshotReceived{
		{
			Base: events.NewBase(), Platform: types.PlatformKalshi, MarketID: "m1", Outcome: types.OutcomeYes,
			Asks: []types.PriceLevel{{Price: d("0.45"), Size: d("10")}},
		},
		{
			Base: events.NewBase(), Platform: types.PlatformPolymarket, MarketID: "m1", Outcome: types.OutcomeYes,
			Asks: []types.PriceLevel{{Price: d("0.50"), Size: d("10")}},
		},
	}
	for _, snap := range snaps {
		if err := f.manager.HandleSnapshot(ctx, snap); err != nil {
			t.Fatalf("handle snapshot: %v", err)
		}
	}

	if err := f.detector.HandleBookUpdated(ctx, f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}
	select {
	case <-f.opportunities:
		t.Fatal("opportunity emitted without liquidity on both legs")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDetectorStalenessGate(t *testing.T) {
	f := newFixture(t, Config{StalenessThreshold: time.Nanosecond})
	ctx := context.Background()

	err := f.manager.HandleSnapshot(ctx, events.OrderBookSnapshotReceived{
		Base: events.NewBase(), Platform: types.PlatformKalshi, MarketID: "m1", Outcome: types.OutcomeYes,
		Bids: []types.PriceLevel{{Price: d("0.60"), Size: d("10")}},
		Asks: []types.PriceLevel{{Price: d("0.45"), Size: d("10")}},
	})
	if err != nil {
		t.Fatalf("handle snapshot: %v", err)
	}

	// The Polymarket books land measurably later than the 1ns threshold.
	time.Sleep(10 * time.Millisecond)
	for _, outcome := range []types.Outcome{types.OutcomeYes, types.OutcomeNo} {
		err := f.manager.HandleSnapshot(ctx, events.OrderBookSnapshotReceived{
			Base: events.NewBase(), Platform: types.PlatformPolymarket, MarketID: "m1", Outcome: outcome,
			Asks: []types.PriceLevel{{Price: d("0.40"), Size: d("10")}},
		})
		if err != nil {
			t.Fatalf("handle snapshot: %v", err)
		}
	}

	if err := f.detector.HandleBookUpdated(ctx, f.bookUpdated()); err != nil {
		t.Fatalf("handle book updated: %v", err)
	}
	select {
	case <-f.opportunities:
		t.Fatal("stale books produced an opportunity")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOpportunityForwardedWithWallets(t *testing.T) {
	f := newFixture(t, Config{})

	opp := types.Opportunity{MarketID: "m1", KalshiTicker: "K1"}
	err := f.detector.HandleOpportunityFound(context.Background(),
		events.OpportunityFound{Base: events.NewBase(), Opportunity: opp})
	if err != nil {
		t.Fatalf("handle opportunity: %v", err)
	}

	select {
	case exec := <-f.executions:
		if exec.Opportunity.MarketID != "m1" {
			t.Fatalf("opportunity not carried: %+v", exec.Opportunity)
		}
		if got, ok := exec.Wallets.Balance(types.PlatformKalshi, wallet.CurrencyUSD); !ok || !got.Equal(d("1000")) {
			t.Fatalf("wallet snapshot missing kalshi USD: %s ok=%v", got, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an ExecuteTrade")
	}
}
