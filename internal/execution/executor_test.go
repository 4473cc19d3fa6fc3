package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stubTrader records calls and returns configured results.
type stubTrader struct {
	mu sync.Mutex

	kalshiOrder *types.KalshiOrder
	kalshiErr   error
	polyOrder   *types.PolymarketOrder
	polyErr     error

	kalshiCalls []kalshiCall
	polyCalls   []polyCall
	sells       []string
}

type kalshiCall struct {
	ticker     string
	side       types.Outcome
	count      int64
	priceCents int64
}

type polyCall struct {
	tokenID string
	price   decimal.Decimal
	size    decimal.Decimal
}

func (s *stubTrader) BuyKalshi(_ context.Context, ticker string, side types.Outcome, count, priceCents int64) (*types.KalshiOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kalshiCalls = append(s.kalshiCalls, kalshiCall{ticker, side, count, priceCents})
	return s.kalshiOrder, s.kalshiErr
}

func (s *stubTrader) SellKalshiMarket(_ context.Context, ticker string, _ types.Outcome, _ int64) (*types.KalshiOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sells = append(s.sells, "kalshi:"+ticker)
	return s.kalshiOrder, s.kalshiErr
}

func (s *stubTrader) BuyPolymarket(_ context.Context, tokenID string, price, size decimal.Decimal) (*types.PolymarketOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polyCalls = append(s.polyCalls, polyCall{tokenID, price, size})
	return s.polyOrder, s.polyErr
}

func (s *stubTrader) SellPolymarketMarket(_ context.Context, tokenID string, _ decimal.Decimal) (*types.PolymarketOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sells = append(s.sells, "polymarket:"+tokenID)
	return s.polyOrder, s.polyErr
}

type executorFixture struct {
	bus      *bus.Bus
	trader   *stubTrader
	executor *Executor
	wallets  *wallet.Wallets
	sizer    *Sizer

	kinds      chan events.Kind
	stored     chan events.StoreTradeResults
	failed     chan events.TradeFailed
	successful chan events.ArbitrageTradeSuccessful

	shutdownMu      sync.Mutex
	shutdownReasons []string
}

func newExecutorFixture(t *testing.T, cfg Config, trader *stubTrader) *executorFixture {
	t.Helper()
	cfg.Logger = zap.NewNop()

	f := &executorFixture{
		bus:        bus.New(zap.NewNop()),
		trader:     trader,
		wallets:    wallet.NewWallets(),
		sizer:      NewSizer(SizerConfig{}),
		kinds:      make(chan events.Kind, 16),
		stored:     make(chan events.StoreTradeResults, 4),
		failed:     make(chan events.TradeFailed, 4),
		successful: make(chan events.ArbitrageTradeSuccessful, 4),
	}
	f.wallets.Set(types.PlatformKalshi, wallet.CurrencyUSD, d("1000"))
	f.wallets.Set(types.PlatformPolymarket, wallet.CurrencyUSDCE, d("1000"))

	shutdown := func(reason string) {
		f.shutdownMu.Lock()
		f.shutdownReasons = append(f.shutdownReasons, reason)
		f.shutdownMu.Unlock()
	}
	f.executor = New(cfg, f.bus, trader, f.sizer, f.wallets, shutdown)

	record := func(_ context.Context, msg events.Message) error {
		f.kinds <- msg.Kind()
		switch ev := msg.(type) {
		case events.StoreTradeResults:
			f.stored <- ev
		case events.TradeFailed:
			f.failed <- ev
		case events.ArbitrageTradeSuccessful:
			f.successful <- ev
		}
		return nil
	}
	for _, kind := range []events.Kind{
		events.KindStoreTradeResults,
		events.KindTradeFailed,
		events.KindTradeAttemptCompleted,
		events.KindArbitrageTradeSuccessful,
	} {
		f.bus.Subscribe(kind, record)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = f.bus.Run(ctx) }()
	t.Cleanup(cancel)
	return f
}

func (f *executorFixture) execute(t *testing.T, opp types.Opportunity) {
	t.Helper()
	err := f.executor.HandleExecuteTrade(context.Background(), events.ExecuteTrade{
		Base:        events.NewBase(),
		Opportunity: opp,
		Wallets:     f.wallets.Snapshot(),
	})
	if err != nil {
		t.Fatalf("handle execute trade: %v", err)
	}
}

func (f *executorFixture) nextKind(t *testing.T) events.Kind {
	t.Helper()
	select {
	case k := <-f.kinds:
		return k
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func (f *executorFixture) shutdowns() []string {
	f.shutdownMu.Lock()
	defer f.shutdownMu.Unlock()
	return append([]string(nil), f.shutdownReasons...)
}

// direction-1 opportunity: buy YES on Kalshi at 0.45, NO on Polymarket at
// 0.40, potential size 25 so the sqrt sizer lands on 5.
func testOpportunity() types.Opportunity {
	return types.Opportunity{
		MarketID:           "m1",
		BuyYesPlatform:     types.PlatformKalshi,
		BuyYesPrice:        d("0.45"),
		BuyNoPlatform:      types.PlatformPolymarket,
		BuyNoPrice:         d("0.40"),
		ProfitMargin:       d("0.132"),
		PotentialTradeSize: d("25"),
		KalshiTicker:       "K1",
		PolyYesTokenID:     "Y1",
		PolyNoTokenID:      "N1",
		KalshiFees:         d("0.18"),
		DetectedAt:         time.Now().UTC(),
	}
}

func TestExecuteBothLegsSucceed(t *testing.T) {
	trader := &stubTrader{
		kalshiOrder: &types.KalshiOrder{OrderID: "O1", Status: "executed", Ticker: "K1"},
		polyOrder:   &types.PolymarketOrder{Success: true, OrderID: "O2", TokenID: "N1"},
	}
	f := newExecutorFixture(t, Config{}, trader)

	f.execute(t, testOpportunity())

	if got := f.nextKind(t); got != events.KindStoreTradeResults {
		t.Fatalf("first event: got %s, want store-trade-results", got)
	}
	if got := f.nextKind(t); got != events.KindArbitrageTradeSuccessful {
		t.Fatalf("second event: got %s, want arbitrage-trade-successful", got)
	}
	if got := f.nextKind(t); got != events.KindTradeAttemptCompleted {
		t.Fatalf("last event: got %s, want trade-attempt-completed", got)
	}

	stored := <-f.stored
	if stored.Result.Category != CategoryBuyBoth {
		t.Fatalf("category: %q", stored.Result.Category)
	}
	if !stored.Result.TradeSize.Equal(d("5")) {
		t.Fatalf("trade size: got %s, want 5", stored.Result.TradeSize)
	}
	if stored.Result.KalshiError != "" || stored.Result.PolymarketError != "" {
		t.Fatalf("unexpected leg errors: %+v", stored.Result)
	}

	// Leg parameters.
	if len(trader.kalshiCalls) != 1 || len(trader.polyCalls) != 1 {
		t.Fatalf("calls: kalshi %d, poly %d", len(trader.kalshiCalls), len(trader.polyCalls))
	}
	kc := trader.kalshiCalls[0]
	if kc.ticker != "K1" || kc.side != types.OutcomeYes || kc.count != 5 || kc.priceCents != 45 {
		t.Fatalf("kalshi call: %+v", kc)
	}
	pc := trader.polyCalls[0]
	if pc.tokenID != "N1" || !pc.price.Equal(d("0.40")) || !pc.size.Equal(d("5")) {
		t.Fatalf("poly call: %+v", pc)
	}

	// Optimistic debits: kalshi 5*0.45+0.18 = 2.43, poly 5*0.40 = 2.00.
	kalshiBalance, _ := f.wallets.Balance(types.PlatformKalshi, wallet.CurrencyUSD)
	if !kalshiBalance.Equal(d("997.57")) {
		t.Fatalf("kalshi balance: got %s, want 997.57", kalshiBalance)
	}
	polyBalance, _ := f.wallets.Balance(types.PlatformPolymarket, wallet.CurrencyUSDCE)
	if !polyBalance.Equal(d("998")) {
		t.Fatalf("poly balance: got %s, want 998", polyBalance)
	}
	if !f.sizer.Spent().Equal(d("4.43")) {
		t.Fatalf("spent: got %s, want 4.43", f.sizer.Spent())
	}
}

func TestExecuteKalshiLegFails(t *testing.T) {
	trader := &stubTrader{
		kalshiErr: errors.New("insufficient balance"),
		polyOrder: &types.PolymarketOrder{Success: true, OrderID: "O2", TokenID: "N1"},
	}
	f := newExecutorFixture(t, Config{}, trader)

	f.execute(t, testOpportunity())

	if got := f.nextKind(t); got != events.KindStoreTradeResults {
		t.Fatalf("first event: got %s, want store-trade-results", got)
	}
	if got := f.nextKind(t); got != events.KindTradeFailed {
		t.Fatalf("second event: got %s, want trade-failed", got)
	}
	if got := f.nextKind(t); got != events.KindTradeAttemptCompleted {
		t.Fatalf("last event: got %s, want trade-attempt-completed", got)
	}

	stored := <-f.stored
	if stored.Result.KalshiError != "insufficient balance" {
		t.Fatalf("kalshi error: %q", stored.Result.KalshiError)
	}

	failed := <-f.failed
	if failed.FailedPlatform != types.PlatformKalshi {
		t.Fatalf("failed platform: %s", failed.FailedPlatform)
	}
	leg := failed.SuccessfulLeg
	if leg.Platform != types.PlatformPolymarket || leg.OrderID != "O2" || leg.TokenID != "N1" || !leg.TradeSize.Equal(d("5")) {
		t.Fatalf("successful leg: %+v", leg)
	}
	if len(f.shutdowns()) != 0 {
		t.Fatal("partial failure must not shut down")
	}
}

func TestExecuteBothLegsFail(t *testing.T) {
	trader := &stubTrader{
		kalshiErr: errors.New("kalshi down"),
		polyErr:   errors.New("poly down"),
	}
	f := newExecutorFixture(t, Config{}, trader)

	f.execute(t, testOpportunity())

	if got := f.nextKind(t); got != events.KindStoreTradeResults {
		t.Fatalf("first event: got %s, want store-trade-results", got)
	}
	if got := f.nextKind(t); got != events.KindTradeAttemptCompleted {
		t.Fatalf("last event: got %s, want trade-attempt-completed", got)
	}
	select {
	case <-f.failed:
		t.Fatal("total failure must not publish TradeFailed")
	case <-time.After(100 * time.Millisecond):
	}
	if got := f.shutdowns(); len(got) != 1 {
		t.Fatalf("shutdown calls: %v", got)
	}
}

func TestExecuteZeroSizeOnlyCompletes(t *testing.T) {
	trader := &stubTrader{}
	f := newExecutorFixture(t, Config{}, trader)

	// Empty wallet snapshot forces size zero.
	err := f.executor.HandleExecuteTrade(context.Background(), events.ExecuteTrade{
		Base:        events.NewBase(),
		Opportunity: testOpportunity(),
		Wallets:     wallet.Snapshot{},
	})
	if err != nil {
		t.Fatalf("handle execute trade: %v", err)
	}

	if got := f.nextKind(t); got != events.KindTradeAttemptCompleted {
		t.Fatalf("event: got %s, want trade-attempt-completed", got)
	}
	if len(trader.kalshiCalls) != 0 || len(trader.polyCalls) != 0 {
		t.Fatal("zero-size attempt must not place orders")
	}
}

func TestExecuteDryRun(t *testing.T) {
	trader := &stubTrader{}
	f := newExecutorFixture(t, Config{DryRun: true}, trader)

	f.execute(t, testOpportunity())

	if got := f.nextKind(t); got != events.KindStoreTradeResults {
		t.Fatalf("first event: got %s, want store-trade-results", got)
	}
	if got := f.nextKind(t); got != events.KindArbitrageTradeSuccessful {
		t.Fatalf("second event: got %s, want arbitrage-trade-successful", got)
	}
	if got := f.nextKind(t); got != events.KindTradeAttemptCompleted {
		t.Fatalf("last event: got %s, want trade-attempt-completed", got)
	}

	if len(trader.kalshiCalls) != 0 || len(trader.polyCalls) != 0 {
		t.Fatal("dry run must not place orders")
	}
	stored := <-f.stored
	if stored.Result.KalshiOrder == nil || stored.Result.KalshiOrder.OrderID != "" {
		t.Fatalf("dry-run kalshi order should carry no id: %+v", stored.Result.KalshiOrder)
	}
	if stored.Result.PolymarketOrder == nil || !stored.Result.PolymarketOrder.Success {
		t.Fatalf("dry-run poly order: %+v", stored.Result.PolymarketOrder)
	}
}
