package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

func testPairs() []types.MarketPair {
	return []types.MarketPair{{
		MarketID:       "m1",
		KalshiTicker:   "K1",
		PolymarketID:   "p1",
		PolyYesTokenID: "Y1",
		PolyNoTokenID:  "N1",
	}}
}

type collector struct {
	snapshots chan events.OrderBookSnapshotReceived
	deltas    chan events.OrderBookDeltaReceived
}

func runCollectorBus(t *testing.T) (*bus.Bus, *collector) {
	t.Helper()
	b := bus.New(zap.NewNop())
	c := &collector{
		snapshots: make(chan events.OrderBookSnapshotReceived, 16),
		deltas:    make(chan events.OrderBookDeltaReceived, 16),
	}
	b.Subscribe(events.KindOrderBookSnapshotReceived, func(_ context.Context, msg events.Message) error {
		c.snapshots <- msg.(events.OrderBookSnapshotReceived)
		return nil
	})
	b.Subscribe(events.KindOrderBookDeltaReceived, func(_ context.Context, msg events.Message) error {
		c.deltas <- msg.(events.OrderBookDeltaReceived)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = b.Run(ctx) }()
	t.Cleanup(cancel)
	return b, c
}

func (c *collector) waitSnapshot(t *testing.T) events.OrderBookSnapshotReceived {
	t.Helper()
	select {
	case s := <-c.snapshots:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot event")
		return events.OrderBookSnapshotReceived{}
	}
}

func (c *collector) waitDelta(t *testing.T) events.OrderBookDeltaReceived {
	t.Helper()
	select {
	case d := <-c.deltas:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delta event")
		return events.OrderBookDeltaReceived{}
	}
}

func newTestKalshiAdapter(t *testing.T) (*KalshiAdapter, *collector) {
	t.Helper()
	b, c := runCollectorBus(t)
	a := NewKalshiAdapter(KalshiConfig{Logger: zap.NewNop()})
	a.SetMarkets(testPairs())
	a.SetBus(b)
	return a, c
}

func kalshiSnapshotFrame(seq int64, yes, no string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"orderbook_snapshot","seq":%d,"msg":{"market_ticker":"K1","yes":%s,"no":%s}}`,
		seq, yes, no))
}

func kalshiDeltaFrame(seq, price, delta int64, side string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"orderbook_delta","seq":%d,"msg":{"market_ticker":"K1","price":%d,"delta":%d,"side":%q}}`,
		seq, price, delta, side))
}

func TestKalshiSnapshotNormalization(t *testing.T) {
	a, c := newTestKalshiAdapter(t)

	// YES bids at 60 cents; NO bids at 55 cents become YES asks at 45.
	if err := a.handleFrame(kalshiSnapshotFrame(1, `[[60,10]]`, `[[55,10]]`)); err != nil {
		t.Fatalf("handle snapshot: %v", err)
	}

	snap := c.waitSnapshot(t)
	if snap.Platform != types.PlatformKalshi || snap.MarketID != "m1" || snap.Outcome != types.OutcomeYes {
		t.Fatalf("snapshot identity: %+v", snap)
	}
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(decimal.RequireFromString("0.60")) {
		t.Fatalf("bids: %+v", snap.Bids)
	}
	if len(snap.Asks) != 1 || !snap.Asks[0].Price.Equal(decimal.RequireFromString("0.45")) {
		t.Fatalf("asks: %+v", snap.Asks)
	}
	if !snap.Asks[0].Size.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("ask size: %s", snap.Asks[0].Size)
	}
}

func TestKalshiDeltaNormalization(t *testing.T) {
	a, c := newTestKalshiAdapter(t)

	if err := a.handleFrame(kalshiSnapshotFrame(1, `[[80,100]]`, `[]`)); err != nil {
		t.Fatalf("handle snapshot: %v", err)
	}
	c.waitSnapshot(t)

	if err := a.handleFrame(kalshiDeltaFrame(2, 80, -40, "yes")); err != nil {
		t.Fatalf("handle delta: %v", err)
	}

	if got := a.shadowSize("K1", "yes", 80); got != 60 {
		t.Fatalf("shadow size: %d", got)
	}
	delta := c.waitDelta(t)
	if delta.Side != types.SideBid || !delta.Price.Equal(decimal.RequireFromString("0.80")) {
		t.Fatalf("delta level: %+v", delta)
	}
	if !delta.Size.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("delta size: %s", delta.Size)
	}
}

func TestKalshiNoSideDeltaBecomesAsk(t *testing.T) {
	a, c := newTestKalshiAdapter(t)

	if err := a.handleFrame(kalshiSnapshotFrame(1, `[]`, `[[55,10]]`)); err != nil {
		t.Fatalf("handle snapshot: %v", err)
	}
	c.waitSnapshot(t)

	if err := a.handleFrame(kalshiDeltaFrame(2, 55, 5, "no")); err != nil {
		t.Fatalf("handle delta: %v", err)
	}

	delta := c.waitDelta(t)
	if delta.Side != types.SideAsk || !delta.Price.Equal(decimal.RequireFromString("0.45")) {
		t.Fatalf("delta level: %+v", delta)
	}
	if !delta.Size.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("delta size: %s", delta.Size)
	}
}

func TestKalshiSequenceGapRequestsResubscribe(t *testing.T) {
	a, c := newTestKalshiAdapter(t)

	if err := a.handleFrame(kalshiSnapshotFrame(1, `[[60,10]]`, `[]`)); err != nil {
		t.Fatalf("baseline: %v", err)
	}
	c.waitSnapshot(t)

	err := a.handleFrame(kalshiDeltaFrame(3, 60, 1, "yes"))
	if !errors.Is(err, errResubscribe) {
		t.Fatalf("expected resubscribe error, got %v", err)
	}

	// The reconnect path resets the counter and shadow, so a fresh
	// subscription starting at seq=1 is accepted.
	a.resetState()
	if err := a.handleFrame(kalshiSnapshotFrame(1, `[[61,5]]`, `[]`)); err != nil {
		t.Fatalf("post-reset snapshot: %v", err)
	}
	c.waitSnapshot(t)
	if got := a.shadowSize("K1", "yes", 60); got != 0 {
		t.Fatalf("shadow not cleared: %d", got)
	}
}

func TestKalshiFirstMessageMustBeSeqOne(t *testing.T) {
	a, _ := newTestKalshiAdapter(t)

	err := a.handleFrame(kalshiSnapshotFrame(2, `[[60,10]]`, `[]`))
	if !errors.Is(err, errResubscribe) {
		t.Fatalf("expected resubscribe error, got %v", err)
	}
}

func TestKalshiNegativeSizeDropped(t *testing.T) {
	a, c := newTestKalshiAdapter(t)

	if err := a.handleFrame(kalshiSnapshotFrame(1, `[[80,10]]`, `[]`)); err != nil {
		t.Fatalf("handle snapshot: %v", err)
	}
	c.waitSnapshot(t)

	if err := a.handleFrame(kalshiDeltaFrame(2, 80, -40, "yes")); err != nil {
		t.Fatalf("handle delta: %v", err)
	}

	// Shadow unchanged, no event emitted, but the sequence still advanced.
	if got := a.shadowSize("K1", "yes", 80); got != 10 {
		t.Fatalf("shadow advanced on dropped delta: %d", got)
	}
	select {
	case d := <-c.deltas:
		t.Fatalf("unexpected delta event: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
	if err := a.handleFrame(kalshiDeltaFrame(3, 80, -5, "yes")); err != nil {
		t.Fatalf("next delta: %v", err)
	}
	if d := c.waitDelta(t); !d.Size.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("size after valid delta: %s", d.Size)
	}
}

func TestKalshiInvalidSnapshotRequestsResubscribe(t *testing.T) {
	a, _ := newTestKalshiAdapter(t)

	err := a.handleFrame([]byte(`{"type":"orderbook_snapshot","seq":1,"msg":{"yes":[[60,10]]}}`))
	if !errors.Is(err, errResubscribe) {
		t.Fatalf("expected resubscribe error, got %v", err)
	}
}

func TestKalshiMalformedFrameIsDropped(t *testing.T) {
	a, _ := newTestKalshiAdapter(t)

	if err := a.handleFrame([]byte(`not json`)); err != nil {
		t.Fatalf("malformed frame must not kill the session: %v", err)
	}
	if err := a.handleFrame(kalshiSnapshotFrame(1, `[[60,10]]`, `[]`)); err != nil {
		t.Fatalf("sequence must not advance on malformed frames: %v", err)
	}
}

func TestKalshiUnknownTickerIgnored(t *testing.T) {
	a, c := newTestKalshiAdapter(t)

	frame := []byte(`{"type":"orderbook_snapshot","seq":1,"msg":{"market_ticker":"OTHER","yes":[[60,10]],"no":[]}}`)
	if err := a.handleFrame(frame); err != nil {
		t.Fatalf("unknown ticker: %v", err)
	}
	select {
	case s := <-c.snapshots:
		t.Fatalf("unexpected snapshot: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestKalshiRunRequiresConfiguration(t *testing.T) {
	a := NewKalshiAdapter(KalshiConfig{Logger: zap.NewNop()})
	if err := a.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	a.SetMarkets(testPairs())
	if err := a.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured without bus, got %v", err)
	}
}
