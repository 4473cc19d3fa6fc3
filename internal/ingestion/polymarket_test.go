package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/pkg/types"
)

func newTestPolymarketAdapter(t *testing.T) (*PolymarketAdapter, *collector) {
	t.Helper()
	b, c := runCollectorBus(t)
	a := NewPolymarketAdapter(PolymarketConfig{Logger: zap.NewNop()})
	a.SetMarkets(testPairs())
	a.SetBus(b)
	return a, c
}

func TestPolymarketBookSnapshot(t *testing.T) {
	a, c := newTestPolymarketAdapter(t)

	frame := []byte(`[{"event_type":"book","asset_id":"N1","market":"p1",` +
		`"bids":[{"price":"0.35","size":"20"}],"asks":[{"price":"0.40","size":"10"}]}]`)
	if err := a.handleFrame(frame); err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	snap := c.waitSnapshot(t)
	if snap.Platform != types.PlatformPolymarket || snap.MarketID != "m1" || snap.Outcome != types.OutcomeNo {
		t.Fatalf("snapshot identity: %+v", snap)
	}
	if len(snap.Asks) != 1 || !snap.Asks[0].Price.Equal(decimal.RequireFromString("0.40")) {
		t.Fatalf("asks: %+v", snap.Asks)
	}
	if !snap.Bids[0].Size.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("bid size: %s", snap.Bids[0].Size)
	}
}

func TestPolymarketPriceChange(t *testing.T) {
	a, c := newTestPolymarketAdapter(t)

	frame := []byte(`{"event_type":"price_change","asset_id":"Y1","market":"p1",` +
		`"changes":[{"price":"0.50","side":"SELL","size":"8"},{"price":"0.48","side":"BUY","size":"0"}]}`)
	if err := a.handleFrame(frame); err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	first := c.waitDelta(t)
	if first.Outcome != types.OutcomeYes || first.Side != types.SideAsk {
		t.Fatalf("first delta: %+v", first)
	}
	if !first.Size.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("first size: %s", first.Size)
	}

	second := c.waitDelta(t)
	if second.Side != types.SideBid || !second.Size.IsZero() {
		t.Fatalf("second delta: %+v", second)
	}
}

func TestPolymarketKeepaliveSkipped(t *testing.T) {
	a, c := newTestPolymarketAdapter(t)

	for _, frame := range []string{"PONG", "PING", "", "[]"} {
		if err := a.handleFrame([]byte(frame)); err != nil {
			t.Fatalf("keepalive %q: %v", frame, err)
		}
	}
	select {
	case d := <-c.deltas:
		t.Fatalf("unexpected delta: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPolymarketUnknownAssetIgnored(t *testing.T) {
	a, c := newTestPolymarketAdapter(t)

	frame := []byte(`{"event_type":"book","asset_id":"OTHER","market":"p9","bids":[],"asks":[]}`)
	if err := a.handleFrame(frame); err != nil {
		t.Fatalf("unknown asset: %v", err)
	}
	select {
	case s := <-c.snapshots:
		t.Fatalf("unexpected snapshot: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPolymarketCorruptBookRequestsResubscribe(t *testing.T) {
	a, _ := newTestPolymarketAdapter(t)

	frame := []byte(`{"event_type":"book","asset_id":"Y1","market":"p1",` +
		`"bids":[{"price":"garbage","size":"10"}],"asks":[]}`)
	if err := a.handleFrame(frame); !errors.Is(err, errResubscribe) {
		t.Fatalf("expected resubscribe error, got %v", err)
	}
}

func TestPolymarketMalformedChangeDropped(t *testing.T) {
	a, c := newTestPolymarketAdapter(t)

	frame := []byte(`{"event_type":"price_change","asset_id":"Y1","market":"p1",` +
		`"changes":[{"price":"bad","side":"BUY","size":"1"},{"price":"0.50","side":"HOLD","size":"1"},` +
		`{"price":"0.50","side":"BUY","size":"3"}]}`)
	if err := a.handleFrame(frame); err != nil {
		t.Fatalf("handle frame: %v", err)
	}

	// Only the well-formed change survives.
	d := c.waitDelta(t)
	if !d.Price.Equal(decimal.RequireFromString("0.50")) || !d.Size.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("delta: %+v", d)
	}
	select {
	case extra := <-c.deltas:
		t.Fatalf("unexpected extra delta: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPolymarketRunRequiresConfiguration(t *testing.T) {
	a := NewPolymarketAdapter(PolymarketConfig{Logger: zap.NewNop()})
	if err := a.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
