package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

// closeCodeSequenceGap is the close code sent when the shared sequence
// counter skips. The server drops the subscription and the reconnect path
// starts from a fresh snapshot.
const closeCodeSequenceGap = 4000

const kalshiWSPath = "/trade-api/ws/v2"

// KalshiConfig configures the Kalshi market-data adapter.
type KalshiConfig struct {
	WSURL            string
	Headers          func(method, path string) (http.Header, error)
	Cooldown         time.Duration
	DialTimeout      time.Duration
	PingInterval     time.Duration
	SubscribeTimeout time.Duration
	Logger           *zap.Logger
}

// KalshiAdapter subscribes to the orderbook_delta channel for every
// configured ticker and republishes normalized snapshot and delta events.
//
// The wire protocol reports integer cents and signed size deltas under a
// single sequence counter shared by the whole subscription. The adapter keeps
// a shadow book per (ticker, wire side) purely to turn signed deltas into the
// absolute sizes the event model carries; both outcomes collapse onto the
// canonical YES book, with the NO side inverted into YES asks.
type KalshiAdapter struct {
	config KalshiConfig
	logger *zap.Logger

	msgBus  *bus.Bus
	markets map[string]string // ticker -> market id

	// mu guards the sequence counter and the shadow books; the sequence
	// check and advance form one critical section.
	mu      sync.Mutex
	lastSeq int64
	shadow  map[string]*shadowBook
}

type shadowBook struct {
	yes map[int64]int64
	no  map[int64]int64
}

func NewKalshiAdapter(cfg KalshiConfig) *KalshiAdapter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &KalshiAdapter{
		config: cfg,
		logger: cfg.Logger,
		shadow: make(map[string]*shadowBook),
	}
}

// SetMarkets binds tickers to canonical market ids. Must be called before Run.
func (a *KalshiAdapter) SetMarkets(pairs []types.MarketPair) {
	a.markets = make(map[string]string, len(pairs))
	for _, p := range pairs {
		a.markets[p.KalshiTicker] = p.MarketID
	}
}

// SetBus attaches the event bus. Must be called before Run.
func (a *KalshiAdapter) SetBus(b *bus.Bus) {
	a.msgBus = b
}

// Run maintains the connection until ctx is cancelled, reconnecting after a
// fixed cooldown on any error.
func (a *KalshiAdapter) Run(ctx context.Context) error {
	if a.msgBus == nil || len(a.markets) == 0 {
		return ErrNotConfigured
	}

	for {
		if err := a.session(ctx); err != nil {
			a.logger.Warn("kalshi-session-ended", zap.Error(err))
		}
		connected.WithLabelValues(string(types.PlatformKalshi)).Set(0)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.config.Cooldown):
		}
		reconnects.WithLabelValues(string(types.PlatformKalshi)).Inc()
	}
}

// session runs one connect-subscribe-stream cycle.
func (a *KalshiAdapter) session(ctx context.Context) error {
	header := http.Header{}
	if a.config.Headers != nil {
		h, err := a.config.Headers(http.MethodGet, kalshiWSPath)
		if err != nil {
			return fmt.Errorf("sign ws headers: %w", err)
		}
		header = h
	}

	dialer := websocket.Dialer{HandshakeTimeout: a.config.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, a.config.WSURL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// The subscription is rebuilt from scratch on every connect, so the
	// sequence counter and shadow books start over too.
	a.resetState()

	if err := a.subscribe(conn); err != nil {
		return err
	}

	connected.WithLabelValues(string(types.PlatformKalshi)).Set(1)
	a.logger.Info("kalshi-streaming", zap.Int("tickers", len(a.markets)))

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	go a.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := a.handleFrame(data); err != nil {
			deadline := time.Now().Add(defaultWriteWait)
			msg := websocket.FormatCloseMessage(closeCodeSequenceGap, err.Error())
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return err
		}
	}
}

// subscribe sends the orderbook_delta subscription and waits for the
// confirmation frame.
func (a *KalshiAdapter) subscribe(conn *websocket.Conn) error {
	tickers := make([]string, 0, len(a.markets))
	for t := range a.markets {
		tickers = append(tickers, t)
	}

	sub := map[string]interface{}{
		"id":  1,
		"cmd": "subscribe",
		"params": map[string]interface{}{
			"channels":       []string{"orderbook_delta"},
			"market_tickers": tickers,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	// The confirmation must arrive before any data frame.
	_ = conn.SetReadDeadline(time.Now().Add(a.config.SubscribeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await subscription confirmation: %w", err)
		}
		var frame kalshiFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			a.logger.Warn("kalshi-malformed-frame", zap.Error(err))
			continue
		}
		switch frame.Type {
		case "subscribed":
			a.logger.Info("kalshi-subscribed", zap.Int("tickers", len(tickers)))
			return nil
		case "error":
			return fmt.Errorf("subscription rejected: %s", string(frame.Msg))
		default:
			return fmt.Errorf("unexpected frame %q before subscription confirmation", frame.Type)
		}
	}
}

func (a *KalshiAdapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(defaultWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (a *KalshiAdapter) resetState() {
	a.mu.Lock()
	a.lastSeq = 0
	a.shadow = make(map[string]*shadowBook)
	a.mu.Unlock()
}

type kalshiFrame struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

type kalshiSnapshotMsg struct {
	MarketTicker string    `json:"market_ticker"`
	Yes          [][]int64 `json:"yes"`
	No           [][]int64 `json:"no"`
}

type kalshiDeltaMsg struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	Delta        int64  `json:"delta"`
	Side         string `json:"side"`
}

// handleFrame processes one wire frame. A returned error means local state is
// corrupt and the caller must close with the gap code and resubscribe.
func (a *KalshiAdapter) handleFrame(data []byte) error {
	var frame kalshiFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		a.logger.Warn("kalshi-malformed-frame", zap.Error(err))
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "malformed").Inc()
		return nil
	}

	messagesTotal.WithLabelValues(string(types.PlatformKalshi), frame.Type).Inc()

	switch frame.Type {
	case "orderbook_snapshot":
		if err := a.checkSeq(frame.Seq); err != nil {
			return err
		}
		return a.handleSnapshot(frame.Msg)
	case "orderbook_delta":
		if err := a.checkSeq(frame.Seq); err != nil {
			return err
		}
		a.handleDelta(frame.Msg)
		return nil
	case "error":
		a.logger.Warn("kalshi-error-frame", zap.String("msg", string(frame.Msg)))
		return nil
	default:
		a.logger.Debug("kalshi-unhandled-frame", zap.String("type", frame.Type))
		return nil
	}
}

// checkSeq enforces the shared counter: the first message must carry seq=1
// and every later one last+1. Check and advance are one critical section.
func (a *KalshiAdapter) checkSeq(seq int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.lastSeq+1 {
		sequenceGaps.Inc()
		a.logger.Warn("kalshi-sequence-gap",
			zap.Int64("expected", a.lastSeq+1),
			zap.Int64("received", seq))
		return fmt.Errorf("%w: sequence gap, expected %d got %d", errResubscribe, a.lastSeq+1, seq)
	}
	a.lastSeq = seq
	return nil
}

func (a *KalshiAdapter) handleSnapshot(raw json.RawMessage) error {
	var snap kalshiSnapshotMsg
	if err := json.Unmarshal(raw, &snap); err != nil || snap.MarketTicker == "" {
		a.logger.Warn("kalshi-invalid-snapshot", zap.Error(err))
		return fmt.Errorf("%w: invalid snapshot", errResubscribe)
	}
	marketID, ok := a.markets[snap.MarketTicker]
	if !ok {
		a.logger.Warn("kalshi-unknown-ticker", zap.String("ticker", snap.MarketTicker))
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "unknown-ticker").Inc()
		return nil
	}

	sb := &shadowBook{yes: make(map[int64]int64), no: make(map[int64]int64)}
	bids := make([]types.PriceLevel, 0, len(snap.Yes))
	asks := make([]types.PriceLevel, 0, len(snap.No))

	for _, lvl := range snap.Yes {
		if len(lvl) != 2 {
			return fmt.Errorf("%w: malformed yes level in snapshot", errResubscribe)
		}
		sb.yes[lvl[0]] = lvl[1]
		bids = append(bids, types.PriceLevel{
			Price: centsToPrice(lvl[0]),
			Size:  decimal.NewFromInt(lvl[1]),
		})
	}
	// The NO side carries NO bids; a resting NO bid at p is a YES ask at 1-p.
	for _, lvl := range snap.No {
		if len(lvl) != 2 {
			return fmt.Errorf("%w: malformed no level in snapshot", errResubscribe)
		}
		sb.no[lvl[0]] = lvl[1]
		asks = append(asks, types.PriceLevel{
			Price: centsToPrice(100 - lvl[0]),
			Size:  decimal.NewFromInt(lvl[1]),
		})
	}

	a.mu.Lock()
	a.shadow[snap.MarketTicker] = sb
	a.mu.Unlock()

	a.msgBus.Publish(events.OrderBookSnapshotReceived{
		Base:     events.NewBase(),
		Platform: types.PlatformKalshi,
		MarketID: marketID,
		Outcome:  types.OutcomeYes,
		Bids:     bids,
		Asks:     asks,
	})
	return nil
}

func (a *KalshiAdapter) handleDelta(raw json.RawMessage) {
	var delta kalshiDeltaMsg
	if err := json.Unmarshal(raw, &delta); err != nil {
		a.logger.Warn("kalshi-invalid-delta", zap.Error(err))
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "malformed").Inc()
		return
	}
	marketID, ok := a.markets[delta.MarketTicker]
	if !ok {
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "unknown-ticker").Inc()
		return
	}
	if delta.Side != "yes" && delta.Side != "no" {
		a.logger.Warn("kalshi-invalid-delta-side", zap.String("side", delta.Side))
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "malformed").Inc()
		return
	}

	a.mu.Lock()
	sb, ok := a.shadow[delta.MarketTicker]
	if !ok {
		a.mu.Unlock()
		a.logger.Warn("kalshi-delta-before-snapshot", zap.String("ticker", delta.MarketTicker))
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "no-snapshot").Inc()
		return
	}
	side := sb.yes
	if delta.Side == "no" {
		side = sb.no
	}
	size := side[delta.Price] + delta.Delta
	if size < 0 {
		a.mu.Unlock()
		a.logger.Warn("kalshi-negative-size-dropped",
			zap.String("ticker", delta.MarketTicker),
			zap.String("side", delta.Side),
			zap.Int64("price", delta.Price),
			zap.Int64("delta", delta.Delta))
		messagesDropped.WithLabelValues(string(types.PlatformKalshi), "negative-size").Inc()
		return
	}
	if size == 0 {
		delete(side, delta.Price)
	} else {
		side[delta.Price] = size
	}
	a.mu.Unlock()

	evt := events.OrderBookDeltaReceived{
		Base:     events.NewBase(),
		Platform: types.PlatformKalshi,
		MarketID: marketID,
		Outcome:  types.OutcomeYes,
		Size:     decimal.NewFromInt(size),
	}
	if delta.Side == "yes" {
		evt.Side = types.SideBid
		evt.Price = centsToPrice(delta.Price)
	} else {
		evt.Side = types.SideAsk
		evt.Price = centsToPrice(100 - delta.Price)
	}
	a.msgBus.Publish(evt)
}

// shadowSize reports the shadow book entry; tests use it to verify delta
// accumulation.
func (a *KalshiAdapter) shadowSize(ticker, side string, price int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	sb, ok := a.shadow[ticker]
	if !ok {
		return 0
	}
	if side == "no" {
		return sb.no[price]
	}
	return sb.yes[price]
}

func centsToPrice(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
