package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

const defaultPolymarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// PolymarketConfig configures the Polymarket market-data adapter.
type PolymarketConfig struct {
	WSURL        string
	Cooldown     time.Duration
	DialTimeout  time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger
}

type assetBinding struct {
	marketID string
	outcome  types.Outcome
}

// PolymarketAdapter subscribes to the market channel for every configured
// asset id and republishes normalized snapshot and delta events. YES and NO
// trade as separate assets, so each market binds two ids; prices and sizes
// arrive as decimal strings and are already absolute.
type PolymarketAdapter struct {
	config PolymarketConfig
	logger *zap.Logger

	msgBus *bus.Bus
	assets map[string]assetBinding // asset id -> (market, outcome)
}

func NewPolymarketAdapter(cfg PolymarketConfig) *PolymarketAdapter {
	if cfg.WSURL == "" {
		cfg.WSURL = defaultPolymarketWSURL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PolymarketAdapter{config: cfg, logger: cfg.Logger}
}

// SetMarkets binds asset ids to canonical market ids. Must be called before
// Run.
func (a *PolymarketAdapter) SetMarkets(pairs []types.MarketPair) {
	a.assets = make(map[string]assetBinding, 2*len(pairs))
	for _, p := range pairs {
		a.assets[p.PolyYesTokenID] = assetBinding{marketID: p.MarketID, outcome: types.OutcomeYes}
		a.assets[p.PolyNoTokenID] = assetBinding{marketID: p.MarketID, outcome: types.OutcomeNo}
	}
}

// SetBus attaches the event bus. Must be called before Run.
func (a *PolymarketAdapter) SetBus(b *bus.Bus) {
	a.msgBus = b
}

// Run maintains the connection until ctx is cancelled, reconnecting after a
// fixed cooldown on any error.
func (a *PolymarketAdapter) Run(ctx context.Context) error {
	if a.msgBus == nil || len(a.assets) == 0 {
		return ErrNotConfigured
	}

	for {
		if err := a.session(ctx); err != nil {
			a.logger.Warn("polymarket-session-ended", zap.Error(err))
		}
		connected.WithLabelValues(string(types.PlatformPolymarket)).Set(0)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.config.Cooldown):
		}
		reconnects.WithLabelValues(string(types.PlatformPolymarket)).Inc()
	}
}

func (a *PolymarketAdapter) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: a.config.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, a.config.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	assetIDs := make([]string, 0, len(a.assets))
	for id := range a.assets {
		assetIDs = append(assetIDs, id)
	}
	sub := map[string]interface{}{
		"assets_ids": assetIDs,
		"type":       "market",
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	connected.WithLabelValues(string(types.PlatformPolymarket)).Set(1)
	a.logger.Info("polymarket-streaming", zap.Int("assets", len(assetIDs)))

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
			return err
		}
	}
}

func (a *PolymarketAdapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(defaultWriteWait)
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, deadline)
		}
	}
}

type polymarketLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type polymarketChange struct {
	Price string `json:"price"`
	Side  string `json:"side"` // BUY or SELL
	Size  string `json:"size"`
}

type polymarketMessage struct {
	EventType string             `json:"event_type"`
	AssetID   string             `json:"asset_id"`
	Market    string             `json:"market"`
	Bids      []polymarketLevel  `json:"bids"`
	Asks      []polymarketLevel  `json:"asks"`
	Changes   []polymarketChange `json:"changes"`
}

// handleFrame processes one wire frame. Frames may carry a single message or
// an array; keepalive text frames are skipped.
func (a *PolymarketAdapter) handleFrame(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "PONG" || string(trimmed) == "PING" {
		return nil
	}

	var msgs []polymarketMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			a.logger.Warn("polymarket-malformed-frame", zap.Error(err))
			messagesDropped.WithLabelValues(string(types.PlatformPolymarket), "malformed").Inc()
			return nil
		}
	} else {
		var msg polymarketMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			a.logger.Warn("polymarket-malformed-frame", zap.Error(err))
			messagesDropped.WithLabelValues(string(types.PlatformPolymarket), "malformed").Inc()
			return nil
		}
		msgs = append(msgs, msg)
	}

	for _, msg := range msgs {
		if err := a.handleMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func (a *PolymarketAdapter) handleMessage(msg polymarketMessage) error {
	messagesTotal.WithLabelValues(string(types.PlatformPolymarket), msg.EventType).Inc()

	binding, ok := a.assets[msg.AssetID]
	if !ok {
		if msg.EventType == "book" || msg.EventType == "price_change" {
			messagesDropped.WithLabelValues(string(types.PlatformPolymarket), "unknown-asset").Inc()
		}
		return nil
	}

	switch msg.EventType {
	case "book":
		return a.handleBook(binding, msg)
	case "price_change":
		a.handlePriceChange(binding, msg)
		return nil
	default:
		return nil
	}
}

// handleBook translates a full snapshot. A snapshot that fails to parse
// corrupts the book it replaces, so the session resubscribes.
func (a *PolymarketAdapter) handleBook(binding assetBinding, msg polymarketMessage) error {
	bids, err := parseLevels(msg.Bids)
	if err == nil {
		var asks []types.PriceLevel
		asks, err = parseLevels(msg.Asks)
		if err == nil {
			a.msgBus.Publish(events.OrderBookSnapshotReceived{
				Base:     events.NewBase(),
				Platform: types.PlatformPolymarket,
				MarketID: binding.marketID,
				Outcome:  binding.outcome,
				Bids:     bids,
				Asks:     asks,
			})
			return nil
		}
	}
	a.logger.Warn("polymarket-invalid-book",
		zap.String("asset", msg.AssetID),
		zap.Error(err))
	return fmt.Errorf("%w: invalid book snapshot for asset %s", errResubscribe, msg.AssetID)
}

func (a *PolymarketAdapter) handlePriceChange(binding assetBinding, msg polymarketMessage) {
	for _, change := range msg.Changes {
		price, err := decimal.NewFromString(change.Price)
		if err != nil {
			a.logger.Warn("polymarket-invalid-price", zap.String("price", change.Price))
			messagesDropped.WithLabelValues(string(types.PlatformPolymarket), "malformed").Inc()
			continue
		}
		size, err := decimal.NewFromString(change.Size)
		if err != nil {
			a.logger.Warn("polymarket-invalid-size", zap.String("size", change.Size))
			messagesDropped.WithLabelValues(string(types.PlatformPolymarket), "malformed").Inc()
			continue
		}
		var side types.Side
		switch change.Side {
		case "BUY":
			side = types.SideBid
		case "SELL":
			side = types.SideAsk
		default:
			a.logger.Warn("polymarket-invalid-side", zap.String("side", change.Side))
			messagesDropped.WithLabelValues(string(types.PlatformPolymarket), "malformed").Inc()
			continue
		}
		a.msgBus.Publish(events.OrderBookDeltaReceived{
			Base:     events.NewBase(),
			Platform: types.PlatformPolymarket,
			MarketID: binding.marketID,
			Outcome:  binding.outcome,
			Side:     side,
			Price:    price,
			Size:     size,
		})
	}
}

func parseLevels(levels []polymarketLevel) ([]types.PriceLevel, error) {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", lvl.Price, err)
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", lvl.Size, err)
		}
		out = append(out, types.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}
