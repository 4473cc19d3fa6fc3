// Package kalshi is a minimal signed HTTP client for the Kalshi trade API:
// order placement and cancellation, balance, and market metadata.
package kalshi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	prodBaseURL = "https://api.elections.kalshi.com"
	demoBaseURL = "https://demo-api.kalshi.co"
	prodWSURL   = "wss://api.elections.kalshi.com/trade-api/ws/v2"
	demoWSURL   = "wss://demo-api.kalshi.co/trade-api/ws/v2"

	apiPrefix = "/trade-api/v2"

	// The venue rate-limits aggressively; space calls at least this far apart.
	minRequestInterval = 100 * time.Millisecond
)

// Config holds client construction parameters. BaseURL/WSURL override the
// environment-derived defaults (used in tests).
type Config struct {
	Demo          bool
	BaseURL       string
	WSURL         string
	KeyID         string
	PrivateKeyPEM []byte
	Logger        *zap.Logger
}

// Client signs every request with the account's RSA key and throttles calls
// to one per 100ms.
type Client struct {
	baseURL string
	wsURL   string
	signer  *signer
	client  *http.Client
	logger  *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

func New(cfg Config) (*Client, error) {
	if cfg.KeyID == "" {
		return nil, errors.New("key id cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	s, err := newSigner(cfg.KeyID, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	baseURL := prodBaseURL
	wsURL := prodWSURL
	if cfg.Demo {
		baseURL = demoBaseURL
		wsURL = demoWSURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	if cfg.WSURL != "" {
		wsURL = cfg.WSURL
	}

	return &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		signer:  s,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  cfg.Logger,
	}, nil
}

// WSURL is the venue WebSocket endpoint for this environment.
func (c *Client) WSURL() string {
	return c.wsURL
}

// RequestHeaders returns the signed auth headers for (method, path). The
// WebSocket dialer uses this with the /trade-api/ws/v2 path.
func (c *Client) RequestHeaders(method, path string) (http.Header, error) {
	return c.signer.headers(method, path, time.Now())
}

// throttle blocks until minRequestInterval has passed since the last call.
func (c *Client) throttle() {
	c.mu.Lock()
	wait := minRequestInterval - time.Since(c.lastRequest)
	if wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	c.throttle()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	headers, err := c.signer.headers(method, path, time.Now())
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("kalshi API error: status %d: %s", resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetBalance returns the account cash balance in dollars. The venue reports
// integer cents.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/portfolio/balance", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(out.Balance).Div(decimal.NewFromInt(100)), nil
}

// Market is the subset of venue market metadata the engine needs.
type Market struct {
	Ticker      string `json:"ticker"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	YesSubTitle string `json:"yes_sub_title"`
	NoSubTitle  string `json:"no_sub_title"`
}

// Active reports whether the market is open for trading.
func (m *Market) Active() bool {
	return m.Status == "active"
}

// GetMarket fetches metadata for one ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	var out struct {
		Market Market `json:"market"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/markets/"+ticker, nil, &out); err != nil {
		return nil, err
	}
	return &out.Market, nil
}
