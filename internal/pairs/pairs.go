// Package pairs resolves the configured (polymarket id, kalshi ticker) list
// into tradable market pairs, validating both venues before the engine
// subscribes to anything.
package pairs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/pkg/cache"
	"github.com/fletcherlabs/fletcher/pkg/kalshi"
	"github.com/fletcherlabs/fletcher/pkg/types"
)

const defaultGammaURL = "https://gamma-api.polymarket.com"

// Spec is one configured pair before resolution.
type Spec struct {
	PolymarketID string
	KalshiTicker string
}

// kalshiAPI is the slice of the Kalshi client the resolver needs.
type kalshiAPI interface {
	GetMarket(ctx context.Context, ticker string) (*kalshi.Market, error)
}

// Config configures the pair resolver.
type Config struct {
	GammaURL    string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// Resolver turns pair specs into MarketPairs. Gamma lookups are cached so the
// soft-reset path does not refetch metadata for every round.
type Resolver struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
	kalshi     kalshiAPI
	cache      cache.Cache
}

func NewResolver(cfg Config, kalshiClient kalshiAPI, c cache.Cache) *Resolver {
	if cfg.GammaURL == "" {
		cfg.GammaURL = defaultGammaURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Resolver{
		config:     cfg,
		logger:     cfg.Logger,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		kalshi:     kalshiClient,
		cache:      c,
	}
}

// Resolve validates every spec against both venues. Pairs that fail
// resolution are skipped with a warning rather than failing the whole list;
// an error is returned only when no pair survives.
func (r *Resolver) Resolve(ctx context.Context, specs []Spec) ([]types.MarketPair, error) {
	pairs := make([]types.MarketPair, 0, len(specs))
	for _, spec := range specs {
		pair, err := r.resolveOne(ctx, spec)
		if err != nil {
			pairsSkipped.Inc()
			r.logger.Warn("pair-skipped",
				zap.String("polymarket-id", spec.PolymarketID),
				zap.String("kalshi-ticker", spec.KalshiTicker),
				zap.Error(err))
			continue
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no tradable pairs out of %d configured", len(specs))
	}
	pairsResolved.Set(float64(len(pairs)))
	return pairs, nil
}

func (r *Resolver) resolveOne(ctx context.Context, spec Spec) (types.MarketPair, error) {
	market, err := r.kalshi.GetMarket(ctx, spec.KalshiTicker)
	if err != nil {
		return types.MarketPair{}, fmt.Errorf("kalshi market %s: %w", spec.KalshiTicker, err)
	}
	if !market.Active() {
		return types.MarketPair{}, fmt.Errorf("kalshi market %s not active (status %s)", spec.KalshiTicker, market.Status)
	}

	gm, err := r.fetchGammaMarket(ctx, spec.PolymarketID)
	if err != nil {
		return types.MarketPair{}, fmt.Errorf("gamma market %s: %w", spec.PolymarketID, err)
	}
	if gm.Closed || !gm.Active {
		return types.MarketPair{}, fmt.Errorf("polymarket market %s not active", spec.PolymarketID)
	}
	yesToken, noToken, err := gm.tokens()
	if err != nil {
		return types.MarketPair{}, err
	}

	return types.MarketPair{
		MarketID:       spec.PolymarketID,
		KalshiTicker:   spec.KalshiTicker,
		PolymarketID:   spec.PolymarketID,
		PolyYesTokenID: yesToken,
		PolyNoTokenID:  noToken,
	}, nil
}

// gammaMarket is the subset of the Gamma response the resolver reads. The
// outcomes and clobTokenIds fields arrive as JSON strings inside the JSON.
type gammaMarket struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Active     bool   `json:"active"`
	Closed     bool   `json:"closed"`
	Outcomes   string `json:"outcomes"`
	ClobTokens string `json:"clobTokenIds"`
}

// tokens pairs each outcome label with its clob token id and picks YES/NO.
func (g *gammaMarket) tokens() (yes, no string, err error) {
	var outcomes, tokenIDs []string
	if err := json.Unmarshal([]byte(g.Outcomes), &outcomes); err != nil {
		return "", "", fmt.Errorf("parse outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(g.ClobTokens), &tokenIDs); err != nil {
		return "", "", fmt.Errorf("parse clobTokenIds: %w", err)
	}
	if len(outcomes) != len(tokenIDs) {
		return "", "", fmt.Errorf("outcomes/token mismatch: %d vs %d", len(outcomes), len(tokenIDs))
	}
	for i, outcome := range outcomes {
		switch outcome {
		case "Yes", "YES":
			yes = tokenIDs[i]
		case "No", "NO":
			no = tokenIDs[i]
		}
	}
	if yes == "" || no == "" {
		return "", "", fmt.Errorf("market %s is not binary: outcomes %v", g.ID, outcomes)
	}
	return yes, no, nil
}

func (r *Resolver) fetchGammaMarket(ctx context.Context, id string) (*gammaMarket, error) {
	cacheKey := "gamma:" + id
	if r.cache != nil {
		if v, ok := r.cache.Get(cacheKey); ok {
			if gm, ok := v.(*gammaMarket); ok {
				return gm, nil
			}
		}
	}

	url := fmt.Sprintf("%s/markets/%s", r.config.GammaURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gamma status %d", resp.StatusCode)
	}

	var gm gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&gm); err != nil {
		return nil, fmt.Errorf("decode market: %w", err)
	}

	if r.cache != nil {
		r.cache.Set(cacheKey, &gm, r.config.CacheTTL)
	}
	return &gm, nil
}
