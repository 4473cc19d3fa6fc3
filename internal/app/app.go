// Package app wires the engine together: venue clients, pair resolution, the
// event bus and its handlers, the market-data feeds, storage, and the HTTP
// diagnostics server.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/arbitrage"
	"github.com/fletcherlabs/fletcher/internal/bus"
	"github.com/fletcherlabs/fletcher/internal/events"
	"github.com/fletcherlabs/fletcher/internal/execution"
	"github.com/fletcherlabs/fletcher/internal/gateway"
	"github.com/fletcherlabs/fletcher/internal/ingestion"
	"github.com/fletcherlabs/fletcher/internal/market"
	"github.com/fletcherlabs/fletcher/internal/pairs"
	"github.com/fletcherlabs/fletcher/internal/storage"
	"github.com/fletcherlabs/fletcher/internal/unwind"
	"github.com/fletcherlabs/fletcher/pkg/cache"
	"github.com/fletcherlabs/fletcher/pkg/config"
	"github.com/fletcherlabs/fletcher/pkg/healthprobe"
	"github.com/fletcherlabs/fletcher/pkg/httpserver"
	"github.com/fletcherlabs/fletcher/pkg/kalshi"
	"github.com/fletcherlabs/fletcher/pkg/polymarket"
	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App owns every long-lived component and coordinates startup, the
// post-trade soft reset, and shutdown.
type App struct {
	config *config.Config
	logger *zap.Logger

	msgBus        *bus.Bus
	markets       *market.Manager
	detector      *arbitrage.Detector
	executor      *execution.Executor
	unwinder      *unwind.Unwinder
	batcher       *storage.Batcher
	kalshiFeed    *ingestion.KalshiAdapter
	polyFeed      *ingestion.PolymarketAdapter
	httpServer    *httpserver.Server
	health        *healthprobe.HealthChecker
	wallets       *wallet.Wallets
	pairs         []types.MarketPair
	metadataCache cache.Cache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// shutdownCh carries the first internal shutdown request; later
	// requests are dropped.
	shutdownCh chan string

	// feedMu guards the feed round handles swapped during a soft reset.
	feedMu     sync.Mutex
	feedCancel context.CancelFunc
	feedWG     *sync.WaitGroup
}

// New builds a fully wired engine. Pair resolution and the initial balance
// fetch happen here; a market pair that cannot be resolved is skipped, but an
// unfunded wallet refuses to start.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		config:     cfg,
		logger:     logger,
		shutdownCh: make(chan string, 1),
	}

	kalshiClient, polyClient, err := a.setupClients()
	if err != nil {
		return nil, fmt.Errorf("setup clients: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	if err := a.setupPairs(ctx, kalshiClient); err != nil {
		return nil, fmt.Errorf("resolve pairs: %w", err)
	}
	if err := a.setupWallets(ctx, kalshiClient); err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	a.setupComponents(kalshiClient, polyClient)
	if err := a.setupStorage(); err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	a.setupHTTP()

	return a, nil
}

func (a *App) setupClients() (*kalshi.Client, *polymarket.Client, error) {
	pem, err := os.ReadFile(a.config.KalshiPrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read kalshi private key: %w", err)
	}
	kalshiClient, err := kalshi.New(kalshi.Config{
		Demo:          a.config.KalshiDemo,
		KeyID:         a.config.KalshiKeyID,
		PrivateKeyPEM: pem,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kalshi client: %w", err)
	}

	// A credential-less dry run never signs a Polymarket order, so the
	// client stays nil and the gateway is never exercised.
	var polyClient *polymarket.Client
	if a.config.PolymarketPrivateKey != "" {
		polyClient, err = polymarket.New(polymarket.Config{
			APIKey:        a.config.PolymarketAPIKey,
			Secret:        a.config.PolymarketSecret,
			Passphrase:    a.config.PolymarketPassphrase,
			PrivateKey:    a.config.PolymarketPrivateKey,
			ProxyAddress:  a.config.PolymarketProxy,
			SignatureType: a.config.PolymarketSigType,
			Logger:        a.logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("polymarket client: %w", err)
		}
	}
	return kalshiClient, polyClient, nil
}

// setupPairs resolves every configured pair against both venues. The gamma
// cache outlives resolution so the soft-reset path can reuse it.
func (a *App) setupPairs(ctx context.Context, kalshiClient *kalshi.Client) error {
	metadataCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("metadata cache: %w", err)
	}
	a.metadataCache = metadataCache

	resolver := pairs.NewResolver(pairs.Config{
		GammaURL: a.config.PolymarketGammaURL,
		Logger:   a.logger,
	}, kalshiClient, metadataCache)

	specs := make([]pairs.Spec, 0, len(a.config.MarketPairs))
	for _, p := range a.config.MarketPairs {
		specs = append(specs, pairs.Spec{
			PolymarketID: p.PolymarketID,
			KalshiTicker: p.KalshiTicker,
		})
	}

	resolved, err := resolver.Resolve(ctx, specs)
	if err != nil {
		return err
	}
	a.pairs = resolved
	return nil
}

// setupWallets loads the authoritative balances. Without a wallet address a
// dry run gets simulated balances at the configured minimum; a live run
// always fetches and fails closed.
func (a *App) setupWallets(ctx context.Context, kalshiClient *kalshi.Client) error {
	a.wallets = wallet.NewWallets()

	if a.config.WalletAddress == "" && a.config.DryRun {
		a.logger.Warn("wallet-address-missing-simulating-balances",
			zap.String("balance", a.config.MinimumWalletBalance.String()))
		a.wallets.Set(types.PlatformKalshi, wallet.CurrencyUSD, a.config.MinimumWalletBalance)
		a.wallets.Set(types.PlatformPolymarket, wallet.CurrencyUSDCE, a.config.MinimumWalletBalance)
		a.wallets.Set(types.PlatformPolymarket, wallet.CurrencyPOL, a.config.MinimumWalletBalance)
		return nil
	}

	oracle := wallet.NewOracle(wallet.OracleConfig{
		RPCURL:  a.config.PolygonRPCURL,
		Address: common.HexToAddress(a.config.WalletAddress),
		Logger:  a.logger,
	}, kalshiClient)

	snapshot, err := oracle.FetchBalances(ctx)
	if err != nil {
		return err
	}
	for platform, byCurrency := range snapshot {
		for currency, amount := range byCurrency {
			a.wallets.Set(platform, currency, amount)
		}
	}
	return nil
}

// setupComponents builds the bus and registers handlers in pipeline order:
// book manager, detector, executor, unwinder, then the soft-reset hook.
func (a *App) setupComponents(kalshiClient *kalshi.Client, polyClient *polymarket.Client) {
	a.msgBus = bus.New(a.logger)

	a.markets = market.NewManager(a.msgBus, a.logger)
	a.markets.Register()
	for _, p := range a.pairs {
		a.markets.RegisterMarket(p.MarketID)
	}

	a.detector = arbitrage.New(arbitrage.Config{
		ProfitabilityBuffer: a.config.ProfitabilityBuffer,
		StalenessThreshold:  a.config.StalenessThreshold,
		KalshiFeeRate:       a.config.KalshiFeeRate,
		Logger:              a.logger,
	}, a.msgBus, a.markets, a.wallets, a.pairs)
	a.detector.Register()

	trader := gateway.New(kalshiClient, polyClient, a.logger)
	sizer := execution.NewSizer(execution.SizerConfig{
		ShutdownBalance:      a.config.ShutdownBalance,
		MinimumWalletBalance: a.config.MinimumWalletBalance,
	})
	a.executor = execution.New(execution.Config{
		DryRun: a.config.DryRun,
		Logger: a.logger,
	}, a.msgBus, trader, sizer, a.wallets, a.RequestShutdown)
	a.executor.Register()

	a.unwinder = unwind.New(a.msgBus, trader, a.RequestShutdown, a.logger)
	a.unwinder.Register()

	a.msgBus.Subscribe(events.KindArbitrageTradeSuccessful, a.handleTradeSuccessful)

	a.kalshiFeed = ingestion.NewKalshiAdapter(ingestion.KalshiConfig{
		WSURL:        kalshiClient.WSURL(),
		Headers:      kalshiClient.RequestHeaders,
		Cooldown:     a.config.WSReconnectCooldown,
		DialTimeout:  a.config.WSDialTimeout,
		PingInterval: a.config.WSPingInterval,
		Logger:       a.logger,
	})
	a.kalshiFeed.SetMarkets(a.pairs)
	a.kalshiFeed.SetBus(a.msgBus)

	a.polyFeed = ingestion.NewPolymarketAdapter(ingestion.PolymarketConfig{
		WSURL:        a.config.PolymarketWSURL,
		Cooldown:     a.config.WSReconnectCooldown,
		DialTimeout:  a.config.WSDialTimeout,
		PingInterval: a.config.WSPingInterval,
		Logger:       a.logger,
	})
	a.polyFeed.SetMarkets(a.pairs)
	a.polyFeed.SetBus(a.msgBus)
}

func (a *App) setupStorage() error {
	var sink storage.Sink
	switch a.config.StorageMode {
	case "postgres":
		pgSink, err := storage.NewPostgresSink(&storage.PostgresConfig{
			Host:     a.config.PostgresHost,
			Port:     a.config.PostgresPort,
			User:     a.config.PostgresUser,
			Password: a.config.PostgresPass,
			Database: a.config.PostgresDB,
			SSLMode:  a.config.PostgresSSL,
			Logger:   a.logger,
		})
		if err != nil {
			return err
		}
		sink = pgSink
	default:
		sink = storage.NewConsoleSink(a.logger)
	}

	a.batcher = storage.NewBatcher(storage.BatcherConfig{
		BatchSize:     a.config.StorageBatchSize,
		FlushInterval: a.config.StorageFlushInterval,
		Logger:        a.logger,
	}, sink)
	a.batcher.Register(a.msgBus)
	return nil
}

func (a *App) setupHTTP() {
	a.health = healthprobe.New()
	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          a.config.HTTPPort,
		Logger:        a.logger,
		HealthChecker: a.health,
		Markets:       a.markets,
		Pairs:         a.pairs,
	})
}
