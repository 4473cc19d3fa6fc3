// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketPairSpec is one configured cross-venue pair before resolution.
type MarketPairSpec struct {
	PolymarketID string
	KalshiTicker string
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string
	DryRun   bool

	// Kalshi API. Demo selects the demo environment instead of production.
	KalshiDemo           bool
	KalshiKeyID          string
	KalshiPrivateKeyPath string

	// Polymarket API
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketProxy      string
	PolymarketSigType    int

	// Polygon chain access for the balance oracle
	PolygonRPCURL string
	WalletAddress string

	// Detection
	ProfitabilityBuffer decimal.Decimal
	StalenessThreshold  time.Duration
	KalshiFeeRate       decimal.Decimal

	// Sizing floors
	ShutdownBalance      decimal.Decimal
	MinimumWalletBalance decimal.Decimal

	// WebSocket
	WSDialTimeout       time.Duration
	WSPingInterval      time.Duration
	WSReconnectCooldown time.Duration

	// Orchestration
	ResetCooldown time.Duration

	// Storage
	StorageMode          string // "postgres" or "console"
	StorageBatchSize     int
	StorageFlushInterval time.Duration
	PostgresHost         string
	PostgresPort         string
	PostgresUser         string
	PostgresPass         string
	PostgresDB           string
	PostgresSSL          string

	// Market pairs, MARKET_PAIRS="polyID:KALSHI-TICKER,polyID2:TICKER2"
	MarketPairs []MarketPairSpec
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	pairs, err := parseMarketPairs(os.Getenv("MARKET_PAIRS"))
	if err != nil {
		return nil, fmt.Errorf("parse MARKET_PAIRS: %w", err)
	}

	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		DryRun:   getBoolOrDefault("DRY_RUN", true),

		KalshiDemo:           strings.EqualFold(getEnvOrDefault("ENVIRONMENT", "DEMO"), "DEMO"),
		KalshiKeyID:          os.Getenv("KALSHI_KEY_ID"),
		KalshiPrivateKeyPath: os.Getenv("KALSHI_PRIVATE_KEY_PATH"),

		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketProxy:      os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolymarketSigType:    getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),

		PolygonRPCURL: getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		WalletAddress: os.Getenv("WALLET_ADDRESS"),

		ProfitabilityBuffer: getDecimalOrDefault("PROFITABILITY_BUFFER", "0.01"),
		StalenessThreshold:  getDurationOrDefault("STALENESS_THRESHOLD", 5*time.Second),
		KalshiFeeRate:       getDecimalOrDefault("KALSHI_FEE_RATE", "0.07"),

		ShutdownBalance:      getDecimalOrDefault("SHUTDOWN_BALANCE", "5"),
		MinimumWalletBalance: getDecimalOrDefault("MINIMUM_WALLET_BALANCE", "50"),

		WSDialTimeout:       getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:      getDurationOrDefault("WS_PING_INTERVAL", 15*time.Second),
		WSReconnectCooldown: getDurationOrDefault("WS_RECONNECT_COOLDOWN", 3*time.Second),

		ResetCooldown: getDurationOrDefault("RESET_COOLDOWN", 5*time.Second),

		StorageMode:          getEnvOrDefault("STORAGE_MODE", "console"),
		StorageBatchSize:     getIntOrDefault("STORAGE_BATCH_SIZE", 10),
		StorageFlushInterval: getDurationOrDefault("STORAGE_FLUSH_INTERVAL", 30*time.Minute),
		PostgresHost:         getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:         getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:         getEnvOrDefault("POSTGRES_USER", "fletcher"),
		PostgresPass:         os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:           getEnvOrDefault("POSTGRES_DB", "fletcher"),
		PostgresSSL:          getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		MarketPairs: pairs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks that configuration values are coherent. Credential checks
// only apply to live runs; a dry run needs market data but places nothing.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}
	if len(c.MarketPairs) == 0 {
		return fmt.Errorf("MARKET_PAIRS cannot be empty")
	}
	if c.KalshiKeyID == "" || c.KalshiPrivateKeyPath == "" {
		return fmt.Errorf("KALSHI_KEY_ID and KALSHI_PRIVATE_KEY_PATH are required")
	}
	if !c.ProfitabilityBuffer.IsPositive() {
		return fmt.Errorf("PROFITABILITY_BUFFER must be positive, got %s", c.ProfitabilityBuffer)
	}
	if c.KalshiFeeRate.IsNegative() {
		return fmt.Errorf("KALSHI_FEE_RATE cannot be negative, got %s", c.KalshiFeeRate)
	}
	if c.MinimumWalletBalance.LessThanOrEqual(c.ShutdownBalance) {
		return fmt.Errorf("MINIMUM_WALLET_BALANCE (%s) must exceed SHUTDOWN_BALANCE (%s)",
			c.MinimumWalletBalance, c.ShutdownBalance)
	}
	if c.StorageMode != "console" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'console' or 'postgres', got %q", c.StorageMode)
	}
	if !c.DryRun {
		if c.PolymarketAPIKey == "" || c.PolymarketSecret == "" || c.PolymarketPassphrase == "" {
			return fmt.Errorf("polymarket API credentials are required for live trading")
		}
		if c.PolymarketPrivateKey == "" {
			return fmt.Errorf("POLYMARKET_PRIVATE_KEY is required for live trading")
		}
	}
	return nil
}

// parseMarketPairs parses "polyID:KALSHI-TICKER" entries separated by commas.
func parseMarketPairs(raw string) ([]MarketPairSpec, error) {
	if raw == "" {
		return nil, nil
	}
	entries := strings.Split(raw, ",")
	pairs := make([]MarketPairSpec, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed pair %q, want polymarketID:kalshiTicker", entry)
		}
		pairs = append(pairs, MarketPairSpec{
			PolymarketID: strings.TrimSpace(parts[0]),
			KalshiTicker: strings.TrimSpace(parts[1]),
		})
	}
	return pairs, nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getDecimalOrDefault(key string, defaultValue string) decimal.Decimal {
	fallback := decimal.RequireFromString(defaultValue)
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return fallback
	}
	return d
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
