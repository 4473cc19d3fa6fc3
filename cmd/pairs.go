package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/internal/pairs"
	"github.com/fletcherlabs/fletcher/pkg/cache"
	"github.com/fletcherlabs/fletcher/pkg/config"
	"github.com/fletcherlabs/fletcher/pkg/kalshi"
)

//nolint:gochecknoglobals // Cobra boilerplate
var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Resolve the configured market pairs",
	Long: `Resolves every MARKET_PAIRS entry against both venues and prints the
resulting bindings: Kalshi ticker plus Polymarket YES/NO token ids. Pairs
that fail resolution are reported and skipped, exactly as at startup.`,
	RunE: runPairs,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(pairsCmd)
}

func runPairs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pem, err := os.ReadFile(cfg.KalshiPrivateKeyPath)
	if err != nil {
		return fmt.Errorf("read kalshi private key: %w", err)
	}
	kalshiClient, err := kalshi.New(kalshi.Config{
		Demo:          cfg.KalshiDemo,
		KeyID:         cfg.KalshiKeyID,
		PrivateKeyPEM: pem,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		return fmt.Errorf("kalshi client: %w", err)
	}

	metadataCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		return fmt.Errorf("metadata cache: %w", err)
	}
	defer metadataCache.Close()

	resolver := pairs.NewResolver(pairs.Config{
		GammaURL: cfg.PolymarketGammaURL,
		Logger:   zap.NewNop(),
	}, kalshiClient, metadataCache)

	specs := make([]pairs.Spec, 0, len(cfg.MarketPairs))
	for _, p := range cfg.MarketPairs {
		specs = append(specs, pairs.Spec{PolymarketID: p.PolymarketID, KalshiTicker: p.KalshiTicker})
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	resolved, err := resolver.Resolve(ctx, specs)
	if err != nil {
		return fmt.Errorf("resolve pairs: %w", err)
	}

	fmt.Printf("Resolved %d of %d pairs\n\n", len(resolved), len(specs))
	for _, p := range resolved {
		fmt.Printf("market     %s\n", p.MarketID)
		fmt.Printf("  kalshi   %s\n", p.KalshiTicker)
		fmt.Printf("  poly yes %s\n", p.PolyYesTokenID)
		fmt.Printf("  poly no  %s\n\n", p.PolyNoTokenID)
	}
	return nil
}
