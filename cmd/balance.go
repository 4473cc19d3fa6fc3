package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fletcherlabs/fletcher/pkg/kalshi"
	"github.com/fletcherlabs/fletcher/pkg/types"
	"github.com/fletcherlabs/fletcher/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check venue balances",
	Long: `Display the balances the engine would trade with:
- Kalshi cash balance (USD)
- Polygon wallet USDC.e (Polymarket collateral)
- Polygon wallet POL (gas)`,
	RunE: runBalance,
}

//nolint:gochecknoglobals // Cobra boilerplate
var balanceRPC string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceRPC, "rpc", "r", "", "Polygon RPC endpoint (default POLYGON_RPC_URL)")
}

func runBalance(cmd *cobra.Command, _ []string) error {
	keyID := os.Getenv("KALSHI_KEY_ID")
	keyPath := os.Getenv("KALSHI_PRIVATE_KEY_PATH")
	address := os.Getenv("WALLET_ADDRESS")
	if keyID == "" || keyPath == "" || address == "" {
		return fmt.Errorf("KALSHI_KEY_ID, KALSHI_PRIVATE_KEY_PATH and WALLET_ADDRESS must be set")
	}
	rpcURL := balanceRPC
	if rpcURL == "" {
		rpcURL = os.Getenv("POLYGON_RPC_URL")
	}
	if rpcURL == "" {
		rpcURL = "https://polygon-rpc.com"
	}

	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("read kalshi private key: %w", err)
	}
	kalshiClient, err := kalshi.New(kalshi.Config{
		Demo:          os.Getenv("ENVIRONMENT") != "PROD",
		KeyID:         keyID,
		PrivateKeyPEM: pem,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		return fmt.Errorf("kalshi client: %w", err)
	}

	oracle := wallet.NewOracle(wallet.OracleConfig{
		RPCURL:  rpcURL,
		Address: common.HexToAddress(address),
		Logger:  zap.NewNop(),
	}, kalshiClient)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	snapshot, err := oracle.FetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("fetch balances: %w", err)
	}

	fmt.Println("Venue balances")
	fmt.Println("==============")
	for _, entry := range []struct {
		platform types.Platform
		currency wallet.Currency
		label    string
	}{
		{types.PlatformKalshi, wallet.CurrencyUSD, "Kalshi USD"},
		{types.PlatformPolymarket, wallet.CurrencyUSDCE, "Polygon USDC.e"},
		{types.PlatformPolymarket, wallet.CurrencyPOL, "Polygon POL"},
	} {
		amount, _ := snapshot.Balance(entry.platform, entry.currency)
		fmt.Printf("%-16s %s\n", entry.label, amount.StringFixed(6))
	}
	return nil
}
