// Package cmd holds the fletcher CLI.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "fletcher",
	Short: "Cross-venue prediction market arbitrage engine",
	Long: `Fletcher trades binary YES/NO prediction markets across Kalshi and
Polymarket. It mirrors both venues' order books in real time, detects
buy-both opportunities where YES on one venue plus NO on the other costs
less than one dollar, and executes both legs concurrently.

Configuration comes from the environment; a .env file in the working
directory is loaded when present. Runs are dry by default (DRY_RUN=true).`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	cobra.OnInitialize(func() {
		// Missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()
	})
}
