package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fletcherlabs/fletcher/internal/app"
	"github.com/fletcherlabs/fletcher/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the arbitrage engine",
	Long: `Starts the engine: resolves the configured market pairs against both
venues, loads wallet balances, subscribes to both market-data feeds, and
trades every buy-both opportunity that clears the profitability buffer.

The process stops on SIGINT/SIGTERM, when both legs of an attempt fail, or
when a failed leg cannot be unwound.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return application.Run(cmd.Context())
}
