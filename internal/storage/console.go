package storage

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSink logs records instead of persisting them. Used in dry runs and
// local development.
type ConsoleSink struct {
	logger *zap.Logger
}

func NewConsoleSink(logger *zap.Logger) *ConsoleSink {
	return &ConsoleSink{logger: logger}
}

func (c *ConsoleSink) Insert(_ context.Context, records []Record) error {
	for _, r := range records {
		c.logger.Info("trade-record",
			zap.String("category", r.Category),
			zap.Time("detected-at", r.DetectedAt),
			zap.String("market", r.MarketID),
			zap.String("buy-yes", r.BuyYesPlatform+"@"+r.BuyYesPrice),
			zap.String("buy-no", r.BuyNoPlatform+"@"+r.BuyNoPrice),
			zap.String("trade-size", r.TradeSize),
			zap.Bool("kalshi-executed", r.KalshiExecuted),
			zap.String("kalshi-error", r.KalshiError),
			zap.Bool("poly-executed", r.PolyExecuted),
			zap.String("poly-error", r.PolyError))
	}
	return nil
}

func (c *ConsoleSink) Close() error {
	return nil
}
