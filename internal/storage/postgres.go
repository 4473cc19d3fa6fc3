package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresSink persists trade-attempt records to PostgreSQL.
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresSink opens and pings the database.
func NewPostgresSink(cfg *PostgresConfig) (*PostgresSink, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-sink-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresSink{db: db, logger: cfg.Logger}, nil
}

// NewPostgresSinkWithDB wraps an existing connection; used in tests.
func NewPostgresSinkWithDB(db *sql.DB, logger *zap.Logger) *PostgresSink {
	return &PostgresSink{db: db, logger: logger}
}

const insertRecordQuery = `
	INSERT INTO trade_attempts (
		category, detected_at, market_id,
		buy_yes_platform, buy_yes_price, buy_no_platform, buy_no_price,
		profit_margin, potential_trade_size, trade_size,
		kalshi_ticker, poly_yes_token_id, poly_no_token_id, kalshi_fees,
		kalshi_executed, kalshi_order_id, kalshi_error,
		poly_executed, poly_order_id, poly_error
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)
`

// Insert writes the batch in one transaction; all or nothing so the batcher
// can retry the whole batch.
func (p *PostgresSink) Insert(ctx context.Context, records []Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	for _, r := range records {
		_, err := tx.ExecContext(ctx, insertRecordQuery,
			r.Category, r.DetectedAt, r.MarketID,
			r.BuyYesPlatform, r.BuyYesPrice, r.BuyNoPlatform, r.BuyNoPrice,
			r.ProfitMargin, r.PotentialTradeSize, r.TradeSize,
			r.KalshiTicker, r.PolyYesTokenID, r.PolyNoTokenID, r.KalshiFees,
			r.KalshiExecuted, r.KalshiOrderID, r.KalshiError,
			r.PolyExecuted, r.PolyOrderID, r.PolyError,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	p.logger.Debug("trade-records-inserted", zap.Int("count", len(records)))
	return nil
}

// Close closes the database connection.
func (p *PostgresSink) Close() error {
	p.logger.Info("closing-postgres-sink")
	return p.db.Close()
}
