package clickhouse

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/models"
)

// Repository handles ClickHouse data operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// candleInsertQuery builds the candle insert for the active driver.
// ClickHouse dedupes overlapping poll batches through ReplacingMergeTree;
// the PostgreSQL fallback needs ON CONFLICT against the unique candle key
// or every poll cycle would stack duplicate rows.
func candleInsertQuery(driverName string) string {
	query := `
		INSERT INTO market_ohlcv
		(timestamp, symbol, timeframe, open, high, low, close, volume, quote_volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if driverName != "clickhouse" {
		query += ` ON CONFLICT (symbol, timeframe, timestamp) DO NOTHING`
	}
	return query
}

// SaveCandles saves OHLCV candles to ClickHouse
func (r *Repository) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	// Rebind keeps the PostgreSQL fallback working when ClickHouse is off
	stmt, err := tx.Preparex(r.db.Rebind(candleInsertQuery(r.db.DriverName())))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, candle := range candles {
		_, err = stmt.ExecContext(ctx,
			candle.Timestamp,
			symbol,
			timeframe,
			candle.Open.InexactFloat64(),
			candle.High.InexactFloat64(),
			candle.Low.InexactFloat64(),
			candle.Close.InexactFloat64(),
			candle.Volume.InexactFloat64(),
			candle.QuoteVolume.InexactFloat64(),
			candle.Trades,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved candles to ClickHouse",
		zap.Int("count", len(candles)),
	)

	return nil
}

// SaveRegimeRecords saves regime classification history to ClickHouse
func (r *Repository) SaveRegimeRecords(ctx context.Context, records []models.RegimeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(r.db.Rebind(`
		INSERT INTO regime_history
		(timestamp, symbol, timeframe, regime, prob_bearish, prob_ranging, prob_bullish,
		 confidence, bias_signal, training_depth, quality_tier, observation_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		_, err = stmt.ExecContext(ctx,
			record.Timestamp,
			record.Symbol,
			record.Timeframe,
			record.Regime,
			record.ProbBearish,
			record.ProbRanging,
			record.ProbBullish,
			record.Confidence,
			record.BiasSignal,
			record.TrainingDepth,
			record.QualityTier,
			record.ObservationCnt,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert regime record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved regime records to ClickHouse",
		zap.Int("count", len(records)),
	)

	return nil
}
