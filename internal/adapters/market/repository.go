package market

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/regime-bot/pkg/models"
)

// Repository reads candle history used for training and inference.
// It works against the ClickHouse handle, or the PostgreSQL one when
// ClickHouse is disabled (both queries use ? placeholders via Rebind).
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new market repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetCandles retrieves the most recent candles, returned oldest first
func (r *Repository) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	query := r.db.Rebind(`
		SELECT timestamp, symbol, timeframe, open, high, low, close, volume, quote_volume, trades
		FROM market_ohlcv
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryxContext(ctx, query, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	candles := []models.Candle{}
	for rows.Next() {
		candle, err := scanCandle(rows)
		if err != nil {
			continue
		}
		candles = append(candles, candle)
	}

	// Reverse to chronological order (oldest first)
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// GetCandleCount returns number of stored candles for symbol/timeframe
func (r *Repository) GetCandleCount(ctx context.Context, symbol, timeframe string) (int, error) {
	query := r.db.Rebind(`
		SELECT COUNT(*)
		FROM market_ohlcv
		WHERE symbol = ? AND timeframe = ?
	`)

	var count int
	err := r.db.GetContext(ctx, &count, query, symbol, timeframe)
	return count, err
}

// GetLatestCandle returns the most recent candle
func (r *Repository) GetLatestCandle(ctx context.Context, symbol, timeframe string) (*models.Candle, error) {
	query := r.db.Rebind(`
		SELECT timestamp, symbol, timeframe, open, high, low, close, volume, quote_volume, trades
		FROM market_ohlcv
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`)

	row := r.db.QueryRowxContext(ctx, query, symbol, timeframe)

	var candle models.Candle
	var open, high, low, close, volume, quoteVol float64
	var trades int

	err := row.Scan(
		&candle.Timestamp,
		&candle.Symbol,
		&candle.Timeframe,
		&open,
		&high,
		&low,
		&close,
		&volume,
		&quoteVol,
		&trades,
	)
	if err != nil {
		return nil, err
	}

	candle.Open = models.NewDecimal(open)
	candle.High = models.NewDecimal(high)
	candle.Low = models.NewDecimal(low)
	candle.Close = models.NewDecimal(close)
	candle.Volume = models.NewDecimal(volume)
	candle.QuoteVolume = models.NewDecimal(quoteVol)
	candle.Trades = trades

	return &candle, nil
}

func scanCandle(rows *sqlx.Rows) (models.Candle, error) {
	var candle models.Candle
	var open, high, low, close, volume, quoteVol float64
	var trades int

	err := rows.Scan(
		&candle.Timestamp,
		&candle.Symbol,
		&candle.Timeframe,
		&open,
		&high,
		&low,
		&close,
		&volume,
		&quoteVol,
		&trades,
	)
	if err != nil {
		return candle, err
	}

	candle.Open = models.NewDecimal(open)
	candle.High = models.NewDecimal(high)
	candle.Low = models.NewDecimal(low)
	candle.Close = models.NewDecimal(close)
	candle.Volume = models.NewDecimal(volume)
	candle.QuoteVolume = models.NewDecimal(quoteVol)
	candle.Trades = trades

	return candle, nil
}
