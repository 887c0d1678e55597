package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/selivandex/regime-bot/pkg/models"
)

// csvSource serves candles from a local CSV file through the exchange
// interface so the replay engine does not care where history comes from.
// Expected columns: timestamp,open,high,low,close,volume with an optional
// header row. Timestamps are unix seconds or milliseconds.
type csvSource struct {
	candles []models.Candle
}

func newCSVSource(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var candles []models.Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if len(record) < 6 {
			continue
		}

		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			// header row
			continue
		}
		if ts > 1e12 {
			ts /= 1000
		}

		candles = append(candles, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      models.NewDecimalFromString(record[1]),
			High:      models.NewDecimalFromString(record[2]),
			Low:       models.NewDecimalFromString(record[3]),
			Close:     models.NewDecimalFromString(record[4]),
			Volume:    models.NewDecimalFromString(record[5]),
		})
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("csv contains no candles")
	}

	return &csvSource{candles: candles}, nil
}

func (c *csvSource) GetName() string {
	return "csv"
}

func (c *csvSource) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	last := c.candles[len(c.candles)-1]
	return &models.Ticker{
		Timestamp: last.Timestamp,
		Symbol:    symbol,
		Last:      last.Close,
	}, nil
}

// FetchOHLCV returns the newest limit candles, oldest first
func (c *csvSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	candles := c.candles
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]models.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (c *csvSource) Close() error {
	return nil
}
