package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// NewDecimalFromString creates decimal from string, zero on parse failure
func NewDecimalFromString(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Ticker represents market ticker data
type Ticker struct {
	Timestamp time.Time       `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Volume24h decimal.Decimal `json:"volume_24h"`
	Change24h decimal.Decimal `json:"change_24h"`
}

// Candle represents OHLCV candlestick data
type Candle struct {
	Symbol      string          `json:"symbol"`
	Timeframe   string          `json:"timeframe"`
	Timestamp   time.Time       `json:"timestamp"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	Trades      int             `json:"trades"`
}

// ClosesAndVolumes extracts close and volume series from candles,
// oldest first, for feeding into feature extraction.
func ClosesAndVolumes(candles []Candle) ([]float64, []float64) {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = ToFloat64(candle.Close)
		volumes[i] = ToFloat64(candle.Volume)
	}
	return closes, volumes
}

// Closes extracts the close price series from candles, oldest first.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, candle := range candles {
		closes[i] = ToFloat64(candle.Close)
	}
	return closes
}

// RegimeRecord is a point-in-time regime classification written to
// analytics storage for history and backtest comparison.
type RegimeRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	Regime         string    `json:"regime"`
	ProbBearish    float64   `json:"prob_bearish"`
	ProbRanging    float64   `json:"prob_ranging"`
	ProbBullish    float64   `json:"prob_bullish"`
	Confidence     float64   `json:"confidence"`
	BiasSignal     float64   `json:"bias_signal"`
	TrainingDepth  int       `json:"training_depth"`
	QualityTier    string    `json:"quality_tier"`
	ObservationCnt int       `json:"observation_count"`
}
