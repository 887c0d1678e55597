package exchange

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/selivandex/regime-bot/pkg/models"
)

// Exchange is the market data surface the detector needs. The bot never
// places orders, so account and trading endpoints are out of scope here.
type Exchange interface {
	// GetName returns exchange name
	GetName() string

	FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)

	Close() error
}

// mockBasePrice seeds the random walk when no base price was given
const mockBasePrice = 40000.0

// MockExchange implements Exchange for tests and backtests. Generated
// prices random-walk from the last fetched value. The zero value is
// usable and starts the walk at mockBasePrice.
type MockExchange struct {
	name           string
	lastPrice      float64
	priceGenerator func() float64
}

// NewMockExchange creates new mock exchange
func NewMockExchange(name string, basePrice float64) *MockExchange {
	m := &MockExchange{
		name:      name,
		lastPrice: basePrice,
	}
	m.ensureDefaults()
	return m
}

// ensureDefaults fills whatever the caller left at zero so a bare
// &MockExchange{} behaves like a constructed one
func (m *MockExchange) ensureDefaults() {
	if m.name == "" {
		m.name = "mock"
	}
	if m.lastPrice <= 0 {
		m.lastPrice = mockBasePrice
	}
	if m.priceGenerator == nil {
		m.priceGenerator = func() float64 {
			return m.lastPrice * (1.0 + (rand.Float64()-0.5)*0.02)
		}
	}
}

func (m *MockExchange) GetName() string {
	m.ensureDefaults()
	return m.name
}

func (m *MockExchange) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	m.ensureDefaults()
	price := m.priceGenerator()
	m.lastPrice = price

	return &models.Ticker{
		Symbol:    symbol,
		Last:      models.NewDecimal(price),
		Bid:       models.NewDecimal(price * 0.9999),
		Ask:       models.NewDecimal(price * 1.0001),
		High24h:   models.NewDecimal(price * 1.05),
		Low24h:    models.NewDecimal(price * 0.95),
		Volume24h: models.NewDecimal(1000000),
		Change24h: models.NewDecimal(2.5),
		Timestamp: time.Now(),
	}, nil
}

func (m *MockExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	m.ensureDefaults()
	candles := make([]models.Candle, limit)
	basePrice := m.lastPrice
	step := parseDuration(timeframe)

	for i := 0; i < limit; i++ {
		open := basePrice * (1.0 + (rand.Float64()-0.5)*0.02)
		close := open * (1.0 + (rand.Float64()-0.5)*0.03)
		high := maxFloat(open, close) * (1.0 + rand.Float64()*0.01)
		low := minFloat(open, close) * (1.0 - rand.Float64()*0.01)

		candles[i] = models.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: time.Now().Add(-time.Duration(limit-i) * step),
			Open:      models.NewDecimal(open),
			High:      models.NewDecimal(high),
			Low:       models.NewDecimal(low),
			Close:     models.NewDecimal(close),
			Volume:    models.NewDecimal(100.0 + rand.Float64()*50),
		}

		basePrice = close
	}

	m.lastPrice = basePrice

	return candles, nil
}

func (m *MockExchange) Close() error {
	return nil
}

// parseDuration converts a timeframe like "1m", "5m", "1h", "1d"
func parseDuration(timeframe string) time.Duration {
	switch {
	case strings.HasSuffix(timeframe, "m"):
		return time.Duration(parseInt(strings.TrimSuffix(timeframe, "m"))) * time.Minute
	case strings.HasSuffix(timeframe, "h"):
		return time.Duration(parseInt(strings.TrimSuffix(timeframe, "h"))) * time.Hour
	case strings.HasSuffix(timeframe, "d"):
		return time.Duration(parseInt(strings.TrimSuffix(timeframe, "d"))) * 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

func parseInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 1
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 1
	}
	return n
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
