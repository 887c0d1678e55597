package exchange

import (
	"context"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/models"
)

// BinanceAdapter wraps CCXT Binance for market data polling
type BinanceAdapter struct {
	exchange *ccxt.Binance
	config   *config.ExchangeConfig
}

// NewBinanceAdapter creates new Binance adapter
func NewBinanceAdapter(cfg *config.ExchangeConfig) (*BinanceAdapter, error) {
	options := map[string]interface{}{
		"apiKey": cfg.APIKey,
		"secret": cfg.Secret,
	}

	if cfg.Testnet {
		options["testnet"] = true
	}

	exchange := ccxt.NewBinance(options)

	exchange.SetOption("defaultType", "spot")
	exchange.SetOption("adjustForTimeDifference", true)

	if err := exchange.LoadMarkets(); err != nil {
		return nil, fmt.Errorf("failed to load Binance markets: %w", err)
	}

	logger.Info("Binance adapter initialized",
		zap.Bool("testnet", cfg.Testnet),
		zap.Int("markets_count", len(exchange.Markets)),
	)

	return &BinanceAdapter{
		exchange: exchange,
		config:   cfg,
	}, nil
}

func (b *BinanceAdapter) GetName() string {
	return "binance"
}

func (b *BinanceAdapter) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	ticker, err := b.exchange.FetchTicker(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker: %w", err)
	}

	return &models.Ticker{
		Symbol:    symbol,
		Last:      models.NewDecimal(safeFloat(ticker.Last)),
		Bid:       models.NewDecimal(safeFloat(ticker.Bid)),
		Ask:       models.NewDecimal(safeFloat(ticker.Ask)),
		High24h:   models.NewDecimal(safeFloat(ticker.High)),
		Low24h:    models.NewDecimal(safeFloat(ticker.Low)),
		Volume24h: models.NewDecimal(safeFloat(ticker.BaseVolume)),
		Change24h: models.NewDecimal(safeFloat(ticker.Percentage)),
		Timestamp: time.UnixMilli(safeInt64(ticker.Timestamp)),
	}, nil
}

func (b *BinanceAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	ohlcv, err := b.exchange.FetchOHLCV(
		symbol,
		ccxt.WithFetchOHLCVTimeframe(timeframe),
		ccxt.WithFetchOHLCVLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OHLCV: %w", err)
	}

	candles := make([]models.Candle, len(ohlcv))
	for i, bar := range ohlcv {
		candles[i] = models.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Timestamp: time.UnixMilli(int64(bar[0])),
			Open:      models.NewDecimal(bar[1]),
			High:      models.NewDecimal(bar[2]),
			Low:       models.NewDecimal(bar[3]),
			Close:     models.NewDecimal(bar[4]),
			Volume:    models.NewDecimal(bar[5]),
		}
	}

	return candles, nil
}

func (b *BinanceAdapter) Close() error {
	// CCXT doesn't require explicit connection closing
	return nil
}
