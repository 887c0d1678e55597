package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/internal/adapters/exchange"
	"github.com/selivandex/regime-bot/internal/backtest"
	"github.com/selivandex/regime-bot/internal/regime"
	"github.com/selivandex/regime-bot/pkg/logger"
)

func main() {
	var (
		symbol       = flag.String("symbol", "BTC/USDT", "Trading symbol")
		timeframe    = flag.String("timeframe", "5m", "Candle timeframe")
		totalCandles = flag.Int("candles", 3000, "Total candles to fetch")
		trainCandles = flag.Int("train", 2000, "Candles used for the training fit")
		updateWindow = flag.Int("window", 200, "Inference window in candles")
		source       = flag.String("exchange", "mock", "Data source (mock/binance/csv)")
		csvPath      = flag.String("csv", "", "CSV file with timestamp,open,high,low,close,volume rows")
		logLevel     = flag.String("log-level", "info", "Log level")
	)

	flag.Parse()

	if err := run(*symbol, *timeframe, *totalCandles, *trainCandles, *updateWindow, *source, *csvPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(symbol, timeframe string, totalCandles, trainCandles, updateWindow int, source, csvPath, logLevel string) error {
	if err := logger.Init(logLevel, "console", ""); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ex, err := buildExchange(source, csvPath)
	if err != nil {
		return err
	}
	defer ex.Close()

	hmmCfg := (&config.HMMConfig{
		NStates:             3,
		NIter:               100,
		InferenceWindow:     50,
		ConfidenceThreshold: 0.15,
		RetrainIntervalSec:  86400,
		MinTrainSamples:     500,
		BiasGain:            1.0,
		BlendWithTrend:      0.5,
	}).Normalized()

	engine := backtest.NewEngine(ex, symbol, timeframe, trainCandles, updateWindow, &hmmCfg)

	report, err := engine.Run(context.Background(), totalCandles)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func buildExchange(source, csvPath string) (exchange.Exchange, error) {
	switch source {
	case "mock":
		return exchange.NewMockExchange("mock", 40000), nil
	case "binance":
		return exchange.NewBinanceAdapter(&config.ExchangeConfig{Testnet: false})
	case "csv":
		if csvPath == "" {
			return nil, fmt.Errorf("csv source requires -csv path")
		}
		return newCSVSource(csvPath)
	default:
		return nil, fmt.Errorf("unsupported data source: %s", source)
	}
}

func printReport(r *backtest.Report) {
	fmt.Println()
	fmt.Println("=== Regime Replay Report ===")
	fmt.Printf("Symbol:         %s (%s)\n", r.Symbol, r.Timeframe)
	fmt.Printf("Training fit:   %d candles (%s tier)\n", r.TrainCandles, r.QualityTier)
	fmt.Printf("Replayed:       %d candles\n", r.ReplayCandles)
	fmt.Printf("Regime changes: %d\n", r.RegimeChanges)
	fmt.Printf("Avg confidence: %.4f\n", r.AvgConfidence)
	fmt.Println()

	for _, reg := range []regime.Regime{regime.Bearish, regime.Ranging, regime.Bullish} {
		count := r.RegimeCounts[reg]
		share := 0.0
		if r.ReplayCandles > 0 {
			share = float64(count) / float64(r.ReplayCandles) * 100
		}
		fmt.Printf("  %-8s %6d candles (%.1f%%)\n", reg.String(), count, share)
	}
	fmt.Println()

	if n := len(r.Samples); n > 0 {
		last := r.Samples[n-1]
		fmt.Printf("Last sample: %s close=%.2f regime=%s conf=%.3f bias=%+.3f grid=%s idle=%.2f\n",
			last.Timestamp.Format("2006-01-02 15:04"),
			last.Close,
			last.Regime.String(),
			last.Confidence,
			last.BiasSignal,
			last.GridMode,
			last.IdleTarget,
		)
	}
}
