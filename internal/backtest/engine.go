package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/internal/adapters/exchange"
	"github.com/selivandex/regime-bot/internal/regime"
	"github.com/selivandex/regime-bot/internal/strategy"
	"github.com/selivandex/regime-bot/internal/trend"
	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/models"
)

// Engine replays historical candles through the detector walk-forward:
// train on the head of the series, then step through the rest one candle
// at a time and record what the detector would have said.
type Engine struct {
	exchange  exchange.Exchange
	scorer    *trend.Scorer
	symbol    string
	timeframe string

	trainCandles  int
	updateWindow  int
	confThreshold float64
	hmmCfg        *config.HMMConfig
}

// Sample is one walk-forward step
type Sample struct {
	Timestamp  time.Time
	Close      float64
	Regime     regime.Regime
	Confidence float64
	BiasSignal float64
	GridMode   strategy.GridMode
	IdleTarget float64
}

// Report summarizes a replay
type Report struct {
	Symbol        string
	Timeframe     string
	TrainCandles  int
	ReplayCandles int
	QualityTier   string

	RegimeCounts  map[regime.Regime]int
	RegimeChanges int
	AvgConfidence float64

	Samples []Sample
}

// NewEngine creates a replay engine
func NewEngine(ex exchange.Exchange, symbol, timeframe string, trainCandles, updateWindow int, hmmCfg *config.HMMConfig) *Engine {
	return &Engine{
		exchange:      ex,
		scorer:        trend.NewScorer(),
		symbol:        symbol,
		timeframe:     timeframe,
		trainCandles:  trainCandles,
		updateWindow:  updateWindow,
		confThreshold: hmmCfg.ConfidenceThreshold,
		hmmCfg:        hmmCfg,
	}
}

// Run fetches totalCandles of history and replays them. The first
// trainCandles fit the model; the remainder are walked forward.
func (e *Engine) Run(ctx context.Context, totalCandles int) (*Report, error) {
	if totalCandles <= e.trainCandles {
		return nil, fmt.Errorf("total candles (%d) must exceed training candles (%d)", totalCandles, e.trainCandles)
	}

	candles, err := e.exchange.FetchOHLCV(ctx, e.symbol, e.timeframe, totalCandles)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	if len(candles) <= e.trainCandles {
		return nil, fmt.Errorf("exchange returned %d candles, need more than %d", len(candles), e.trainCandles)
	}

	logger.Info("replay starting",
		zap.String("symbol", e.symbol),
		zap.String("timeframe", e.timeframe),
		zap.Int("candles", len(candles)),
		zap.Int("train", e.trainCandles),
	)

	detector := regime.NewDetector(e.hmmCfg)

	closes, volumes := models.ClosesAndVolumes(candles[:e.trainCandles])
	trained, err := detector.Train(closes, volumes)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	if !trained {
		return nil, fmt.Errorf("training declined: %d candles below the sample floor", e.trainCandles)
	}

	report := &Report{
		Symbol:       e.symbol,
		Timeframe:    e.timeframe,
		TrainCandles: e.trainCandles,
		QualityTier:  detector.QualityTier(),
		RegimeCounts: make(map[regime.Regime]int),
	}

	var lastRegime regime.Regime = regime.Ranging
	var confidenceSum float64

	for i := e.trainCandles; i < len(candles); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := i - e.updateWindow
		if start < 0 {
			start = 0
		}
		window := candles[start : i+1]

		closes, volumes := models.ClosesAndVolumes(window)
		state, err := detector.Update(closes, volumes)
		if err != nil {
			return nil, fmt.Errorf("update at candle %d failed: %w", i, err)
		}
		if state.ObservationCount == 0 {
			continue
		}

		trendScore, err := e.scorer.Score(window)
		if err != nil {
			trendScore = 0
		}

		bias := strategy.GridBias(state, e.confThreshold)
		idleTarget := strategy.BlendedIdleTarget(
			trendScore, state.BiasSignal, e.hmmCfg.BlendWithTrend,
			0.30, 0.25, 0.10, 0.60,
		)

		report.Samples = append(report.Samples, Sample{
			Timestamp:  candles[i].Timestamp,
			Close:      candles[i].Close.InexactFloat64(),
			Regime:     state.Regime,
			Confidence: state.Confidence,
			BiasSignal: state.BiasSignal,
			GridMode:   bias.Mode,
			IdleTarget: idleTarget,
		})

		report.RegimeCounts[state.Regime]++
		confidenceSum += state.Confidence
		if state.Regime != lastRegime {
			report.RegimeChanges++
			lastRegime = state.Regime
		}
	}

	report.ReplayCandles = len(report.Samples)
	if report.ReplayCandles > 0 {
		report.AvgConfidence = confidenceSum / float64(report.ReplayCandles)
	}

	logger.Info("replay finished",
		zap.Int("samples", report.ReplayCandles),
		zap.Int("regime_changes", report.RegimeChanges),
		zap.Float64("avg_confidence", report.AvgConfidence),
	)

	return report, nil
}
