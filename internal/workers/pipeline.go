package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/health"
	"github.com/selivandex/regime-bot/internal/regime"
	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/models"
)

// CandleSource serves candle history; market.Repository implements it
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

// StatePublisher fans the latest state out to subscribers; the redis
// adapter's publisher implements it
type StatePublisher interface {
	Publish(ctx context.Context, symbol, timeframe string, state regime.State) error
}

// RegimeSink accepts regime history rows; the ClickHouse batch writer
// implements it
type RegimeSink interface {
	AddRecord(record models.RegimeRecord)
}

// Pipeline owns one detector for a symbol/timeframe pair. The detector
// itself is not safe for concurrent use, so every Train/Update/snapshot
// call goes through the pipeline mutex.
type Pipeline struct {
	mu sync.Mutex

	Symbol    string
	Timeframe string
	Role      string // "primary", "secondary" or "tertiary"

	detector   *regime.Detector
	marketRepo CandleSource

	snapshots    *regime.Repository
	publisher    StatePublisher
	regimeWriter RegimeSink

	trainingCandles int
	updateCandles   int

	lastRegime regime.Regime
}

// PipelineOptions wires the optional sinks
type PipelineOptions struct {
	Snapshots    *regime.Repository
	Publisher    StatePublisher
	RegimeWriter RegimeSink
}

// NewPipeline creates a pipeline around an existing detector
func NewPipeline(
	symbol, timeframe, role string,
	detector *regime.Detector,
	marketRepo CandleSource,
	trainingCandles, updateCandles int,
	opts PipelineOptions,
) *Pipeline {
	return &Pipeline{
		Symbol:          symbol,
		Timeframe:       timeframe,
		Role:            role,
		detector:        detector,
		marketRepo:      marketRepo,
		snapshots:       opts.Snapshots,
		publisher:       opts.Publisher,
		regimeWriter:    opts.RegimeWriter,
		trainingCandles: trainingCandles,
		updateCandles:   updateCandles,
		lastRegime:      regime.Ranging,
	}
}

// Restore loads the persisted snapshot, if any
func (p *Pipeline) Restore(ctx context.Context) error {
	if p.snapshots == nil {
		return nil
	}

	snapshot, err := p.snapshots.LoadSnapshot(ctx, p.Symbol, p.Timeframe)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snapshot == nil {
		logger.Info("no snapshot found, starting fresh",
			zap.String("symbol", p.Symbol),
			zap.String("timeframe", p.Timeframe),
		)
		return nil
	}

	p.mu.Lock()
	p.detector.RestoreSnapshot(snapshot)
	p.lastRegime = p.detector.State().Regime
	p.mu.Unlock()

	logger.Info("detector state restored from snapshot",
		zap.String("symbol", p.Symbol),
		zap.String("timeframe", p.Timeframe),
		zap.Int("training_depth", p.detector.TrainingDepth()),
		zap.String("quality_tier", p.detector.QualityTier()),
	)

	return nil
}

// NeedsRetrain reports whether the model is stale or missing
func (p *Pipeline) NeedsRetrain() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detector.NeedsRetrain()
}

// Train fetches training history and refits the model. Returns false when
// training was declined for lack of data.
func (p *Pipeline) Train(ctx context.Context) (bool, error) {
	candles, err := p.marketRepo.GetCandles(ctx, p.Symbol, p.Timeframe, p.trainingCandles)
	if err != nil {
		return false, fmt.Errorf("failed to load training candles: %w", err)
	}

	closes, volumes := models.ClosesAndVolumes(candles)

	p.mu.Lock()
	trained, err := p.detector.Train(closes, volumes)
	p.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !trained {
		return false, nil
	}

	if err := p.saveSnapshot(ctx); err != nil {
		logger.Warn("failed to persist snapshot after training",
			zap.String("symbol", p.Symbol),
			zap.String("timeframe", p.Timeframe),
			zap.Error(err),
		)
	}

	return true, nil
}

// Update runs inference on the latest candles and fans the state out to
// Redis and ClickHouse. Returns the new state plus the regime classified
// before this update, so callers can detect changes.
func (p *Pipeline) Update(ctx context.Context) (regime.State, regime.Regime, error) {
	candles, err := p.marketRepo.GetCandles(ctx, p.Symbol, p.Timeframe, p.updateCandles)
	if err != nil {
		return regime.DefaultState(), regime.Ranging, fmt.Errorf("failed to load update candles: %w", err)
	}

	closes, volumes := models.ClosesAndVolumes(candles)

	p.mu.Lock()
	previous := p.lastRegime
	state, err := p.detector.Update(closes, volumes)
	if err != nil {
		p.mu.Unlock()
		return regime.DefaultState(), previous, err
	}
	if state.ObservationCount > 0 {
		p.lastRegime = state.Regime
	}
	trained := p.detector.Trained()
	depth := p.detector.TrainingDepth()
	tier := p.detector.QualityTier()
	p.mu.Unlock()

	// A restored-but-untrained detector just echoes its old state, so the
	// fan-out would re-assert a frozen regime with fresh timestamps
	if !trained {
		return state, previous, nil
	}

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, p.Symbol, p.Timeframe, state); err != nil {
			logger.Warn("failed to publish regime state",
				zap.String("symbol", p.Symbol),
				zap.String("timeframe", p.Timeframe),
				zap.Error(err),
			)
		}
	}

	if p.regimeWriter != nil && state.ObservationCount > 0 {
		p.regimeWriter.AddRecord(models.RegimeRecord{
			Timestamp:      time.Now().UTC(),
			Symbol:         p.Symbol,
			Timeframe:      p.Timeframe,
			Regime:         state.Regime.String(),
			ProbBearish:    state.Probabilities[regime.Bearish],
			ProbRanging:    state.Probabilities[regime.Ranging],
			ProbBullish:    state.Probabilities[regime.Bullish],
			Confidence:     state.Confidence,
			BiasSignal:     state.BiasSignal,
			TrainingDepth:  depth,
			QualityTier:    tier,
			ObservationCnt: state.ObservationCount,
		})
	}

	return state, previous, nil
}

// saveSnapshot persists the detector state; callers hold no lock
func (p *Pipeline) saveSnapshot(ctx context.Context) error {
	if p.snapshots == nil {
		return nil
	}

	p.mu.Lock()
	snapshot := p.detector.Snapshot()
	p.mu.Unlock()

	return p.snapshots.SaveSnapshot(ctx, p.Symbol, p.Timeframe, snapshot)
}

// SaveSnapshot persists the detector state on demand (shutdown path)
func (p *Pipeline) SaveSnapshot(ctx context.Context) error {
	return p.saveSnapshot(ctx)
}

// TrainingDepth returns the depth of the last completed training run
func (p *Pipeline) TrainingDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detector.TrainingDepth()
}

// QualityTier returns the current quality tier name
func (p *Pipeline) QualityTier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detector.QualityTier()
}

// status snapshots the pipeline for the health endpoint
func (p *Pipeline) status() health.DetectorStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return health.DetectorStatus{
		Role:          p.Role,
		Timeframe:     p.Timeframe,
		Trained:       p.detector.Trained(),
		TrainingDepth: p.detector.TrainingDepth(),
		QualityTier:   p.detector.QualityTier(),
		State:         p.detector.State(),
	}
}

// PipelineSet groups the per-timeframe pipelines of one symbol
type PipelineSet struct {
	Primary   *Pipeline
	Secondary *Pipeline
	Tertiary  *Pipeline
}

// All returns the non-nil pipelines
func (ps *PipelineSet) All() []*Pipeline {
	out := make([]*Pipeline, 0, 3)
	for _, p := range []*Pipeline{ps.Primary, ps.Secondary, ps.Tertiary} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Status implements health.StatusProvider
func (ps *PipelineSet) Status() []health.DetectorStatus {
	pipelines := ps.All()
	out := make([]health.DetectorStatus, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, p.status())
	}
	return out
}

// ConsensusModifier returns the confidence modifier for a consuming
// source, weighing the training depth of each pipeline
func (ps *PipelineSet) ConsensusModifier(source string) float64 {
	var primaryDepth, secondaryDepth, tertiaryDepth int
	if ps.Primary != nil {
		primaryDepth = ps.Primary.TrainingDepth()
	}
	if ps.Secondary != nil {
		secondaryDepth = ps.Secondary.TrainingDepth()
	}
	if ps.Tertiary != nil {
		tertiaryDepth = ps.Tertiary.TrainingDepth()
	}
	return regime.ConfidenceModifierForSource(source, primaryDepth, secondaryDepth, tertiaryDepth)
}
