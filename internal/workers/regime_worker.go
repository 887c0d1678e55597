package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/adapters/telegram"
	"github.com/selivandex/regime-bot/pkg/logger"
)

// RegimeWorker runs inference on every pipeline each interval and alerts
// on classified regime changes
type RegimeWorker struct {
	pipelines *PipelineSet
	notifier  *telegram.Notifier
}

// NewRegimeWorker creates new regime worker. notifier is optional.
func NewRegimeWorker(pipelines *PipelineSet, notifier *telegram.Notifier) *RegimeWorker {
	return &RegimeWorker{
		pipelines: pipelines,
		notifier:  notifier,
	}
}

// Name returns worker name
func (rw *RegimeWorker) Name() string {
	return "regime_updater"
}

// Run updates every pipeline
func (rw *RegimeWorker) Run(ctx context.Context) error {
	for _, p := range rw.pipelines.All() {
		state, previous, err := p.Update(ctx)
		if err != nil {
			logger.Warn("regime update failed",
				zap.String("symbol", p.Symbol),
				zap.String("timeframe", p.Timeframe),
				zap.Error(err),
			)
			continue
		}

		logger.Debug("regime updated",
			zap.String("symbol", p.Symbol),
			zap.String("timeframe", p.Timeframe),
			zap.String("regime", state.Regime.String()),
			zap.Float64("confidence", state.Confidence),
			zap.Float64("bias_signal", state.BiasSignal),
		)

		if state.ObservationCount > 0 && state.Regime != previous {
			logger.Info("regime changed",
				zap.String("symbol", p.Symbol),
				zap.String("timeframe", p.Timeframe),
				zap.String("from", previous.String()),
				zap.String("to", state.Regime.String()),
				zap.Float64("confidence", state.Confidence),
			)

			if rw.notifier != nil {
				_ = rw.notifier.SendRegimeChange(p.Symbol, p.Timeframe, previous, state.Regime, state)
			}
		}
	}

	return nil
}
