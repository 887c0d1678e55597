package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisAdapter "github.com/selivandex/regime-bot/internal/adapters/redis"
	"github.com/selivandex/regime-bot/internal/adapters/telegram"
	"github.com/selivandex/regime-bot/pkg/logger"
)

// trainLockTTL must outlast the slowest Baum-Welch run
const trainLockTTL = 5 * time.Minute

// RetrainWorker refits stale models. With Redis enabled, a distributed
// lock keeps concurrent pods from training the same pair twice.
type RetrainWorker struct {
	pipelines *PipelineSet
	redis     *redisAdapter.Client
	notifier  *telegram.Notifier
}

// NewRetrainWorker creates new retrain worker. redis and notifier are optional.
func NewRetrainWorker(pipelines *PipelineSet, redis *redisAdapter.Client, notifier *telegram.Notifier) *RetrainWorker {
	return &RetrainWorker{
		pipelines: pipelines,
		redis:     redis,
		notifier:  notifier,
	}
}

// Name returns worker name
func (rw *RetrainWorker) Name() string {
	return "model_retrainer"
}

// Run checks every pipeline and retrains the stale ones
func (rw *RetrainWorker) Run(ctx context.Context) error {
	for _, p := range rw.pipelines.All() {
		if !p.NeedsRetrain() {
			continue
		}

		if err := rw.retrain(ctx, p); err != nil {
			logger.Error("retrain failed",
				zap.String("symbol", p.Symbol),
				zap.String("timeframe", p.Timeframe),
				zap.Error(err),
			)
			if rw.notifier != nil {
				_ = rw.notifier.SendFailureAlert(
					fmt.Sprintf("retrain %s %s", p.Symbol, p.Timeframe),
					err.Error(),
				)
			}
		}
	}

	return nil
}

func (rw *RetrainWorker) retrain(ctx context.Context, p *Pipeline) error {
	if rw.redis != nil {
		resource := fmt.Sprintf("train:%s:%s", p.Symbol, p.Timeframe)
		lock := redisAdapter.NewDistributedLock(rw.redis.GetLockManager(), resource, trainLockTTL)

		acquired, err := lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire train lock: %w", err)
		}
		if !acquired {
			logger.Debug("another pod is training this pair, skipping",
				zap.String("symbol", p.Symbol),
				zap.String("timeframe", p.Timeframe),
			)
			return nil
		}
		defer func() {
			_ = lock.Release(ctx)
		}()
	}

	startTime := time.Now()

	trained, err := p.Train(ctx)
	if err != nil {
		return err
	}
	if !trained {
		logger.Info("training declined, not enough history yet",
			zap.String("symbol", p.Symbol),
			zap.String("timeframe", p.Timeframe),
		)
		return nil
	}

	took := time.Since(startTime)

	logger.Info("model retrained",
		zap.String("symbol", p.Symbol),
		zap.String("timeframe", p.Timeframe),
		zap.Int("training_depth", p.TrainingDepth()),
		zap.String("quality_tier", p.QualityTier()),
		zap.Duration("took", took),
	)

	if rw.notifier != nil {
		_ = rw.notifier.SendRetrainCompleted(
			fmt.Sprintf("%s %s", p.Symbol, p.Timeframe),
			p.TrainingDepth(),
			p.QualityTier(),
			took,
		)
	}

	return nil
}
