package regime

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/internal/features"
	"github.com/selivandex/regime-bot/internal/hmm"
	"github.com/selivandex/regime-bot/internal/indicators"
	"github.com/selivandex/regime-bot/pkg/logger"
)

// spreadFeatureIdx is ema_spread_pct, the feature whose learned per-state
// means order the raw HMM states into bearish/ranging/bullish labels
const spreadFeatureIdx = 1

// Detector classifies a price/volume history into one of three market
// regimes. It owns a fitted HMM, the semantic label map, the last known
// state and the transition-confirmation tracker.
//
// A Detector is a single mutable unit of state and is not safe for
// concurrent mutation: callers must serialize Train/Update/RestoreSnapshot.
type Detector struct {
	cfg       config.HMMConfig
	extractor *features.Extractor

	model    *hmm.GaussianHmm
	labelMap []int

	state         State
	trained       bool
	lastTrainTS   float64
	trainingDepth int
	tertiary      TertiaryTransition
}

// NewDetector creates a detector. A nil config uses the documented defaults;
// all clamp/floor rules are applied here, so the stored config is always
// valid.
func NewDetector(cfg *config.HMMConfig) *Detector {
	normalized := defaultHMMConfig()
	if cfg != nil {
		normalized = cfg.Normalized()
	}

	return &Detector{
		cfg:       normalized,
		extractor: features.NewExtractor(),
		labelMap:  []int{0, 1, 2},
		state:     DefaultState(),
		tertiary:  DefaultTransition(),
	}
}

func defaultHMMConfig() config.HMMConfig {
	return config.HMMConfig{
		NStates:             3,
		NIter:               100,
		InferenceWindow:     50,
		ConfidenceThreshold: 0.15,
		RetrainIntervalSec:  86400,
		MinTrainSamples:     500,
		BiasGain:            1.0,
		BlendWithTrend:      0.5,
	}.Normalized()
}

// Config returns the detector's normalized configuration
func (d *Detector) Config() config.HMMConfig {
	return d.cfg
}

// Train fits a fresh 3-state model on the full history. Returns false (not an
// error) when there are fewer usable feature rows than min_train_samples, so
// callers can retry once more data has accumulated.
func (d *Detector) Train(closes, volumes []float64) (bool, error) {
	obs, err := d.extractor.ExtractRows(closes, volumes)
	if err != nil {
		return false, err
	}

	d.trainingDepth = len(obs)
	if len(obs) < d.cfg.MinTrainSamples {
		d.trained = false
		logger.Debug("regime training declined: not enough samples",
			zap.Int("rows", len(obs)),
			zap.Int("min_train_samples", d.cfg.MinTrainSamples),
		)
		return false, nil
	}

	model := hmm.New(d.cfg.NStates, 4)
	if err := model.Fit(obs, d.cfg.NIter); err != nil {
		return false, fmt.Errorf("hmm fit failed: %w", err)
	}

	if labelMap, ok := model.LabelMapByFeature(spreadFeatureIdx); ok {
		d.labelMap = labelMap
	} else {
		d.labelMap = []int{0, 1, 2}
	}

	d.trainingDepth = model.TrainingDepth()
	d.model = model
	d.trained = true
	d.lastTrainTS = nowTS()
	d.state.ObservationCount = len(obs)

	logger.Info("regime model trained",
		zap.Int("observations", len(obs)),
		zap.Int("n_iter", d.cfg.NIter),
		zap.Ints("label_map", d.labelMap),
		zap.String("quality_tier", QualityTierForDepth(d.trainingDepth)),
	)

	return true, nil
}

// Update runs forward-filtered inference over the trailing window and
// replaces the stored state wholesale. If the detector is untrained or the
// inputs produce no feature rows, the last known state is returned unchanged.
func (d *Detector) Update(closes, volumes []float64) (State, error) {
	if !d.trained {
		return d.state, nil
	}

	obs, err := d.extractor.ExtractRows(closes, volumes)
	if err != nil {
		return d.state, err
	}
	if len(obs) == 0 {
		return d.state, nil
	}

	start := len(obs) - d.cfg.InferenceWindow
	if start < 0 {
		start = 0
	}
	tail := obs[start:]

	rawProbs := []float64{0, 1, 0}
	if d.model != nil && d.model.Trained() {
		rawProbs = d.model.PredictLastProba(tail)
	}

	p := indicators.NormalizeProbs3(d.remapProbs(rawProbs))
	reg := argmax3(p)

	confidence := topMargin(p)

	biasSignal := 0.0
	if confidence >= d.cfg.ConfidenceThreshold {
		biasSignal = indicators.Clamp((p[Bullish]-p[Bearish])*d.cfg.BiasGain, -1, 1)
	}

	updatedAt := nowTS()
	d.state = State{
		Regime:           reg,
		Probabilities:    p,
		Confidence:       round4(confidence),
		BiasSignal:       round4(biasSignal),
		LastUpdateTS:     updatedAt,
		ObservationCount: len(tail),
	}
	d.advanceTertiaryTransition(reg, updatedAt)

	return d.state, nil
}

// remapProbs folds the raw per-state posterior into semantic label buckets.
// Raw indices without a mapping land in the ranging bucket.
func (d *Detector) remapProbs(rawProbs []float64) [3]float64 {
	var labeled [3]float64
	for rawIdx, rawProb := range rawProbs {
		label := 1
		if rawIdx < len(d.labelMap) {
			label = d.labelMap[rawIdx]
		}
		if label >= 0 && label < 3 {
			labeled[label] += rawProb
		}
	}
	return labeled
}

// advanceTertiaryTransition advances the confirmation state machine. A
// transition is confirmed only once the new regime has persisted across at
// least one additional update beyond the change itself; a steady unchanging
// regime is never marked confirmed.
func (d *Detector) advanceTertiaryTransition(reg Regime, now float64) {
	normalized, ok := normalizeRegime(int(reg))
	if !ok {
		normalized = Ranging
	}

	if d.tertiary.ChangedAt <= 0 {
		d.tertiary = TertiaryTransition{
			FromRegime:        normalized,
			ToRegime:          normalized,
			ConfirmationCount: 1,
			ChangedAt:         now,
		}
		return
	}

	if normalized != d.tertiary.ToRegime {
		d.tertiary = TertiaryTransition{
			FromRegime:        d.tertiary.ToRegime,
			ToRegime:          normalized,
			ConfirmationCount: 1,
			ChangedAt:         now,
		}
		return
	}

	nextCount := d.tertiary.ConfirmationCount + 1
	if nextCount < 1 {
		nextCount = 1
	}
	ageSec := now - d.tertiary.ChangedAt
	if ageSec < 0 {
		ageSec = 0
	}

	d.tertiary.ConfirmationCount = nextCount
	d.tertiary.TransitionAgeSec = ageSec
	d.tertiary.Confirmed = d.tertiary.FromRegime != d.tertiary.ToRegime && nextCount >= 2
}

// NeedsRetrain reports whether the model was never trained or the retrain
// interval has elapsed
func (d *Detector) NeedsRetrain() bool {
	if !d.trained {
		return true
	}
	return nowTS()-d.lastTrainTS >= d.cfg.RetrainIntervalSec
}

// Trained reports whether the detector holds a fitted model
func (d *Detector) Trained() bool {
	return d.trained
}

// TrainingDepth returns the observation count of the last training attempt
func (d *Detector) TrainingDepth() int {
	return d.trainingDepth
}

// State returns the last known regime state
func (d *Detector) State() State {
	return d.state
}

// LastTrainTS returns the wall-clock time of the last successful training
func (d *Detector) LastTrainTS() float64 {
	return d.lastTrainTS
}

// QualityTier maps the detector's training depth to a tier name
func (d *Detector) QualityTier() string {
	return QualityTierForDepth(d.trainingDepth)
}

// ConfidenceModifier returns the multiplier for the detector's tier
func (d *Detector) ConfidenceModifier() float64 {
	return ConfidenceModifierForDepth(d.trainingDepth)
}

// TertiaryTransition returns the current transition tracker
func (d *Detector) TertiaryTransition() TertiaryTransition {
	return d.tertiary
}

// SetTertiaryTransition replaces the transition tracker
func (d *Detector) SetTertiaryTransition(transition TertiaryTransition) {
	d.tertiary = transition
}

func argmax3(p [3]float64) Regime {
	// ties break toward the more bullish label
	if p[2] >= p[1] && p[2] >= p[0] {
		return Bullish
	}
	if p[1] >= p[0] {
		return Ranging
	}
	return Bearish
}

func topMargin(p [3]float64) float64 {
	sorted := []float64{p[0], p[1], p[2]}
	if sorted[0] < sorted[1] {
		sorted[0], sorted[1] = sorted[1], sorted[0]
	}
	if sorted[1] < sorted[2] {
		sorted[1], sorted[2] = sorted[2], sorted[1]
	}
	if sorted[0] < sorted[1] {
		sorted[0], sorted[1] = sorted[1], sorted[0]
	}
	return sorted[0] - sorted[1]
}

func nowTS() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
