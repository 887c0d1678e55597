package regime

import (
	"math"
	"os"
	"testing"

	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error", "console", ""); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// trendingSeries produces closes that walk through bearish, ranging and
// bullish stretches with enough points to pass the training floor
func trendingSeries(n int) ([]float64, []float64) {
	closes := make([]float64, n)
	volumes := make([]float64, n)

	price := 40000.0
	for i := 0; i < n; i++ {
		phase := i * 3 / n
		switch phase {
		case 0:
			price -= 15 + 5*math.Sin(float64(i)*0.7)
		case 1:
			price += 8 * math.Sin(float64(i)*0.5)
		default:
			price += 15 + 5*math.Cos(float64(i)*0.7)
		}
		closes[i] = price
		volumes[i] = 1000 + 100*math.Sin(float64(i)*0.3)
	}

	return closes, volumes
}

func testConfig() *config.HMMConfig {
	return &config.HMMConfig{
		NStates:             3,
		NIter:               15,
		InferenceWindow:     50,
		ConfidenceThreshold: 0.15,
		RetrainIntervalSec:  86400,
		MinTrainSamples:     100,
		BiasGain:            1.0,
		BlendWithTrend:      0.5,
	}
}

func TestNewDetector_Defaults(t *testing.T) {
	d := NewDetector(nil)

	cfg := d.Config()
	if cfg.NStates != 3 || cfg.NIter != 100 || cfg.InferenceWindow != 50 {
		t.Errorf("Unexpected default config: %+v", cfg)
	}
	if d.Trained() {
		t.Error("Fresh detector should be untrained")
	}
	if !d.NeedsRetrain() {
		t.Error("Untrained detector should need retraining")
	}

	state := d.State()
	if state.Regime != Ranging {
		t.Errorf("Fresh detector should start ranging, got %v", state.Regime)
	}
	if state.Probabilities != [3]float64{0, 1, 0} {
		t.Errorf("Expected ranging prior, got %v", state.Probabilities)
	}
}

func TestDetector_TrainDeclinedOnShortHistory(t *testing.T) {
	d := NewDetector(testConfig())

	closes, volumes := trendingSeries(50)
	ok, err := d.Train(closes, volumes)
	if err != nil {
		t.Fatalf("Short history must not be an error: %v", err)
	}
	if ok {
		t.Error("Training should be declined below min_train_samples")
	}
	if d.Trained() {
		t.Error("Declined training must leave detector untrained")
	}
}

func TestDetector_TrainInputMismatch(t *testing.T) {
	d := NewDetector(testConfig())

	if _, err := d.Train(make([]float64, 20), make([]float64, 10)); err == nil {
		t.Error("Mismatched input lengths should fail fast")
	}
}

func TestDetector_TrainAndUpdate(t *testing.T) {
	d := NewDetector(testConfig())

	closes, volumes := trendingSeries(400)
	ok, err := d.Train(closes, volumes)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if !ok {
		t.Fatal("Training should be accepted with enough samples")
	}
	if !d.Trained() {
		t.Error("Detector should be trained")
	}
	if d.NeedsRetrain() {
		t.Error("Freshly trained detector should not need retraining")
	}
	if d.TrainingDepth() == 0 {
		t.Error("Training depth should be recorded")
	}

	state, err := d.Update(closes, volumes)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	sum := state.Probabilities[0] + state.Probabilities[1] + state.Probabilities[2]
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("Probabilities should sum to 1, got %.9f", sum)
	}
	for i, p := range state.Probabilities {
		if p < 0 {
			t.Errorf("Negative probability at %d: %.6f", i, p)
		}
	}
	if state.Regime < Bearish || state.Regime > Bullish {
		t.Errorf("Regime out of range: %v", state.Regime)
	}
	if state.Confidence < 0 || state.Confidence > 1 {
		t.Errorf("Confidence out of [0,1]: %.4f", state.Confidence)
	}
	if state.BiasSignal < -1 || state.BiasSignal > 1 {
		t.Errorf("Bias signal out of [-1,1]: %.4f", state.BiasSignal)
	}
	if state.LastUpdateTS <= 0 {
		t.Error("Update should stamp wall-clock time")
	}
	if state.ObservationCount == 0 || state.ObservationCount > d.Config().InferenceWindow {
		t.Errorf("Observation count should be the window actually used, got %d", state.ObservationCount)
	}
}

func TestDetector_UpdateUntrainedIsNoop(t *testing.T) {
	d := NewDetector(testConfig())
	before := d.State()

	closes, volumes := trendingSeries(200)
	state, err := d.Update(closes, volumes)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if state != before {
		t.Error("Untrained update should return the last known state unchanged")
	}
}

func TestDetector_UpdateEmptyRowsIsNoop(t *testing.T) {
	d := NewDetector(testConfig())

	closes, volumes := trendingSeries(400)
	if ok, err := d.Train(closes, volumes); err != nil || !ok {
		t.Fatalf("Train failed: ok=%v err=%v", ok, err)
	}
	before := d.State()

	// one point produces no feature rows
	state, err := d.Update([]float64{100}, []float64{1})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if state != before {
		t.Error("Update without rows should return the last known state unchanged")
	}
}

func TestDetector_RemapProbs(t *testing.T) {
	d := NewDetector(testConfig())

	t.Run("identity map", func(t *testing.T) {
		labeled := d.remapProbs([]float64{0.2, 0.5, 0.3})
		if labeled != [3]float64{0.2, 0.5, 0.3} {
			t.Errorf("Identity remap changed values: %v", labeled)
		}
	})

	t.Run("permuted map", func(t *testing.T) {
		d.labelMap = []int{2, 0, 1}
		labeled := d.remapProbs([]float64{0.2, 0.5, 0.3})
		if labeled != [3]float64{0.5, 0.3, 0.2} {
			t.Errorf("Unexpected remap result: %v", labeled)
		}
	})

	t.Run("unknown raw index goes to ranging", func(t *testing.T) {
		d.labelMap = []int{0, 1, 2}
		labeled := d.remapProbs([]float64{0.2, 0.3, 0.1, 0.4})
		if math.Abs(labeled[1]-0.7) > 1e-12 {
			t.Errorf("Extra raw state should land in ranging bucket, got %v", labeled)
		}
	})
}

func TestArgmax3_TiesBreakBullish(t *testing.T) {
	if argmax3([3]float64{0.4, 0.4, 0.2}) != Ranging {
		t.Error("Tie between bearish and ranging should pick ranging")
	}
	if argmax3([3]float64{0.3, 0.35, 0.35}) != Bullish {
		t.Error("Tie between ranging and bullish should pick bullish")
	}
	if argmax3([3]float64{0.5, 0.3, 0.2}) != Bearish {
		t.Error("Clear bearish maximum should pick bearish")
	}
}

func TestDetector_TertiaryTransitionScenario(t *testing.T) {
	d := NewDetector(testConfig())

	d.advanceTertiaryTransition(Ranging, 100)
	tr := d.TertiaryTransition()
	if tr.FromRegime != Ranging || tr.ToRegime != Ranging {
		t.Errorf("First update should initialize from=to, got %+v", tr)
	}
	if tr.ConfirmationCount != 1 || tr.Confirmed {
		t.Errorf("First update: count=1 unconfirmed expected, got %+v", tr)
	}

	d.advanceTertiaryTransition(Bullish, 160)
	tr = d.TertiaryTransition()
	if tr.FromRegime != Ranging || tr.ToRegime != Bullish {
		t.Errorf("Regime change should reset tracker, got %+v", tr)
	}
	if tr.ConfirmationCount != 1 || tr.Confirmed {
		t.Errorf("Regime change: count=1 unconfirmed expected, got %+v", tr)
	}

	d.advanceTertiaryTransition(Bullish, 220)
	tr = d.TertiaryTransition()
	if tr.ConfirmationCount != 2 {
		t.Errorf("Repeat regime should increment count, got %d", tr.ConfirmationCount)
	}
	if !tr.Confirmed {
		t.Error("Persisted transition should be confirmed")
	}
	if tr.TransitionAgeSec < 60 {
		t.Errorf("Transition age should cover the elapsed time, got %.1f", tr.TransitionAgeSec)
	}
}

func TestDetector_SteadyRegimeNeverConfirmed(t *testing.T) {
	d := NewDetector(testConfig())

	for i := 0; i < 5; i++ {
		d.advanceTertiaryTransition(Ranging, float64(100+i*60))
	}

	tr := d.TertiaryTransition()
	if tr.Confirmed {
		t.Error("A steady unchanging regime must never be confirmed")
	}
	if tr.ConfirmationCount != 5 {
		t.Errorf("Expected confirmation count 5, got %d", tr.ConfirmationCount)
	}
}

func TestParseRegime(t *testing.T) {
	cases := []struct {
		in   interface{}
		want Regime
		ok   bool
	}{
		{0, Bearish, true},
		{int64(2), Bullish, true},
		{1.7, Ranging, true},
		{"BULLISH", Bullish, true},
		{"bearish", Bearish, true},
		{" 1 ", Ranging, true},
		{"", Ranging, false},
		{5, Ranging, false},
		{-1, Ranging, false},
		{"sideways", Ranging, false},
	}

	for _, tc := range cases {
		got, ok := ParseRegime(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseRegime(%v): got (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
