package regime

import (
	"encoding/json"
	"math"
	"testing"
)

func populatedDetector() *Detector {
	d := NewDetector(testConfig())
	d.state = State{
		Regime:           Bullish,
		Probabilities:    [3]float64{0.1, 0.2, 0.7},
		Confidence:       0.5,
		BiasSignal:       0.6,
		LastUpdateTS:     1700000000,
		ObservationCount: 50,
	}
	d.trained = true
	d.lastTrainTS = 1699990000
	d.trainingDepth = 1500
	d.tertiary = TertiaryTransition{
		FromRegime:        Ranging,
		ToRegime:          Bullish,
		ConfirmationCount: 3,
		Confirmed:         true,
		ChangedAt:         1699995000,
		TransitionAgeSec:  120,
	}
	return d
}

func TestSnapshot_RoundTrip(t *testing.T) {
	src := populatedDetector()
	snapshot := src.Snapshot()

	fresh := NewDetector(testConfig())
	fresh.RestoreSnapshot(snapshot)

	if fresh.State() != src.State() {
		t.Errorf("State mismatch after round trip:\n got %+v\nwant %+v", fresh.State(), src.State())
	}
	if fresh.TertiaryTransition() != src.TertiaryTransition() {
		t.Errorf("Transition mismatch after round trip:\n got %+v\nwant %+v",
			fresh.TertiaryTransition(), src.TertiaryTransition())
	}
	if fresh.LastTrainTS() != src.LastTrainTS() {
		t.Errorf("LastTrainTS mismatch: %.0f vs %.0f", fresh.LastTrainTS(), src.LastTrainTS())
	}
	if fresh.TrainingDepth() != src.TrainingDepth() {
		t.Errorf("TrainingDepth mismatch: %d vs %d", fresh.TrainingDepth(), src.TrainingDepth())
	}

	// the trained flag survives but the model parameters never round-trip:
	// update must fall back to the prior until retrained
	if !fresh.Trained() {
		t.Error("Trained flag should survive restoration")
	}
	state, err := fresh.Update(generateCloses(120), generateVolumes(120))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if state.Probabilities != [3]float64{0, 1, 0} {
		t.Errorf("Restored detector without model should emit the ranging prior, got %v", state.Probabilities)
	}
}

func TestSnapshot_RoundTripThroughJSON(t *testing.T) {
	src := populatedDetector()

	payload, err := json.Marshal(src.Snapshot())
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}

	fresh := NewDetector(testConfig())
	fresh.RestoreSnapshot(decoded)

	if fresh.State() != src.State() {
		t.Errorf("State mismatch after JSON round trip:\n got %+v\nwant %+v", fresh.State(), src.State())
	}
	if fresh.TertiaryTransition() != src.TertiaryTransition() {
		t.Errorf("Transition mismatch after JSON round trip:\n got %+v\nwant %+v",
			fresh.TertiaryTransition(), src.TertiaryTransition())
	}
}

func TestSnapshot_ContainsDerivedQualityFields(t *testing.T) {
	d := populatedDetector()
	snapshot := d.Snapshot()

	if tier, ok := snapshot["_hmm_quality_tier"].(string); !ok || tier != "baseline" {
		t.Errorf("Expected quality tier baseline for depth 1500, got %v", snapshot["_hmm_quality_tier"])
	}
	modifier, ok := snapshot["_hmm_confidence_modifier"].(float64)
	if !ok || math.Abs(modifier-0.85) > 1e-9 {
		t.Errorf("Expected confidence modifier 0.85, got %v", snapshot["_hmm_confidence_modifier"])
	}
}

func TestRestoreSnapshot_Lenient(t *testing.T) {
	t.Run("nil snapshot is ignored", func(t *testing.T) {
		d := populatedDetector()
		before := d.State()
		d.RestoreSnapshot(nil)
		if d.State() != before {
			t.Error("Nil snapshot should leave the detector untouched")
		}
	})

	t.Run("missing fields keep current values", func(t *testing.T) {
		d := populatedDetector()
		d.RestoreSnapshot(map[string]interface{}{
			"_hmm_training_depth": 4200,
		})
		if d.TrainingDepth() != 4200 {
			t.Errorf("Provided field should apply, got %d", d.TrainingDepth())
		}
		if d.LastTrainTS() != 1699990000 {
			t.Errorf("Missing field should keep current value, got %.0f", d.LastTrainTS())
		}
		if !d.Trained() {
			t.Error("Missing trained flag should keep current value")
		}
	})

	t.Run("malformed fields fall back", func(t *testing.T) {
		d := populatedDetector()
		d.RestoreSnapshot(map[string]interface{}{
			"_hmm_last_train_ts":  "not-a-number",
			"_hmm_trained":        "yes",
			"_hmm_training_depth": -7,
			"_hmm_regime_state": map[string]interface{}{
				"regime":        "sideways",
				"probabilities": []interface{}{"a", "b", "c"},
			},
		})

		if d.LastTrainTS() != 1699990000 {
			t.Errorf("Malformed timestamp should keep current value, got %.0f", d.LastTrainTS())
		}
		if !d.Trained() {
			t.Error("Malformed trained flag should keep current value")
		}
		if d.TrainingDepth() != 0 {
			t.Errorf("Negative depth should floor at 0, got %d", d.TrainingDepth())
		}
		state := d.State()
		if state.Regime != Ranging {
			t.Errorf("Unknown regime name should default to ranging, got %v", state.Regime)
		}
		if state.Probabilities != [3]float64{0, 1, 0} {
			t.Errorf("Malformed probabilities should default to the prior, got %v", state.Probabilities)
		}
	})
}

func generateCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 40000 + 25*math.Sin(float64(i)*0.4)
	}
	return out
}

func generateVolumes(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1000 + 40*math.Cos(float64(i)*0.25)
	}
	return out
}
