package regime

import "math"

// Snapshot keys, shared with the persistence layer and any external consumer
// of the flat key/value schema
const (
	snapKeyState              = "_hmm_regime_state"
	snapKeyLastTrainTS        = "_hmm_last_train_ts"
	snapKeyTrained            = "_hmm_trained"
	snapKeyTrainingDepth      = "_hmm_training_depth"
	snapKeyQualityTier        = "_hmm_quality_tier"
	snapKeyConfidenceModifier = "_hmm_confidence_modifier"
	snapKeyTransition         = "_hmm_tertiary_transition"
)

// Snapshot serializes the detector's bookkeeping into a flat map. The fitted
// model's learned parameters are deliberately excluded: a restored detector
// keeps its last state, timing and transition history but must be retrained
// from raw history before Update produces fresh inference.
func (d *Detector) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		snapKeyState: map[string]interface{}{
			"regime":            int(d.state.Regime),
			"probabilities":     []float64{d.state.Probabilities[0], d.state.Probabilities[1], d.state.Probabilities[2]},
			"confidence":        d.state.Confidence,
			"bias_signal":       d.state.BiasSignal,
			"last_update_ts":    d.state.LastUpdateTS,
			"observation_count": d.state.ObservationCount,
		},
		snapKeyLastTrainTS:        d.lastTrainTS,
		snapKeyTrained:            d.trained,
		snapKeyTrainingDepth:      d.trainingDepth,
		snapKeyQualityTier:        QualityTierForDepth(d.trainingDepth),
		snapKeyConfidenceModifier: ConfidenceModifierForDepth(d.trainingDepth),
		snapKeyTransition: map[string]interface{}{
			"from_regime":        int(d.tertiary.FromRegime),
			"to_regime":          int(d.tertiary.ToRegime),
			"confirmation_count": d.tertiary.ConfirmationCount,
			"confirmed":          d.tertiary.Confirmed,
			"changed_at":         d.tertiary.ChangedAt,
			"transition_age_sec": d.tertiary.TransitionAgeSec,
		},
	}
}

// RestoreSnapshot applies a previously serialized snapshot. Restoration is
// lenient: any missing or malformed field keeps the detector's current value.
// The in-memory model (if any) is not touched.
func (d *Detector) RestoreSnapshot(snapshot map[string]interface{}) {
	if snapshot == nil {
		return
	}

	if stateMap, ok := asMap(snapshot[snapKeyState]); ok {
		d.restoreState(stateMap)
	}

	d.lastTrainTS = mapFloat(snapshot, snapKeyLastTrainTS, d.lastTrainTS)
	d.trained = mapBool(snapshot, snapKeyTrained, d.trained)
	depth := mapInt(snapshot, snapKeyTrainingDepth, d.trainingDepth)
	if depth < 0 {
		depth = 0
	}
	d.trainingDepth = depth

	if transitionMap, ok := asMap(snapshot[snapKeyTransition]); ok {
		d.restoreTransition(transitionMap)
	}
}

func (d *Detector) restoreState(m map[string]interface{}) {
	state := DefaultState()

	if reg, ok := ParseRegime(m["regime"]); ok {
		state.Regime = reg
	}
	if probs, ok := asFloatSlice(m["probabilities"]); ok && len(probs) == 3 {
		state.Probabilities = [3]float64{probs[0], probs[1], probs[2]}
	}
	state.Confidence = mapFloat(m, "confidence", 0)
	state.BiasSignal = mapFloat(m, "bias_signal", 0)
	state.LastUpdateTS = mapFloat(m, "last_update_ts", 0)
	state.ObservationCount = mapInt(m, "observation_count", 0)

	d.state = state
}

func (d *Detector) restoreTransition(m map[string]interface{}) {
	transition := DefaultTransition()

	if from, ok := ParseRegime(m["from_regime"]); ok {
		transition.FromRegime = from
	}
	if to, ok := ParseRegime(m["to_regime"]); ok {
		transition.ToRegime = to
	}
	count := mapInt(m, "confirmation_count", 0)
	if count < 0 {
		count = 0
	}
	transition.ConfirmationCount = count
	transition.Confirmed = mapBool(m, "confirmed", false)
	transition.ChangedAt = mapFloat(m, "changed_at", 0)
	age := mapFloat(m, "transition_age_sec", 0)
	if age < 0 {
		age = 0
	}
	transition.TransitionAgeSec = age

	d.tertiary = transition
}

// Lenient extractors: JSON round-trips turn everything numeric into float64
// and maps into map[string]interface{}, so each accepts several shapes.

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func asFloatSlice(v interface{}) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []interface{}:
		out := make([]float64, 0, len(s))
		for _, item := range s {
			f, ok := toFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func mapFloat(m map[string]interface{}, key string, fallback float64) float64 {
	if f, ok := toFloat(m[key]); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return fallback
}

func mapInt(m map[string]interface{}, key string, fallback int) int {
	if f, ok := toFloat(m[key]); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return fallback
}

func mapBool(m map[string]interface{}, key string, fallback bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return fallback
}
