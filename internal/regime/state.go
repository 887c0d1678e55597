package regime

import (
	"math"
	"strconv"
	"strings"
)

// Regime is one of the three latent market states
type Regime int

const (
	Bearish Regime = 0
	Ranging Regime = 1
	Bullish Regime = 2
)

// String returns the canonical regime name
func (r Regime) String() string {
	switch r {
	case Bearish:
		return "BEARISH"
	case Ranging:
		return "RANGING"
	case Bullish:
		return "BULLISH"
	}
	return "UNKNOWN"
}

// ParseRegime converts loosely-typed values (ints, floats, names) into a
// Regime. Used by snapshot restoration which must accept whatever an older
// writer produced.
func ParseRegime(value interface{}) (Regime, bool) {
	switch v := value.(type) {
	case Regime:
		return normalizeRegime(int(v))
	case int:
		return normalizeRegime(v)
	case int32:
		return normalizeRegime(int(v))
	case int64:
		return normalizeRegime(int(v))
	case float64:
		return normalizeRegime(int(math.Trunc(v)))
	case float32:
		return normalizeRegime(int(math.Trunc(float64(v))))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return Ranging, false
		}
		if i, err := strconv.Atoi(trimmed); err == nil {
			return normalizeRegime(i)
		}
		switch strings.ToUpper(trimmed) {
		case "BEARISH":
			return Bearish, true
		case "RANGING":
			return Ranging, true
		case "BULLISH":
			return Bullish, true
		}
	}
	return Ranging, false
}

func normalizeRegime(value int) (Regime, bool) {
	if value < int(Bearish) || value > int(Bullish) {
		return Ranging, false
	}
	return Regime(value), true
}

// State is the detector's output, replaced wholesale on each successful update
type State struct {
	Regime           Regime     `json:"regime"`
	Probabilities    [3]float64 `json:"probabilities"`
	Confidence       float64    `json:"confidence"`
	BiasSignal       float64    `json:"bias_signal"`
	LastUpdateTS     float64    `json:"last_update_ts"`
	ObservationCount int        `json:"observation_count"`
}

// DefaultState returns the ranging-biased initial state
func DefaultState() State {
	return State{
		Regime:        Ranging,
		Probabilities: [3]float64{0, 1, 0},
	}
}

// TertiaryTransition tracks whether an observed regime change has persisted
// long enough to be considered stable
type TertiaryTransition struct {
	FromRegime        Regime  `json:"from_regime"`
	ToRegime          Regime  `json:"to_regime"`
	ConfirmationCount int     `json:"confirmation_count"`
	Confirmed         bool    `json:"confirmed"`
	ChangedAt         float64 `json:"changed_at"`
	TransitionAgeSec  float64 `json:"transition_age_sec"`
}

// DefaultTransition returns the untransitioned initial tracker
func DefaultTransition() TertiaryTransition {
	return TertiaryTransition{
		FromRegime: Ranging,
		ToRegime:   Ranging,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
