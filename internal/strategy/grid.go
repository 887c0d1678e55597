package strategy

import (
	"math"

	"github.com/selivandex/regime-bot/internal/indicators"
	"github.com/selivandex/regime-bot/internal/regime"
)

// GridMode is how the grid engine should place its entry ladders
type GridMode string

const (
	ModeSymmetric GridMode = "symmetric"
	ModeLongBias  GridMode = "long_bias"
	ModeShortBias GridMode = "short_bias"
)

const (
	// maxSizeSkew caps how far order sizing may lean into a bias
	maxSizeSkew = 0.30
	// minSpacingMult keeps the tightened ladder side from collapsing
	minSpacingMult = 0.6
)

// GridBiasResult tells the grid engine how to skew entry spacing and order
// sizing for the detected regime. SizeSkew is nil in symmetric mode: the
// engine keeps whatever skew it already had.
type GridBiasResult struct {
	Mode              GridMode `json:"mode"`
	EntrySpacingMultA float64  `json:"entry_spacing_mult_a"`
	EntrySpacingMultB float64  `json:"entry_spacing_mult_b"`
	SizeSkew          *float64 `json:"size_skew_override"`
}

// GridBias maps a regime state to grid placement adjustments. Below the
// confidence threshold the grid stays symmetric; otherwise side A (buys) and
// side B (sells) are widened/tightened proportionally to the bias signal.
func GridBias(state regime.State, confidenceThreshold float64) GridBiasResult {
	if state.Confidence < confidenceThreshold {
		return GridBiasResult{
			Mode:              ModeSymmetric,
			EntrySpacingMultA: 1.0,
			EntrySpacingMultB: 1.0,
		}
	}

	bias := state.BiasSignal
	absBias := math.Abs(bias)

	if bias > 0 {
		skew := math.Min(absBias*0.3, maxSizeSkew)
		return GridBiasResult{
			Mode:              ModeLongBias,
			EntrySpacingMultA: 1.0 + absBias*0.5,
			EntrySpacingMultB: math.Max(1.0-absBias*0.3, minSpacingMult),
			SizeSkew:          &skew,
		}
	}

	skew := math.Max(-absBias*0.3, -maxSizeSkew)
	return GridBiasResult{
		Mode:              ModeShortBias,
		EntrySpacingMultA: math.Max(1.0-absBias*0.3, minSpacingMult),
		EntrySpacingMultB: 1.0 + absBias*0.5,
		SizeSkew:          &skew,
	}
}

// BlendedIdleTarget blends a trend score with the hmm bias signal and maps
// the result onto an idle capital target. blendFactor weighs the trend side;
// the output is clamped to [floor, ceiling].
func BlendedIdleTarget(trendScore, hmmBias, blendFactor, baseTarget, sensitivity, floor, ceiling float64) float64 {
	blend := indicators.Clamp(blendFactor, 0, 1)
	blended := blend*trendScore + (1.0-blend)*hmmBias
	return indicators.Clamp(baseTarget-sensitivity*blended, floor, ceiling)
}
