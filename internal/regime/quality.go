package regime

import "strings"

// Training-depth breakpoints separating the quality tiers
const (
	tierShallowMax  = 999
	tierBaselineMax = 2499
	tierDeepMax     = 3999
)

// QualityTierForDepth maps a training depth (observation count) to a tier
// name. Negative depths are treated as zero.
func QualityTierForDepth(depth int) string {
	d := depth
	if d < 0 {
		d = 0
	}
	switch {
	case d <= tierShallowMax:
		return "shallow"
	case d <= tierBaselineMax:
		return "baseline"
	case d <= tierDeepMax:
		return "deep"
	default:
		return "full"
	}
}

// ConfidenceModifierForDepth returns the confidence multiplier for a depth
func ConfidenceModifierForDepth(depth int) float64 {
	switch QualityTierForDepth(depth) {
	case "shallow":
		return 0.70
	case "baseline":
		return 0.85
	case "deep":
		return 0.95
	default:
		return 1.00
	}
}

// ConfidenceModifierForSource resolves the modifier for a named pipeline.
// "secondary"/"15m" and "tertiary"/"1h" select that pipeline's depth;
// "consensus" takes the weaker of primary and secondary; anything else falls
// back to the primary pipeline.
func ConfidenceModifierForSource(source string, primaryDepth, secondaryDepth, tertiaryDepth int) float64 {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "secondary", "15m":
		return ConfidenceModifierForDepth(secondaryDepth)
	case "tertiary", "1h":
		return ConfidenceModifierForDepth(tertiaryDepth)
	case "consensus", "consensus_min":
		primary := ConfidenceModifierForDepth(primaryDepth)
		secondary := ConfidenceModifierForDepth(secondaryDepth)
		if secondary < primary {
			return secondary
		}
		return primary
	default:
		return ConfidenceModifierForDepth(primaryDepth)
	}
}
