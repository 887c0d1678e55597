package regime

import (
	"math"
	"testing"
)

func TestQualityTierForDepth_Boundaries(t *testing.T) {
	cases := []struct {
		depth int
		want  string
	}{
		{-10, "shallow"},
		{0, "shallow"},
		{999, "shallow"},
		{1000, "baseline"},
		{2499, "baseline"},
		{2500, "deep"},
		{3999, "deep"},
		{4000, "full"},
	}

	for _, tc := range cases {
		if got := QualityTierForDepth(tc.depth); got != tc.want {
			t.Errorf("QualityTierForDepth(%d): got %q, want %q", tc.depth, got, tc.want)
		}
	}
}

func TestConfidenceModifierForDepth(t *testing.T) {
	cases := []struct {
		depth int
		want  float64
	}{
		{500, 0.70},
		{1500, 0.85},
		{3000, 0.95},
		{5000, 1.00},
	}

	for _, tc := range cases {
		if got := ConfidenceModifierForDepth(tc.depth); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ConfidenceModifierForDepth(%d): got %.4f, want %.4f", tc.depth, got, tc.want)
		}
	}
}

func TestConfidenceModifierForSource(t *testing.T) {
	primary := 900
	secondary := 2800
	tertiary := 4200

	cases := []struct {
		source string
		want   float64
	}{
		{"primary", 0.70},
		{"secondary", 0.95},
		{"15m", 0.95},
		{"tertiary", 1.00},
		{"1h", 1.00},
		{"consensus", 0.70},
		{"consensus_min", 0.70},
		{"  Secondary ", 0.95},
		{"anything-else", 0.70},
	}

	for _, tc := range cases {
		got := ConfidenceModifierForSource(tc.source, primary, secondary, tertiary)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ConfidenceModifierForSource(%q): got %.4f, want %.4f", tc.source, got, tc.want)
		}
	}
}
