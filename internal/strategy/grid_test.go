package strategy

import (
	"math"
	"testing"

	"github.com/selivandex/regime-bot/internal/regime"
)

func stateWith(confidence, bias float64) regime.State {
	s := regime.DefaultState()
	s.Confidence = confidence
	s.BiasSignal = bias
	return s
}

func TestGridBias_SymmetricBelowThreshold(t *testing.T) {
	result := GridBias(stateWith(0.10, 0.8), 0.15)

	if result.Mode != ModeSymmetric {
		t.Errorf("Expected symmetric mode, got %s", result.Mode)
	}
	if result.EntrySpacingMultA != 1.0 || result.EntrySpacingMultB != 1.0 {
		t.Errorf("Symmetric mode should keep unit spacing, got %.2f/%.2f",
			result.EntrySpacingMultA, result.EntrySpacingMultB)
	}
	if result.SizeSkew != nil {
		t.Error("Symmetric mode should not override size skew")
	}
}

func TestGridBias_LongBias(t *testing.T) {
	result := GridBias(stateWith(0.4, 0.5), 0.15)

	if result.Mode != ModeLongBias {
		t.Errorf("Expected long bias, got %s", result.Mode)
	}
	if math.Abs(result.EntrySpacingMultA-1.25) > 1e-9 {
		t.Errorf("Expected side A spacing 1.25, got %.4f", result.EntrySpacingMultA)
	}
	if math.Abs(result.EntrySpacingMultB-0.85) > 1e-9 {
		t.Errorf("Expected side B spacing 0.85, got %.4f", result.EntrySpacingMultB)
	}
	if result.SizeSkew == nil {
		t.Fatal("Long bias should override size skew")
	}
	if math.Abs(*result.SizeSkew-0.15) > 1e-9 {
		t.Errorf("Expected size skew 0.15, got %.4f", *result.SizeSkew)
	}
}

func TestGridBias_ShortBias(t *testing.T) {
	result := GridBias(stateWith(0.4, -0.5), 0.15)

	if result.Mode != ModeShortBias {
		t.Errorf("Expected short bias, got %s", result.Mode)
	}
	if math.Abs(result.EntrySpacingMultA-0.85) > 1e-9 {
		t.Errorf("Expected side A spacing 0.85, got %.4f", result.EntrySpacingMultA)
	}
	if math.Abs(result.EntrySpacingMultB-1.25) > 1e-9 {
		t.Errorf("Expected side B spacing 1.25, got %.4f", result.EntrySpacingMultB)
	}
	if result.SizeSkew == nil {
		t.Fatal("Short bias should override size skew")
	}
	if math.Abs(*result.SizeSkew+0.15) > 1e-9 {
		t.Errorf("Expected size skew -0.15, got %.4f", *result.SizeSkew)
	}
}

func TestGridBias_CapsAndFloors(t *testing.T) {
	result := GridBias(stateWith(0.9, 1.0), 0.15)

	// full bias: skew caps at 0.30, tightened side floors at 0.70 (above 0.6)
	if *result.SizeSkew > maxSizeSkew+1e-12 {
		t.Errorf("Size skew should cap at %.2f, got %.4f", maxSizeSkew, *result.SizeSkew)
	}
	if result.EntrySpacingMultB < minSpacingMult {
		t.Errorf("Tightened spacing should floor at %.2f, got %.4f", minSpacingMult, result.EntrySpacingMultB)
	}
}

func TestGridBias_ZeroBiasAboveThreshold(t *testing.T) {
	// confidence passes but bias is exactly zero: not long-biased
	result := GridBias(stateWith(0.4, 0), 0.15)
	if result.Mode != ModeShortBias {
		t.Errorf("Zero bias falls through to the short branch, got %s", result.Mode)
	}
	if result.EntrySpacingMultA != 1.0 || result.EntrySpacingMultB != 1.0 {
		t.Errorf("Zero bias should keep unit spacing, got %.2f/%.2f",
			result.EntrySpacingMultA, result.EntrySpacingMultB)
	}
	if *result.SizeSkew != 0 {
		t.Errorf("Zero bias should produce zero skew, got %.4f", *result.SizeSkew)
	}
}

func TestBlendedIdleTarget(t *testing.T) {
	t.Run("pure trend", func(t *testing.T) {
		got := BlendedIdleTarget(1.0, -1.0, 1.0, 0.5, 0.2, 0.1, 0.9)
		if math.Abs(got-0.3) > 1e-9 {
			t.Errorf("Expected 0.3, got %.4f", got)
		}
	})

	t.Run("pure hmm bias", func(t *testing.T) {
		got := BlendedIdleTarget(1.0, -1.0, 0.0, 0.5, 0.2, 0.1, 0.9)
		if math.Abs(got-0.7) > 1e-9 {
			t.Errorf("Expected 0.7, got %.4f", got)
		}
	})

	t.Run("even blend", func(t *testing.T) {
		got := BlendedIdleTarget(1.0, 0.0, 0.5, 0.5, 0.2, 0.1, 0.9)
		if math.Abs(got-0.4) > 1e-9 {
			t.Errorf("Expected 0.4, got %.4f", got)
		}
	})

	t.Run("clamped to floor and ceiling", func(t *testing.T) {
		if got := BlendedIdleTarget(1.0, 1.0, 0.5, 0.5, 10, 0.1, 0.9); got != 0.1 {
			t.Errorf("Expected floor 0.1, got %.4f", got)
		}
		if got := BlendedIdleTarget(-1.0, -1.0, 0.5, 0.5, 10, 0.1, 0.9); got != 0.9 {
			t.Errorf("Expected ceiling 0.9, got %.4f", got)
		}
	})

	t.Run("blend factor clamped", func(t *testing.T) {
		// blend factor beyond 1 behaves like pure trend
		a := BlendedIdleTarget(0.8, -0.3, 5.0, 0.5, 0.2, 0.0, 1.0)
		b := BlendedIdleTarget(0.8, -0.3, 1.0, 0.5, 0.2, 0.0, 1.0)
		if math.Abs(a-b) > 1e-12 {
			t.Errorf("Blend factor should clamp to [0,1]: %.6f vs %.6f", a, b)
		}
	})
}
