package config

import "testing"

func TestHMMConfig_NormalizedAppliesFloors(t *testing.T) {
	cfg := HMMConfig{
		NStates:             7,
		NIter:               3,
		InferenceWindow:     1,
		ConfidenceThreshold: -0.2,
		RetrainIntervalSec:  0,
		MinTrainSamples:     1,
		BiasGain:            -1,
		BlendWithTrend:      1.8,
	}

	out := cfg.Normalized()

	if out.NStates != 3 {
		t.Errorf("NStates should be forced to 3, got %d", out.NStates)
	}
	if out.NIter != 10 {
		t.Errorf("NIter floor is 10, got %d", out.NIter)
	}
	if out.InferenceWindow != 5 {
		t.Errorf("InferenceWindow floor is 5, got %d", out.InferenceWindow)
	}
	if out.ConfidenceThreshold != 0 {
		t.Errorf("ConfidenceThreshold floor is 0, got %.4f", out.ConfidenceThreshold)
	}
	if out.RetrainIntervalSec != 1 {
		t.Errorf("RetrainIntervalSec floor is 1, got %.4f", out.RetrainIntervalSec)
	}
	if out.MinTrainSamples != 5 {
		t.Errorf("MinTrainSamples floor is 5, got %d", out.MinTrainSamples)
	}
	if out.BiasGain != 0 {
		t.Errorf("BiasGain floor is 0, got %.4f", out.BiasGain)
	}
	if out.BlendWithTrend != 1 {
		t.Errorf("BlendWithTrend should be clamped to 1, got %.4f", out.BlendWithTrend)
	}
}

func TestHMMConfig_NormalizedKeepsValidValues(t *testing.T) {
	cfg := HMMConfig{
		NStates:             3,
		NIter:               100,
		InferenceWindow:     50,
		ConfidenceThreshold: 0.15,
		RetrainIntervalSec:  86400,
		MinTrainSamples:     500,
		BiasGain:            1.0,
		BlendWithTrend:      0.5,
	}

	if cfg.Normalized() != cfg {
		t.Errorf("Valid config should pass through unchanged: %+v", cfg.Normalized())
	}
}
