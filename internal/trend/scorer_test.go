package trend

import (
	"math"
	"testing"
	"time"

	"github.com/selivandex/regime-bot/pkg/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = models.Candle{
			Symbol:    "BTC/USDT",
			Timeframe: "5m",
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      models.NewDecimal(c),
			High:      models.NewDecimal(c * 1.001),
			Low:       models.NewDecimal(c * 0.999),
			Close:     models.NewDecimal(c),
			Volume:    models.NewDecimal(100),
		}
	}
	return candles
}

func TestScore_InsufficientData(t *testing.T) {
	scorer := NewScorer()
	if _, err := scorer.Score(candlesFromCloses(make([]float64, 30))); err == nil {
		t.Error("Expected error for too few candles")
	}
}

func TestScore_Uptrend(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100.0 + float64(i)*0.5
	}

	scorer := NewScorer()
	score, err := scorer.Score(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score <= 0 {
		t.Errorf("Expected positive score for steady uptrend, got %.4f", score)
	}
	if score > 1.0 {
		t.Errorf("Score should be clamped to 1.0, got %.4f", score)
	}
}

func TestScore_Downtrend(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 200.0 - float64(i)*0.5
	}

	scorer := NewScorer()
	score, err := scorer.Score(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score >= 0 {
		t.Errorf("Expected negative score for steady downtrend, got %.4f", score)
	}
	if score < -1.0 {
		t.Errorf("Score should be clamped to -1.0, got %.4f", score)
	}
}

func TestScore_SidewaysMarket(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100.0 + 0.2*math.Sin(float64(i)/3.0)
	}

	scorer := NewScorer()
	score, err := scorer.Score(candlesFromCloses(closes))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score) > 0.5 {
		t.Errorf("Expected weak score for sideways market, got %.4f", score)
	}
}
