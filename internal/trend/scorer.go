package trend

import (
	"fmt"

	"github.com/cinar/indicator"

	"github.com/selivandex/regime-bot/internal/indicators"
	"github.com/selivandex/regime-bot/pkg/models"
)

const minCandles = 50

// Scorer condenses classic trend indicators into a single score in [-1, 1].
// Positive values mean upward pressure, negative downward. The score is
// blended with the hmm bias signal when computing idle capital targets.
type Scorer struct {
	FastPeriod int
	SlowPeriod int
}

// NewScorer creates a scorer with the default 20/50 EMA pair
func NewScorer() *Scorer {
	return &Scorer{
		FastPeriod: 20,
		SlowPeriod: 50,
	}
}

// Score computes the trend score from candles (oldest first)
func (s *Scorer) Score(candles []models.Candle) (float64, error) {
	if len(candles) < minCandles {
		return 0, fmt.Errorf("insufficient candles for trend score (need at least %d, got %d)", minCandles, len(candles))
	}

	closes := models.Closes(candles)

	emaFast := indicator.Ema(s.FastPeriod, closes)
	emaSlow := indicator.Ema(s.SlowPeriod, closes)
	if len(emaFast) == 0 || len(emaSlow) == 0 {
		return 0, fmt.Errorf("EMA calculation failed")
	}

	price := closes[len(closes)-1]
	fast := emaFast[len(emaFast)-1]
	slow := emaSlow[len(emaSlow)-1]

	// EMA alignment: +1 when price > fast > slow, -1 for the mirror case
	alignment := 0.0
	if price > fast && fast > slow {
		alignment = 1.0
	} else if price < fast && fast < slow {
		alignment = -1.0
	}

	// MACD histogram sign scaled by price keeps the component comparable
	// across symbols
	macdLine, signalLine := indicator.Macd(closes)
	histogram := macdLine[len(macdLine)-1] - signalLine[len(signalLine)-1]
	macdComponent := indicators.Clamp(histogram/price*100.0, -1.0, 1.0)

	// RSI distance from the 50 midline, mapped onto [-1, 1]
	_, rsi := indicator.Rsi(closes)
	if len(rsi) == 0 {
		return 0, fmt.Errorf("RSI returned no data")
	}
	rsiComponent := indicators.Clamp((rsi[len(rsi)-1]-50.0)/50.0, -1.0, 1.0)

	score := 0.5*alignment + 0.3*macdComponent + 0.2*rsiComponent
	return indicators.Clamp(score, -1.0, 1.0), nil
}
