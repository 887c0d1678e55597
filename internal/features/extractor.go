package features

import (
	"fmt"
	"math"

	"github.com/selivandex/regime-bot/internal/indicators"
)

// Row is one observation for the regime model:
// [macd_hist_slope, ema_spread_pct, rsi_zone, volume_ratio]
type Row = [4]float64

// Extractor converts aligned close/volume series into feature rows
type Extractor struct {
	FastEMAPeriods  int
	SlowEMAPeriods  int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	RSIPeriod       int
	VolumeAvgPeriod int
}

// NewExtractor creates extractor with standard periods
func NewExtractor() *Extractor {
	return &Extractor{
		FastEMAPeriods:  9,
		SlowEMAPeriods:  21,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		RSIPeriod:       14,
		VolumeAvgPeriod: 20,
	}
}

// ExtractRows builds feature rows from closes and volumes. The two series
// must have the same length. Fewer than 2 points yields an empty result
// without an error. Rows containing any non-finite component (RSI warm-up,
// degenerate prices) are dropped, so the output can be shorter than the input.
func (e *Extractor) ExtractRows(closes, volumes []float64) ([]Row, error) {
	if len(closes) != len(volumes) {
		return nil, fmt.Errorf("closes and volumes must be same length (got %d and %d)", len(closes), len(volumes))
	}
	if len(closes) < 2 {
		return []Row{}, nil
	}

	fastEMA := indicators.EMASeries(closes, e.FastEMAPeriods)
	slowEMA := indicators.EMASeries(closes, e.SlowEMAPeriods)

	macdFastEMA := indicators.EMASeries(closes, e.MACDFast)
	macdSlowEMA := indicators.EMASeries(closes, e.MACDSlow)
	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = macdFastEMA[i] - macdSlowEMA[i]
	}
	macdSignal := indicators.EMASeries(macdLine, e.MACDSignal)
	macdHist := make([]float64, len(closes))
	for i := range closes {
		macdHist[i] = macdLine[i] - macdSignal[i]
	}
	macdHistSlope := indicators.Diff(macdHist)

	rsiRaw := indicators.RSISeries(closes, e.RSIPeriod)

	volAvg := indicators.EMASeries(volumes, e.VolumeAvgPeriod)

	out := make([]Row, 0, len(closes))
	for i := range closes {
		slow := slowEMA[i]
		emaSpreadPct := 0.0
		if math.Abs(slow) > 1e-10 {
			emaSpreadPct = (fastEMA[i] - slow) / slow
		}

		rsiZone := math.NaN()
		if !math.IsNaN(rsiRaw[i]) && !math.IsInf(rsiRaw[i], 0) {
			rsiZone = indicators.Clamp((rsiRaw[i]-50.0)/50.0, -1.0, 1.0)
		}

		denom := math.Max(math.Abs(volAvg[i]), 1e-10)
		volumeRatio := volumes[i] / denom

		row := Row{macdHistSlope[i], emaSpreadPct, rsiZone, volumeRatio}
		if rowFinite(row) {
			out = append(out, row)
		}
	}

	return out, nil
}

// Extract returns the rows as plain slices for external consumers
func (e *Extractor) Extract(closes, volumes []float64) ([][]float64, error) {
	rows, err := e.ExtractRows(closes, volumes)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = []float64{r[0], r[1], r[2], r[3]}
	}
	return out, nil
}

func rowFinite(row Row) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
