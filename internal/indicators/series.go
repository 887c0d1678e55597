package indicators

import "math"

// EMASeries calculates exponential moving average over the whole series.
// Smoothing alpha is derived from the span (2 / (span + 1)), seeded with the
// first value so the output has the same length as the input.
func EMASeries(series []float64, span int) []float64 {
	if len(series) == 0 {
		return nil
	}

	useSpan := span
	if useSpan < 1 {
		useSpan = 1
	}
	alpha := 2.0 / (float64(useSpan) + 1.0)

	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1.0-alpha)*out[i-1]
	}

	return out
}

// Diff calculates the first difference of a series. Index 0 is 0 by
// convention so the output keeps the input length.
func Diff(series []float64) []float64 {
	if len(series) == 0 {
		return nil
	}

	out := make([]float64, len(series))
	out[0] = 0
	for i := 1; i < len(series); i++ {
		out[i] = series[i] - series[i-1]
	}

	return out
}

// RSISeries calculates the relative strength index using Wilder smoothing.
// Values at indices <= period are NaN (warm-up window): the average gain and
// loss are seeded as the plain average of the first `period` deltas, then
// smoothed with weight 1/period.
func RSISeries(closes []float64, period int) []float64 {
	if len(closes) == 0 {
		return nil
	}

	n := len(closes)
	p := period
	if p < 1 {
		p = 1
	}

	rsi := make([]float64, n)
	for i := range rsi {
		rsi[i] = math.NaN()
	}
	if n <= p {
		return rsi
	}

	gains := make([]float64, n-1)
	losses := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < p; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(p)
	avgLoss /= float64(p)

	rs := avgGain / math.Max(avgLoss, 1e-10)
	rsi[p] = 100.0 - 100.0/(1.0+rs)

	for i := p + 1; i < n; i++ {
		avgGain = (avgGain*(float64(p)-1.0) + gains[i-1]) / float64(p)
		avgLoss = (avgLoss*(float64(p)-1.0) + losses[i-1]) / float64(p)
		rs = avgGain / math.Max(avgLoss, 1e-10)
		rsi[i] = 100.0 - 100.0/(1.0+rs)
	}

	return rsi
}

// Clamp limits value to the [lo, hi] range
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// NormalizeProbs3 normalizes a 3-entry probability vector. Negative and
// non-finite entries are zeroed first; a degenerate sum falls back to the
// ranging-biased prior [0, 1, 0].
func NormalizeProbs3(probs [3]float64) [3]float64 {
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			probs[i] = 0
		}
	}

	sum := probs[0] + probs[1] + probs[2]
	if sum <= 0 {
		return [3]float64{0, 1, 0}
	}

	return [3]float64{probs[0] / sum, probs[1] / sum, probs[2] / sum}
}
