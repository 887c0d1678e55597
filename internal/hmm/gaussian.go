package hmm

import (
	"fmt"
	"math"
	"sort"
)

const (
	eps = 1e-12
	// minVariance floors every covariance entry to keep densities well-defined
	minVariance = 1e-6
)

// GaussianHmm is an N-state hidden Markov model with diagonal-covariance
// Gaussian emissions, trained with numerically scaled Baum-Welch.
type GaussianHmm struct {
	nStates       int
	nFeatures     int
	trained       bool
	trainingDepth int

	initialProbs     []float64
	transitionMatrix [][]float64
	means            [][]float64
	covars           [][]float64
}

// New creates an untrained model. State count is clamped to at least 2 and
// feature count to at least 1.
func New(nStates, nFeatures int) *GaussianHmm {
	states := nStates
	if states < 2 {
		states = 2
	}
	features := nFeatures
	if features < 1 {
		features = 1
	}

	m := &GaussianHmm{
		nStates:          states,
		nFeatures:        features,
		initialProbs:     uniformProbs(states),
		transitionMatrix: defaultTransition(states),
		means:            zeroMatrix(states, features),
		covars:           onesMatrix(states, features),
	}
	return m
}

// Trained reports whether Fit has completed at least once
func (m *GaussianHmm) Trained() bool {
	return m.trained
}

// TrainingDepth returns the number of observations used in the last fit
func (m *GaussianHmm) TrainingDepth() int {
	return m.trainingDepth
}

// NStates returns the state count
func (m *GaussianHmm) NStates() int {
	return m.nStates
}

// Means returns the learned per-state feature means
func (m *GaussianHmm) Means() [][]float64 {
	return m.means
}

// InitialProbs returns the initial state distribution
func (m *GaussianHmm) InitialProbs() []float64 {
	return m.initialProbs
}

// TransitionMatrix returns the state transition matrix
func (m *GaussianHmm) TransitionMatrix() [][]float64 {
	return m.transitionMatrix
}

// Fit trains the model on 4-feature observation rows using Baum-Welch
// expectation-maximization. Requires at least 2 observations.
func (m *GaussianHmm) Fit(observations [][4]float64, nIter int) error {
	if len(observations) < 2 {
		return fmt.Errorf("need at least 2 observations, got %d", len(observations))
	}
	if m.nFeatures != 4 {
		return fmt.Errorf("model expects 4-feature observations, configured for %d", m.nFeatures)
	}

	m.initializeFromData(observations)

	iters := nIter
	if iters < 1 {
		iters = 1
	}

	for iter := 0; iter < iters; iter++ {
		emissions := m.emissionLikelihoods(observations)
		alpha, scales := m.forwardScaled(emissions)
		beta := m.backwardScaled(emissions, scales)
		gamma := computeGamma(alpha, beta)
		xiSum, gammaSumTrans := m.computeXiSums(alpha, beta, emissions)

		copy(m.initialProbs, gamma[0])
		normalizeProbsInPlace(m.initialProbs)

		for i := 0; i < m.nStates; i++ {
			if gammaSumTrans[i] <= eps {
				// no occupancy: keep previous row
				continue
			}
			for j := 0; j < m.nStates; j++ {
				m.transitionMatrix[i][j] = xiSum[i][j] / gammaSumTrans[i]
			}
			normalizeProbsInPlace(m.transitionMatrix[i])
		}

		m.updateEmissions(observations, gamma)
	}

	m.trained = true
	m.trainingDepth = len(observations)
	return nil
}

// PredictLastProba runs the scaled forward pass over the observation window
// and returns the final time step's state posterior. An untrained model or an
// empty window yields the default distribution. Only forward filtering is used
// so the posterior is usable online without lookahead.
func (m *GaussianHmm) PredictLastProba(observations [][4]float64) []float64 {
	if !m.trained || len(observations) == 0 {
		return m.defaultProbs()
	}

	emissions := m.emissionLikelihoods(observations)
	alpha, _ := m.forwardScaled(emissions)

	last := alpha[len(alpha)-1]
	out := make([]float64, len(last))
	copy(out, last)
	return out
}

// LabelMapByFeature sorts states ascending by their learned mean along the
// given feature and returns the permutation from raw state index to semantic
// label (0 lowest mean, 2 highest). Only available for trained 3-state models.
func (m *GaussianHmm) LabelMapByFeature(featureIdx int) ([]int, bool) {
	if !m.trained || m.nStates != 3 || featureIdx < 0 || featureIdx >= m.nFeatures {
		return nil, false
	}

	order := []int{0, 1, 2}
	sort.SliceStable(order, func(a, b int) bool {
		va := m.means[order[a]][featureIdx]
		vb := m.means[order[b]][featureIdx]
		if math.IsNaN(va) || math.IsNaN(vb) {
			return false
		}
		return va < vb
	})

	labelMap := make([]int, m.nStates)
	labelMap[order[0]] = 0
	labelMap[order[1]] = 1
	labelMap[order[2]] = 2
	return labelMap, true
}

func (m *GaussianHmm) defaultProbs() []float64 {
	if m.nStates == 3 {
		// ranging-biased prior
		return []float64{0, 1, 0}
	}
	return uniformProbs(m.nStates)
}

// initializeFromData spreads seed means across the empirical range of the
// discriminating feature (ema_spread_pct) by picking quantile observations,
// while every state shares the global per-feature variance. This keeps the EM
// loop away from symmetric local optima.
func (m *GaussianHmm) initializeFromData(observations [][4]float64) {
	tLen := len(observations)

	type indexed struct {
		idx    int
		spread float64
	}
	spreadIndexed := make([]indexed, tLen)
	for i, row := range observations {
		spreadIndexed[i] = indexed{idx: i, spread: row[1]}
	}
	sort.SliceStable(spreadIndexed, func(a, b int) bool {
		va := spreadIndexed[a].spread
		vb := spreadIndexed[b].spread
		if math.IsNaN(va) || math.IsNaN(vb) {
			return false
		}
		return va < vb
	})

	globalMean := make([]float64, m.nFeatures)
	for _, row := range observations {
		for f := 0; f < m.nFeatures; f++ {
			globalMean[f] += row[f]
		}
	}
	for f := 0; f < m.nFeatures; f++ {
		globalMean[f] /= float64(tLen)
	}

	globalVar := make([]float64, m.nFeatures)
	for _, row := range observations {
		for f := 0; f < m.nFeatures; f++ {
			d := row[f] - globalMean[f]
			globalVar[f] += d * d
		}
	}
	for f := 0; f < m.nFeatures; f++ {
		globalVar[f] = math.Max(globalVar[f]/float64(tLen), minVariance)
	}

	for s := 0; s < m.nStates; s++ {
		pos := int(math.Floor((float64(s) + 0.5) * float64(tLen) / float64(m.nStates)))
		if pos > tLen-1 {
			pos = tLen - 1
		}
		seed := observations[spreadIndexed[pos].idx]

		for f := 0; f < m.nFeatures; f++ {
			m.means[s][f] = seed[f]
			m.covars[s][f] = globalVar[f]
		}
	}

	m.initialProbs = uniformProbs(m.nStates)
	m.transitionMatrix = defaultTransition(m.nStates)
}

// emissionLikelihoods computes per-step, per-state emission weights. The
// per-step maximum log-density is subtracted before exponentiating and the
// result floored at epsilon, which keeps long windows from underflowing.
func (m *GaussianHmm) emissionLikelihoods(observations [][4]float64) [][]float64 {
	out := make([][]float64, len(observations))

	logProbs := make([]float64, m.nStates)
	for t, row := range observations {
		maxLog := math.Inf(-1)
		for s := 0; s < m.nStates; s++ {
			lp := m.gaussianLogPdfDiag(row, s)
			logProbs[s] = lp
			if lp > maxLog {
				maxLog = lp
			}
		}

		out[t] = make([]float64, m.nStates)
		for s := 0; s < m.nStates; s++ {
			out[t][s] = math.Max(math.Exp(logProbs[s]-maxLog), eps)
		}
	}

	return out
}

func (m *GaussianHmm) gaussianLogPdfDiag(row [4]float64, state int) float64 {
	acc := 0.0
	for f := 0; f < m.nFeatures; f++ {
		variance := math.Max(m.covars[state][f], minVariance)
		diff := row[f] - m.means[state][f]
		acc += -0.5 * (math.Log(2.0*math.Pi*variance) + (diff*diff)/variance)
	}
	return acc
}

func (m *GaussianHmm) forwardScaled(emissions [][]float64) ([][]float64, []float64) {
	tLen := len(emissions)
	alpha := make([][]float64, tLen)
	scales := make([]float64, tLen)

	alpha[0] = make([]float64, m.nStates)
	scale0 := 0.0
	for s := 0; s < m.nStates; s++ {
		alpha[0][s] = m.initialProbs[s] * emissions[0][s]
		scale0 += alpha[0][s]
	}
	if scale0 <= eps {
		scale0 = eps
	}
	scales[0] = scale0
	for s := 0; s < m.nStates; s++ {
		alpha[0][s] /= scale0
	}

	for t := 1; t < tLen; t++ {
		alpha[t] = make([]float64, m.nStates)
		scale := 0.0
		for j := 0; j < m.nStates; j++ {
			sumPrev := 0.0
			for i := 0; i < m.nStates; i++ {
				sumPrev += alpha[t-1][i] * m.transitionMatrix[i][j]
			}
			alpha[t][j] = sumPrev * emissions[t][j]
			scale += alpha[t][j]
		}
		if scale <= eps {
			scale = eps
		}
		scales[t] = scale
		for j := 0; j < m.nStates; j++ {
			alpha[t][j] /= scale
		}
	}

	return alpha, scales
}

func (m *GaussianHmm) backwardScaled(emissions [][]float64, scales []float64) [][]float64 {
	tLen := len(emissions)
	beta := make([][]float64, tLen)
	for t := range beta {
		beta[t] = make([]float64, m.nStates)
	}

	for s := 0; s < m.nStates; s++ {
		beta[tLen-1][s] = 1.0
	}

	for t := tLen - 2; t >= 0; t-- {
		scaleNext := math.Max(scales[t+1], eps)
		for i := 0; i < m.nStates; i++ {
			sumNext := 0.0
			for j := 0; j < m.nStates; j++ {
				sumNext += m.transitionMatrix[i][j] * emissions[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = sumNext / scaleNext
		}
	}

	return beta
}

func computeGamma(alpha, beta [][]float64) [][]float64 {
	tLen := len(alpha)
	nStates := len(alpha[0])
	gamma := make([][]float64, tLen)

	for t := 0; t < tLen; t++ {
		gamma[t] = make([]float64, nStates)
		sum := 0.0
		for s := 0; s < nStates; s++ {
			gamma[t][s] = alpha[t][s] * beta[t][s]
			sum += gamma[t][s]
		}
		if sum <= eps {
			sum = eps
		}
		for s := 0; s < nStates; s++ {
			gamma[t][s] /= sum
		}
	}

	return gamma
}

// computeXiSums accumulates the pairwise transition posterior over all
// adjacent time step pairs. Steps whose own denominator degenerates to ~0 are
// skipped entirely.
func (m *GaussianHmm) computeXiSums(alpha, beta, emissions [][]float64) ([][]float64, []float64) {
	tLen := len(alpha)
	xiSum := zeroMatrix(m.nStates, m.nStates)
	gammaSumTrans := make([]float64, m.nStates)

	if tLen < 2 {
		return xiSum, gammaSumTrans
	}

	for t := 0; t < tLen-1; t++ {
		denom := 0.0
		for i := 0; i < m.nStates; i++ {
			for j := 0; j < m.nStates; j++ {
				denom += alpha[t][i] * m.transitionMatrix[i][j] * emissions[t+1][j] * beta[t+1][j]
			}
		}
		if denom <= eps {
			continue
		}

		for i := 0; i < m.nStates; i++ {
			gammaTI := 0.0
			for j := 0; j < m.nStates; j++ {
				val := alpha[t][i] * m.transitionMatrix[i][j] * emissions[t+1][j] * beta[t+1][j] / denom
				xiSum[i][j] += val
				gammaTI += val
			}
			gammaSumTrans[i] += gammaTI
		}
	}

	return xiSum, gammaSumTrans
}

// updateEmissions recomputes per-state means and variances as gamma-weighted
// statistics of the observations. States with ~0 occupancy keep their
// previous parameters.
func (m *GaussianHmm) updateEmissions(observations [][4]float64, gamma [][]float64) {
	tLen := len(observations)

	for s := 0; s < m.nStates; s++ {
		gammaSum := 0.0
		for t := 0; t < tLen; t++ {
			gammaSum += gamma[t][s]
		}
		if gammaSum <= eps {
			continue
		}

		for f := 0; f < m.nFeatures; f++ {
			num := 0.0
			for t := 0; t < tLen; t++ {
				num += gamma[t][s] * observations[t][f]
			}
			m.means[s][f] = num / gammaSum
		}

		for f := 0; f < m.nFeatures; f++ {
			varNum := 0.0
			mean := m.means[s][f]
			for t := 0; t < tLen; t++ {
				d := observations[t][f] - mean
				varNum += gamma[t][s] * d * d
			}
			m.covars[s][f] = math.Max(varNum/gammaSum, minVariance)
		}
	}
}

func normalizeProbsInPlace(values []float64) {
	sum := 0.0
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			values[i] = 0
		}
		sum += values[i]
	}

	if sum <= eps {
		uniform := 1.0 / float64(len(values))
		for i := range values {
			values[i] = uniform
		}
		return
	}

	for i := range values {
		values[i] /= sum
	}
}

func uniformProbs(n int) []float64 {
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = 1.0 / float64(n)
	}
	return probs
}

func defaultTransition(nStates int) [][]float64 {
	if nStates == 1 {
		return [][]float64{{1.0}}
	}

	offDiag := 0.20 / float64(nStates-1)
	matrix := make([][]float64, nStates)
	for i := range matrix {
		matrix[i] = make([]float64, nStates)
		for j := range matrix[i] {
			if i == j {
				matrix[i][j] = 0.80
			} else {
				matrix[i][j] = offDiag
			}
		}
	}
	return matrix
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func onesMatrix(rows, cols int) [][]float64 {
	m := zeroMatrix(rows, cols)
	for i := range m {
		for j := range m[i] {
			m[i][j] = 1.0
		}
	}
	return m
}
