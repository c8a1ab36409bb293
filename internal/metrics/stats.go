package metrics

import (
	"math"

	"github.com/konsulin-care/focus/internal/models"
)

// Probabilities are clamped into this interval before the inverse normal.
const (
	minProbability = 1e-5
	maxProbability = 1 - 1e-5
)

// Abramowitz and Stegun 26.2.23 coefficients.
const (
	asC0 = 2.515517
	asC1 = 0.802853
	asC2 = 0.010328
	asD1 = 1.432788
	asD2 = 0.189269
	asD3 = 0.001308
)

// ClampProbability limits p to [1e-5, 1-1e-5].
func ClampProbability(p float64) float64 {
	if math.IsNaN(p) {
		return 0.5
	}
	return math.Min(math.Max(p, minProbability), maxProbability)
}

// InvNormCDF is the rational approximation of the inverse normal used for
// D-prime. It is positive for p < 0.5 and negative for p > 0.5, and the
// sign convention of DPrime depends on that.
func InvNormCDF(p float64) float64 {
	if p == 0.5 {
		return 0
	}
	q := p
	if p > 0.5 {
		q = 1 - p
	}
	t := math.Sqrt(-2 * math.Log(q))
	num := asC0 + asC1*t + asC2*t*t
	den := 1 + asD1*t + asD2*t*t + asD3*t*t*t
	z := t - num/den
	if p > 0.5 {
		return -z
	}
	return z
}

// DPrime computes signal-detection sensitivity from a hit rate and a false
// alarm rate. Both rates are clamped first.
func DPrime(hitRate, falseAlarmRate float64) float64 {
	return InvNormCDF(ClampProbability(falseAlarmRate)) - InvNormCDF(ClampProbability(hitRate))
}

// Mean returns the arithmetic mean, or 0 for no samples.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the standard deviation dividing by n. It is 0 for fewer
// than two samples.
func StdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	avg := Mean(values)
	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - avg
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}

// ZScore returns (value-mean)/sd, or nil when sd is not a usable positive number.
func ZScore(value float64, ref models.MeanSD) *float64 {
	if math.IsNaN(ref.SD) || math.IsInf(ref.SD, 0) || ref.SD <= 0 {
		return nil
	}
	z := (value - ref.Mean) / ref.SD
	return &z
}
