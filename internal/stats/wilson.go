package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// WilsonInterval calculates the Wilson score confidence interval for a
// binomial proportion at the given two-sided confidence level. It behaves
// better than the normal approximation for small samples and rates near
// 0 or 1. Counts outside [0, trials] have no interval and yield (0, 0).
func WilsonInterval(successes, trials int64, confidence float64) (lower, upper float64) {
	if trials <= 0 || !InRange(successes, trials) {
		return 0, 0
	}

	z := CriticalValue(confidence)
	p := float64(successes) / float64(trials)
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return math.Max(0, center-spread), math.Min(1, center+spread)
}

// CriticalValue returns the two-sided standard normal critical value for a
// confidence level, e.g. 0.95 -> 1.959964.
func CriticalValue(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	if confidence >= 1 {
		return math.Inf(1)
	}
	return distuv.UnitNormal.Quantile(1 - (1-confidence)/2)
}
