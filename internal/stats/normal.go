package stats

import "math"

// Abramowitz and Stegun, Handbook of Mathematical Functions, formula 7.1.26.
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// NormalCDF approximates the cumulative distribution function of the
// standard normal distribution. The rational approximation is applied to
// |x| and negative inputs use the symmetry Φ(-x) = 1 - Φ(x), so the
// result is exact in sign and accurate to about 1.5e-7.
func NormalCDF(x float64) float64 {
	if x < 0 {
		return 1 - NormalCDF(-x)
	}

	z := x / math.Sqrt2
	t := 1.0 / (1.0 + asP*z)
	erf := 1.0 - (((((asA5*t+asA4)*t)+asA3)*t+asA2)*t+asA1)*t*math.Exp(-z*z)

	return 0.5 * (1.0 + erf)
}

// TwoTailedPValue returns 2·(1 − Φ(|z|)).
func TwoTailedPValue(z float64) float64 {
	p := 2 * (1 - NormalCDF(math.Abs(z)))
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}
