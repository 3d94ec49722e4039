package stats

import "math"

// ProportionTest is the outcome of a two-proportion z-test between a
// control arm (1) and a test arm (2).
type ProportionTest struct {
	ControlRate float64
	TestRate    float64
	PooledRate  float64
	StdErr      float64
	ZScore      float64
	PValue      float64
	Confidence  float64 // 1 - PValue
	Lift        float64 // percent change of TestRate over ControlRate

	// Degenerate is set when either arm has no trials or the pooled
	// standard error is zero. The z-score is then meaningless and the
	// comparison can never be significant.
	Degenerate bool

	// OutOfRange is set when a success count is negative or exceeds its
	// trials, so the arm is not a proportion. Degenerate is set as well.
	OutOfRange bool
}

// Significant reports whether the test rejects the null hypothesis at alpha.
func (r ProportionTest) Significant(alpha float64) bool {
	return !r.Degenerate && r.PValue < alpha
}

// TwoProportionZTest compares x1/n1 (control) against x2/n2 (test) with a
// pooled standard error.
//
// Edge cases:
//   - n1 == 0 or n2 == 0: z=0, p=1, confidence=0, lift=0.
//   - x outside [0, n] on either arm: OutOfRange, z=0, p=1, rates unset.
//   - se == 0 (all-or-nothing proportions): z=0, p=1, confidence=0, lift is
//     still computed from the raw rates.
func TwoProportionZTest(x1, n1, x2, n2 int64) ProportionTest {
	if n1 <= 0 || n2 <= 0 {
		return ProportionTest{PValue: 1, Degenerate: true}
	}
	if !InRange(x1, n1) || !InRange(x2, n2) {
		return ProportionTest{PValue: 1, Degenerate: true, OutOfRange: true}
	}

	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))

	result := ProportionTest{
		ControlRate: p1,
		TestRate:    p2,
		PooledRate:  pooled,
		StdErr:      se,
		Lift:        Lift(p1, p2),
	}

	if se == 0 || math.IsNaN(se) {
		result.StdErr = 0
		result.PValue = 1
		result.Degenerate = true
		return result
	}

	result.ZScore = (p2 - p1) / se
	result.PValue = TwoTailedPValue(result.ZScore)
	result.Confidence = 1 - result.PValue

	return result
}

// Lift returns (treatment - baseline) / baseline * 100, or 0 when the
// baseline is zero.
func Lift(baseline, treatment float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (treatment - baseline) / baseline * 100
}

// InRange reports whether successes/trials is a proportion in [0, 1].
func InRange(successes, trials int64) bool {
	return successes >= 0 && successes <= trials
}
