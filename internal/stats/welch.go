package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInsufficientSamples indicates fewer than two observations in an arm.
	ErrInsufficientSamples = errors.New("insufficient samples for statistical analysis")

	// ErrZeroVariance indicates both arms have zero sample variance.
	ErrZeroVariance = errors.New("sample set has zero variance")
)

// TTestResult holds the outcome of Welch's t-test on two sample sets.
type TTestResult struct {
	ControlMean      float64
	TestMean         float64
	TStatistic       float64 // positive when the test mean is larger
	DegreesOfFreedom float64
	PValue           float64 // two-tailed
}

// WelchTTest compares the means of two samples without assuming equal
// variances. The p-value comes from the Student's t distribution with
// Welch–Satterthwaite degrees of freedom.
//
// Thread Safety: stateless, safe for concurrent use.
func WelchTTest(control, test []float64) (TTestResult, error) {
	if len(control) < 2 || len(test) < 2 {
		return TTestResult{}, ErrInsufficientSamples
	}

	m1, v1 := stat.MeanVariance(control, nil)
	m2, v2 := stat.MeanVariance(test, nil)
	n1 := float64(len(control))
	n2 := float64(len(test))

	se2 := v1/n1 + v2/n2
	if se2 == 0 {
		return TTestResult{ControlMean: m1, TestMean: m2, PValue: 1}, ErrZeroVariance
	}

	t := (m2 - m1) / math.Sqrt(se2)

	denom := math.Pow(v1/n1, 2)/(n1-1) + math.Pow(v2/n2, 2)/(n2-1)
	df := se2 * se2 / denom

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}

	return TTestResult{
		ControlMean:      m1,
		TestMean:         m2,
		TStatistic:       t,
		DegreesOfFreedom: df,
		PValue:           p,
	}, nil
}
