package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/stats"
)

func TestNormalCDF_KnownValues(t *testing.T) {
	cases := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1, 0.841345},
		{1.96, 0.975002},
		{-1.96, 0.024998},
		{3, 0.998650},
	}

	for _, tc := range cases {
		assert.InDelta(t, tc.want, stats.NormalCDF(tc.x), 1e-6, "Φ(%v)", tc.x)
	}
}

func TestNormalCDF_Symmetry(t *testing.T) {
	for _, x := range []float64{0.1, 0.5, 1.3, 2.2, 4.0} {
		assert.InDelta(t, 1.0, stats.NormalCDF(x)+stats.NormalCDF(-x), 1e-12)
	}
}

func TestTwoProportionZTest_EqualRates(t *testing.T) {
	r := stats.TwoProportionZTest(50, 1000, 50, 1000)

	assert.False(t, r.Degenerate)
	assert.InDelta(t, 0, r.ZScore, 1e-12)
	assert.InDelta(t, 1.0, r.PValue, 1e-6)
	assert.InDelta(t, 0, r.Lift, 1e-9)
	assert.False(t, r.Significant(0.05))
}

func TestTwoProportionZTest_ClearLift(t *testing.T) {
	r := stats.TwoProportionZTest(50, 1000, 80, 1000)

	assert.Greater(t, r.ZScore, 0.0)
	assert.InDelta(t, 2.72, r.ZScore, 0.01)
	assert.Less(t, r.PValue, 0.05)
	assert.InDelta(t, 60.0, r.Lift, 1e-9)
	assert.InDelta(t, 1-r.PValue, r.Confidence, 1e-12)
	assert.True(t, r.Significant(0.05))
	assert.False(t, r.Significant(0.001))
}

func TestTwoProportionZTest_NegativeDirection(t *testing.T) {
	r := stats.TwoProportionZTest(80, 1000, 50, 1000)

	assert.Less(t, r.ZScore, 0.0)
	assert.Less(t, r.PValue, 0.05)
	assert.InDelta(t, -37.5, r.Lift, 1e-9)
}

func TestTwoProportionZTest_ZeroTrials(t *testing.T) {
	for _, tc := range [][4]int64{{0, 0, 10, 100}, {10, 100, 0, 0}, {0, 0, 0, 0}} {
		r := stats.TwoProportionZTest(tc[0], tc[1], tc[2], tc[3])
		assert.True(t, r.Degenerate)
		assert.Equal(t, 1.0, r.PValue)
		assert.Equal(t, 0.0, r.Confidence)
		assert.Equal(t, 0.0, r.ZScore)
		assert.Equal(t, 0.0, r.Lift)
	}
}

func TestTwoProportionZTest_ZeroStdErr(t *testing.T) {
	// Both arms convert nothing.
	r := stats.TwoProportionZTest(0, 500, 0, 700)
	assert.True(t, r.Degenerate)
	assert.Equal(t, 1.0, r.PValue)
	assert.Equal(t, 0.0, r.Lift)

	// Both arms convert everything.
	r = stats.TwoProportionZTest(500, 500, 700, 700)
	assert.True(t, r.Degenerate)
	assert.InDelta(t, 0, r.Lift, 1e-12)
	assert.False(t, r.Significant(0.05))
}

func TestTwoProportionZTest_OutOfRange(t *testing.T) {
	for _, c := range [][4]int64{
		{1200, 1000, 900, 1000},
		{50, 1000, 1001, 1000},
		{-1, 1000, 50, 1000},
	} {
		r := stats.TwoProportionZTest(c[0], c[1], c[2], c[3])
		assert.True(t, r.OutOfRange, "%v", c)
		assert.True(t, r.Degenerate)
		assert.Equal(t, 1.0, r.PValue)
		assert.False(t, math.IsNaN(r.StdErr))
		assert.False(t, math.IsNaN(r.ZScore))
		assert.False(t, r.Significant(0.05))
	}
}

func TestWilsonInterval_OutOfRange(t *testing.T) {
	lo, hi := stats.WilsonInterval(1200, 1000, 0.95)
	assert.Zero(t, lo)
	assert.Zero(t, hi)

	lo, hi = stats.WilsonInterval(-1, 1000, 0.95)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestInRange(t *testing.T) {
	assert.True(t, stats.InRange(0, 0))
	assert.True(t, stats.InRange(10, 10))
	assert.False(t, stats.InRange(11, 10))
	assert.False(t, stats.InRange(-1, 10))
}

func TestLift(t *testing.T) {
	assert.Equal(t, 0.0, stats.Lift(0, 0.5))
	assert.InDelta(t, 100.0, stats.Lift(0.1, 0.2), 1e-9)
	assert.InDelta(t, -50.0, stats.Lift(0.2, 0.1), 1e-9)
}

func TestWilsonInterval(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)
	assert.Equal(t, 0.0, lower)
	assert.Equal(t, 0.0, upper)

	lower, upper = stats.WilsonInterval(100, 1000, 0.95)
	assert.Less(t, lower, 0.1)
	assert.Greater(t, upper, 0.1)
	assert.InDelta(t, 0.0829, lower, 0.001)
	assert.InDelta(t, 0.1202, upper, 0.001)

	lower, upper = stats.WilsonInterval(10, 10, 0.95)
	assert.LessOrEqual(t, upper, 1.0)
	assert.Greater(t, lower, 0.6)
}

func TestCriticalValue(t *testing.T) {
	assert.InDelta(t, 1.959964, stats.CriticalValue(0.95), 1e-5)
	assert.InDelta(t, 2.575829, stats.CriticalValue(0.99), 1e-5)
	assert.True(t, math.IsInf(stats.CriticalValue(1), 1))
}

func TestWelchTTest_SeparatedMeans(t *testing.T) {
	r, err := stats.WelchTTest([]float64{1, 2, 3, 4, 5}, []float64{6, 7, 8, 9, 10})
	require.NoError(t, err)

	assert.InDelta(t, 3.0, r.ControlMean, 1e-12)
	assert.InDelta(t, 8.0, r.TestMean, 1e-12)
	assert.InDelta(t, 5.0, r.TStatistic, 1e-9)
	assert.InDelta(t, 8.0, r.DegreesOfFreedom, 1e-9)
	assert.InDelta(t, 0.001053, r.PValue, 1e-4)
}

func TestWelchTTest_SameSample(t *testing.T) {
	r, err := stats.WelchTTest([]float64{2, 4, 6}, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 0, r.TStatistic, 1e-12)
	assert.InDelta(t, 1.0, r.PValue, 1e-9)
}

func TestWelchTTest_Errors(t *testing.T) {
	_, err := stats.WelchTTest([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, stats.ErrInsufficientSamples)

	_, err = stats.WelchTTest([]float64{3, 3, 3}, []float64{3, 3})
	assert.ErrorIs(t, err, stats.ErrZeroVariance)
}
