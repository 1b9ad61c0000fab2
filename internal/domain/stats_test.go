package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile_LinearInterpolation(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 3.0, percentile(vals, 50), 1e-12)
	assert.InDelta(t, 1.4, percentile(vals, 10), 1e-12)
	assert.InDelta(t, 4.6, percentile(vals, 90), 1e-12)
	assert.InDelta(t, 1.0, percentile(vals, 0), 1e-12)
	assert.InDelta(t, 5.0, percentile(vals, 100), 1e-12)
}

func TestPercentile_DegenerateInputs(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.InDelta(t, 7.0, percentile([]float64{7}, 10), 1e-12, "single value is its own percentile")
	assert.InDelta(t, 2.0, percentile([]float64{2, math.NaN(), math.Inf(1)}, 90), 1e-12)
}

func TestStdDev_Population(t *testing.T) {
	assert.Zero(t, stdDev([]float64{3}))
	assert.InDelta(t, 2.0, stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}

func TestMean_IgnoresNonFinite(t *testing.T) {
	assert.InDelta(t, 2.0, mean([]float64{1, 3, math.NaN()}), 1e-12)
	assert.Zero(t, mean(nil))
}

func TestClamp01(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{5.0, 1.0},
		{-0.5, 0.0},
		{0.42, 0.42},
		{math.NaN(), 0.0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, clamp01(tc.in), 1e-12)
	}
}

func TestSafeRatio(t *testing.T) {
	assert.InDelta(t, 0.5, safeRatio(1, 2), 1e-12)
	assert.Zero(t, safeRatio(1, 0))
	assert.Zero(t, safeRatio(1, -2))
	assert.Zero(t, safeRatio(math.NaN(), 2))
	assert.Zero(t, safeRatio(2, math.Inf(1)))
}
