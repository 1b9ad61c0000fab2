package domain

import (
	"math"
	"sort"
)

// Descriptive statistics shared by the baseline estimator and the dynamic
// threshold calculator. Non-finite inputs are dropped before any computation
// so no statistic can propagate a NaN or an infinity.

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func filterFinite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	vals := filterFinite(values)
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stdDev is the population standard deviation. A series with fewer than two
// points has zero dispersion.
func stdDev(values []float64) float64 {
	vals := filterFinite(values)
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var sumSq float64
	for _, v := range vals {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}

// percentile computes the p-th percentile (0-100) with linear interpolation
// between order statistics. A single point is its own percentile for every p.
func percentile(values []float64, p float64) float64 {
	vals := filterFinite(values)
	if len(vals) == 0 {
		return 0
	}
	if len(vals) == 1 {
		return vals[0]
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func median(values []float64) float64 {
	return percentile(values, 50)
}

// clamp01 bounds a confidence to [0,1]; NaN collapses to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// safeRatio divides num by den only when den is positive, matching the
// division guards for CTR and ROAS. Anything non-finite coerces to 0.
func safeRatio(num, den float64) float64 {
	if !isFinite(num) || !isFinite(den) || den <= 0 {
		return 0
	}
	return sanitize(num / den)
}
