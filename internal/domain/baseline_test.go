package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steadyDays builds n constant-performance days ending 2025-06-30.
func steadyDays(n int, ctrClicks, roasRevenue float64) []DailyAggregate {
	end := day(2025, 6, 30)
	days := make([]DailyAggregate, 0, n)
	for i := n - 1; i >= 0; i-- {
		d := DailyAggregate{
			Date:        end.Add(-time.Duration(i) * 24 * time.Hour),
			Spend:       100,
			Impressions: 1000,
			Clicks:      ctrClicks,
			Revenue:     roasRevenue,
		}
		d.CTR = d.Clicks / d.Impressions
		d.ROAS = d.Revenue / d.Spend
		days = append(days, d)
	}
	return days
}

func TestComputeBaseline_SteadyWindow(t *testing.T) {
	days := steadyDays(10, 10, 300)

	b := ComputeBaseline(days, DefaultBaselineConfig())

	assert.InDelta(t, 0.01, b.CTRBaseline, 1e-9)
	assert.InDelta(t, 3.0, b.ROASBaseline, 1e-9)
	assert.InDelta(t, 3.0, b.ROASP10, 1e-9)
	assert.InDelta(t, 3.0, b.ROASP90, 1e-9)
	assert.Equal(t, 10, b.RowsUsed)
}

func TestComputeBaseline_TrailingWindowCut(t *testing.T) {
	// 40 valid days, but only the trailing 30 calendar days feed the mean.
	days := steadyDays(40, 10, 300)
	// Make the oldest 10 days wildly different; they must be excluded.
	for i := 0; i < 10; i++ {
		days[i].Revenue = 10000
		days[i].ROAS = days[i].Revenue / days[i].Spend
	}

	b := ComputeBaseline(days, DefaultBaselineConfig())

	assert.InDelta(t, 3.0, b.ROASBaseline, 1e-9, "stale days outside the window must not contribute")
	assert.Equal(t, 40, b.RowsUsed)
}

func TestComputeBaseline_SmallSampleFallback(t *testing.T) {
	// 5 days with min_days=7 takes the aggregate path: mean of sums, not
	// mean of per-day ratios.
	days := []DailyAggregate{
		{Date: day(2025, 6, 1), Spend: 10, Impressions: 100, Clicks: 1, Revenue: 30},
		{Date: day(2025, 6, 2), Spend: 10, Impressions: 100, Clicks: 1, Revenue: 30},
		{Date: day(2025, 6, 3), Spend: 10, Impressions: 100, Clicks: 1, Revenue: 30},
		{Date: day(2025, 6, 4), Spend: 10, Impressions: 100, Clicks: 1, Revenue: 30},
		{Date: day(2025, 6, 5), Spend: 60, Impressions: 600, Clicks: 12, Revenue: 60},
	}
	for i := range days {
		days[i].CTR = days[i].Clicks / days[i].Impressions
		days[i].ROAS = days[i].Revenue / days[i].Spend
	}

	b := ComputeBaseline(days, DefaultBaselineConfig())

	require.Less(t, b.RowsUsed, 7)
	assert.Equal(t, 5, b.RowsUsed)
	assert.InDelta(t, 16.0/1000.0, b.CTRBaseline, 1e-9) // sum clicks / sum impressions
	assert.InDelta(t, 180.0/100.0, b.ROASBaseline, 1e-9)
	assert.InDelta(t, b.ROASBaseline, b.ROASP10, 1e-9)
	assert.InDelta(t, b.ROASBaseline, b.ROASP90, 1e-9)
}

func TestComputeBaseline_EmptyInput(t *testing.T) {
	b := ComputeBaseline(nil, DefaultBaselineConfig())

	assert.Equal(t, EmptyBaseline(), b)
	assert.Zero(t, b.RowsUsed)
}

func TestComputeBaseline_IgnoresInvalidDays(t *testing.T) {
	days := steadyDays(10, 10, 300)
	// A zero-impression day has no defined CTR and must not count.
	days = append(days, DailyAggregate{Date: day(2025, 7, 1), Spend: 100, Revenue: 300, ROAS: 3})

	b := ComputeBaseline(days, DefaultBaselineConfig())

	assert.Equal(t, 10, b.RowsUsed)
	assert.InDelta(t, 0.01, b.CTRBaseline, 1e-9)
}
