package domain

import "time"

// BaselineConfig controls the trailing window for baseline estimation.
type BaselineConfig struct {
	WindowDays int `yaml:"window_days" json:"window_days"`
	MinDays    int `yaml:"min_days" json:"min_days"`
}

// DefaultBaselineConfig returns the production windowing defaults.
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{WindowDays: 30, MinDays: 7}
}

func (c BaselineConfig) withDefaults() BaselineConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.MinDays <= 0 {
		c.MinDays = 7
	}
	return c
}

// validBaselineDays keeps days where both rates are defined, i.e. the day
// had positive impressions and positive spend.
func validBaselineDays(days []DailyAggregate) []DailyAggregate {
	out := make([]DailyAggregate, 0, len(days))
	for _, d := range days {
		if d.Impressions > 0 && d.Spend > 0 {
			out = append(out, d)
		}
	}
	return out
}

// trailingWindow restricts days to the window_days calendar days ending at
// the maximum date present. Days must be sorted ascending.
func trailingWindow(days []DailyAggregate, windowDays int) []DailyAggregate {
	if len(days) <= windowDays {
		return days
	}
	cut := days[len(days)-1].Date.Add(-time.Duration(windowDays) * 24 * time.Hour)
	out := make([]DailyAggregate, 0, windowDays)
	for _, d := range days {
		if d.Date.After(cut) {
			out = append(out, d)
		}
	}
	return out
}

// ComputeBaseline derives the historical CTR/ROAS reference point from the
// daily series. With fewer than MinDays valid days it falls back to the
// aggregate-over-all-days ratio (mean of sums, not mean of per-day ratios)
// and signals low trust through RowsUsed. The result is always structurally
// complete, even on empty input.
func ComputeBaseline(days []DailyAggregate, cfg BaselineConfig) Baseline {
	cfg = cfg.withDefaults()

	valid := validBaselineDays(days)
	rowsUsed := len(valid)
	if rowsUsed == 0 {
		return EmptyBaseline()
	}

	if rowsUsed < cfg.MinDays {
		var spend, impressions, clicks, revenue float64
		for _, d := range days {
			spend += d.Spend
			impressions += d.Impressions
			clicks += d.Clicks
			revenue += d.Revenue
		}
		ctr := safeRatio(clicks, impressions)
		roas := safeRatio(revenue, spend)
		// A single aggregate point is its own percentile band.
		return Baseline{
			CTRBaseline:  ctr,
			CTRP10:       ctr,
			CTRP90:       ctr,
			ROASBaseline: roas,
			ROASP10:      roas,
			ROASP90:      roas,
			RowsUsed:     rowsUsed,
		}
	}

	window := trailingWindow(valid, cfg.WindowDays)
	ctrs := make([]float64, 0, len(window))
	roass := make([]float64, 0, len(window))
	for _, d := range window {
		ctrs = append(ctrs, d.CTR)
		roass = append(roass, d.ROAS)
	}

	return Baseline{
		CTRBaseline:  mean(ctrs),
		CTRP10:       percentile(ctrs, 10),
		CTRP90:       percentile(ctrs, 90),
		ROASBaseline: mean(roass),
		ROASP10:      percentile(roass, 10),
		ROASP90:      percentile(roass, 90),
		RowsUsed:     rowsUsed,
	}
}
