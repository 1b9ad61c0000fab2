package domain

// ThresholdConfig controls the dynamic anomaly cutoffs. Z multipliers adapt
// sensitivity to the account's own volatility instead of a fixed percentage.
type ThresholdConfig struct {
	WindowDays       int     `yaml:"window_days" json:"window_days"`
	MinDays          int     `yaml:"min_days" json:"min_days"`
	CTRZ             float64 `yaml:"ctr_z" json:"ctr_z"`
	ROASZ            float64 `yaml:"roas_z" json:"roas_z"`
	MinDropThreshold float64 `yaml:"min_drop_threshold" json:"min_drop_threshold"`
}

// DefaultThresholdConfig returns the production threshold defaults.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		WindowDays:       30,
		MinDays:          7,
		CTRZ:             1.5,
		ROASZ:            1.0,
		MinDropThreshold: 0.08,
	}
}

func (c ThresholdConfig) withDefaults() ThresholdConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.MinDays <= 0 {
		c.MinDays = 7
	}
	if c.CTRZ <= 0 {
		c.CTRZ = 1.5
	}
	if c.ROASZ <= 0 {
		c.ROASZ = 1.0
	}
	if c.MinDropThreshold <= 0 {
		c.MinDropThreshold = 0.08
	}
	return c
}

const ctrFloor = 1e-6

// ComputeThresholds derives both anomaly cutoffs from the daily series:
// a low-CTR boundary from the dispersion of historical daily CTR, and a
// ROAS-drop boundary from the median and spread of historical day-over-day
// declines. Using the median keeps one-off outlier spikes from inflating the
// drop threshold.
func ComputeThresholds(days []DailyAggregate, cfg ThresholdConfig) ThresholdSet {
	cfg = cfg.withDefaults()
	out := EmptyThresholdSet(cfg.MinDropThreshold)

	ctrRows := computeCTRThreshold(days, cfg, &out)
	roasRows := computeROASDropThreshold(days, cfg, &out)

	out.RowsUsed = ctrRows
	if roasRows > ctrRows {
		out.RowsUsed = roasRows
	}
	return out
}

func computeCTRThreshold(days []DailyAggregate, cfg ThresholdConfig, out *ThresholdSet) int {
	valid := make([]DailyAggregate, 0, len(days))
	for _, d := range days {
		if d.Impressions > 0 {
			valid = append(valid, d)
		}
	}
	rowsUsed := len(valid)
	if rowsUsed == 0 {
		return 0
	}

	if rowsUsed < cfg.MinDays {
		// Thin history: fall back to the aggregate CTR with a relaxed 50%
		// cutoff to avoid false positives.
		var clicks, impressions float64
		for _, d := range days {
			clicks += d.Clicks
			impressions += d.Impressions
		}
		baseline := safeRatio(clicks, impressions)
		out.CTRBaseline = baseline
		out.CTRLowThreshold = maxFloat(ctrFloor, baseline*0.5)
		return rowsUsed
	}

	window := trailingWindow(valid, cfg.WindowDays)
	ctrs := make([]float64, 0, len(window))
	for _, d := range window {
		ctrs = append(ctrs, d.CTR)
	}
	baseline := mean(ctrs)
	std := stdDev(ctrs)

	threshold := baseline - cfg.CTRZ*std
	// Never non-positive, never unrealistically close to zero when the
	// historical variance is large.
	floor := maxFloat(ctrFloor, baseline*0.3)
	if threshold < floor {
		threshold = floor
	}

	out.CTRBaseline = baseline
	out.CTRStd = std
	out.CTRLowThreshold = threshold
	return rowsUsed
}

func computeROASDropThreshold(days []DailyAggregate, cfg ThresholdConfig, out *ThresholdSet) int {
	valid := make([]DailyAggregate, 0, len(days))
	for _, d := range days {
		if d.Spend > 0 {
			valid = append(valid, d)
		}
	}
	rowsUsed := len(valid)
	if rowsUsed < cfg.MinDays {
		return rowsUsed
	}

	window := trailingWindow(valid, cfg.WindowDays)
	drops := make([]float64, 0, len(window))
	for i := 1; i < len(window); i++ {
		prev := window[i-1].ROAS
		if prev == 0 {
			continue
		}
		drop := (prev - window[i].ROAS) / prev
		// Only declines inform the drop distribution.
		if isFinite(drop) && drop > 0 {
			drops = append(drops, drop)
		}
	}
	if len(drops) == 0 {
		return rowsUsed
	}

	medianDrop := median(drops)
	dropStd := stdDev(drops)
	threshold := medianDrop + cfg.ROASZ*dropStd
	if threshold < cfg.MinDropThreshold {
		threshold = cfg.MinDropThreshold
	}

	out.MedianDrop = medianDrop
	out.DropStd = dropStd
	out.ROASDropThreshold = threshold
	return rowsUsed
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
