package domain

// PctDelta computes the relative change of latest against a baseline.
// Both zero is no change. A zero baseline with a nonzero latest has no
// defined relative change; that case is reported through the boolean flag
// instead of a non-finite float.
func PctDelta(latest, baseline float64) (delta float64, undefined bool) {
	if baseline == 0 {
		if latest == 0 {
			return 0, false
		}
		return 0, true
	}
	return sanitize((latest - baseline) / baseline), false
}

// BuildEvidence joins the current-period summary with the baseline into the
// immutable snapshot consumed by every hypothesis evaluation in a run.
//
// Current CTR comes from total clicks over total impressions (summing before
// dividing avoids small-campaign bias); current ROAS is the most recent
// day's value, reflecting what just happened rather than a smoothed trend.
func BuildEvidence(summary Summary, baseline Baseline) Evidence {
	var lastCTR float64
	if len(summary.Campaigns) > 0 {
		var clicks, impressions float64
		for _, c := range summary.Campaigns {
			clicks += c.Clicks
			impressions += c.Impressions
		}
		lastCTR = safeRatio(clicks, impressions)
	} else {
		lastCTR = safeRatio(summary.Totals.Clicks, summary.Totals.Impressions)
	}

	var lastROAS float64
	if len(summary.Days) > 0 {
		lastROAS = summary.Days[len(summary.Days)-1].ROAS
	}

	ctrDelta, ctrUndef := PctDelta(lastCTR, baseline.CTRBaseline)
	roasDelta, roasUndef := PctDelta(lastROAS, baseline.ROASBaseline)

	return Evidence{
		LastCTR:             sanitize(lastCTR),
		CTRBaseline:         sanitize(baseline.CTRBaseline),
		CTRDeltaPct:         ctrDelta,
		CTRDeltaUndefined:   ctrUndef,
		LastROAS:            sanitize(lastROAS),
		ROASBaseline:        sanitize(baseline.ROASBaseline),
		ROASDeltaPct:        roasDelta,
		ROASDeltaUndefined:  roasUndef,
		RowsUsedForBaseline: baseline.RowsUsed,
	}
}
