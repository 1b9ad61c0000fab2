package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Row is one raw observation of campaign performance. Rows are owned by the
// caller and never mutated by the engine. Negative values (refunds) and
// NaN/Inf cells are tolerated; the aggregator coerces them.
type Row struct {
	Date        time.Time `json:"date"`
	Campaign    string    `json:"campaign,omitempty"`
	Creative    string    `json:"creative_id,omitempty"`
	Spend       float64   `json:"spend"`
	Impressions float64   `json:"impressions"`
	Clicks      float64   `json:"clicks"`
	Revenue     float64   `json:"revenue"`
}

// DailyAggregate is the per-calendar-day rollup of raw rows with derived
// rates. CTR and ROAS are 0 when their denominators are not positive.
type DailyAggregate struct {
	Date        time.Time `json:"date"`
	Spend       float64   `json:"spend"`
	Impressions float64   `json:"impressions"`
	Clicks      float64   `json:"clicks"`
	Revenue     float64   `json:"revenue"`
	CTR         float64   `json:"ctr"`
	ROAS        float64   `json:"roas"`
}

// CampaignAggregate mirrors DailyAggregate but is keyed by campaign id.
type CampaignAggregate struct {
	Campaign    string  `json:"campaign"`
	Spend       float64 `json:"spend"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Revenue     float64 `json:"revenue"`
	CTR         float64 `json:"ctr"`
	ROAS        float64 `json:"roas"`
}

// Totals holds global sums over every input row, including rows whose
// grouping key could not be resolved.
type Totals struct {
	Spend       float64 `json:"total_spend"`
	Impressions float64 `json:"total_impressions"`
	Clicks      float64 `json:"total_clicks"`
	Revenue     float64 `json:"total_revenue"`
	Rows        int     `json:"total_rows"`
	Creatives   int     `json:"num_creatives"`
}

// QualityCounters records data defects that were coerced rather than raised.
type QualityCounters struct {
	MissingDates     int `json:"missing_dates"`
	MissingCampaigns int `json:"missing_campaigns"`
	NonFiniteCells   int `json:"non_finite_cells"`
}

// Baseline is the historical reference point for CTR and ROAS over a
// trailing window. Immutable after construction; safe to share by reference
// across concurrent readers.
type Baseline struct {
	CTRBaseline  float64 `json:"ctr_baseline"`
	CTRP10       float64 `json:"ctr_pctile_10"`
	CTRP90       float64 `json:"ctr_pctile_90"`
	ROASBaseline float64 `json:"roas_baseline"`
	ROASP10      float64 `json:"roas_pctile_10"`
	ROASP90      float64 `json:"roas_pctile_90"`
	RowsUsed     int     `json:"rows_used"`
}

// EmptyBaseline returns the structurally complete zero baseline. Every guard
// clause that cannot compute a real baseline returns this so downstream
// consumers never see missing fields.
func EmptyBaseline() Baseline {
	return Baseline{}
}

// ThresholdSet carries the dynamic anomaly cutoffs derived from historical
// dispersion. Independent lifecycle from Baseline.
type ThresholdSet struct {
	CTRBaseline       float64 `json:"ctr_baseline"`
	CTRStd            float64 `json:"ctr_std"`
	CTRLowThreshold   float64 `json:"ctr_low_threshold"`
	MedianDrop        float64 `json:"median_drop"`
	DropStd           float64 `json:"drop_std"`
	ROASDropThreshold float64 `json:"roas_drop_threshold"`
	RowsUsed          int     `json:"rows_used"`
}

// EmptyThresholdSet returns the default threshold set used when no usable
// history exists. The ROAS drop cutoff falls back to the configured floor so
// the alert rule never becomes implausibly sensitive.
func EmptyThresholdSet(minDropThreshold float64) ThresholdSet {
	return ThresholdSet{ROASDropThreshold: minDropThreshold}
}

// Evidence is the flat snapshot joining the most recent observed values with
// the Baseline. Computed exactly once per run and shared read-only by every
// hypothesis evaluation. Undefined deltas (baseline was zero, latest is not)
// are flagged rather than stored as non-finite floats.
type Evidence struct {
	LastCTR             float64 `json:"last_ctr"`
	CTRBaseline         float64 `json:"ctr_baseline"`
	CTRDeltaPct         float64 `json:"ctr_delta_pct"`
	CTRDeltaUndefined   bool    `json:"ctr_delta_undefined,omitempty"`
	LastROAS            float64 `json:"last_roas"`
	ROASBaseline        float64 `json:"roas_baseline"`
	ROASDeltaPct        float64 `json:"roas_delta_pct"`
	ROASDeltaUndefined  bool    `json:"roas_delta_undefined,omitempty"`
	RowsUsedForBaseline int     `json:"rows_used_for_baseline"`
}

// EmptyEvidence returns the zero evidence snapshot.
func EmptyEvidence() Evidence {
	return Evidence{}
}

// Hypothesis is a candidate diagnostic claim produced upstream. The initial
// confidence is untrusted input and is clamped during evaluation.
type Hypothesis struct {
	ID                string   `json:"id"`
	Text              string   `json:"hypothesis"`
	MetricsUsed       []string `json:"metrics_used"`
	InitialConfidence float64  `json:"initial_confidence"`
}

// hypothesisWire is the tolerant decoding shape for externally supplied
// hypothesis batches. Confidence may arrive as a number, a numeric string,
// or garbage; anything unparseable decodes to 0.
type hypothesisWire struct {
	ID                string          `json:"id"`
	Text              string          `json:"hypothesis"`
	MetricsUsed       []string        `json:"metrics_used"`
	InitialConfidence json.RawMessage `json:"initial_confidence"`
}

// UnmarshalJSON validates hypothesis payloads at the ingestion boundary
// instead of at every read site. Malformed confidence values coerce to 0.
func (h *Hypothesis) UnmarshalJSON(data []byte) error {
	var w hypothesisWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h.ID = w.ID
	h.Text = w.Text
	h.MetricsUsed = w.MetricsUsed
	h.InitialConfidence = coerceConfidence(w.InitialConfidence)
	return nil
}

func coerceConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

// Impact ranks how bad an observed deviation is.
type Impact string

const (
	ImpactNone     Impact = "none"
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

var impactRank = map[Impact]int{
	ImpactNone:     0,
	ImpactLow:      1,
	ImpactMedium:   2,
	ImpactHigh:     3,
	ImpactCritical: 4,
}

// Rank returns the position of the impact in the total severity order.
func (i Impact) Rank() int { return impactRank[i] }

// AtLeast reports whether i is at least as severe as other.
func (i Impact) AtLeast(other Impact) bool { return i.Rank() >= other.Rank() }

// EvidenceSnapshot is the serialization-safe copy of Evidence embedded in
// every Verdict for audit. Undefined deltas are bounded to ±DeltaBound so
// cross-boundary records never carry a non-finite number.
type EvidenceSnapshot struct {
	CTRDeltaPct         float64 `json:"ctr_delta_pct"`
	ROASDeltaPct        float64 `json:"roas_delta_pct"`
	LastCTR             float64 `json:"last_ctr"`
	CTRBaseline         float64 `json:"ctr_baseline"`
	LastROAS            float64 `json:"last_roas"`
	ROASBaseline        float64 `json:"roas_baseline"`
	RowsUsedForBaseline int     `json:"rows_used_for_baseline"`
}

// DeltaBound caps serialized percent deltas when the true delta is undefined
// (a zero baseline). 10.0 reads as +1000% and dominates every severity break.
const DeltaBound = 10.0

// Snapshot produces the bounded, finite copy of the evidence.
func (e Evidence) Snapshot() EvidenceSnapshot {
	ctrDelta := e.CTRDeltaPct
	if e.CTRDeltaUndefined {
		ctrDelta = DeltaBound
	}
	roasDelta := e.ROASDeltaPct
	if e.ROASDeltaUndefined {
		roasDelta = DeltaBound
	}
	return EvidenceSnapshot{
		CTRDeltaPct:         sanitize(ctrDelta),
		ROASDeltaPct:        sanitize(roasDelta),
		LastCTR:             sanitize(e.LastCTR),
		CTRBaseline:         sanitize(e.CTRBaseline),
		LastROAS:            sanitize(e.LastROAS),
		ROASBaseline:        sanitize(e.ROASBaseline),
		RowsUsedForBaseline: e.RowsUsedForBaseline,
	}
}

// Verdict is the evaluated outcome for one hypothesis.
type Verdict struct {
	ID         string           `json:"id"`
	Text       string           `json:"hypothesis"`
	Impact     Impact           `json:"impact"`
	Driver     string           `json:"driver_metric,omitempty"`
	Confidence float64          `json:"confidence"`
	Passed     bool             `json:"passed"`
	Evidence   EvidenceSnapshot `json:"evidence"`
	Err        string           `json:"error,omitempty"`
}

// BatchMetrics summarizes one evaluator run over a hypothesis batch.
type BatchMetrics struct {
	ValidationRate float64 `json:"validation_rate"`
	NumHypotheses  int     `json:"num_hypotheses"`
	NumPassed      int     `json:"num_passed"`
	CTRBaseline    float64 `json:"ctr_baseline"`
	ROASBaseline   float64 `json:"roas_baseline"`
}
