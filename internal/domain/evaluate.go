package domain

import "fmt"

// EvaluatorConfig holds the single authoritative pass/fail cutoff.
type EvaluatorConfig struct {
	ConfidenceMin float64 `yaml:"confidence_min" json:"confidence_min"`
}

// DefaultEvaluatorConfig returns the standalone-evaluator default cutoff.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{ConfidenceMin: 0.3}
}

// Evaluator scores candidate hypotheses against a shared Evidence snapshot.
// Pure and stateless between calls: the same hypothesis, evidence and config
// always produce a bit-identical verdict.
type Evaluator struct {
	cfg EvaluatorConfig
}

// NewEvaluator creates an evaluator; a nil-equivalent config falls back to
// the default cutoff.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	if cfg.ConfidenceMin <= 0 {
		cfg = DefaultEvaluatorConfig()
	}
	return &Evaluator{cfg: cfg}
}

// severityFromDelta classifies a percent delta against the fixed break
// points. An undefined delta (zero baseline, nonzero latest) always
// dominates.
func severityFromDelta(delta float64, undefined bool) Impact {
	switch {
	case undefined:
		return ImpactCritical
	case delta < -0.40:
		return ImpactCritical
	case delta < -0.20:
		return ImpactHigh
	case delta < -0.10:
		return ImpactMedium
	case delta < -0.05:
		return ImpactLow
	default:
		return ImpactNone
	}
}

// Evaluate scores one hypothesis. A panic while scoring degrades this
// verdict only; callers batching hypotheses keep going.
func (e *Evaluator) Evaluate(h Hypothesis, ev Evidence) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{
				ID:       h.ID,
				Text:     h.Text,
				Impact:   ImpactNone,
				Passed:   false,
				Evidence: ev.Snapshot(),
				Err:      fmt.Sprintf("evaluation failed: %v", r),
			}
		}
	}()

	base := clamp01(h.InitialConfidence)

	ctrSev := severityFromDelta(ev.CTRDeltaPct, ev.CTRDeltaUndefined)
	roasSev := severityFromDelta(ev.ROASDeltaPct, ev.ROASDeltaUndefined)

	// Ties keep CTR's classification. Deterministic, not a statement that
	// CTR outranks ROAS.
	impact := roasSev
	driver := "roas"
	if ctrSev.AtLeast(roasSev) {
		impact = ctrSev
		driver = "ctr"
	}

	adjusted := base
	switch impact {
	case ImpactMedium, ImpactHigh, ImpactCritical:
		adjusted = clamp01(base + 0.25)
	case ImpactLow:
		adjusted = clamp01(base + 0.10)
	}

	// A baseline built from zero days carries no evidence; nothing can
	// validate against it.
	passed := adjusted >= e.cfg.ConfidenceMin && ev.RowsUsedForBaseline > 0

	return Verdict{
		ID:         h.ID,
		Text:       h.Text,
		Impact:     impact,
		Driver:     driver,
		Confidence: adjusted,
		Passed:     passed,
		Evidence:   ev.Snapshot(),
	}
}

// EvaluateBatch scores every hypothesis against the shared evidence and
// reports batch-level metrics. One degraded hypothesis never aborts the
// rest of the batch.
func (e *Evaluator) EvaluateBatch(hypotheses []Hypothesis, ev Evidence, baseline Baseline) ([]Verdict, BatchMetrics) {
	verdicts := make([]Verdict, 0, len(hypotheses))
	passed := 0
	for _, h := range hypotheses {
		v := e.Evaluate(h, ev)
		if v.Passed {
			passed++
		}
		verdicts = append(verdicts, v)
	}

	total := len(verdicts)
	denom := total
	if denom < 1 {
		denom = 1
	}
	metrics := BatchMetrics{
		ValidationRate: float64(passed) / float64(denom),
		NumHypotheses:  total,
		NumPassed:      passed,
		CTRBaseline:    sanitize(baseline.CTRBaseline),
		ROASBaseline:   sanitize(baseline.ROASBaseline),
	}
	return verdicts, metrics
}
