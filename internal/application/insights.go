package application

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/adpulse/adpulse/internal/domain"
)

// InsightConfig bounds candidate hypothesis generation.
type InsightConfig struct {
	TopK    int
	MinDays int
}

func newInsightID() string {
	return uuid.NewString()[:8]
}

// GenerateInsights produces targeted, evidence-backed candidate hypotheses
// from the run's evidence snapshot. Each hypothesis points at the metric
// deltas that motivated it; the evaluator decides what survives.
func GenerateInsights(summary domain.Summary, ev domain.Evidence, cfg InsightConfig) []domain.Hypothesis {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinDays <= 0 {
		cfg.MinDays = 7
	}

	roasDelta := ev.ROASDeltaPct
	ctrDelta := ev.CTRDeltaPct
	var out []domain.Hypothesis

	if roasDelta < -0.05 {
		out = append(out, domain.Hypothesis{
			ID: newInsightID(),
			Text: fmt.Sprintf("ROAS has declined by %.1f%% vs baseline; investigate budget, creative and traffic quality",
				roasDelta*100),
			MetricsUsed:       []string{"roas", "ctr"},
			InitialConfidence: clampConfidence(absFloat(roasDelta), 0.2, 0.9),
		})
	}

	if ctrDelta < -0.05 {
		out = append(out, domain.Hypothesis{
			ID: newInsightID(),
			Text: fmt.Sprintf("CTR has dropped by %.1f%% vs baseline; possible creative fatigue or targeting issue",
				ctrDelta*100),
			MetricsUsed:       []string{"ctr"},
			InitialConfidence: clampConfidence(absFloat(ctrDelta), 0.2, 0.85),
		})
	}

	if ev.RowsUsedForBaseline < cfg.MinDays {
		out = append(out, domain.Hypothesis{
			ID:                newInsightID(),
			Text:              "Baseline sample is small; results may be noisy. Gather more data or widen the baseline window",
			MetricsUsed:       []string{"ctr", "roas"},
			InitialConfidence: 0.25,
		})
	}

	if roasDelta < -0.20 && summary.Totals.Creatives > 0 && summary.Totals.Creatives < 2 {
		out = append(out, domain.Hypothesis{
			ID:                newInsightID(),
			Text:              "Significant ROAS drop with few creatives in rotation; test fresh creative variants against top segments",
			MetricsUsed:       []string{"roas"},
			InitialConfidence: 0.8,
		})
	}

	return dedupeAndRank(out, cfg.TopK)
}

// dedupeAndRank drops duplicate texts and keeps the top-k by confidence.
// Stable: equal confidences preserve generation order.
func dedupeAndRank(hypotheses []domain.Hypothesis, topK int) []domain.Hypothesis {
	seen := make(map[string]struct{}, len(hypotheses))
	unique := make([]domain.Hypothesis, 0, len(hypotheses))
	for _, h := range hypotheses {
		if h.Text == "" {
			continue
		}
		if _, dup := seen[h.Text]; dup {
			continue
		}
		seen[h.Text] = struct{}{}
		unique = append(unique, h)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].InitialConfidence > unique[j].InitialConfidence
	})
	if len(unique) > topK {
		unique = unique[:topK]
	}
	return unique
}

func clampConfidence(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
