package application

import (
	"fmt"

	"github.com/adpulse/adpulse/internal/domain"
)

// Recommendation is one templated creative action.
type Recommendation struct {
	Headline  string `json:"headline"`
	Message   string `json:"message"`
	CTA       string `json:"cta"`
	Rationale string `json:"rationale"`
}

// CreativeEvidence carries the campaign-level numbers behind a
// recommendation.
type CreativeEvidence struct {
	CurrentCTR      float64 `json:"current_ctr,omitempty"`
	BaselineCTR     float64 `json:"baseline_ctr,omitempty"`
	CurrentROAS     float64 `json:"current_roas,omitempty"`
	BaselineROAS    float64 `json:"baseline_roas,omitempty"`
	DeltaPct        float64 `json:"delta_pct"`
	CampaignSpend   float64 `json:"campaign_spend"`
	CampaignRevenue float64 `json:"campaign_revenue,omitempty"`
}

// CampaignCreative targets one underperforming campaign with a diagnosed
// issue and concrete recommendations.
type CampaignCreative struct {
	Campaign           string           `json:"campaign"`
	IssueDiagnosed     string           `json:"issue_diagnosed"`
	Evidence           CreativeEvidence `json:"evidence"`
	Recommendations    []Recommendation `json:"recommendations"`
	Priority           domain.Impact    `json:"priority"`
	LinkedHypothesisID string           `json:"linked_hypothesis_id"`
}

// CreativeBundle groups the creatives generated for one passed verdict.
type CreativeBundle struct {
	InsightID  string             `json:"insight_id"`
	Hypothesis string             `json:"hypothesis"`
	Impact     domain.Impact      `json:"impact"`
	Confidence float64            `json:"confidence"`
	Creatives  []CampaignCreative `json:"creatives"`
}

// maxTargetsPerIssue caps how many campaigns one verdict can target.
const maxTargetsPerIssue = 3

// GenerateCreatives turns passed verdicts into campaign-targeted creative
// recommendations. Only verdicts with a real impact produce output; each
// recommendation references the specific diagnosed metric gap rather than a
// generic suggestion.
func GenerateCreatives(verdicts []domain.Verdict, summary domain.Summary) []CreativeBundle {
	var out []CreativeBundle
	for _, v := range verdicts {
		if !v.Passed || v.Impact == domain.ImpactNone {
			continue
		}
		creatives := creativesForVerdict(v, summary)
		if len(creatives) == 0 {
			continue
		}
		out = append(out, CreativeBundle{
			InsightID:  v.ID,
			Hypothesis: v.Text,
			Impact:     v.Impact,
			Confidence: v.Confidence,
			Creatives:  creatives,
		})
	}
	return out
}

func creativesForVerdict(v domain.Verdict, summary domain.Summary) []CampaignCreative {
	if len(summary.Campaigns) == 0 {
		return nil
	}
	ev := v.Evidence

	ctrIssue := absFloat(ev.CTRDeltaPct) > absFloat(ev.ROASDeltaPct) && ev.CTRDeltaPct < -0.05
	roasIssue := absFloat(ev.ROASDeltaPct) >= absFloat(ev.CTRDeltaPct) && ev.ROASDeltaPct < -0.05

	switch {
	case ctrIssue:
		return ctrCreatives(v, summary)
	case roasIssue:
		return roasCreatives(v, summary)
	default:
		return nil
	}
}

func ctrCreatives(v domain.Verdict, summary domain.Summary) []CampaignCreative {
	baseline := v.Evidence.CTRBaseline
	var out []CampaignCreative
	for _, c := range summary.Campaigns {
		if len(out) == maxTargetsPerIssue {
			break
		}
		// Target campaigns sitting 20% or more below the CTR baseline.
		if baseline <= 0 || c.CTR >= baseline*0.8 {
			continue
		}
		gapPct := (c.CTR - baseline) / baseline * 100

		cta := "Shop Now"
		if c.CTR < 0.01 {
			cta = "Learn More"
		}
		out = append(out, CampaignCreative{
			Campaign: c.Campaign,
			IssueDiagnosed: fmt.Sprintf("CTR %.1f%% below baseline (%.4f vs %.4f)",
				gapPct, c.CTR, baseline),
			Evidence: CreativeEvidence{
				CurrentCTR:    c.CTR,
				BaselineCTR:   baseline,
				DeltaPct:      gapPct,
				CampaignSpend: c.Spend,
			},
			Recommendations: []Recommendation{{
				Headline: "Refresh fatigued creatives with new angles",
				Message: fmt.Sprintf("Current CTR (%.3f%%) is %.1f%% below baseline. Test new hooks with stronger social proof.",
					c.CTR*100, absFloat(gapPct)),
				CTA: cta,
				Rationale: fmt.Sprintf("Low CTR indicates ad fatigue or poor resonance. Campaign has spent $%.0f with declining engagement.",
					c.Spend),
			}},
			Priority:           v.Impact,
			LinkedHypothesisID: v.ID,
		})
	}
	return out
}

func roasCreatives(v domain.Verdict, summary domain.Summary) []CampaignCreative {
	baseline := v.Evidence.ROASBaseline
	var out []CampaignCreative
	// Campaigns arrive sorted by spend descending, so the biggest budgets
	// get attention first.
	for _, c := range summary.Campaigns {
		if len(out) == maxTargetsPerIssue {
			break
		}
		if baseline <= 0 || c.ROAS >= baseline*0.8 {
			continue
		}
		gapPct := (c.ROAS - baseline) / baseline * 100

		out = append(out, CampaignCreative{
			Campaign: c.Campaign,
			IssueDiagnosed: fmt.Sprintf("ROAS %.1f%% below baseline (%.2fx vs %.2fx)",
				gapPct, c.ROAS, baseline),
			Evidence: CreativeEvidence{
				CurrentROAS:     c.ROAS,
				BaselineROAS:    baseline,
				DeltaPct:        gapPct,
				CampaignSpend:   c.Spend,
				CampaignRevenue: c.Revenue,
			},
			Recommendations: []Recommendation{{
				Headline: "Strengthen conversion messaging",
				Message: fmt.Sprintf("ROAS is %.1f%% below target (%.2fx vs %.2fx). Lead with the value proposition and add urgency with limited-time offers.",
					absFloat(gapPct), c.ROAS, baseline),
				CTA: "Shop Now - Limited Time",
				Rationale: fmt.Sprintf("Campaign spent $%.0f generating $%.0f revenue. Conversion rate or average order value needs improvement.",
					c.Spend, c.Revenue),
			}},
			Priority:           v.Impact,
			LinkedHypothesisID: v.ID,
		})
	}
	return out
}
