package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/adpulse/internal/domain"
)

func TestGenerateInsightsROASDecline(t *testing.T) {
	ev := domain.Evidence{
		ROASDeltaPct:        -0.45,
		CTRDeltaPct:         0.01,
		RowsUsedForBaseline: 30,
	}

	out := GenerateInsights(domain.Summary{}, ev, InsightConfig{TopK: 5, MinDays: 7})

	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "ROAS has declined by -45.0%")
	assert.Equal(t, []string{"roas", "ctr"}, out[0].MetricsUsed)
	assert.InDelta(t, 0.45, out[0].InitialConfidence, 1e-9)
	assert.Len(t, out[0].ID, 8)
}

func TestGenerateInsightsConfidenceClamped(t *testing.T) {
	ev := domain.Evidence{ROASDeltaPct: -0.98, RowsUsedForBaseline: 30}
	out := GenerateInsights(domain.Summary{}, ev, InsightConfig{TopK: 5, MinDays: 7})
	require.Len(t, out, 1)
	assert.InDelta(t, 0.9, out[0].InitialConfidence, 1e-9)

	ev = domain.Evidence{ROASDeltaPct: -0.06, RowsUsedForBaseline: 30}
	out = GenerateInsights(domain.Summary{}, ev, InsightConfig{TopK: 5, MinDays: 7})
	require.Len(t, out, 1)
	assert.InDelta(t, 0.2, out[0].InitialConfidence, 1e-9)
}

func TestGenerateInsightsSmallSample(t *testing.T) {
	ev := domain.Evidence{RowsUsedForBaseline: 3}
	out := GenerateInsights(domain.Summary{}, ev, InsightConfig{TopK: 5, MinDays: 7})

	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "Baseline sample is small")
	assert.InDelta(t, 0.25, out[0].InitialConfidence, 1e-9)
}

func TestGenerateInsightsCreativeRefresh(t *testing.T) {
	summary := domain.Summary{Totals: domain.Totals{Creatives: 1}}
	ev := domain.Evidence{ROASDeltaPct: -0.3, RowsUsedForBaseline: 30}

	out := GenerateInsights(summary, ev, InsightConfig{TopK: 5, MinDays: 7})

	require.Len(t, out, 2)
	// Highest confidence first: creative refresh at 0.8 beats the 0.3 decline.
	assert.Contains(t, out[0].Text, "few creatives in rotation")
	assert.InDelta(t, 0.8, out[0].InitialConfidence, 1e-9)
	assert.Contains(t, out[1].Text, "ROAS has declined")
}

func TestGenerateInsightsTopKCap(t *testing.T) {
	summary := domain.Summary{Totals: domain.Totals{Creatives: 1}}
	ev := domain.Evidence{
		ROASDeltaPct:        -0.5,
		CTRDeltaPct:         -0.3,
		RowsUsedForBaseline: 2,
	}

	out := GenerateInsights(summary, ev, InsightConfig{TopK: 2, MinDays: 7})
	require.Len(t, out, 2)
	// Survivors are the two most confident candidates.
	for _, h := range out {
		assert.GreaterOrEqual(t, h.InitialConfidence, 0.5)
	}
}

func TestGenerateInsightsHealthyDataQuiet(t *testing.T) {
	ev := domain.Evidence{
		ROASDeltaPct:        0.05,
		CTRDeltaPct:         0.02,
		RowsUsedForBaseline: 30,
	}
	out := GenerateInsights(domain.Summary{}, ev, InsightConfig{TopK: 5, MinDays: 7})
	assert.Empty(t, out)
}

func TestGenerateInsightsZeroConfigDefaults(t *testing.T) {
	ev := domain.Evidence{RowsUsedForBaseline: 3}
	out := GenerateInsights(domain.Summary{}, ev, InsightConfig{})
	require.Len(t, out, 1)
}

func TestDedupeAndRank(t *testing.T) {
	in := []domain.Hypothesis{
		{Text: "a", InitialConfidence: 0.3},
		{Text: "b", InitialConfidence: 0.9},
		{Text: "a", InitialConfidence: 0.99},
		{Text: "", InitialConfidence: 1.0},
		{Text: "c", InitialConfidence: 0.9},
	}

	out := dedupeAndRank(in, 10)

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Text)
	// Equal confidences keep generation order.
	assert.Equal(t, "c", out[1].Text)
	assert.Equal(t, "a", out[2].Text)
	assert.InDelta(t, 0.3, out[2].InitialConfidence, 1e-9)
}
