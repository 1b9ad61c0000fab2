package domain

import (
	"sort"
	"time"
)

// Summary is the per-run rollup handed to the baseline estimator, the
// evidence builder and the insight generator. Days are sorted ascending by
// date, campaigns descending by spend.
type Summary struct {
	Totals    Totals              `json:"global"`
	Days      []DailyAggregate    `json:"daily"`
	Campaigns []CampaignAggregate `json:"by_campaign"`
	Quality   QualityCounters     `json:"data_quality"`
}

// cell coerces one raw numeric cell, counting non-finite values instead of
// failing on them.
func cell(v float64, q *QualityCounters) float64 {
	if !isFinite(v) {
		q.NonFiniteCells++
		return 0
	}
	return v
}

// Summarize aggregates raw rows by day and by campaign and computes global
// totals. Rows with a zero date are excluded from the daily series but still
// counted in totals; rows without a campaign id are excluded from the
// campaign rollup but still counted in totals. Pure function, input rows are
// not mutated.
func Summarize(rows []Row) Summary {
	var q QualityCounters
	totals := Totals{Rows: len(rows)}
	byDay := make(map[time.Time]*DailyAggregate)
	byCampaign := make(map[string]*CampaignAggregate)
	creatives := make(map[string]struct{})

	for _, r := range rows {
		spend := cell(r.Spend, &q)
		impressions := cell(r.Impressions, &q)
		clicks := cell(r.Clicks, &q)
		revenue := cell(r.Revenue, &q)

		totals.Spend += spend
		totals.Impressions += impressions
		totals.Clicks += clicks
		totals.Revenue += revenue
		if r.Creative != "" {
			creatives[r.Creative] = struct{}{}
		}

		if r.Date.IsZero() {
			q.MissingDates++
		} else {
			day := r.Date.UTC().Truncate(24 * time.Hour)
			agg, ok := byDay[day]
			if !ok {
				agg = &DailyAggregate{Date: day}
				byDay[day] = agg
			}
			agg.Spend += spend
			agg.Impressions += impressions
			agg.Clicks += clicks
			agg.Revenue += revenue
		}

		if r.Campaign == "" {
			q.MissingCampaigns++
		} else {
			agg, ok := byCampaign[r.Campaign]
			if !ok {
				agg = &CampaignAggregate{Campaign: r.Campaign}
				byCampaign[r.Campaign] = agg
			}
			agg.Spend += spend
			agg.Impressions += impressions
			agg.Clicks += clicks
			agg.Revenue += revenue
		}
	}

	days := make([]DailyAggregate, 0, len(byDay))
	for _, agg := range byDay {
		agg.CTR = safeRatio(agg.Clicks, agg.Impressions)
		agg.ROAS = safeRatio(agg.Revenue, agg.Spend)
		days = append(days, *agg)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	campaigns := make([]CampaignAggregate, 0, len(byCampaign))
	for _, agg := range byCampaign {
		agg.CTR = safeRatio(agg.Clicks, agg.Impressions)
		agg.ROAS = safeRatio(agg.Revenue, agg.Spend)
		campaigns = append(campaigns, *agg)
	}
	sort.Slice(campaigns, func(i, j int) bool {
		if campaigns[i].Spend != campaigns[j].Spend {
			return campaigns[i].Spend > campaigns[j].Spend
		}
		return campaigns[i].Campaign < campaigns[j].Campaign
	})

	totals.Creatives = len(creatives)
	return Summary{Totals: totals, Days: days, Campaigns: campaigns, Quality: q}
}
