// Package aggregate rolls daily campaign rows up into period totals and daily
// series. Ratios are always recomputed from summed counters, never averaged.
package aggregate

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/metrics"
	"github.com/sells-group/ads-insights/internal/model"
)

type bucket struct {
	name     string
	lastSeen time.Time
	days     int
	sum      model.Counters
}

func (b *bucket) add(row model.InsightRow) {
	b.sum = b.sum.Add(row.Counters)
	b.days++
	if row.CampaignName != "" && !row.Date.Before(b.lastSeen) {
		b.name = row.CampaignName
		b.lastSeen = row.Date
	}
}

// ByCampaign returns one Aggregate per campaign with at least one row in r,
// sorted by campaign id. Campaigns with no rows in range are absent.
func ByCampaign(rows []model.InsightRow, r model.DateRange) ([]model.Aggregate, error) {
	buckets := make(map[string]*bucket)
	for _, row := range rows {
		if !r.Contains(row.Date) {
			continue
		}
		b, ok := buckets[row.CampaignID]
		if !ok {
			b = &bucket{}
			buckets[row.CampaignID] = b
		}
		b.add(row)
	}

	out := make([]model.Aggregate, 0, len(buckets))
	for id, b := range buckets {
		ratios, err := metrics.Derive(b.sum)
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: campaign %s", id)
		}
		out = append(out, model.Aggregate{
			Range:        r,
			CampaignID:   id,
			CampaignName: b.name,
			Days:         b.days,
			Counters:     b.sum,
			Ratios:       ratios,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out, nil
}

// Account returns the account-wide roll-up of every row in r.
func Account(rows []model.InsightRow, r model.DateRange) (model.Aggregate, error) {
	var b bucket
	for _, row := range rows {
		if r.Contains(row.Date) {
			b.add(row)
		}
	}
	ratios, err := metrics.Derive(b.sum)
	if err != nil {
		return model.Aggregate{}, eris.Wrap(err, "aggregate: account")
	}
	return model.Aggregate{Range: r, Days: b.days, Counters: b.sum, Ratios: ratios}, nil
}

// Daily returns one account-wide point per calendar day that has rows in r,
// ascending by date.
func Daily(rows []model.InsightRow, r model.DateRange) ([]model.DailyPoint, error) {
	sums := make(map[time.Time]model.Counters)
	for _, row := range rows {
		if !r.Contains(row.Date) {
			continue
		}
		d := model.Day(row.Date)
		sums[d] = sums[d].Add(row.Counters)
	}

	out := make([]model.DailyPoint, 0, len(sums))
	for d, c := range sums {
		ratios, err := metrics.Derive(c)
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: day %s", d.Format(model.DateLayout))
		}
		out = append(out, model.DailyPoint{Date: d, Target: model.TargetROAS, Counters: c, Ratios: ratios})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// LatestPerCampaign keeps only each campaign's most recent row, sorted by
// campaign id.
func LatestPerCampaign(rows []model.InsightRow) []model.InsightRow {
	latest := make(map[string]model.InsightRow)
	for _, row := range rows {
		cur, ok := latest[row.CampaignID]
		if !ok || row.Date.After(cur.Date) {
			latest[row.CampaignID] = row
		}
	}
	out := make([]model.InsightRow, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out
}
