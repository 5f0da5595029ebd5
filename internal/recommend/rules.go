package recommend

import (
	"context"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ads-insights/internal/model"
)

// Budget thresholds.
const (
	IncreaseMinROAS  = 3.0
	DecreaseMinROAS  = 1.5
	DecreaseMaxROAS  = 2.5
	PauseMaxROAS     = 1.5
	FatigueFrequency = 2.5
)

// Bucket boundaries in tenths of the ranked list: the top 30% may scale up,
// the slice from the 70th percentile may scale down.
const (
	increaseShare = 3
	decreaseFrom  = 7
)

// Buckets groups rows by the budget action they qualify for.
type Buckets struct {
	Increase []model.InsightRow
	Decrease []model.InsightRow
	Pause    []model.InsightRow
}

// ceilTenths returns ceil(n*k/10) without floating point.
func ceilTenths(n, k int) int {
	return (n*k + 9) / 10
}

// Budget ranks rows by ROAS (descending, ties by spend descending then
// campaign id) and buckets them. It never fails; empty input yields empty
// buckets.
func Budget(rows []model.InsightRow) Buckets {
	sorted := append([]model.InsightRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ROAS != b.ROAS {
			return a.ROAS > b.ROAS
		}
		if a.Spend != b.Spend {
			return a.Spend > b.Spend
		}
		return a.CampaignID < b.CampaignID
	})

	n := len(sorted)
	var b Buckets
	for _, r := range sorted[:ceilTenths(n, increaseShare)] {
		if r.ROAS > IncreaseMinROAS {
			b.Increase = append(b.Increase, r)
		}
	}
	for _, r := range sorted[ceilTenths(n, decreaseFrom):] {
		if r.ROAS > DecreaseMinROAS && r.ROAS < DecreaseMaxROAS {
			b.Decrease = append(b.Decrease, r)
		}
	}
	for _, r := range sorted {
		if r.ROAS < PauseMaxROAS {
			b.Pause = append(b.Pause, r)
		}
	}
	return b
}

// Rules is the deterministic synthesizer.
type Rules struct {
	printer *message.Printer
}

// NewRules returns a deterministic synthesizer.
func NewRules() *Rules {
	return &Rules{printer: message.NewPrinter(language.English)}
}

// Recommend maps budget buckets and high-frequency rows to recommendations.
// The error is always nil.
func (s *Rules) Recommend(_ context.Context, rows []model.InsightRow, asOf time.Time) ([]model.Recommendation, error) {
	b := Budget(rows)
	date := model.Day(asOf)
	p := s.printer

	var out []model.Recommendation
	add := func(r model.InsightRow, typ model.RecommendationType, prio model.Severity, conf float64, title, desc, impact, action string) {
		out = append(out, model.Recommendation{
			CampaignID:     r.CampaignID,
			Date:           date,
			Type:           typ,
			Title:          title,
			Description:    desc,
			Confidence:     conf,
			ExpectedImpact: impact,
			Priority:       prio,
			ActionRequired: action,
			Source:         model.SourceRules,
		})
	}

	for _, r := range b.Increase {
		add(r, model.RecBudgetIncrease, model.SeverityHigh, 0.8,
			p.Sprintf("Scale budget for %s", displayName(r)),
			p.Sprintf("ROAS of %.2f on $%.2f spend ranks in the top 30%% of campaigns.", r.ROAS, r.Spend),
			"More conversions at a similar return on ad spend",
			"Increase daily budget by 20%")
	}
	for _, r := range b.Decrease {
		add(r, model.RecBudgetDecrease, model.SeverityMedium, 0.7,
			p.Sprintf("Reduce budget for %s", displayName(r)),
			p.Sprintf("ROAS of %.2f ranks in the bottom 30%% of campaigns.", r.ROAS),
			"Lower spend on marginal returns",
			"Decrease daily budget by 20% and reallocate to top performers")
	}
	for _, r := range b.Pause {
		add(r, model.RecPauseCampaign, model.SeverityCritical, 0.9,
			p.Sprintf("Pause %s", displayName(r)),
			p.Sprintf("ROAS of %.2f is below %.1f; the campaign loses money on $%.2f spend.", r.ROAS, PauseMaxROAS, r.Spend),
			"Stop unprofitable spend",
			"Pause the campaign and review targeting and creative")
	}
	for _, r := range rows {
		if r.Frequency > FatigueFrequency {
			add(r, model.RecCreativeRefresh, model.SeverityMedium, 0.6,
				p.Sprintf("Refresh creative for %s", displayName(r)),
				p.Sprintf("Frequency of %.1f suggests the audience has seen these ads too often.", r.Frequency),
				"Recover CTR lost to creative fatigue",
				"Launch new ad creative variants")
		}
	}
	return out, nil
}
