package model

import "time"

// QualityRanking is the ads platform's relative ad quality bucket.
type QualityRanking string

const (
	QualityAboveAverage QualityRanking = "above_average"
	QualityAverage      QualityRanking = "average"
	QualityBelowAverage QualityRanking = "below_average"
)

// Valid reports whether q is empty or one of the known rankings.
func (q QualityRanking) Valid() bool {
	switch q {
	case "", QualityAboveAverage, QualityAverage, QualityBelowAverage:
		return true
	}
	return false
}

// Counters holds the additive raw counters of a campaign row or aggregate.
type Counters struct {
	Spend           float64 `json:"spend"`
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Conversions     int64   `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
}

// Add returns the element-wise sum of c and o.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Spend:           c.Spend + o.Spend,
		Impressions:     c.Impressions + o.Impressions,
		Clicks:          c.Clicks + o.Clicks,
		Conversions:     c.Conversions + o.Conversions,
		ConversionValue: c.ConversionValue + o.ConversionValue,
	}
}

// Ratios are the KPIs derived from Counters. They are always recomputed and
// never treated as source of truth.
type Ratios struct {
	CTR  float64 `json:"ctr"`  // clicks / impressions * 100
	CPC  float64 `json:"cpc"`  // spend / clicks
	CPM  float64 `json:"cpm"`  // spend / impressions * 1000
	ROAS float64 `json:"roas"` // conversion value / spend
	CPA  float64 `json:"cpa"`  // spend / conversions
}

// InsightRow is one campaign's performance on one calendar day (UTC).
// A row is identified by (CampaignID, Date).
type InsightRow struct {
	CampaignID     string         `json:"campaign_id"`
	CampaignName   string         `json:"campaign_name"`
	Date           time.Time      `json:"date"`
	Frequency      float64        `json:"frequency"`
	Reach          int64          `json:"reach"`
	RelevanceScore *float64       `json:"relevance_score,omitempty"`
	QualityRanking QualityRanking `json:"quality_ranking,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`

	Counters
	Ratios
}

// Key returns the row's natural key.
func (r InsightRow) Key() RowKey {
	return RowKey{CampaignID: r.CampaignID, Date: Day(r.Date)}
}

// RowKey is the natural key of an InsightRow.
type RowKey struct {
	CampaignID string
	Date       time.Time
}
