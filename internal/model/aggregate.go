package model

import "time"

// TargetROAS is the reference line drawn on ROAS charts.
const TargetROAS = 3.0

// Aggregate is a campaign's (or the account's) totals over a date range with
// ratios recomputed from the sums. It is never persisted.
type Aggregate struct {
	Range        DateRange `json:"range"`
	CampaignID   string    `json:"campaign_id,omitempty"`
	CampaignName string    `json:"campaign_name,omitempty"`
	Days         int       `json:"days"`

	Counters
	Ratios
}

// DailyPoint is the account-wide total for a single day.
type DailyPoint struct {
	Date   time.Time `json:"date"`
	Target float64   `json:"target"`

	Counters
	Ratios
}

// ChangeType is the direction of a KPI versus the previous period.
type ChangeType string

const (
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
	ChangeNeutral  ChangeType = "neutral"
)

// KPI is one dashboard value with its percent change from the previous period.
type KPI struct {
	Value      float64    `json:"value"`
	Change     float64    `json:"change"`
	ChangeType ChangeType `json:"change_type"`
}

// KPISet is the dashboard header.
type KPISet struct {
	Range           DateRange `json:"range"`
	Previous        DateRange `json:"previous"`
	ROAS            KPI       `json:"roas"`
	TotalSpend      KPI       `json:"total_spend"`
	Revenue         KPI       `json:"revenue"`
	Conversions     KPI       `json:"conversions"`
	CostPerPurchase KPI       `json:"cost_per_purchase"`
	CTR             KPI       `json:"ctr"`
	CPM             KPI       `json:"cpm"`
	CampaignCount   int       `json:"campaign_count"`
}
