package meta

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/model"
)

// insightFields are requested for every campaign-level insights call.
var insightFields = []string{
	"campaign_id",
	"campaign_name",
	"spend",
	"impressions",
	"clicks",
	"actions",
	"action_values",
	"frequency",
	"reach",
	"quality_ranking",
}

// purchaseAction is the action_type counted as a conversion.
const purchaseAction = "purchase"

type action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// rawInsight is one element of the insights "data" array. The Graph API
// encodes every number as a string.
type rawInsight struct {
	CampaignID     string   `json:"campaign_id"`
	CampaignName   string   `json:"campaign_name"`
	DateStart      string   `json:"date_start"`
	Spend          string   `json:"spend"`
	Impressions    string   `json:"impressions"`
	Clicks         string   `json:"clicks"`
	Frequency      string   `json:"frequency"`
	Reach          string   `json:"reach"`
	QualityRanking string   `json:"quality_ranking"`
	Actions        []action `json:"actions"`
	ActionValues   []action `json:"action_values"`
}

type insightsPage struct {
	Data   []rawInsight `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// toRow converts a raw insight into a row with counters set and ratios left
// for the caller to derive.
func (r rawInsight) toRow() (model.InsightRow, error) {
	if r.CampaignID == "" {
		return model.InsightRow{}, eris.New("meta: insight missing campaign_id")
	}
	date, err := time.Parse(model.DateLayout, r.DateStart)
	if err != nil {
		return model.InsightRow{}, eris.Wrapf(err, "meta: campaign %s: date_start %q", r.CampaignID, r.DateStart)
	}

	row := model.InsightRow{
		CampaignID:     r.CampaignID,
		CampaignName:   r.CampaignName,
		Date:           model.Day(date),
		QualityRanking: mapQuality(r.QualityRanking),
	}

	p := parser{campaign: r.CampaignID}
	row.Spend = p.float("spend", r.Spend)
	row.Impressions = p.int("impressions", r.Impressions)
	row.Clicks = p.int("clicks", r.Clicks)
	row.Frequency = p.float("frequency", r.Frequency)
	row.Reach = p.int("reach", r.Reach)
	row.Conversions = int64(p.float("actions", actionValue(r.Actions, purchaseAction)))
	row.ConversionValue = p.float("action_values", actionValue(r.ActionValues, purchaseAction))
	if p.err != nil {
		return model.InsightRow{}, p.err
	}
	return row, nil
}

// parser keeps the first numeric parse failure.
type parser struct {
	campaign string
	err      error
}

func (p *parser) float(field, s string) float64 {
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = eris.Wrapf(err, "meta: campaign %s: parse %s %q", p.campaign, field, s)
	}
	return v
}

func (p *parser) int(field, s string) int64 {
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.err = eris.Wrapf(err, "meta: campaign %s: parse %s %q", p.campaign, field, s)
	}
	return v
}

func actionValue(actions []action, actionType string) string {
	for _, a := range actions {
		if a.ActionType == actionType {
			return a.Value
		}
	}
	return ""
}

// mapQuality maps Graph API ranking buckets such as
// ABOVE_AVERAGE or BELOW_AVERAGE_20 onto the three stored rankings.
func mapQuality(s string) model.QualityRanking {
	s = strings.ToUpper(s)
	switch {
	case strings.HasPrefix(s, "ABOVE_AVERAGE"):
		return model.QualityAboveAverage
	case s == "AVERAGE":
		return model.QualityAverage
	case strings.HasPrefix(s, "BELOW_AVERAGE"):
		return model.QualityBelowAverage
	}
	return ""
}
