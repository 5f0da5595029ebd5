package recommend

import (
	"encoding/json"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/ads-insights/internal/model"
)

// Range is the min and max of a metric across campaigns.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// CampaignLine is one row of the per-campaign table sent to the model.
type CampaignLine struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"conversion_value"`
	Conversions  int64   `json:"conversions"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	ROAS         float64 `json:"roas"`
	CPA          float64 `json:"cpa"`
	CTR          float64 `json:"ctr"`
	CPM          float64 `json:"cpm"`
	Frequency    float64 `json:"frequency"`
}

// Summary is the structured input handed to the model.
type Summary struct {
	Campaigns int            `json:"campaigns"`
	Totals    model.Counters `json:"totals"`
	ROAS      float64        `json:"roas"`
	CPA       float64        `json:"cpa"`
	CTR       float64        `json:"ctr"`

	HighPerformers int `json:"high_performers"`
	LowPerformers  int `json:"low_performers"`
	FatigueRisk    int `json:"fatigue_risk"`

	ROASRange Range `json:"roas_range"`
	CPARange  Range `json:"cpa_range"`
	CTRRange  Range `json:"ctr_range"`

	Lines []CampaignLine `json:"campaign_data"`
}

// Segmentation thresholds used in the summary.
const (
	highPerformerROAS = 3.0
	lowPerformerROAS  = 2.0
)

// BuildSummary computes totals, segmentation counts and metric ranges.
// Account ratios are recomputed from the summed counters.
func BuildSummary(rows []model.InsightRow) Summary {
	s := Summary{Campaigns: len(rows)}
	if len(rows) == 0 {
		return s
	}

	roas := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	cpa, ctr := roas, roas
	for _, r := range rows {
		s.Totals = s.Totals.Add(r.Counters)
		if r.ROAS > highPerformerROAS {
			s.HighPerformers++
		}
		if r.ROAS < lowPerformerROAS {
			s.LowPerformers++
		}
		if r.Frequency > FatigueFrequency {
			s.FatigueRisk++
		}
		widen(&roas, r.ROAS)
		widen(&cpa, r.CPA)
		widen(&ctr, r.CTR)
		s.Lines = append(s.Lines, CampaignLine{
			CampaignID:   r.CampaignID,
			CampaignName: r.CampaignName,
			Spend:        r.Spend,
			Revenue:      r.ConversionValue,
			Conversions:  r.Conversions,
			Impressions:  r.Impressions,
			Clicks:       r.Clicks,
			ROAS:         r.ROAS,
			CPA:          r.CPA,
			CTR:          r.CTR,
			CPM:          r.CPM,
			Frequency:    r.Frequency,
		})
	}
	s.ROASRange, s.CPARange, s.CTRRange = roas, cpa, ctr

	t := s.Totals
	if t.Spend > 0 {
		s.ROAS = t.ConversionValue / t.Spend
	}
	if t.Conversions > 0 {
		s.CPA = t.Spend / float64(t.Conversions)
	}
	if t.Impressions > 0 {
		s.CTR = float64(t.Clicks) / float64(t.Impressions) * 100
	}
	return s
}

func widen(r *Range, v float64) {
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
}

const systemPrompt = `You are an expert Meta Ads performance analyst. Analyze the provided campaign data and generate actionable insights.

Focus on:
1. Performance anomalies (ROAS drops, CPA spikes, CTR declines)
2. Budget allocation efficiency
3. Creative fatigue indicators
4. Audience saturation signals
5. Optimization opportunities

Provide specific, actionable recommendations with expected impact estimates.
Respond with a single valid JSON object and nothing else.`

const responseFormat = `Respond in this JSON format:
{
  "recommendations": [
    {
      "type": "budget_increase|budget_decrease|creative_refresh|audience_expansion|pause_campaign|bidding_adjustment",
      "campaign_id": "string (must be one of the campaign ids above)",
      "title": "string",
      "description": "string",
      "confidence_score": number (0-1),
      "expected_impact": "string",
      "priority": "low|medium|high|critical",
      "action_required": "string"
    }
  ],
  "overall_insights": "string",
  "performance_alerts": ["string"]
}`

// Prompt renders the summary as the user message.
func (s Summary) Prompt() string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("Analyze the following Meta Ads campaign performance data and provide optimization recommendations.\n\n")
	b.WriteString("CAMPAIGN SUMMARY:\n")
	b.WriteString(p.Sprintf("Total Campaigns: %d\n", s.Campaigns))
	b.WriteString(p.Sprintf("Total Spend: $%.2f\n", s.Totals.Spend))
	b.WriteString(p.Sprintf("Total Revenue: $%.2f\n", s.Totals.ConversionValue))
	b.WriteString(p.Sprintf("Overall ROAS: %.2f\n", s.ROAS))
	b.WriteString(p.Sprintf("Average CPA: $%.2f\n", s.CPA))
	b.WriteString(p.Sprintf("Overall CTR: %.2f%%\n", s.CTR))
	b.WriteString(p.Sprintf("Total Conversions: %d\n\n", s.Totals.Conversions))

	b.WriteString("Performance Segmentation:\n")
	b.WriteString(p.Sprintf("- High Performers (ROAS > %.1f): %d campaigns\n", highPerformerROAS, s.HighPerformers))
	b.WriteString(p.Sprintf("- Low Performers (ROAS < %.1f): %d campaigns\n", lowPerformerROAS, s.LowPerformers))
	b.WriteString(p.Sprintf("- Creative Fatigue Risk (Freq > %.1f): %d campaigns\n\n", FatigueFrequency, s.FatigueRisk))

	if s.Campaigns > 0 {
		b.WriteString("Key Metrics Ranges:\n")
		b.WriteString(p.Sprintf("- ROAS: %.2f - %.2f\n", s.ROASRange.Min, s.ROASRange.Max))
		b.WriteString(p.Sprintf("- CPA: $%.2f - $%.2f\n", s.CPARange.Min, s.CPARange.Max))
		b.WriteString(p.Sprintf("- CTR: %.2f%% - %.2f%%\n\n", s.CTRRange.Min, s.CTRRange.Max))
	}

	b.WriteString("DETAILED CAMPAIGN DATA:\n")
	data, _ := json.MarshalIndent(s.Lines, "", "  ")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	return b.String()
}
