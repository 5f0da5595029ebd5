package recommend

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/model"
)

// Result is a validated model response.
type Result struct {
	Recommendations []model.Recommendation
	Insights        []string
	Alerts          []string
}

// Rejection records a discarded candidate.
type Rejection struct {
	Index      int
	CampaignID string
	Reason     string
}

// candidate mirrors one element of "recommendations". Required fields are
// pointers so absence is distinguishable from a zero value.
type candidate struct {
	Type           *string  `json:"type"`
	CampaignID     *string  `json:"campaign_id"`
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Confidence     *float64 `json:"confidence_score"`
	ExpectedImpact string   `json:"expected_impact"`
	Priority       *string  `json:"priority"`
	ActionRequired string   `json:"action_required"`
}

type envelope struct {
	Recommendations []json.RawMessage `json:"recommendations"`
	Insights        json.RawMessage   `json:"overall_insights"`
	Alerts          []string          `json:"performance_alerts"`
}

// Parse decodes a model response. A response that is not a JSON object, or
// whose recommendations field is not a list, is an error. Individual
// candidates that fail validation are returned as rejections; they never
// fail the whole parse.
func Parse(text string) (Result, []Rejection, error) {
	var env envelope
	if err := json.Unmarshal([]byte(cleanJSON(text)), &env); err != nil {
		return Result{}, nil, eris.Wrap(err, "recommend: decode response")
	}

	res := Result{Alerts: env.Alerts, Insights: decodeInsights(env.Insights)}
	var rejected []Rejection
	for i, raw := range env.Recommendations {
		rec, err := decodeCandidate(raw)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, CampaignID: rec.CampaignID, Reason: err.Error()})
			continue
		}
		res.Recommendations = append(res.Recommendations, rec)
	}
	return res, rejected, nil
}

func decodeCandidate(raw json.RawMessage) (model.Recommendation, error) {
	var c candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Recommendation{}, eris.Wrap(err, "malformed candidate")
	}

	rec := model.Recommendation{
		ExpectedImpact: c.ExpectedImpact,
		ActionRequired: c.ActionRequired,
		Source:         model.SourceAI,
	}
	if c.CampaignID != nil {
		rec.CampaignID = *c.CampaignID
	}

	var missing []string
	for name, v := range map[string]bool{
		"type":             c.Type == nil,
		"campaign_id":      c.CampaignID == nil,
		"title":            c.Title == nil,
		"description":      c.Description == nil,
		"confidence_score": c.Confidence == nil,
		"priority":         c.Priority == nil,
	} {
		if v {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return rec, eris.Errorf("missing %s", strings.Join(missing, ", "))
	}

	rec.Type = model.RecommendationType(*c.Type)
	rec.Title = *c.Title
	rec.Description = *c.Description
	rec.Confidence = *c.Confidence
	rec.Priority = model.Severity(*c.Priority)
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

// decodeInsights accepts either a single string or a list of strings.
func decodeInsights(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return []string{string(raw)}
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
