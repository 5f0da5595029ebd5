package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// RecommendationType is the kind of action suggested.
type RecommendationType string

const (
	RecBudgetIncrease    RecommendationType = "budget_increase"
	RecBudgetDecrease    RecommendationType = "budget_decrease"
	RecPauseCampaign     RecommendationType = "pause_campaign"
	RecCreativeRefresh   RecommendationType = "creative_refresh"
	RecAudienceExpansion RecommendationType = "audience_expansion"
	RecBiddingAdjustment RecommendationType = "bidding_adjustment"
)

// AllRecommendationTypes lists every accepted type.
var AllRecommendationTypes = []RecommendationType{
	RecBudgetIncrease,
	RecBudgetDecrease,
	RecPauseCampaign,
	RecCreativeRefresh,
	RecAudienceExpansion,
	RecBiddingAdjustment,
}

// Valid reports whether t is a known recommendation type.
func (t RecommendationType) Valid() bool {
	for _, v := range AllRecommendationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// RecommendationSource records which synthesizer produced a recommendation.
type RecommendationSource string

const (
	SourceRules RecommendationSource = "rules"
	SourceAI    RecommendationSource = "ai"
)

// RecommendationStatus is derived from the implemented and dismissed flags.
type RecommendationStatus string

const (
	RecStatusPending     RecommendationStatus = "pending"
	RecStatusImplemented RecommendationStatus = "implemented"
	RecStatusDismissed   RecommendationStatus = "dismissed"
)

// Recommendation is one actionable suggestion for a campaign.
type Recommendation struct {
	ID             string               `json:"id"`
	CampaignID     string               `json:"campaign_id"`
	Date           time.Time            `json:"date"`
	Type           RecommendationType   `json:"type"`
	Title          string               `json:"title"`
	Description    string               `json:"description"`
	Confidence     float64              `json:"confidence_score"`
	ExpectedImpact string               `json:"expected_impact"`
	Priority       Severity             `json:"priority"`
	ActionRequired string               `json:"action_required"`
	Source         RecommendationSource `json:"source"`
	Implemented    bool                 `json:"implemented"`
	Dismissed      bool                 `json:"dismissed"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Status returns the lifecycle state.
func (r Recommendation) Status() RecommendationStatus {
	switch {
	case r.Implemented:
		return RecStatusImplemented
	case r.Dismissed:
		return RecStatusDismissed
	default:
		return RecStatusPending
	}
}

// Validate enforces the recommendation invariants. Out-of-range values are
// rejected, never clamped.
func (r Recommendation) Validate() error {
	if r.CampaignID == "" {
		return eris.New("model: recommendation missing campaign id")
	}
	if r.Title == "" {
		return eris.New("model: recommendation missing title")
	}
	if r.Description == "" {
		return eris.New("model: recommendation missing description")
	}
	if !r.Type.Valid() {
		return eris.Errorf("model: unknown recommendation type %q", r.Type)
	}
	if !r.Priority.Valid() {
		return eris.Errorf("model: unknown priority %q", r.Priority)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return eris.Errorf("model: confidence %v outside [0,1]", r.Confidence)
	}
	if r.Implemented && r.Dismissed {
		return eris.New("model: recommendation cannot be both implemented and dismissed")
	}
	return nil
}
