package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// AlertType identifies the kind of anomaly.
type AlertType string

const (
	AlertROASDrop           AlertType = "roas_drop"
	AlertCPASpike           AlertType = "cpa_spike"
	AlertCreativeFatigue    AlertType = "creative_fatigue"
	AlertBudgetPacing       AlertType = "budget_pacing"
	AlertAudienceSaturation AlertType = "audience_saturation"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertROASDrop, AlertCPASpike, AlertCreativeFatigue, AlertBudgetPacing, AlertAudienceSaturation:
		return true
	}
	return false
}

// Severity ranks alerts and recommendation priorities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities from 1 (low) to 4 (critical); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Alert is one detected anomaly instance.
type Alert struct {
	ID             string     `json:"id"`
	CampaignID     string     `json:"campaign_id"`
	Type           AlertType  `json:"alert_type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Threshold      float64    `json:"threshold_value"`
	Observed       float64    `json:"current_value"`
	Acknowledged   bool       `json:"is_acknowledged"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// Validate checks the alert's enums and that the observed value sits on the
// firing side of the threshold for rule-backed types.
func (a Alert) Validate() error {
	if a.CampaignID == "" {
		return eris.New("model: alert missing campaign id")
	}
	if !a.Type.Valid() {
		return eris.Errorf("model: unknown alert type %q", a.Type)
	}
	if !a.Severity.Valid() {
		return eris.Errorf("model: unknown severity %q", a.Severity)
	}
	switch a.Type {
	case AlertROASDrop:
		if !(a.Observed < a.Threshold) {
			return eris.Errorf("model: roas_drop observed %.4f not below threshold %.4f", a.Observed, a.Threshold)
		}
	case AlertCPASpike, AlertCreativeFatigue:
		if !(a.Observed > a.Threshold) {
			return eris.Errorf("model: %s observed %.4f not above threshold %.4f", a.Type, a.Observed, a.Threshold)
		}
	}
	return nil
}
