package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityRank(t *testing.T) {
	t.Parallel()

	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.Equal(t, 0, Severity("urgent").Rank())
	assert.False(t, Severity("").Valid())
}

func TestAlertValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		alert   Alert
		wantErr string
	}{
		{
			name:  "roas drop below threshold",
			alert: Alert{CampaignID: "c1", Type: AlertROASDrop, Severity: SeverityHigh, Threshold: 2, Observed: 1.8},
		},
		{
			name:    "roas drop at threshold",
			alert:   Alert{CampaignID: "c1", Type: AlertROASDrop, Severity: SeverityHigh, Threshold: 2, Observed: 2},
			wantErr: "not below threshold",
		},
		{
			name:    "cpa spike below threshold",
			alert:   Alert{CampaignID: "c1", Type: AlertCPASpike, Severity: SeverityMedium, Threshold: 40, Observed: 39},
			wantErr: "not above threshold",
		},
		{
			name:  "budget pacing has no direction",
			alert: Alert{CampaignID: "c1", Type: AlertBudgetPacing, Severity: SeverityLow},
		},
		{
			name:    "unknown type",
			alert:   Alert{CampaignID: "c1", Type: "ctr_decline", Severity: SeverityLow},
			wantErr: "unknown alert type",
		},
		{
			name:    "missing campaign",
			alert:   Alert{Type: AlertCPASpike, Severity: SeverityMedium, Threshold: 40, Observed: 50},
			wantErr: "missing campaign id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.alert.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func validRecommendation() Recommendation {
	return Recommendation{
		CampaignID:  "c1",
		Type:        RecBudgetIncrease,
		Title:       "Scale winner",
		Description: "ROAS is strong",
		Confidence:  0.8,
		Priority:    SeverityHigh,
	}
}

func TestRecommendationValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validRecommendation().Validate())

	for _, c := range []float64{-0.1, 1.5, math.NaN()} {
		r := validRecommendation()
		r.Confidence = c
		err := r.Validate()
		require.Error(t, err, "confidence %v", c)
		assert.Contains(t, err.Error(), "outside [0,1]")
	}

	r := validRecommendation()
	r.Confidence = 1
	assert.NoError(t, r.Validate())
	r.Confidence = 0
	assert.NoError(t, r.Validate())

	r = validRecommendation()
	r.Type = "increase_bids"
	assert.ErrorContains(t, r.Validate(), "unknown recommendation type")

	r = validRecommendation()
	r.Priority = "urgent"
	assert.ErrorContains(t, r.Validate(), "unknown priority")

	r = validRecommendation()
	r.Implemented, r.Dismissed = true, true
	assert.ErrorContains(t, r.Validate(), "both implemented and dismissed")
}

func TestRecommendationStatus(t *testing.T) {
	t.Parallel()

	r := validRecommendation()
	assert.Equal(t, RecStatusPending, r.Status())
	r.Implemented = true
	assert.Equal(t, RecStatusImplemented, r.Status())
	r.Implemented, r.Dismissed = false, true
	assert.Equal(t, RecStatusDismissed, r.Status())
}

func TestCountersAdd(t *testing.T) {
	t.Parallel()

	a := Counters{Spend: 10, Impressions: 100, Clicks: 5, Conversions: 1, ConversionValue: 30}
	b := Counters{Spend: 5.5, Impressions: 50, Clicks: 2, Conversions: 2, ConversionValue: 20}
	assert.Equal(t, Counters{Spend: 15.5, Impressions: 150, Clicks: 7, Conversions: 3, ConversionValue: 50}, a.Add(b))
}

func TestQualityRankingValid(t *testing.T) {
	t.Parallel()

	assert.True(t, QualityRanking("").Valid())
	assert.True(t, QualityBelowAverage.Valid())
	assert.False(t, QualityRanking("ABOVE_AVERAGE_35").Valid())
}

func TestSyncRunStep(t *testing.T) {
	t.Parallel()

	run := &SyncRun{Steps: []StepResult{{Name: StepFetch, Status: StepComplete, Count: 3}}}
	s, ok := run.Step(StepFetch)
	require.True(t, ok)
	assert.Equal(t, 3, s.Count)

	_, ok = run.Step(StepClassify)
	assert.False(t, ok)
}
