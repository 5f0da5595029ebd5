package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/resilience"
	"github.com/sells-group/ads-insights/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 500, OutputTokens: 200},
	}
}

func aiRows() []model.InsightRow {
	return []model.InsightRow{
		{CampaignID: "c1", CampaignName: "Spring", Frequency: 1.4,
			Counters: model.Counters{Spend: 100, ConversionValue: 420, Conversions: 4, Impressions: 10000, Clicks: 200},
			Ratios:   model.Ratios{ROAS: 4.2, CPA: 25, CTR: 2}},
		{CampaignID: "c2", CampaignName: "Retarget", Frequency: 3.1,
			Counters: model.Counters{Spend: 300, ConversionValue: 360, Conversions: 3, Impressions: 20000, Clicks: 100},
			Ratios:   model.Ratios{ROAS: 1.2, CPA: 100, CTR: 0.5}},
	}
}

func newTestAI(client anthropic.Client, timeout time.Duration) *AI {
	return NewAI(client, AIConfig{Model: "claude-haiku-4-5-20251001", Timeout: timeout}, nil)
}

func TestAI_AcceptsValidCandidates(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 2000 &&
			req.System == systemPrompt &&
			len(req.Messages) == 1 &&
			req.Temperature != nil
	})).Return(textResponse(`{"recommendations":[
	  {"type":"bidding_adjustment","campaign_id":"c2","title":"Switch to cost cap","description":"CPA is 4x account average","confidence_score":0.65,"priority":"high"},
	  {"type":"budget_increase","campaign_id":"ghost","title":"t","description":"d","confidence_score":0.9,"priority":"high"},
	  {"type":"budget_increase","campaign_id":"c1","title":"t","description":"d","confidence_score":1.5,"priority":"high"}
	]}`), nil)

	recs, err := newTestAI(client, time.Second).Recommend(context.Background(), aiRows(), asOf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecBiddingAdjustment, recs[0].Type)
	assert.Equal(t, "c2", recs[0].CampaignID)
	assert.Equal(t, model.SourceAI, recs[0].Source)
	assert.Equal(t, model.Day(asOf), recs[0].Date)
	client.AssertExpectations(t)
}

func TestAI_TimeoutYieldsEmptyAndRulesUnaffected(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	rows := aiRows()
	start := time.Now()
	aiRecs, err := newTestAI(client, 20*time.Millisecond).Recommend(context.Background(), rows, asOf)
	require.NoError(t, err)
	assert.Empty(t, aiRecs)
	assert.Less(t, time.Since(start), 5*time.Second)

	ruleRecs, err := NewRules().Recommend(context.Background(), rows, asOf)
	require.NoError(t, err)
	assert.NotEmpty(t, ruleRecs)
}

func TestAI_FailuresYieldEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *anthropic.MessageResponse
		err  error
	}{
		{"transport error", nil, errors.New("connection refused")},
		{"malformed json", textResponse("I think you should spend more."), nil},
		{"empty text", textResponse(""), nil},
		{"nil response", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockAnthropicClient{}
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			recs, err := newTestAI(client, time.Second).Recommend(context.Background(), aiRows(), asOf)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestAI_OpenCircuitSkipsCall(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Once()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	ai := NewAI(client, AIConfig{Timeout: time.Second}, breaker)

	recs, err := ai.Recommend(context.Background(), aiRows(), asOf)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, resilience.CircuitOpen, breaker.State())

	recs, err = ai.Recommend(context.Background(), aiRows(), asOf)
	require.NoError(t, err)
	assert.Empty(t, recs)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAI_NoRowsOrClientSkipsCall(t *testing.T) {
	t.Parallel()

	client := &mockAnthropicClient{}
	recs, err := newTestAI(client, time.Second).Recommend(context.Background(), nil, asOf)
	require.NoError(t, err)
	assert.Empty(t, recs)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)

	recs, err = NewAI(nil, AIConfig{}, nil).Recommend(context.Background(), aiRows(), asOf)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	s := BuildSummary(aiRows())
	assert.Equal(t, 2, s.Campaigns)
	assert.InDelta(t, 400.0, s.Totals.Spend, 1e-9)
	assert.InDelta(t, 780.0, s.Totals.ConversionValue, 1e-9)
	assert.Equal(t, int64(7), s.Totals.Conversions)
	assert.InDelta(t, 1.95, s.ROAS, 1e-9)
	assert.InDelta(t, 400.0/7, s.CPA, 1e-9)
	assert.InDelta(t, 1.0, s.CTR, 1e-9)
	assert.Equal(t, 1, s.HighPerformers)
	assert.Equal(t, 1, s.LowPerformers)
	assert.Equal(t, 1, s.FatigueRisk)
	assert.Equal(t, Range{Min: 1.2, Max: 4.2}, s.ROASRange)
	assert.Equal(t, Range{Min: 25, Max: 100}, s.CPARange)
	assert.Len(t, s.Lines, 2)

	prompt := s.Prompt()
	assert.Contains(t, prompt, "Total Campaigns: 2")
	assert.Contains(t, prompt, "Total Spend: $400.00")
	assert.Contains(t, prompt, "- ROAS: 1.20 - 4.20")
	assert.Contains(t, prompt, `"campaign_id": "c2"`)
	assert.Contains(t, prompt, `"confidence_score"`)
}

func TestBuildSummary_Empty(t *testing.T) {
	t.Parallel()

	s := BuildSummary(nil)
	assert.Zero(t, s.Campaigns)
	assert.Zero(t, s.ROAS)
	assert.NotContains(t, s.Prompt(), "Key Metrics Ranges")
}
