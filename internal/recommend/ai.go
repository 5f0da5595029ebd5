package recommend

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/resilience"
	"github.com/sells-group/ads-insights/pkg/anthropic"
)

// AIConfig controls the delegated synthesis call.
type AIConfig struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// DefaultAIConfig returns the settings used when none are configured.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   2000,
		Temperature: 0.3,
		Timeout:     30 * time.Second,
	}
}

// AI delegates synthesis to a language model. It is best-effort: any
// failure yields no recommendations and a nil error.
type AI struct {
	client  anthropic.Client
	cfg     AIConfig
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// NewAI creates the delegated synthesizer. A nil breaker gets the default
// circuit configuration; zero config values fall back to DefaultAIConfig.
func NewAI(client anthropic.Client, cfg AIConfig, breaker *resilience.CircuitBreaker) *AI {
	def := DefaultAIConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &AI{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		log:     zap.L().With(zap.String("component", "recommend.ai")),
	}
}

// Recommend summarizes rows, asks the model for recommendations and keeps
// only candidates that pass validation and name a campaign present in rows.
// The model call runs under its own timeout as well as ctx.
func (a *AI) Recommend(ctx context.Context, rows []model.InsightRow, asOf time.Time) ([]model.Recommendation, error) {
	if a == nil || a.client == nil || len(rows) == 0 {
		return nil, nil
	}

	text, err := a.generate(ctx, BuildSummary(rows))
	if err != nil {
		a.log.Warn("recommend: ai synthesis failed", zap.Error(err))
		return nil, nil
	}

	res, rejected, err := Parse(text)
	if err != nil {
		a.log.Warn("recommend: ai response unusable", zap.Error(err))
		return nil, nil
	}

	known := make(map[string]bool, len(rows))
	for _, r := range rows {
		known[r.CampaignID] = true
	}

	date := model.Day(asOf)
	var out []model.Recommendation
	for i, rec := range res.Recommendations {
		if !known[rec.CampaignID] {
			rejected = append(rejected, Rejection{Index: i, CampaignID: rec.CampaignID, Reason: "unknown campaign"})
			continue
		}
		rec.Date = date
		out = append(out, rec)
	}

	for _, r := range rejected {
		a.log.Warn("recommend: rejected ai candidate",
			zap.Int("index", r.Index),
			zap.String("campaign_id", r.CampaignID),
			zap.String("reason", r.Reason),
		)
	}
	if len(res.Insights) > 0 || len(res.Alerts) > 0 {
		a.log.Debug("recommend: ai insights",
			zap.Strings("insights", res.Insights),
			zap.Strings("alerts", res.Alerts),
		)
	}
	a.log.Info("recommend: ai synthesis complete",
		zap.Int("accepted", len(out)),
		zap.Int("rejected", len(rejected)),
	)
	return out, nil
}

func (a *AI) generate(ctx context.Context, s Summary) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	temp := a.cfg.Temperature
	resp, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       a.cfg.Model,
			MaxTokens:   a.cfg.MaxTokens,
			System:      systemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: s.Prompt()}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "recommend: create message")
	}
	if resp == nil {
		return "", eris.New("recommend: nil response")
	}
	resp.Usage.LogCost(a.cfg.Model, "recommend")

	text := resp.Text()
	if text == "" {
		return "", eris.New("recommend: empty response")
	}
	return text, nil
}
