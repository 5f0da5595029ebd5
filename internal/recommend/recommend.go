// Package recommend turns campaign rows into prioritized optimization
// recommendations. Rules is the deterministic path; AI delegates to a
// language model and validates what comes back.
package recommend

import (
	"context"
	"time"

	"github.com/sells-group/ads-insights/internal/model"
)

// Synthesizer produces recommendations for the given rows. asOf is the
// analysed period end and becomes each recommendation's Date.
type Synthesizer interface {
	Recommend(ctx context.Context, rows []model.InsightRow, asOf time.Time) ([]model.Recommendation, error)
}

var (
	_ Synthesizer = (*Rules)(nil)
	_ Synthesizer = (*AI)(nil)
)

func displayName(r model.InsightRow) string {
	if r.CampaignName != "" {
		return r.CampaignName
	}
	return r.CampaignID
}
