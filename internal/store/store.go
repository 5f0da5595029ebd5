// Package store persists campaign rows, alerts, recommendations and sync
// runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/model"
)

// Sentinel errors returned by state-changing operations.
var (
	ErrNotFound          = eris.New("store: not found")
	ErrInvalidTransition = eris.New("store: invalid state transition")
)

// RowFilter selects campaign rows. A zero Range matches all dates and a
// non-positive Limit returns every match.
type RowFilter struct {
	Range       model.DateRange
	CampaignIDs []string
	Search      string // case-insensitive substring of campaign_name
	Limit       int
	Offset      int
}

// AlertFilter selects alerts, newest first.
type AlertFilter struct {
	Acknowledged *bool
	CampaignID   string
	Limit        int
}

// RecommendationFilter selects recommendations, newest first.
type RecommendationFilter struct {
	CampaignID  string
	Priority    model.Severity
	Source      model.RecommendationSource
	Implemented *bool
	Dismissed   *bool
	Limit       int
}

// RetentionResult counts what a retention sweep removed.
type RetentionResult struct {
	Rows            int64 `json:"rows"`
	Alerts          int64 `json:"alerts"`
	Recommendations int64 `json:"recommendations"`
	SyncRuns        int64 `json:"sync_runs"`
}

// Total returns the number of deleted records.
func (r RetentionResult) Total() int64 {
	return r.Rows + r.Alerts + r.Recommendations + r.SyncRuns
}

// Store defines the persistence interface.
type Store interface {
	// Campaign rows
	UpsertRows(ctx context.Context, rows []model.InsightRow) (int64, error)
	QueryRows(ctx context.Context, filter RowFilter) ([]model.InsightRow, error)

	// Alerts
	CreateAlert(ctx context.Context, alert *model.Alert) error
	QueryAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string) error

	// Recommendations
	CreateRecommendation(ctx context.Context, rec *model.Recommendation) error
	QueryRecommendations(ctx context.Context, filter RecommendationFilter) ([]model.Recommendation, error)
	UpdateRecommendationImplemented(ctx context.Context, id string, implemented bool) error
	DismissRecommendation(ctx context.Context, id string) error

	// Sync runs
	CreateSyncRun(ctx context.Context, run *model.SyncRun) error
	FinishSyncRun(ctx context.Context, run *model.SyncRun) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Retention
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (RetentionResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// rowColumns is the column order used by both backends for insight rows.
var rowColumns = []string{
	"campaign_id", "date", "campaign_name",
	"spend", "impressions", "clicks", "conversions", "conversion_value",
	"ctr", "cpc", "cpm", "roas", "cpa",
	"frequency", "reach", "relevance_score", "quality_ranking", "updated_at",
}

// rowValues orders r for rowColumns. date and updatedAt are passed in the
// backend's own encoding.
func rowValues(r model.InsightRow, date, updatedAt any) []any {
	return []any{
		r.CampaignID, date, r.CampaignName,
		r.Spend, r.Impressions, r.Clicks, r.Conversions, r.ConversionValue,
		r.CTR, r.CPC, r.CPM, r.ROAS, r.CPA,
		r.Frequency, r.Reach, r.RelevanceScore, string(r.QualityRanking), updatedAt,
	}
}

// prepareAlert validates a and fills ID and CreatedAt when unset.
func prepareAlert(a *model.Alert, newID func() string, now time.Time) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	return nil
}

// prepareRecommendation validates r and fills ID and timestamps when unset.
func prepareRecommendation(r *model.Recommendation, newID func() string, now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return nil
}

// prepareSyncRun fills ID, start time and status when unset.
func prepareSyncRun(run *model.SyncRun, newID func() string, now time.Time) {
	if run.ID == "" {
		run.ID = newID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Status == "" {
		run.Status = model.SyncRunning
	}
}
