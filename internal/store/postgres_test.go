package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ads-insights/internal/model"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}
	return s, mock
}

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS insight_rows`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Campaign rows ---

func TestPostgresStore_UpsertRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_insight_rows"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_insight_rows"}, rowColumns).WillReturnResult(2)
	mock.ExpectExec(`DELETE FROM`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "insight_rows" .* ON CONFLICT \("campaign_id", "date"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertRows(context.Background(), []model.InsightRow{
		{CampaignID: "c1", Date: day("2026-03-01"), Counters: model.Counters{Spend: 10}},
		{CampaignID: "c2", Date: day("2026-03-01"), Counters: model.Counters{Spend: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRows_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.UpsertRows(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertRows_CopyFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_insight_rows"}, rowColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.UpsertRows(context.Background(), []model.InsightRow{{CampaignID: "c1", Date: day("2026-03-01")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

var rowCols = []string{"campaign_id", "date", "campaign_name", "spend", "impressions", "clicks", "conversions",
	"conversion_value", "ctr", "cpc", "cpm", "roas", "cpa", "frequency", "reach", "relevance_score",
	"quality_ranking", "updated_at"}

func TestPostgresStore_QueryRows_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := model.DateRange{Start: day("2026-03-01"), End: day("2026-03-07")}
	score := 7.5

	mock.ExpectQuery(`FROM insight_rows WHERE true AND date >= \$1 AND date <= \$2 AND campaign_id = ANY\(\$3\) AND campaign_name ILIKE \$4 ORDER BY date ASC, campaign_id ASC LIMIT \$5`).
		WithArgs(r.Start, r.End, []string{"c1"}, "%spring%", 50).
		WillReturnRows(pgxmock.NewRows(rowCols).AddRow(
			"c1", day("2026-03-02"), "Spring Sale",
			100.0, int64(10000), int64(200), int64(10), 400.0,
			2.0, 0.5, 10.0, 4.0, 10.0,
			1.8, int64(5000), &score, "above_average", fixedNow,
		))

	rows, err := s.QueryRows(context.Background(), RowFilter{
		Range:       r,
		CampaignIDs: []string{"c1"},
		Search:      "spring",
		Limit:       50,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Spring Sale", rows[0].CampaignName)
	assert.Equal(t, int64(200), rows[0].Clicks)
	assert.InDelta(t, 4.0, rows[0].ROAS, 1e-9)
	assert.Equal(t, model.QualityAboveAverage, rows[0].QualityRanking)
	require.NotNil(t, rows[0].RelevanceScore)
	assert.InDelta(t, 7.5, *rows[0].RelevanceScore, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryRows_NoLimitByDefault(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM insight_rows WHERE true ORDER BY date ASC, campaign_id ASC$`).
		WillReturnRows(pgxmock.NewRows(rowCols))

	rows, err := s.QueryRows(context.Background(), RowFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryRows_OpenEndedRange(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	start := day("2026-03-01")

	mock.ExpectQuery(`FROM insight_rows WHERE true AND date >= \$1 ORDER BY date ASC, campaign_id ASC$`).
		WithArgs(start).
		WillReturnRows(pgxmock.NewRows(rowCols))

	rows, err := s.QueryRows(context.Background(), RowFilter{Range: model.DateRange{Start: start}})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Alerts ---

func TestPostgresStore_CreateAlert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO alerts`).
		WithArgs(pgxmock.AnyArg(), "c1", "roas_drop", "high", "ROAS fell", 1.0, 0.6, false, fixedNow, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.Alert{CampaignID: "c1", Type: model.AlertROASDrop, Severity: model.SeverityHigh,
		Message: "ROAS fell", Threshold: 1.0, Observed: 0.6}
	require.NoError(t, s.CreateAlert(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, fixedNow, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAlert_Invalid(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.CreateAlert(context.Background(), &model.Alert{CampaignID: "c1", Type: "nope", Severity: model.SeverityLow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown alert type")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryAlerts_Unacknowledged(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	unacked := false

	mock.ExpectQuery(`FROM alerts WHERE true AND is_acknowledged = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(false, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "campaign_id", "alert_type", "severity", "message",
			"threshold_value", "current_value", "is_acknowledged", "created_at", "acknowledged_at"}).
			AddRow("a1", "c1", "cpa_spike", "medium", "CPA up", 50.0, 80.0, false, fixedNow, nil))

	alerts, err := s.QueryAlerts(context.Background(), AlertFilter{Acknowledged: &unacked})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertCPASpike, alerts[0].Type)
	assert.Nil(t, alerts[0].AcknowledgedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AcknowledgeAlert_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE alerts SET is_acknowledged = true`).
		WithArgs(fixedNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.AcknowledgeAlert(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Recommendations ---

func TestPostgresStore_UpdateRecommendationImplemented(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE recommendations SET implemented = \$1`).
		WithArgs(true, fixedNow, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateRecommendationImplemented(context.Background(), "r1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecommendationImplemented_Dismissed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE recommendations SET implemented = \$1`).
		WithArgs(true, fixedNow, "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.UpdateRecommendationImplemented(context.Background(), "r1", true)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DismissRecommendation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE recommendations SET dismissed = true`).
		WithArgs(fixedNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.DismissRecommendation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRecommendation_RejectsOutOfRangeConfidence(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.CreateRecommendation(context.Background(), &model.Recommendation{
		CampaignID: "c1", Type: model.RecPauseCampaign, Title: "t", Description: "d",
		Priority: model.SeverityCritical, Confidence: 1.2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Sync runs ---

func TestPostgresStore_SyncRunLifecycle(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := model.DateRange{Start: day("2026-03-01"), End: day("2026-03-07")}

	mock.ExpectExec(`INSERT INTO sync_runs`).
		WithArgs(pgxmock.AnyArg(), "act_1", &r.Start, &r.End, "running", []byte("[]"), "", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.SyncRun{AccountID: "act_1", Range: r}
	require.NoError(t, s.CreateSyncRun(context.Background(), run))
	assert.Equal(t, model.SyncRunning, run.Status)

	mock.ExpectExec(`UPDATE sync_runs SET status = \$1`).
		WithArgs("complete", pgxmock.AnyArg(), "", fixedNow, run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run.Status = model.SyncComplete
	run.Steps = []model.StepResult{{Name: model.StepFetch, Status: model.StepComplete, Count: 3}}
	require.NoError(t, s.FinishSyncRun(context.Background(), run))
	require.NotNil(t, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSyncRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since, until := day("2026-03-01"), day("2026-03-07")

	mock.ExpectQuery(`FROM sync_runs ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "since", "until", "status", "steps", "error",
			"started_at", "finished_at"}).
			AddRow("s1", "act_1", &since, &until, "partial",
				[]byte(`[{"name":"classify","status":"failed","duration_ms":3,"count":0,"error":"boom"}]`),
				"classify: boom", fixedNow, &fixedNow))

	runs, err := s.ListSyncRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.SyncPartial, runs[0].Status)
	assert.Equal(t, since, runs[0].Range.Start)
	step, ok := runs[0].Step(model.StepClassify)
	require.True(t, ok)
	assert.Equal(t, model.StepFailed, step.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Retention ---

func TestPostgresStore_DeleteOlderThan(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM insight_rows WHERE date < \$1`).
		WithArgs(day("2026-01-01")).
		WillReturnResult(pgxmock.NewResult("DELETE", 40))
	mock.ExpectExec(`DELETE FROM alerts`).WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM recommendations`).WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM sync_runs`).WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	res, err := s.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, RetentionResult{Rows: 40, Alerts: 3, Recommendations: 2, SyncRuns: 1}, res)
	assert.Equal(t, int64(46), res.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteOlderThan_RollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM insight_rows`).
		WithArgs(model.Day(fixedNow)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`DELETE FROM alerts`).WithArgs(fixedNow).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	res, err := s.DeleteOlderThan(context.Background(), fixedNow)
	require.Error(t, err)
	assert.Zero(t, res.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}
