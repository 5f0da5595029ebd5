package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/db"
	"github.com/sells-group/ads-insights/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func utcNow() time.Time { return time.Now().UTC() }

func newID() string { return uuid.New().String() }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS insight_rows (
	campaign_id      TEXT NOT NULL,
	date             DATE NOT NULL,
	campaign_name    TEXT NOT NULL DEFAULT '',
	spend            DOUBLE PRECISION NOT NULL DEFAULT 0,
	impressions      BIGINT NOT NULL DEFAULT 0,
	clicks           BIGINT NOT NULL DEFAULT 0,
	conversions      BIGINT NOT NULL DEFAULT 0,
	conversion_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	ctr              DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpc              DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpm              DOUBLE PRECISION NOT NULL DEFAULT 0,
	roas             DOUBLE PRECISION NOT NULL DEFAULT 0,
	cpa              DOUBLE PRECISION NOT NULL DEFAULT 0,
	frequency        DOUBLE PRECISION NOT NULL DEFAULT 0,
	reach            BIGINT NOT NULL DEFAULT 0,
	relevance_score  DOUBLE PRECISION,
	quality_ranking  TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (campaign_id, date)
);

CREATE INDEX IF NOT EXISTS idx_insight_rows_date ON insight_rows(date);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	alert_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	threshold_value DOUBLE PRECISION NOT NULL,
	current_value   DOUBLE PRECISION NOT NULL,
	is_acknowledged BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	acknowledged_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_alerts_campaign ON alerts(campaign_id);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC);

CREATE TABLE IF NOT EXISTS recommendations (
	id               TEXT PRIMARY KEY,
	campaign_id      TEXT NOT NULL,
	date             DATE NOT NULL,
	type             TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL CHECK (confidence_score >= 0 AND confidence_score <= 1),
	expected_impact  TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL,
	action_required  TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'rules',
	implemented      BOOLEAN NOT NULL DEFAULT false,
	dismissed        BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (NOT (implemented AND dismissed))
);

CREATE INDEX IF NOT EXISTS idx_recommendations_campaign ON recommendations(campaign_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_created_at ON recommendations(created_at DESC);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	since       DATE,
	until       DATE,
	status      TEXT NOT NULL DEFAULT 'running',
	steps       JSONB NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Campaign rows ---

var insightUpsert = db.UpsertConfig{
	Table:        "insight_rows",
	Columns:      rowColumns,
	ConflictKeys: []string{"campaign_id", "date"},
}

func (s *PostgresStore) UpsertRows(ctx context.Context, rows []model.InsightRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	now := s.now()
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = rowValues(r, model.Day(r.Date), now)
	}
	n, err := db.BulkUpsert(ctx, s.pool, insightUpsert, values)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert rows")
	}
	return n, nil
}

func (s *PostgresStore) QueryRows(ctx context.Context, filter RowFilter) ([]model.InsightRow, error) {
	query := `SELECT campaign_id, date, campaign_name, spend, impressions, clicks, conversions, conversion_value,
		ctr, cpc, cpm, roas, cpa, frequency, reach, relevance_score, quality_ranking, updated_at
		FROM insight_rows WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.Range.Start.IsZero() {
		query += fmt.Sprintf(` AND date >= $%d`, argIdx)
		args = append(args, filter.Range.Start)
		argIdx++
	}
	if !filter.Range.End.IsZero() {
		query += fmt.Sprintf(` AND date <= $%d`, argIdx)
		args = append(args, filter.Range.End)
		argIdx++
	}
	if len(filter.CampaignIDs) > 0 {
		query += fmt.Sprintf(` AND campaign_id = ANY($%d)`, argIdx)
		args = append(args, filter.CampaignIDs)
		argIdx++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND campaign_name ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}
	query += ` ORDER BY date ASC, campaign_id ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query rows")
	}
	defer rows.Close()

	var out []model.InsightRow
	for rows.Next() {
		var r model.InsightRow
		var quality string
		if err := rows.Scan(
			&r.CampaignID, &r.Date, &r.CampaignName,
			&r.Spend, &r.Impressions, &r.Clicks, &r.Conversions, &r.ConversionValue,
			&r.CTR, &r.CPC, &r.CPM, &r.ROAS, &r.CPA,
			&r.Frequency, &r.Reach, &r.RelevanceScore, &quality, &r.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		r.Date = model.Day(r.Date)
		r.QualityRanking = model.QualityRanking(quality)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query rows iterate")
}

// --- Alerts ---

func (s *PostgresStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	if err := prepareAlert(a, newID, s.now()); err != nil {
		return eris.Wrap(err, "postgres: create alert")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, campaign_id, alert_type, severity, message, threshold_value, current_value, is_acknowledged, created_at, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.CampaignID, string(a.Type), string(a.Severity), a.Message,
		a.Threshold, a.Observed, a.Acknowledged, a.CreatedAt, a.AcknowledgedAt,
	)
	return eris.Wrap(err, "postgres: insert alert")
}

func (s *PostgresStore) QueryAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, campaign_id, alert_type, severity, message, threshold_value, current_value,
		is_acknowledged, created_at, acknowledged_at FROM alerts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Acknowledged != nil {
		query += fmt.Sprintf(` AND is_acknowledged = $%d`, argIdx)
		args = append(args, *filter.Acknowledged)
		argIdx++
	}
	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var typ, sev string
		if err := rows.Scan(&a.ID, &a.CampaignID, &typ, &sev, &a.Message, &a.Threshold, &a.Observed,
			&a.Acknowledged, &a.CreatedAt, &a.AcknowledgedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(sev)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query alerts iterate")
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET is_acknowledged = true, acknowledged_at = COALESCE(acknowledged_at, $1) WHERE id = $2`,
		s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: acknowledge alert %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: alert %s", id)
	}
	return nil
}

// --- Recommendations ---

func (s *PostgresStore) CreateRecommendation(ctx context.Context, r *model.Recommendation) error {
	if err := prepareRecommendation(r, newID, s.now()); err != nil {
		return eris.Wrap(err, "postgres: create recommendation")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recommendations (id, campaign_id, date, type, title, description, confidence_score,
		expected_impact, priority, action_required, source, implemented, dismissed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.CampaignID, model.Day(r.Date), string(r.Type), r.Title, r.Description, r.Confidence,
		r.ExpectedImpact, string(r.Priority), r.ActionRequired, string(r.Source),
		r.Implemented, r.Dismissed, r.CreatedAt, r.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert recommendation")
}

func (s *PostgresStore) QueryRecommendations(ctx context.Context, filter RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT id, campaign_id, date, type, title, description, confidence_score, expected_impact,
		priority, action_required, source, implemented, dismissed, created_at, updated_at
		FROM recommendations WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CampaignID != "" {
		query += fmt.Sprintf(` AND campaign_id = $%d`, argIdx)
		args = append(args, filter.CampaignID)
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	if filter.Implemented != nil {
		query += fmt.Sprintf(` AND implemented = $%d`, argIdx)
		args = append(args, *filter.Implemented)
		argIdx++
	}
	if filter.Dismissed != nil {
		query += fmt.Sprintf(` AND dismissed = $%d`, argIdx)
		args = append(args, *filter.Dismissed)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query recommendations")
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		var typ, prio, src string
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.Date, &typ, &r.Title, &r.Description, &r.Confidence,
			&r.ExpectedImpact, &prio, &r.ActionRequired, &src, &r.Implemented, &r.Dismissed,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recommendation")
		}
		r.Date = model.Day(r.Date)
		r.Type = model.RecommendationType(typ)
		r.Priority = model.Severity(prio)
		r.Source = model.RecommendationSource(src)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query recommendations iterate")
}

// UpdateRecommendationImplemented marks a pending recommendation implemented.
// Implemented is terminal: clearing it or implementing a dismissed
// recommendation returns ErrInvalidTransition.
func (s *PostgresStore) UpdateRecommendationImplemented(ctx context.Context, id string, implemented bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET implemented = $1, updated_at = $2
		WHERE id = $3 AND dismissed = false AND (implemented = false OR $1 = true)`,
		implemented, s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update recommendation %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// DismissRecommendation marks a pending recommendation dismissed. Dismissing
// an implemented recommendation returns ErrInvalidTransition.
func (s *PostgresStore) DismissRecommendation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations SET dismissed = true, updated_at = $1 WHERE id = $2 AND implemented = false`,
		s.now(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: dismiss recommendation %s", id)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *PostgresStore) transitionError(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM recommendations WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return eris.Wrapf(err, "postgres: lookup recommendation %s", id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "postgres: recommendation %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "postgres: recommendation %s", id)
}

// --- Sync runs ---

func (s *PostgresStore) CreateSyncRun(ctx context.Context, run *model.SyncRun) error {
	prepareSyncRun(run, newID, s.now())
	steps, err := json.Marshal(stepsOrEmpty(run.Steps))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal steps")
	}
	since, until := rangeBounds(run.Range)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, account_id, since, until, status, steps, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.AccountID, since, until, string(run.Status), steps, run.Error, run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert sync run")
}

func (s *PostgresStore) FinishSyncRun(ctx context.Context, run *model.SyncRun) error {
	if run.FinishedAt == nil {
		now := s.now()
		run.FinishedAt = &now
	}
	steps, err := json.Marshal(stepsOrEmpty(run.Steps))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal steps")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_runs SET status = $1, steps = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(run.Status), steps, run.Error, *run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish sync run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: sync run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, since, until, status, steps, error, started_at, finished_at
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync runs")
	}
	defer rows.Close()

	var out []model.SyncRun
	for rows.Next() {
		var run model.SyncRun
		var since, until *time.Time
		var status string
		var steps []byte
		if err := rows.Scan(&run.ID, &run.AccountID, &since, &until, &status, &steps, &run.Error,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync run")
		}
		run.Status = model.SyncStatus(status)
		run.Range = boundsRange(since, until)
		if err := json.Unmarshal(steps, &run.Steps); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal steps")
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sync runs iterate")
}

// --- Retention ---

// DeleteOlderThan removes rows dated before cutoff's day and alerts,
// recommendations and finished sync runs created before cutoff, in one
// transaction.
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (RetentionResult, error) {
	var res RetentionResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "postgres: retention begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	steps := []struct {
		sql string
		arg any
		dst *int64
	}{
		{`DELETE FROM insight_rows WHERE date < $1`, model.Day(cutoff), &res.Rows},
		{`DELETE FROM alerts WHERE created_at < $1`, cutoff, &res.Alerts},
		{`DELETE FROM recommendations WHERE created_at < $1`, cutoff, &res.Recommendations},
		{`DELETE FROM sync_runs WHERE started_at < $1 AND finished_at IS NOT NULL`, cutoff, &res.SyncRuns},
	}
	for _, st := range steps {
		tag, err := tx.Exec(ctx, st.sql, st.arg)
		if err != nil {
			return RetentionResult{}, eris.Wrap(err, "postgres: retention delete")
		}
		*st.dst = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return RetentionResult{}, eris.Wrap(err, "postgres: retention commit")
	}
	return res, nil
}

func stepsOrEmpty(steps []model.StepResult) []model.StepResult {
	if steps == nil {
		return []model.StepResult{}
	}
	return steps
}

func rangeBounds(r model.DateRange) (since, until *time.Time) {
	if r.IsZero() {
		return nil, nil
	}
	start, end := model.Day(r.Start), model.Day(r.End)
	return &start, &end
}

func boundsRange(since, until *time.Time) model.DateRange {
	if since == nil || until == nil {
		return model.DateRange{}
	}
	return model.DateRange{Start: model.Day(*since), End: model.Day(*until)}
}
