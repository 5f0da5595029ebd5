package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ads-insights/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Dates are stored as
// YYYY-MM-DD text and timestamps as fixed-width UTC text so range predicates
// compare lexically.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: utcNow}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS insight_rows (
	campaign_id      TEXT NOT NULL,
	date             TEXT NOT NULL,
	campaign_name    TEXT NOT NULL DEFAULT '',
	spend            REAL NOT NULL DEFAULT 0,
	impressions      INTEGER NOT NULL DEFAULT 0,
	clicks           INTEGER NOT NULL DEFAULT 0,
	conversions      INTEGER NOT NULL DEFAULT 0,
	conversion_value REAL NOT NULL DEFAULT 0,
	ctr              REAL NOT NULL DEFAULT 0,
	cpc              REAL NOT NULL DEFAULT 0,
	cpm              REAL NOT NULL DEFAULT 0,
	roas             REAL NOT NULL DEFAULT 0,
	cpa              REAL NOT NULL DEFAULT 0,
	frequency        REAL NOT NULL DEFAULT 0,
	reach            INTEGER NOT NULL DEFAULT 0,
	relevance_score  REAL,
	quality_ranking  TEXT NOT NULL DEFAULT '',
	updated_at       TEXT NOT NULL,
	PRIMARY KEY (campaign_id, date)
);

CREATE INDEX IF NOT EXISTS idx_insight_rows_date ON insight_rows(date);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	alert_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	message         TEXT NOT NULL,
	threshold_value REAL NOT NULL,
	current_value   REAL NOT NULL,
	is_acknowledged INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	acknowledged_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_alerts_campaign ON alerts(campaign_id);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

CREATE TABLE IF NOT EXISTS recommendations (
	id               TEXT PRIMARY KEY,
	campaign_id      TEXT NOT NULL,
	date             TEXT NOT NULL,
	type             TEXT NOT NULL,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL,
	confidence_score REAL NOT NULL CHECK (confidence_score >= 0 AND confidence_score <= 1),
	expected_impact  TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL,
	action_required  TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'rules',
	implemented      INTEGER NOT NULL DEFAULT 0,
	dismissed        INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	CHECK (NOT (implemented AND dismissed))
);

CREATE INDEX IF NOT EXISTS idx_recommendations_campaign ON recommendations(campaign_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_created_at ON recommendations(created_at);

CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	since       TEXT,
	until       TEXT,
	status      TEXT NOT NULL DEFAULT 'running',
	steps       TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Campaign rows ---

func (s *SQLiteStore) UpsertRows(ctx context.Context, rows []model.InsightRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sets := make([]string, 0, len(rowColumns))
	for _, c := range rowColumns {
		if c == "campaign_id" || c == "date" {
			continue
		}
		sets = append(sets, c+" = excluded."+c)
	}
	stmtSQL := `INSERT INTO insight_rows (` + strings.Join(rowColumns, ", ") + `) VALUES (` +
		strings.TrimSuffix(strings.Repeat("?, ", len(rowColumns)), ", ") + `)
		ON CONFLICT (campaign_id, date) DO UPDATE SET ` + strings.Join(sets, ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := formatTS(s.now())
	keys := make(map[model.RowKey]struct{}, len(rows))
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, rowValues(r, formatDate(r.Date), now)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert row %s/%s", r.CampaignID, formatDate(r.Date))
		}
		keys[r.Key()] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert commit")
	}
	return int64(len(keys)), nil
}

func (s *SQLiteStore) QueryRows(ctx context.Context, filter RowFilter) ([]model.InsightRow, error) {
	query := `SELECT campaign_id, date, campaign_name, spend, impressions, clicks, conversions, conversion_value,
		ctr, cpc, cpm, roas, cpa, frequency, reach, relevance_score, quality_ranking, updated_at
		FROM insight_rows WHERE 1=1`
	var args []any

	if !filter.Range.Start.IsZero() {
		query += ` AND date >= ?`
		args = append(args, formatDate(filter.Range.Start))
	}
	if !filter.Range.End.IsZero() {
		query += ` AND date <= ?`
		args = append(args, formatDate(filter.Range.End))
	}
	if len(filter.CampaignIDs) > 0 {
		query += ` AND campaign_id IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(filter.CampaignIDs)), ", ") + `)`
		for _, id := range filter.CampaignIDs {
			args = append(args, id)
		}
	}
	if filter.Search != "" {
		query += ` AND campaign_name LIKE ?`
		args = append(args, "%"+filter.Search+"%")
	}
	query += ` ORDER BY date ASC, campaign_id ASC`

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query rows")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InsightRow
	for rows.Next() {
		var r model.InsightRow
		var date, quality, updated string
		if err := rows.Scan(
			&r.CampaignID, &date, &r.CampaignName,
			&r.Spend, &r.Impressions, &r.Clicks, &r.Conversions, &r.ConversionValue,
			&r.CTR, &r.CPC, &r.CPM, &r.ROAS, &r.CPA,
			&r.Frequency, &r.Reach, &r.RelevanceScore, &quality, &updated,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		r.QualityRanking = model.QualityRanking(quality)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query rows iterate")
}

// --- Alerts ---

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	if err := prepareAlert(a, newID, s.now()); err != nil {
		return eris.Wrap(err, "sqlite: create alert")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, campaign_id, alert_type, severity, message, threshold_value, current_value, is_acknowledged, created_at, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CampaignID, string(a.Type), string(a.Severity), a.Message,
		a.Threshold, a.Observed, a.Acknowledged, formatTS(a.CreatedAt), formatNullTS(a.AcknowledgedAt),
	)
	return eris.Wrap(err, "sqlite: insert alert")
}

func (s *SQLiteStore) QueryAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, campaign_id, alert_type, severity, message, threshold_value, current_value,
		is_acknowledged, created_at, acknowledged_at FROM alerts WHERE 1=1`
	var args []any

	if filter.Acknowledged != nil {
		query += ` AND is_acknowledged = ?`
		args = append(args, *filter.Acknowledged)
	}
	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query alerts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var typ, sev, created string
		var acked sql.NullString
		if err := rows.Scan(&a.ID, &a.CampaignID, &typ, &sev, &a.Message, &a.Threshold, &a.Observed,
			&a.Acknowledged, &created, &acked); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(sev)
		if a.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if a.AcknowledgedAt, err = parseNullTS(acked); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query alerts iterate")
}

func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_acknowledged = 1, acknowledged_at = COALESCE(acknowledged_at, ?) WHERE id = ?`,
		formatTS(s.now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: acknowledge alert %s", id)
	}
	return checkRowsAffected(res, "alert", id)
}

// --- Recommendations ---

func (s *SQLiteStore) CreateRecommendation(ctx context.Context, r *model.Recommendation) error {
	if err := prepareRecommendation(r, newID, s.now()); err != nil {
		return eris.Wrap(err, "sqlite: create recommendation")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendations (id, campaign_id, date, type, title, description, confidence_score,
		expected_impact, priority, action_required, source, implemented, dismissed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CampaignID, formatDate(r.Date), string(r.Type), r.Title, r.Description, r.Confidence,
		r.ExpectedImpact, string(r.Priority), r.ActionRequired, string(r.Source),
		r.Implemented, r.Dismissed, formatTS(r.CreatedAt), formatTS(r.UpdatedAt),
	)
	return eris.Wrap(err, "sqlite: insert recommendation")
}

func (s *SQLiteStore) QueryRecommendations(ctx context.Context, filter RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT id, campaign_id, date, type, title, description, confidence_score, expected_impact,
		priority, action_required, source, implemented, dismissed, created_at, updated_at
		FROM recommendations WHERE 1=1`
	var args []any

	if filter.CampaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, filter.CampaignID)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.Implemented != nil {
		query += ` AND implemented = ?`
		args = append(args, *filter.Implemented)
	}
	if filter.Dismissed != nil {
		query += ` AND dismissed = ?`
		args = append(args, *filter.Dismissed)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query recommendations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		var date, typ, prio, src, created, updated string
		if err := rows.Scan(&r.ID, &r.CampaignID, &date, &typ, &r.Title, &r.Description, &r.Confidence,
			&r.ExpectedImpact, &prio, &r.ActionRequired, &src, &r.Implemented, &r.Dismissed,
			&created, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recommendation")
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		r.Type = model.RecommendationType(typ)
		r.Priority = model.Severity(prio)
		r.Source = model.RecommendationSource(src)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query recommendations iterate")
}

func (s *SQLiteStore) UpdateRecommendationImplemented(ctx context.Context, id string, implemented bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET implemented = ?1, updated_at = ?2
		WHERE id = ?3 AND dismissed = 0 AND (implemented = 0 OR ?1 = 1)`,
		implemented, formatTS(s.now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update recommendation %s", id)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) DismissRecommendation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET dismissed = 1, updated_at = ? WHERE id = ? AND implemented = 0`,
		formatTS(s.now()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: dismiss recommendation %s", id)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM recommendations WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return eris.Wrapf(err, "sqlite: lookup recommendation %s", id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "sqlite: recommendation %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "sqlite: recommendation %s", id)
}

// --- Sync runs ---

func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *model.SyncRun) error {
	prepareSyncRun(run, newID, s.now())
	steps, err := json.Marshal(stepsOrEmpty(run.Steps))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal steps")
	}
	since, until := sqlRangeBounds(run.Range)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, account_id, since, until, status, steps, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AccountID, since, until, string(run.Status), string(steps), run.Error, formatTS(run.StartedAt),
	)
	return eris.Wrap(err, "sqlite: insert sync run")
}

func (s *SQLiteStore) FinishSyncRun(ctx context.Context, run *model.SyncRun) error {
	if run.FinishedAt == nil {
		now := s.now()
		run.FinishedAt = &now
	}
	steps, err := json.Marshal(stepsOrEmpty(run.Steps))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal steps")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, steps = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(steps), run.Error, formatTS(*run.FinishedAt), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish sync run %s", run.ID)
	}
	return checkRowsAffected(res, "sync run", run.ID)
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, since, until, status, steps, error, started_at, finished_at
		FROM sync_runs ORDER BY started_at DESC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SyncRun
	for rows.Next() {
		var run model.SyncRun
		var since, until, finished sql.NullString
		var status, steps, started string
		if err := rows.Scan(&run.ID, &run.AccountID, &since, &until, &status, &steps, &run.Error,
			&started, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync run")
		}
		run.Status = model.SyncStatus(status)
		if since.Valid && until.Valid {
			if run.Range, err = model.ParseDateRange(since.String, until.String); err != nil {
				return nil, eris.Wrap(err, "sqlite: parse sync run range")
			}
		}
		if run.StartedAt, err = parseTS(started); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseNullTS(finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(steps), &run.Steps); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal steps")
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sync runs iterate")
}

// --- Retention ---

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (RetentionResult, error) {
	var res RetentionResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, eris.Wrap(err, "sqlite: retention begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ts := formatTS(cutoff)
	steps := []struct {
		sql string
		arg string
		dst *int64
	}{
		{`DELETE FROM insight_rows WHERE date < ?`, formatDate(cutoff), &res.Rows},
		{`DELETE FROM alerts WHERE created_at < ?`, ts, &res.Alerts},
		{`DELETE FROM recommendations WHERE created_at < ?`, ts, &res.Recommendations},
		{`DELETE FROM sync_runs WHERE started_at < ? AND finished_at IS NOT NULL`, ts, &res.SyncRuns},
	}
	for _, st := range steps {
		r, err := tx.ExecContext(ctx, st.sql, st.arg)
		if err != nil {
			return RetentionResult{}, eris.Wrap(err, "sqlite: retention delete")
		}
		if *st.dst, err = r.RowsAffected(); err != nil {
			return RetentionResult{}, eris.Wrap(err, "sqlite: rows affected")
		}
	}

	if err := tx.Commit(); err != nil {
		return RetentionResult{}, eris.Wrap(err, "sqlite: retention commit")
	}
	return res, nil
}

// helpers

const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func formatNullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse timestamp %q", s)
	}
	return t.UTC(), nil
}

func parseNullTS(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTS(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string { return model.Day(t).Format(model.DateLayout) }

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse date %q", s)
	}
	return t, nil
}

func sqlRangeBounds(r model.DateRange) (since, until any) {
	if r.IsZero() {
		return nil, nil
	}
	return r.Since(), r.Until()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}
