package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ads-insights/internal/metrics"
	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/pipeline"
	"github.com/sells-group/ads-insights/internal/store"
	"github.com/sells-group/ads-insights/internal/synclock"
	"github.com/sells-group/ads-insights/internal/telemetry"
	"github.com/sells-group/ads-insights/pkg/meta"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubSyncer struct {
	mu    sync.Mutex
	reqs  []pipeline.SyncRequest
	err   error
	run   *model.SyncRun
	calls chan string
}

func (s *stubSyncer) Run(_ context.Context, req pipeline.SyncRequest) (*model.SyncRun, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.calls != nil {
		s.calls <- req.AccountID
	}
	if s.err != nil {
		return s.run, s.err
	}
	return &model.SyncRun{ID: "run-1", AccountID: req.AccountID, Status: model.SyncComplete}, nil
}

func (s *stubSyncer) requests() []pipeline.SyncRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pipeline.SyncRequest(nil), s.reqs...)
}

type testEnv struct {
	store  *store.SQLiteStore
	syncer *stubSyncer
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	syncer := &stubSyncer{}
	srv := New(st, syncer, telemetry.New(prometheus.NewRegistry()), Config{
		AppSecret:   "shh",
		VerifyToken: "verify-me",
		Accounts:    []string{"act_111", "act_222"},
		DefaultDays: 7,
	})
	srv.now = func() time.Time { return fixedNow }
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &testEnv{store: st, syncer: syncer, server: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func insightRow(t *testing.T, id, date string, spend, value float64) model.InsightRow {
	t.Helper()
	d, err := time.Parse(model.DateLayout, date)
	require.NoError(t, err)
	r := model.InsightRow{
		CampaignID:   id,
		CampaignName: "Campaign " + id,
		Date:         d,
		Frequency:    1.2,
		Counters: model.Counters{
			Spend:           spend,
			Impressions:     1000,
			Clicks:          50,
			Conversions:     2,
			ConversionValue: value,
		},
	}
	require.NoError(t, metrics.DeriveRow(&r))
	return r
}

func (e *testEnv) seedRows(t *testing.T) {
	t.Helper()
	_, err := e.store.UpsertRows(context.Background(), []model.InsightRow{
		// previous window (2026-02-25..2026-03-03)
		insightRow(t, "c1", "2026-03-01", 100, 200),
		// current window (2026-03-04..2026-03-10)
		insightRow(t, "c1", "2026-03-05", 100, 300),
		insightRow(t, "c1", "2026-03-06", 100, 300),
		insightRow(t, "c2", "2026-03-06", 50, 50),
		insightRow(t, "c3", "2026-03-08", 20, 100),
	})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestHealth_StoreDown(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())
	resp, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.seedRows(t)

	resp, body := env.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var kpis model.KPISet
	require.NoError(t, json.Unmarshal(body, &kpis))
	assert.Equal(t, 3, kpis.CampaignCount)
	assert.InDelta(t, 270.0, kpis.TotalSpend.Value, 1e-9)
	assert.InDelta(t, 170.0, kpis.TotalSpend.Change, 1e-9)
	assert.Equal(t, model.ChangeIncrease, kpis.TotalSpend.ChangeType)
	assert.Equal(t, "2026-03-04", kpis.Range.Since())
	assert.Equal(t, "2026-02-25", kpis.Previous.Since())
}

func TestDashboard_NoData(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/dashboard?start=2026-01-01&end=2026-01-31", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var kpis model.KPISet
	require.NoError(t, json.Unmarshal(body, &kpis))
	assert.Equal(t, 0, kpis.CampaignCount)
	assert.Zero(t, kpis.ROAS.Value)
}

func TestDashboard_BadRange(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/dashboard?start=2026-03-10&end=2026-03-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")

	resp, _ = env.do(t, http.MethodGet, "/api/dashboard?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCampaigns(t *testing.T) {
	env := newTestEnv(t)
	env.seedRows(t)

	resp, body := env.do(t, http.MethodGet, "/api/campaigns", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var aggs []model.Aggregate
	require.NoError(t, json.Unmarshal(body, &aggs))
	require.Len(t, aggs, 3)
	assert.Equal(t, "c1", aggs[0].CampaignID)
	assert.Equal(t, 2, aggs[0].Days)
	assert.InDelta(t, 3.0, aggs[0].ROAS, 1e-9)

	_, body = env.do(t, http.MethodGet, "/api/campaigns?limit=1&offset=1", nil)
	require.NoError(t, json.Unmarshal(body, &aggs))
	require.Len(t, aggs, 1)
	assert.Equal(t, "c2", aggs[0].CampaignID)

	_, body = env.do(t, http.MethodGet, "/api/campaigns?search=c3", nil)
	require.NoError(t, json.Unmarshal(body, &aggs))
	require.Len(t, aggs, 1)
	assert.Equal(t, "c3", aggs[0].CampaignID)
}

func TestCampaigns_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/campaigns", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	_, body = env.do(t, http.MethodGet, "/api/campaigns?offset=10", nil)
	assert.JSONEq(t, `[]`, string(body))
}

func TestCampaignRows(t *testing.T) {
	env := newTestEnv(t)
	env.seedRows(t)

	resp, body := env.do(t, http.MethodGet, "/api/campaigns/c1/rows?start=2026-03-01&end=2026-03-10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []model.InsightRow
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "2026-03-01", rows[0].Date.Format(model.DateLayout))
}

func TestROASChart(t *testing.T) {
	env := newTestEnv(t)
	env.seedRows(t)

	resp, body := env.do(t, http.MethodGet, "/api/charts/roas?days=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var points []model.DailyPoint
	require.NoError(t, json.Unmarshal(body, &points))
	require.Len(t, points, 3)
	assert.InDelta(t, 350.0/150.0, points[1].ROAS, 1e-9)
	assert.InDelta(t, model.TargetROAS, points[1].Target, 1e-9)

	resp, _ = env.do(t, http.MethodGet, "/api/charts/roas?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := &model.Alert{CampaignID: "c1", Type: model.AlertROASDrop, Severity: model.SeverityHigh, Message: "ROAS low", Threshold: 2, Observed: 1}
	require.NoError(t, env.store.CreateAlert(ctx, a))

	resp, body := env.do(t, http.MethodGet, "/api/alerts?acknowledged=false", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var alerts []model.Alert
	require.NoError(t, json.Unmarshal(body, &alerts))
	require.Len(t, alerts, 1)

	resp, _ = env.do(t, http.MethodPost, "/api/alerts/"+a.ID+"/ack", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/alerts?acknowledged=false", nil)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = env.do(t, http.MethodPost, "/api/alerts/missing/ack", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/alerts?acknowledged=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecommendations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := &model.Recommendation{
		CampaignID:  "c1",
		Date:        model.Day(fixedNow),
		Type:        model.RecBudgetIncrease,
		Title:       "Increase budget",
		Description: "ROAS is strong",
		Confidence:  0.8,
		Priority:    model.SeverityHigh,
		Source:      model.SourceRules,
	}
	require.NoError(t, env.store.CreateRecommendation(ctx, rec))

	resp, body := env.do(t, http.MethodGet, "/api/recommendations?priority=high&implemented=false", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recs []model.Recommendation
	require.NoError(t, json.Unmarshal(body, &recs))
	require.Len(t, recs, 1)

	resp, _ = env.do(t, http.MethodPatch, "/api/recommendations/"+rec.ID, map[string]bool{"implemented": true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/recommendations/"+rec.ID, map[string]bool{"dismissed": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPatch, "/api/recommendations/missing", map[string]bool{"implemented": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/recommendations?implemented=false", nil)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = env.do(t, http.MethodGet, "/api/recommendations?priority=urgent", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateRecommendation_BadBodies(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body any
	}{
		{"empty", map[string]any{}},
		{"both", map[string]bool{"implemented": true, "dismissed": true}},
		{"undismiss", map[string]bool{"dismissed": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPatch, "/api/recommendations/any", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/sync", map[string]string{
		"account_id": "act_111", "since": "2026-03-01", "until": "2026-03-07",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run model.SyncRun
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, model.SyncComplete, run.Status)

	reqs := env.syncer.requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Range)
	assert.Equal(t, "2026-03-01", reqs[0].Range.Since())
}

func TestSync_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/sync", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/sync", map[string]string{"account_id": "act_1", "since": "2026-03-01"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Empty(t, env.syncer.requests())
}

func TestSync_Failures(t *testing.T) {
	env := newTestEnv(t)

	env.syncer.err = errors.New("meta down")
	env.syncer.run = &model.SyncRun{ID: "run-2", Status: model.SyncFailed}
	resp, body := env.do(t, http.MethodPost, "/api/sync", map[string]string{"account_id": "act_111"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "meta down")

	env.syncer.err = synclock.ErrHeld
	env.syncer.run = nil
	resp, _ = env.do(t, http.MethodPost, "/api/sync", map[string]string{"account_id": "act_111"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSyncRuns(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/sync/runs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	run := &model.SyncRun{AccountID: "act_111", StartedAt: fixedNow}
	require.NoError(t, env.store.CreateSyncRun(context.Background(), run))
	_, body = env.do(t, http.MethodGet, "/api/sync/runs?limit=5", nil)
	var runs []model.SyncRun
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestWebhookVerify(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/webhooks/meta?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", string(body))

	resp, _ = env.do(t, http.MethodGet, "/webhooks/meta?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func postWebhook(t *testing.T, env *testEnv, payload, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/webhooks/meta", strings.NewReader(payload))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set(meta.SignatureHeader, signature)
	}
	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	return resp
}

const campaignChange = `{"object":"ad_account","entry":[{"id":"222","time":1,"changes":[{"field":"campaigns","value":{"campaign_id":"c9"}}]}]}`

func TestWebhookEvent_TriggersSync(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.calls = make(chan string, 1)

	resp := postWebhook(t, env, campaignChange, meta.Sign("shh", []byte(campaignChange)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case account := <-env.syncer.calls:
		assert.Equal(t, "act_222", account)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook did not trigger a sync")
	}
}

func TestWebhookEvent_BadSignature(t *testing.T) {
	env := newTestEnv(t)

	resp := postWebhook(t, env, campaignChange, meta.Sign("wrong", []byte(campaignChange)))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postWebhook(t, env, campaignChange, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.server.Close()
	assert.Empty(t, env.syncer.requests())
}

func TestWebhookEvent_UnconfiguredAccountSkipped(t *testing.T) {
	env := newTestEnv(t)
	payload := `{"object":"ad_account","entry":[{"id":"999","time":1,"changes":[{"field":"campaigns","value":{"campaign_id":"c9"}}]}]}`

	resp := postWebhook(t, env, payload, meta.Sign("shh", []byte(payload)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.server.Close()
	assert.Empty(t, env.syncer.requests())
}

func TestWebhookAccounts(t *testing.T) {
	srv := New(nil, nil, nil, Config{Accounts: []string{"act_111", "222"}})

	p := &meta.WebhookPayload{Entry: []meta.WebhookEntry{
		{ID: "act_222", Changes: []meta.WebhookChange{{Field: meta.FieldCampaigns, Value: meta.ChangeValue{CampaignID: "c1"}}}},
		{ID: "222", Changes: []meta.WebhookChange{{Field: meta.FieldCampaigns, Value: meta.ChangeValue{CampaignID: "c2"}}}},
		{ID: "999", Changes: []meta.WebhookChange{{Field: meta.FieldCampaigns, Value: meta.ChangeValue{CampaignID: "c3"}}}},
		{ID: "111", Changes: []meta.WebhookChange{{Field: meta.FieldAds, Value: meta.ChangeValue{AdID: "a1"}}}},
	}}
	assert.Equal(t, []string{"222"}, srv.webhookAccounts(p))

	p.Entry = append(p.Entry, meta.WebhookEntry{
		ID: "act_111", Changes: []meta.WebhookChange{{Field: meta.FieldCampaigns, Value: meta.ChangeValue{CampaignID: "c4"}}},
	})
	assert.Equal(t, []string{"222", "act_111"}, srv.webhookAccounts(p))

	assert.Nil(t, New(nil, nil, nil, Config{}).webhookAccounts(p))
}
