package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/store"
)

// --- Meta Mock ---

type mockMetaClient struct {
	mock.Mock
}

func (m *mockMetaClient) FetchInsights(ctx context.Context, accountID string, r model.DateRange) ([]model.InsightRow, error) {
	args := m.Called(ctx, accountID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InsightRow), args.Error(1)
}

// --- Synthesizer stub ---

type synthFunc func(ctx context.Context, rows []model.InsightRow, asOf time.Time) ([]model.Recommendation, error)

func (f synthFunc) Recommend(ctx context.Context, rows []model.InsightRow, asOf time.Time) ([]model.Recommendation, error) {
	return f(ctx, rows, asOf)
}

// --- Notifier recorder ---

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, alerts []model.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alerts...)
}

// --- Store with injectable failures ---

type faultyStore struct {
	store.Store
	upsertErr error
	alertErr  error
	recErr    error
}

func (s *faultyStore) UpsertRows(ctx context.Context, rows []model.InsightRow) (int64, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	return s.Store.UpsertRows(ctx, rows)
}

func (s *faultyStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	if s.alertErr != nil {
		return s.alertErr
	}
	return s.Store.CreateAlert(ctx, a)
}

func (s *faultyStore) CreateRecommendation(ctx context.Context, r *model.Recommendation) error {
	if s.recErr != nil {
		return s.recErr
	}
	return s.Store.CreateRecommendation(ctx, r)
}

func newTestStore(t *testing.T) *faultyStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return &faultyStore{Store: st}
}
