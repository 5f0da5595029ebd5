package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/anomaly"
	"github.com/sells-group/ads-insights/internal/db"
	"github.com/sells-group/ads-insights/internal/monitoring"
	"github.com/sells-group/ads-insights/internal/pipeline"
	"github.com/sells-group/ads-insights/internal/recommend"
	"github.com/sells-group/ads-insights/internal/resilience"
	"github.com/sells-group/ads-insights/internal/store"
	"github.com/sells-group/ads-insights/internal/synclock"
	"github.com/sells-group/ads-insights/internal/telemetry"
	anthropicpkg "github.com/sells-group/ads-insights/pkg/anthropic"
	"github.com/sells-group/ads-insights/pkg/meta"
)

// syncEnv holds everything the sync and serve commands need.
type syncEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Metrics  *telemetry.Metrics
	Notifier *monitoring.Notifier
	redis    *redis.Client
}

// Close releases resources held by the environment.
func (e *syncEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ads-insights.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and migrates.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newMetaClient(m *telemetry.Metrics) meta.Client {
	opts := []meta.Option{
		meta.WithBaseURL(cfg.Meta.BaseURL),
		meta.WithAPIVersion(cfg.Meta.APIVersion),
		meta.WithRateLimit(cfg.Meta.RequestsPerSec, cfg.Meta.Burst),
		meta.WithRetry(resilience.FromRetryConfig(cfg.Meta.MaxAttempts, cfg.Meta.InitialBackoffMs, 2)),
	}
	if m != nil {
		opts = append(opts, meta.WithRequestHook(m.RecordMetaRequest))
	}
	return meta.NewClient(cfg.Meta.AccessToken, opts...)
}

func newClassifier() (*anomaly.Classifier, error) {
	rules := anomaly.DefaultRules()
	if cfg.Anomaly.RulesFile != "" {
		loaded, err := anomaly.LoadRules(cfg.Anomaly.RulesFile)
		if err != nil {
			return nil, eris.Wrap(err, "load anomaly rules")
		}
		rules = loaded
		zap.L().Info("anomaly rules loaded", zap.String("file", cfg.Anomaly.RulesFile), zap.Int("rules", len(rules)))
	}
	return anomaly.New(rules)
}

// newSynthesizers returns the rule path, then the AI path when enabled.
func newSynthesizers() []recommend.Synthesizer {
	synths := []recommend.Synthesizer{recommend.NewRules()}
	if !cfg.Recommend.AIEnabled {
		zap.L().Debug("ai recommendations disabled")
		return synths
	}
	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Recommend.CircuitThreshold, cfg.Recommend.CircuitResetSecs,
	))
	ai := recommend.NewAI(anthropicpkg.NewClient(cfg.Anthropic.Key), recommend.AIConfig{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Temperature: cfg.Anthropic.Temperature,
		Timeout:     time.Duration(cfg.Recommend.AITimeoutSecs) * time.Second,
	}, breaker)
	zap.L().Info("ai recommendations enabled", zap.String("model", cfg.Anthropic.Model))
	return append(synths, ai)
}

// newLocker uses Redis when configured. The returned client may be nil.
func newLocker(ctx context.Context) (synclock.Locker, *redis.Client, error) {
	if cfg.Redis.URL == "" {
		return synclock.NewLocalLocker(), nil, nil
	}
	client, err := synclock.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Redis.LockTTLSecs) * time.Second
	zap.L().Info("redis sync lock enabled", zap.Duration("ttl", ttl))
	return synclock.NewRedisLocker(client, ttl), client, nil
}

func newMetrics() *telemetry.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return telemetry.New(reg)
}

// initSyncEnv validates config for mode, then builds the store, clients and
// pipeline. A nil source uses the Meta API client. Callers should defer
// env.Close().
func initSyncEnv(ctx context.Context, mode string, source meta.Client) (*syncEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &syncEnv{Store: st, Metrics: newMetrics()}

	classifier, err := newClassifier()
	if err != nil {
		env.Close()
		return nil, err
	}

	locker, rc, err := newLocker(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.redis = rc

	env.Notifier = monitoring.NewNotifier(cfg.Notify)
	if env.Notifier.Enabled() {
		zap.L().Info("alert notifications enabled", zap.String("min_severity", cfg.Notify.MinSeverity))
	}

	if source == nil {
		source = newMetaClient(env.Metrics)
	}
	env.Pipeline = pipeline.New(
		source,
		st,
		classifier,
		newSynthesizers(),
		pipeline.WithNotifier(env.Notifier),
		pipeline.WithLocker(locker),
		pipeline.WithMetrics(env.Metrics),
		pipeline.WithDefaultDays(cfg.Sync.DefaultDays),
	)
	return env, nil
}
