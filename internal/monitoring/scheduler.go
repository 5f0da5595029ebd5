package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/config"
	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/pipeline"
	"github.com/sells-group/ads-insights/internal/store"
)

// Syncer runs one sync.
type Syncer interface {
	Run(ctx context.Context, req pipeline.SyncRequest) (*model.SyncRun, error)
}

// Retainer deletes data older than a cutoff.
type Retainer interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (store.RetentionResult, error)
}

// Scheduler runs periodic syncs, retention sweeps and health checks in the
// background.
type Scheduler struct {
	syncer    Syncer
	retainer  Retainer
	collector *Collector
	notifier  *Notifier
	accounts  []string
	schedule  config.ScheduleConfig
	retention config.RetentionConfig
	lookback  int
	now       func() time.Time
}

// NewScheduler creates a background scheduler. collector and notifier may be
// nil to skip health checks.
func NewScheduler(syncer Syncer, retainer Retainer, collector *Collector, notifier *Notifier, cfg *config.Config) *Scheduler {
	return &Scheduler{
		syncer:    syncer,
		retainer:  retainer,
		collector: collector,
		notifier:  notifier,
		accounts:  cfg.Meta.Accounts,
		schedule:  cfg.Schedule,
		retention: cfg.Retention,
		lookback:  cfg.Notify.HealthLookbackHrs,
		now:       time.Now,
	}
}

// Run starts the sync and retention loops. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	syncEvery := time.Duration(s.schedule.IntervalMins) * time.Minute
	if syncEvery <= 0 {
		syncEvery = time.Hour
	}
	sweepEvery := time.Duration(s.retention.IntervalHours) * time.Hour
	if sweepEvery <= 0 {
		sweepEvery = 24 * time.Hour
	}

	log := zap.L().With(zap.String("component", "monitoring.scheduler"))
	log.Info("starting scheduler",
		zap.Duration("sync_interval", syncEvery),
		zap.Duration("retention_interval", sweepEvery),
		zap.Strings("accounts", s.accounts),
	)

	syncTicker := time.NewTicker(syncEvery)
	defer syncTicker.Stop()
	sweepTicker := time.NewTicker(sweepEvery)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-syncTicker.C:
			s.SyncAll(ctx)
			s.checkHealth(ctx, log)
		case <-sweepTicker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Error("monitoring: retention sweep failed", zap.Error(err))
			}
		}
	}
}

// SyncAll syncs every configured account in turn and returns how many
// failed.
func (s *Scheduler) SyncAll(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.scheduler"))
	failed := 0
	for _, account := range s.accounts {
		if ctx.Err() != nil {
			return failed
		}
		run, err := s.syncer.Run(ctx, pipeline.SyncRequest{AccountID: account})
		if err != nil {
			failed++
			log.Error("monitoring: scheduled sync failed", zap.String("account_id", account), zap.Error(err))
			continue
		}
		log.Info("monitoring: scheduled sync finished",
			zap.String("account_id", account),
			zap.String("status", string(run.Status)),
		)
	}
	return failed
}

// Sweep deletes data older than the retention window.
func (s *Scheduler) Sweep(ctx context.Context) (store.RetentionResult, error) {
	days := s.retention.Days
	if days <= 0 {
		days = 90
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	res, err := s.retainer.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return res, eris.Wrap(err, "monitoring: retention sweep")
	}
	zap.L().Info("monitoring: retention sweep complete",
		zap.Time("cutoff", cutoff),
		zap.Int64("rows", res.Rows),
		zap.Int64("alerts", res.Alerts),
		zap.Int64("recommendations", res.Recommendations),
		zap.Int64("sync_runs", res.SyncRuns),
	)
	return res, nil
}

func (s *Scheduler) checkHealth(ctx context.Context, log *zap.Logger) {
	if s.collector == nil || !s.notifier.Enabled() {
		return
	}
	lookback := s.lookback
	if lookback <= 0 {
		lookback = 24
	}
	h, err := s.collector.Collect(ctx, lookback)
	if err != nil {
		log.Error("monitoring: failed to collect sync health", zap.Error(err))
		return
	}
	note := s.notifier.EvaluateHealth(h)
	if note == nil {
		log.Debug("monitoring: sync health ok", zap.Float64("failure_rate", h.FailureRate))
		return
	}
	s.notifier.Send(ctx, []Notification{*note})
}
