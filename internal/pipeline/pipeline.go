// Package pipeline runs one sync cycle: fetch, derive, upsert, classify and
// recommend.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/aggregate"
	"github.com/sells-group/ads-insights/internal/anomaly"
	"github.com/sells-group/ads-insights/internal/metrics"
	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/recommend"
	"github.com/sells-group/ads-insights/internal/store"
	"github.com/sells-group/ads-insights/internal/synclock"
	"github.com/sells-group/ads-insights/internal/telemetry"
	"github.com/sells-group/ads-insights/pkg/meta"
)

// Notifier delivers newly raised alerts. Implementations handle their own
// failures.
type Notifier interface {
	Notify(ctx context.Context, alerts []model.Alert)
}

// SyncRequest selects the account and days to sync. A nil Range means the
// trailing default window ending today (UTC).
type SyncRequest struct {
	AccountID string
	Range     *model.DateRange
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier delivers alerts after they are stored.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithLocker replaces the in-process account lock.
func WithLocker(l synclock.Locker) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.locker = l
		}
	}
}

// WithMetrics records run, step and output counts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDefaultDays sets the window used when a request has no range.
func WithDefaultDays(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.defaultDays = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline orchestrates a sync cycle for one ad account.
type Pipeline struct {
	source       meta.Client
	store        store.Store
	classifier   *anomaly.Classifier
	synthesizers []recommend.Synthesizer
	notifier     Notifier
	locker       synclock.Locker
	metrics      *telemetry.Metrics
	defaultDays  int
	now          func() time.Time
}

// New creates a Pipeline. Synthesizers run in the given order, each in its
// own failure domain.
func New(source meta.Client, st store.Store, classifier *anomaly.Classifier, synthesizers []recommend.Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:       source,
		store:        st,
		classifier:   classifier,
		synthesizers: synthesizers,
		locker:       synclock.NewLocalLocker(),
		defaultDays:  30,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one sync. Ingestion (fetch, derive, upsert) is all or
// nothing: a failure there marks the run failed and returns the error.
// Classify and recommend failures are recorded on the run, which finishes
// partial with a nil error.
func (p *Pipeline) Run(ctx context.Context, req SyncRequest) (*model.SyncRun, error) {
	if req.AccountID == "" {
		return nil, eris.New("pipeline: account id is required")
	}
	r := model.TrailingDays(p.now(), p.defaultDays)
	if req.Range != nil {
		r = *req.Range
	}

	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("account_id", req.AccountID),
		zap.String("since", r.Since()),
		zap.String("until", r.Until()),
	)

	release, err := p.locker.Acquire(ctx, req.AccountID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire sync lock")
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			log.Warn("pipeline: failed to release sync lock", zap.Error(relErr))
		}
	}()

	run := &model.SyncRun{AccountID: req.AccountID, Range: r, StartedAt: p.now().UTC()}
	if err := p.store.CreateSyncRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create sync run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting sync")

	trackStep := func(name string, fn func() (int, error)) error {
		start := time.Now()
		count, fnErr := fn()
		d := time.Since(start)

		res := model.StepResult{Name: name, Duration: d.Milliseconds(), Count: count}
		if fnErr != nil {
			res.Status = model.StepFailed
			res.Error = fnErr.Error()
			log.Error("pipeline: step failed",
				zap.String("step", name),
				zap.Int64("duration_ms", res.Duration),
				zap.Error(fnErr),
			)
		} else {
			res.Status = model.StepComplete
			log.Info("pipeline: step complete",
				zap.String("step", name),
				zap.Int64("duration_ms", res.Duration),
				zap.Int("count", count),
			)
		}
		run.Steps = append(run.Steps, res)
		if p.metrics != nil {
			p.metrics.RecordStep(name, res.Status, d)
		}
		return fnErr
	}

	var rows []model.InsightRow
	ingestErr := func() error {
		if err := trackStep(model.StepFetch, func() (int, error) {
			fetched, err := p.source.FetchInsights(ctx, run.AccountID, run.Range)
			if err != nil {
				return 0, eris.Wrap(err, "fetch")
			}
			rows = fetched
			return len(rows), nil
		}); err != nil {
			return err
		}
		if err := trackStep(model.StepDerive, func() (int, error) {
			for i := range rows {
				if err := metrics.DeriveRow(&rows[i]); err != nil {
					return i, eris.Wrapf(err, "derive %s on %s", rows[i].CampaignID, rows[i].Date.Format(model.DateLayout))
				}
			}
			return len(rows), nil
		}); err != nil {
			return err
		}
		return trackStep(model.StepUpsert, func() (int, error) {
			n, err := p.store.UpsertRows(ctx, rows)
			if err != nil {
				return 0, eris.Wrap(err, "upsert")
			}
			if p.metrics != nil {
				p.metrics.RecordRowsUpserted(n)
			}
			return int(n), nil
		})
	}()

	var analysisErr error
	if ingestErr != nil {
		markSkipped(run)
	} else {
		latest := aggregate.LatestPerCampaign(rows)
		classifyErr := trackStep(model.StepClassify, func() (int, error) {
			return p.classify(ctx, latest)
		})
		recommendErr := trackStep(model.StepRecommend, func() (int, error) {
			return p.recommend(ctx, latest, r.End)
		})
		analysisErr = errors.Join(classifyErr, recommendErr)
	}

	switch {
	case ingestErr != nil:
		run.Status = model.SyncFailed
		run.Error = ingestErr.Error()
	case analysisErr != nil:
		run.Status = model.SyncPartial
		run.Error = analysisErr.Error()
	default:
		run.Status = model.SyncComplete
	}
	finished := p.now().UTC()
	run.FinishedAt = &finished

	if err := p.store.FinishSyncRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("pipeline: failed to record sync run", zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.RecordSyncRun(run.Status)
	}
	log.Info("pipeline: sync finished",
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)),
	)

	if ingestErr != nil {
		return run, eris.Wrap(ingestErr, "pipeline: sync failed")
	}
	return run, nil
}

// classify stores an alert for every rule that fires and hands the stored
// alerts to the notifier.
func (p *Pipeline) classify(ctx context.Context, rows []model.InsightRow) (int, error) {
	alerts := p.classifier.Classify(rows)

	stored := make([]model.Alert, 0, len(alerts))
	var err error
	for i := range alerts {
		if err = p.store.CreateAlert(ctx, &alerts[i]); err != nil {
			err = eris.Wrapf(err, "classify: store alert for %s", alerts[i].CampaignID)
			break
		}
		stored = append(stored, alerts[i])
		if p.metrics != nil {
			p.metrics.RecordAlert(alerts[i])
		}
	}

	if p.notifier != nil && len(stored) > 0 {
		p.notifier.Notify(ctx, stored)
	}
	return len(stored), err
}

// recommend runs each synthesizer and stores its output. A failing
// synthesizer does not stop the others.
func (p *Pipeline) recommend(ctx context.Context, rows []model.InsightRow, asOf time.Time) (int, error) {
	var errs []error
	total := 0
	for _, s := range p.synthesizers {
		recs, err := s.Recommend(ctx, rows, asOf)
		if err != nil {
			errs = append(errs, eris.Wrapf(err, "recommend: %T", s))
			continue
		}
		for i := range recs {
			if err := p.store.CreateRecommendation(ctx, &recs[i]); err != nil {
				errs = append(errs, eris.Wrapf(err, "recommend: store %s for %s", recs[i].Type, recs[i].CampaignID))
				continue
			}
			total++
			if p.metrics != nil {
				p.metrics.RecordRecommendation(recs[i])
			}
		}
	}
	return total, errors.Join(errs...)
}

var stepOrder = []string{
	model.StepFetch,
	model.StepDerive,
	model.StepUpsert,
	model.StepClassify,
	model.StepRecommend,
}

// markSkipped records every step that did not run.
func markSkipped(run *model.SyncRun) {
	for _, name := range stepOrder {
		if _, ok := run.Step(name); !ok {
			run.Steps = append(run.Steps, model.StepResult{Name: name, Status: model.StepSkipped})
		}
	}
}
