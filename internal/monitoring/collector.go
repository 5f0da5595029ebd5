package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ads-insights/internal/model"
)

// SyncHealth summarizes recent sync runs.
type SyncHealth struct {
	Total         int       `json:"total"`
	Complete      int       `json:"complete"`
	Partial       int       `json:"partial"`
	Failed        int       `json:"failed"`
	Running       int       `json:"running"`
	FailureRate   float64   `json:"failure_rate"`
	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister lists recent sync runs, newest first.
type RunLister interface {
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
}

// Collector builds SyncHealth snapshots from stored runs.
type Collector struct {
	runs  RunLister
	limit int
	now   func() time.Time
}

// NewCollector creates a collector over the given run history.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, limit: 500, now: time.Now}
}

// Collect counts runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*SyncHealth, error) {
	now := c.now().UTC()
	h := &SyncHealth{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.runs.ListSyncRuns(ctx, c.limit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sync runs")
	}

	since := now.Add(-time.Duration(lookbackHours) * time.Hour)
	for _, r := range runs {
		if r.StartedAt.Before(since) {
			continue
		}
		h.Total++
		if r.StartedAt.After(h.LastRunAt) {
			h.LastRunAt = r.StartedAt
		}
		switch r.Status {
		case model.SyncComplete:
			h.Complete++
		case model.SyncPartial:
			h.Partial++
		case model.SyncFailed:
			h.Failed++
		case model.SyncRunning:
			h.Running++
		}
	}

	if finished := h.Complete + h.Partial + h.Failed; finished > 0 {
		h.FailureRate = float64(h.Failed) / float64(finished)
	}
	return h, nil
}
