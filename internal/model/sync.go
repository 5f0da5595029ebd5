package model

import "time"

// SyncStatus is the outcome of a sync run.
type SyncStatus string

const (
	SyncRunning  SyncStatus = "running"
	SyncComplete SyncStatus = "complete"
	SyncPartial  SyncStatus = "partial" // ingestion committed, analysis failed
	SyncFailed   SyncStatus = "failed"
)

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepComplete StepStatus = "complete"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// Step names, in execution order.
const (
	StepFetch     = "fetch"
	StepDerive    = "derive"
	StepUpsert    = "upsert"
	StepClassify  = "classify"
	StepRecommend = "recommend"
)

// StepResult records timing and outcome of one pipeline step.
type StepResult struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Duration int64      `json:"duration_ms"`
	Count    int        `json:"count"`
	Error    string     `json:"error,omitempty"`
}

// SyncRun is the persisted record of one sync cycle.
type SyncRun struct {
	ID         string       `json:"id"`
	AccountID  string       `json:"account_id"`
	Range      DateRange    `json:"range"`
	Status     SyncStatus   `json:"status"`
	Steps      []StepResult `json:"steps"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// Step returns the named step result, if recorded.
func (r *SyncRun) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
