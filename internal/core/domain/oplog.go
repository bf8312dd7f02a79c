package domain

import "time"

// Stage names a pipeline stage in the operations log.
type Stage string

// Pipeline stages.
const (
	StageFetch     Stage = "fetch"
	StageUpsert    Stage = "upsert"
	StageNormalize Stage = "normalize"
	StageEnrich    Stage = "enrich"
)

// RunStatus is the outcome of one stage.
type RunStatus string

// Run outcomes.
const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"

	// StatusSkipped marks a scheduled run that found the lease held.
	StatusSkipped RunStatus = "skipped"
)

// Counts aggregates per-stage record counts.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// Add accumulates another set of counts.
func (c *Counts) Add(o Counts) {
	c.Created += o.Created
	c.Updated += o.Updated
	c.Deleted += o.Deleted
	c.Skipped += o.Skipped
	c.Errored += o.Errored
}

// OperationLogEntry is one immutable audit row.
type OperationLogEntry struct {
	ID           int64
	RunID        string
	Stage        Stage
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       RunStatus
	Counts       Counts
	ErrorSummary string
}

// Duration returns how long the stage ran.
func (e OperationLogEntry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}
