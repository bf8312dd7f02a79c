package domain

import "time"

// PipelineSchedule names the serve-mode schedule that runs the pipeline.
const PipelineSchedule = "pipeline"

// ScheduleConfig controls periodic pipeline runs in serve mode.
type ScheduleConfig struct {
	// Enabled is the master switch. A disabled scheduler never runs.
	Enabled bool

	// Interval is the time between the end of one run and the next.
	Interval time.Duration

	// FailureDelay replaces Interval after a failed or skipped run.
	// Values that are zero or exceed Interval fall back to Interval.
	FailureDelay time.Duration
}

// DefaultScheduleConfig returns a daily schedule retried hourly on failure.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Enabled:      true,
		Interval:     24 * time.Hour,
		FailureDelay: time.Hour,
	}
}

// retryDelay is the wait applied after a run that made no progress.
func (c ScheduleConfig) retryDelay() time.Duration {
	if c.FailureDelay <= 0 || c.FailureDelay > c.Interval {
		return c.Interval
	}
	return c.FailureDelay
}

// ScheduleState is the persisted position of a schedule. A state that
// has never run is due immediately.
type ScheduleState struct {
	Name        string
	Interval    time.Duration
	LastRunID   string
	LastRun     time.Time
	LastStatus  RunStatus
	LastError   string
	LastSuccess time.Time
	NextRun     time.Time

	// Failures counts consecutive failed runs. Skipped runs leave it unchanged.
	Failures int
}

// NewScheduleState returns the state of a schedule that has never run.
func NewScheduleState(name string, interval time.Duration) *ScheduleState {
	return &ScheduleState{Name: name, Interval: interval}
}

// Due reports whether the schedule should run at now.
func (s *ScheduleState) Due(now time.Time) bool {
	return s.NextRun.IsZero() || !s.NextRun.After(now)
}

// Wait returns the time left until the next run, zero when due.
func (s *ScheduleState) Wait(now time.Time) time.Duration {
	if s.Due(now) {
		return 0
	}
	return s.NextRun.Sub(now)
}

// Reschedule applies a changed interval, keeping the last run as anchor.
func (s *ScheduleState) Reschedule(interval time.Duration) {
	if s.Interval == interval {
		return
	}
	s.Interval = interval
	if !s.LastRun.IsZero() && s.LastStatus != StatusFailed && s.LastStatus != StatusSkipped {
		s.NextRun = s.LastRun.Add(interval)
	}
}

// Record applies a finished run and computes the next run time.
// Successful and partial runs wait the full interval; failed and skipped
// runs wait the config's failure delay.
func (s *ScheduleState) Record(run ScheduledRun, cfg ScheduleConfig) {
	s.Interval = cfg.Interval
	s.LastRunID = run.RunID
	s.LastRun = run.StartedAt
	s.LastStatus = run.Status
	s.LastError = run.Error

	switch run.Status {
	case StatusSuccess, StatusPartial:
		s.LastSuccess = run.FinishedAt
		s.Failures = 0
		s.NextRun = run.FinishedAt.Add(cfg.Interval)
	case StatusSkipped:
		s.NextRun = run.FinishedAt.Add(cfg.retryDelay())
	default:
		s.Failures++
		s.NextRun = run.FinishedAt.Add(cfg.retryDelay())
	}
}

// ScheduledRun is one execution of a schedule. RunID links it to the
// operations log; it is empty when the run never started.
type ScheduledRun struct {
	Schedule   string
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Mutations  int
	Error      string
}

// Duration returns how long the run took.
func (r ScheduledRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
