package httpapi

import (
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

type statusView struct {
	Cursor     *cursorView    `json:"cursor"`
	Lease      *leaseView     `json:"lease"`
	Sync       *syncView      `json:"sync,omitempty"`
	Raw        rawView        `json:"raw"`
	Processed  processedView  `json:"processed"`
	Dictionary dictionaryView `json:"dictionary"`
	RecentRuns []runView      `json:"recent_runs"`
}

type cursorView struct {
	Date      string    `json:"date"`
	ChangeID  int64     `json:"change_id"`
	Complete  bool      `json:"complete"`
	UpdatedAt time.Time `json:"updated_at"`
}

type leaseView struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type syncView struct {
	Running        bool        `json:"running"`
	PagesCommitted int         `json:"pages_committed"`
	Errors         int         `json:"errors"`
	Cursor         *cursorView `json:"cursor,omitempty"`
}

type rawView struct {
	Total        int `json:"total"`
	Deleted      int `json:"deleted"`
	Unprocessed  int `json:"unprocessed"`
	ManualReview int `json:"manual_review"`
}

type processedView struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Untranslated int `json:"untranslated"`
}

type dictionaryView struct {
	Version int64 `json:"version"`
	Size    int   `json:"size"`
}

type runView struct {
	ID           int64            `json:"id"`
	RunID        string           `json:"run_id"`
	Stage        domain.Stage     `json:"stage"`
	Status       domain.RunStatus `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	DurationMS   int64            `json:"duration_ms"`
	Counts       domain.Counts    `json:"counts"`
	ErrorSummary string           `json:"error_summary,omitempty"`
}

func newStatusView(r *driving.StatusReport) statusView {
	v := statusView{
		Raw: rawView{
			Total:        r.Raw.Total,
			Deleted:      r.Raw.Deleted,
			Unprocessed:  r.Raw.Unprocessed,
			ManualReview: r.Raw.ManualReview,
		},
		Processed: processedView{
			Total:        r.Processed.Total,
			Active:       r.Processed.Active,
			Untranslated: r.Processed.Untranslated,
		},
		Dictionary: dictionaryView{Version: r.DictionaryVersion, Size: r.DictionarySize},
		RecentRuns: make([]runView, len(r.RecentRuns)),
	}
	if r.SyncState != nil {
		v.Cursor = newCursorView(r.SyncState.Cursor)
		v.Cursor.UpdatedAt = r.SyncState.UpdatedAt
	}
	if r.Lease != nil {
		v.Lease = &leaseView{
			Owner:      r.Lease.Owner,
			AcquiredAt: r.Lease.AcquiredAt,
			ExpiresAt:  r.Lease.ExpiresAt,
		}
	}
	for i := range r.RecentRuns {
		v.RecentRuns[i] = newRunView(r.RecentRuns[i])
	}
	return v
}

func newCursorView(c domain.Cursor) *cursorView {
	if c.IsZero() {
		return nil
	}
	return &cursorView{
		Date:     c.Date.Format(domain.DateLayout),
		ChangeID: c.ChangeID,
		Complete: c.Complete,
	}
}

func newSyncView(s *driving.SyncStatus) *syncView {
	return &syncView{
		Running:        s.Running,
		PagesCommitted: s.PagesCommitted,
		Errors:         s.ErrorCount,
		Cursor:         newCursorView(s.Cursor),
	}
}

func newRunView(e domain.OperationLogEntry) runView {
	return runView{
		ID:           e.ID,
		RunID:        e.RunID,
		Stage:        e.Stage,
		Status:       e.Status,
		StartedAt:    e.StartedAt,
		FinishedAt:   e.FinishedAt,
		DurationMS:   e.Duration().Milliseconds(),
		Counts:       e.Counts,
		ErrorSummary: e.ErrorSummary,
	}
}

type scheduleView struct {
	Name        string           `json:"name"`
	Interval    string           `json:"interval"`
	LastRunID   string           `json:"last_run_id,omitempty"`
	LastRun     *time.Time       `json:"last_run,omitempty"`
	LastStatus  domain.RunStatus `json:"last_status,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	LastSuccess *time.Time       `json:"last_success,omitempty"`
	NextRun     *time.Time       `json:"next_run,omitempty"`
	Failures    int              `json:"failures"`
}

type scheduledRunView struct {
	RunID      string           `json:"run_id,omitempty"`
	Status     domain.RunStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	DurationMS int64            `json:"duration_ms"`
	Mutations  int              `json:"mutations"`
	Error      string           `json:"error,omitempty"`
}

func newScheduleView(s *domain.ScheduleState) *scheduleView {
	if s == nil {
		return nil
	}
	return &scheduleView{
		Name:        s.Name,
		Interval:    s.Interval.String(),
		LastRunID:   s.LastRunID,
		LastRun:     optionalTime(s.LastRun),
		LastStatus:  s.LastStatus,
		LastError:   s.LastError,
		LastSuccess: optionalTime(s.LastSuccess),
		NextRun:     optionalTime(s.NextRun),
		Failures:    s.Failures,
	}
}

func newScheduledRunView(r domain.ScheduledRun) scheduledRunView {
	return scheduledRunView{
		RunID:      r.RunID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
		Mutations:  r.Mutations,
		Error:      r.Error,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
