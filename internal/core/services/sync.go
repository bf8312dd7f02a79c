package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// maxSnapshotFailures stops a snapshot after this many consecutive failed pages.
const maxSnapshotFailures = 3

// SyncOrchestrator pulls catalog pages into the raw store.
type SyncOrchestrator struct {
	catalog driven.CatalogClient
	raw     driven.RawStore
	state   driven.SyncStateStore
	retry   *RetryExecutor
	scope   string
	now     func() time.Time

	// Status tracking
	mu     sync.RWMutex
	status *driving.SyncStatus
}

// NewSyncOrchestrator creates a new sync orchestrator for the default scope.
func NewSyncOrchestrator(
	catalog driven.CatalogClient,
	raw driven.RawStore,
	state driven.SyncStateStore,
	retry *RetryExecutor,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		catalog: catalog,
		raw:     raw,
		state:   state,
		retry:   retry,
		scope:   domain.DefaultScope,
		now:     time.Now,
	}
}

// pageFailure is a page that could not be fetched after retries.
type pageFailure struct {
	what string
	err  error
}

func (e *pageFailure) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.what, e.err)
}

func (e *pageFailure) Unwrap() error {
	return e.err
}

// Sync walks the change feed from the stored cursor, or pages through the
// full snapshot when opts.Snapshot is set.
//
// A page that still fails after retries ends the walk with a partial status;
// the cursor stays on that page so the next run fetches it again.
// Authentication failures, store errors and cancellation are returned.
func (o *SyncOrchestrator) Sync(ctx context.Context, opts driving.SyncOptions) (*driving.SyncReport, error) {
	status := &driving.SyncStatus{Running: true}
	o.setStatus(status)
	defer o.clearStatus()

	if opts.Snapshot {
		return o.syncSnapshot(ctx, opts, status)
	}
	return o.syncChanges(ctx, opts, status)
}

func (o *SyncOrchestrator) syncChanges(ctx context.Context, opts driving.SyncOptions, status *driving.SyncStatus) (*driving.SyncReport, error) {
	cursor, err := o.startCursor(ctx, opts)
	if err != nil {
		return nil, err
	}
	report := &driving.SyncReport{Status: domain.StatusSuccess, Cursor: cursor}

	dates := o.dates(cursor, opts.MaxDates)
	if len(dates) == 0 {
		logger.Info("Nothing to sync, cursor at %s", cursor)
		return report, nil
	}
	logger.Info("Syncing %d date(s) from %s", len(dates), dates[0].Format(domain.DateLayout))

	for _, day := range dates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		next, err := o.syncDate(ctx, day, cursor, report, status)
		report.Cursor = next
		cursor = next
		if err != nil {
			var pf *pageFailure
			if errors.As(err, &pf) && !runFatal(err) && ctx.Err() == nil {
				report.Status = domain.StatusPartial
				report.FailedPages++
				o.pageFailed(status)
				logger.Warn("Sync stopped at %s: %v", cursor, err)
				return report, nil
			}
			return report, err
		}
		report.Dates++
	}

	logger.Info("Sync complete: %d pages, %d created, %d updated, %d deleted, %d unchanged",
		report.Pages, report.Stats.Created, report.Stats.Updated, report.Stats.Deleted, report.Stats.Unchanged)
	return report, nil
}

// startCursor loads the stored cursor, or replaces it with opts.StartDate.
func (o *SyncOrchestrator) startCursor(ctx context.Context, opts driving.SyncOptions) (domain.Cursor, error) {
	if !opts.StartDate.IsZero() {
		c := domain.Cursor{Date: domain.Day(opts.StartDate)}
		if err := o.state.Reset(ctx, o.scope, c); err != nil {
			return domain.Cursor{}, fmt.Errorf("reset cursor: %w", err)
		}
		logger.Info("Cursor overridden to %s", c)
		return c, nil
	}

	st, err := o.state.Get(ctx, o.scope)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Cursor{}, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("get sync state: %w", err)
	}
	return st.Cursor, nil
}

// dates lists the feed dates still to walk, up to yesterday.
func (o *SyncOrchestrator) dates(cursor domain.Cursor, limit int) []time.Time {
	yesterday := domain.Day(o.now()).AddDate(0, 0, -1)

	var first time.Time
	switch {
	case cursor.IsZero():
		first = yesterday
	case cursor.Complete:
		first = domain.Day(cursor.Date).AddDate(0, 0, 1)
	default:
		first = domain.Day(cursor.Date)
	}

	var out []time.Time
	for d := first; !d.After(yesterday); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// fetchedPage carries a prefetched page to the committing loop.
type fetchedPage struct {
	id   int64
	page *domain.ChangePage
	took time.Duration
	err  error
}

// syncDate commits every page of one date. The next page is fetched while
// the current one is upserted; the cursor only moves after a page commits.
func (o *SyncOrchestrator) syncDate(
	ctx context.Context,
	day time.Time,
	cursor domain.Cursor,
	report *driving.SyncReport,
	status *driving.SyncStatus,
) (domain.Cursor, error) {
	label := day.Format(domain.DateLayout)

	start := int64(0)
	if !cursor.Complete && cursor.ChangeID > 0 && domain.Day(cursor.Date).Equal(day) {
		start = cursor.ChangeID
		logger.Debug("Resuming %s at change %d", label, start)
	} else {
		began := o.now()
		id, err := Retry(ctx, o.retry, "change id for "+label, func(ctx context.Context) (int64, error) {
			return o.catalog.ChangeID(ctx, day)
		})
		report.FetchTime += o.now().Sub(began)
		if err != nil {
			return cursor, &pageFailure{what: "change id for " + label, err: err}
		}
		start = id
	}

	if start == 0 {
		logger.Info("No changes recorded for %s", label)
		next := domain.Cursor{Date: day, Complete: true}
		if err := o.state.Advance(ctx, o.scope, next); err != nil {
			return cursor, fmt.Errorf("advance cursor: %w", err)
		}
		return next, nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make(chan fetchedPage, 1)
	go func() {
		defer close(pages)
		id := start
		for {
			began := o.now()
			page, err := Retry(fetchCtx, o.retry, fmt.Sprintf("changes from %d", id),
				func(ctx context.Context) (*domain.ChangePage, error) {
					return o.catalog.Changes(ctx, id)
				})
			took := o.now().Sub(began)
			select {
			case pages <- fetchedPage{id: id, page: page, took: took, err: err}:
			case <-fetchCtx.Done():
				return
			}
			if err != nil || page.NextChangeID == 0 {
				return
			}
			id = page.NextChangeID
		}
	}()

	for f := range pages {
		report.FetchTime += f.took
		if f.err != nil {
			return cursor, &pageFailure{what: fmt.Sprintf("changes from %d (%s)", f.id, label), err: f.err}
		}

		began := o.now()
		stats, err := o.raw.UpsertBatch(ctx, f.page.Changes)
		if err != nil {
			return cursor, fmt.Errorf("upsert changes from %d: %w", f.id, err)
		}
		report.Stats.Add(stats)
		report.Pages++

		next := domain.Cursor{Date: day, ChangeID: f.page.NextChangeID}
		if f.page.NextChangeID == 0 {
			current := f.page.CurrentChangeID
			if current == 0 {
				current = f.id
			}
			next = domain.Cursor{Date: day, ChangeID: current, Complete: true}
		}
		if err := o.state.Advance(ctx, o.scope, next); err != nil {
			return cursor, fmt.Errorf("advance cursor: %w", err)
		}
		report.UpsertTime += o.now().Sub(began)
		cursor = next
		o.pageCommitted(status, cursor)

		logger.Debug("Committed %d changes from %d, cursor %s", len(f.page.Changes), f.id, cursor)
	}

	if err := ctx.Err(); err != nil {
		return cursor, err
	}
	return cursor, nil
}

// syncSnapshot pages through the full listing snapshot. When every page
// committed, live records first seen before the snapshot started and absent
// from it are soft-deleted.
func (o *SyncOrchestrator) syncSnapshot(ctx context.Context, opts driving.SyncOptions, status *driving.SyncStatus) (*driving.SyncReport, error) {
	report := &driving.SyncReport{Status: domain.StatusSuccess}
	started := o.now()
	seen := make(map[string]struct{})
	complete := true
	failures := 0

	for page := 1; page != 0; {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if opts.MaxPages > 0 && report.Pages+report.FailedPages >= opts.MaxPages {
			complete = false
			logger.Info("Snapshot stopped after %d pages", opts.MaxPages)
			break
		}

		began := o.now()
		p, err := Retry(ctx, o.retry, fmt.Sprintf("offers page %d", page),
			func(ctx context.Context) (*domain.SnapshotPage, error) {
				return o.catalog.Offers(ctx, page)
			})
		report.FetchTime += o.now().Sub(began)
		if err != nil {
			if runFatal(err) || ctx.Err() != nil {
				return report, fmt.Errorf("fetch offers page %d: %w", page, err)
			}
			complete = false
			failures++
			report.FailedPages++
			report.Status = domain.StatusPartial
			o.pageFailed(status)
			logger.Warn("Skipping offers page %d: %v", page, err)
			if failures >= maxSnapshotFailures {
				logger.Warn("Snapshot aborted after %d consecutive failed pages", failures)
				break
			}
			page++
			continue
		}
		failures = 0

		began = o.now()
		stats, err := o.raw.UpsertBatch(ctx, p.Records)
		report.UpsertTime += o.now().Sub(began)
		if err != nil {
			return report, fmt.Errorf("upsert offers page %d: %w", page, err)
		}
		for _, r := range p.Records {
			if r.Type != domain.ChangeDeleted {
				seen[r.ExternalID] = struct{}{}
			}
		}
		report.Stats.Add(stats)
		report.Pages++
		o.pageCommitted(status, domain.Cursor{})
		page = p.NextPage
	}

	if !complete {
		logger.Info("Snapshot incomplete, missing-record sweep skipped")
		return report, nil
	}

	began := o.now()
	n, err := o.raw.MarkMissingAsDeleted(ctx, seen, domain.SnapshotWindow{To: started})
	report.UpsertTime += o.now().Sub(began)
	if err != nil {
		return report, fmt.Errorf("mark missing as deleted: %w", err)
	}
	report.Swept = n
	logger.Info("Snapshot complete: %d pages, %d records seen, %d marked deleted", report.Pages, len(seen), n)
	return report, nil
}

// Status returns progress of the running sync, or the stored cursor when idle.
func (o *SyncOrchestrator) Status(ctx context.Context) (*driving.SyncStatus, error) {
	o.mu.RLock()
	if o.status != nil {
		// Return a copy to avoid race conditions
		s := *o.status
		o.mu.RUnlock()
		return &s, nil
	}
	o.mu.RUnlock()

	// Not running - report the committed cursor
	out := &driving.SyncStatus{}
	st, err := o.state.Get(ctx, o.scope)
	switch {
	case err == nil:
		out.Cursor = st.Cursor
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return out, nil
}

// setStatus marks a sync as running.
func (o *SyncOrchestrator) setStatus(status *driving.SyncStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
}

// pageCommitted records a committed page on the running sync.
func (o *SyncOrchestrator) pageCommitted(status *driving.SyncStatus, cursor domain.Cursor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status.PagesCommitted++
	if !cursor.IsZero() {
		status.Cursor = cursor
	}
}

// pageFailed records a failed page on the running sync.
func (o *SyncOrchestrator) pageFailed(status *driving.SyncStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status.ErrorCount++
}

// clearStatus marks the sync as finished.
func (o *SyncOrchestrator) clearStatus() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = nil
}
