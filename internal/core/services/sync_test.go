package services

import (
	"context"
	"errors"
	"strconv"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

// --- Fake catalog for sync testing ---

// fakeCatalog implements driven.CatalogClient from canned pages.
type fakeCatalog struct {
	mu        stdsync.Mutex
	changeIDs map[string]int64
	pages     map[int64]*domain.ChangePage
	offers    map[int]*domain.SnapshotPage
	errs      map[string]error

	changeIDCalls []string
	changesCalls  []int64
	offersCalls   []int
}

var _ driven.CatalogClient = (*fakeCatalog)(nil)

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		changeIDs: make(map[string]int64),
		pages:     make(map[int64]*domain.ChangePage),
		offers:    make(map[int]*domain.SnapshotPage),
		errs:      make(map[string]error),
	}
}

func (c *fakeCatalog) failWith(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, key)
		return
	}
	c.errs[key] = err
}

func (c *fakeCatalog) ChangeID(_ context.Context, date time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := date.Format(domain.DateLayout)
	c.changeIDCalls = append(c.changeIDCalls, key)
	if err := c.errs["date:"+key]; err != nil {
		return 0, err
	}
	return c.changeIDs[key], nil
}

func (c *fakeCatalog) Changes(_ context.Context, changeID int64) (*domain.ChangePage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changesCalls = append(c.changesCalls, changeID)
	if err := c.errs[changeKey(changeID)]; err != nil {
		return nil, err
	}
	p, ok := c.pages[changeID]
	if !ok {
		return &domain.ChangePage{CurrentChangeID: changeID}, nil
	}
	return p, nil
}

func (c *fakeCatalog) Offers(_ context.Context, page int) (*domain.SnapshotPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offersCalls = append(c.offersCalls, page)
	if err := c.errs[offersKey(page)]; err != nil {
		return nil, err
	}
	p, ok := c.offers[page]
	if !ok {
		return &domain.SnapshotPage{Page: page}, nil
	}
	return p, nil
}

func changeKey(id int64) string { return "changes:" + strconv.FormatInt(id, 10) }
func offersKey(page int) string { return "offers:" + strconv.Itoa(page) }

func added(id string, fields map[string]any) domain.Change {
	return domain.Change{Type: domain.ChangeCreated, ExternalID: id, Payload: fields}
}

var syncNow = time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)

func newTestSync(t *testing.T, catalog *fakeCatalog) (*SyncOrchestrator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	retry, _ := instantRetry(domain.RetryPolicy{MaxAttempts: 2, Backoff: time.Second, Multiplier: 1})
	o := NewSyncOrchestrator(catalog, store.RawStore(), store.SyncStateStore(), retry)
	o.now = func() time.Time { return syncNow }
	return o, store
}

// twoPageFeed serves 2025-01-02 as pages 100 and 101.
func twoPageFeed() *fakeCatalog {
	c := newFakeCatalog()
	c.changeIDs["2025-01-02"] = 100
	c.pages[100] = &domain.ChangePage{
		Changes:         []domain.Change{added("a", map[string]any{"mark": "宝马"}), added("b", map[string]any{"mark": "奥迪"})},
		CurrentChangeID: 100,
		NextChangeID:    101,
	}
	c.pages[101] = &domain.ChangePage{
		Changes:         []domain.Change{added("c", map[string]any{"mark": "大众"})},
		CurrentChangeID: 101,
	}
	return c
}

func TestNewSyncOrchestrator(t *testing.T) {
	store := memory.NewStore()
	o := NewSyncOrchestrator(newFakeCatalog(), store.RawStore(), store.SyncStateStore(), NewRetryExecutor(domain.TestRetryPolicy()))
	require.NotNil(t, o)
	assert.Equal(t, domain.DefaultScope, o.scope)
}

func TestSync_WalksYesterdayAndAdvancesCursor(t *testing.T) {
	catalog := twoPageFeed()
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	report, err := o.Sync(ctx, driving.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, report.Status)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 1, report.Dates)
	assert.Equal(t, 3, report.Stats.Created)

	want := domain.Cursor{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), ChangeID: 101, Complete: true}
	assert.Equal(t, want, report.Cursor)

	st, err := store.SyncStateStore().Get(ctx, domain.DefaultScope)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Cursor.Compare(want))
	assert.Equal(t, []string{"2025-01-02"}, catalog.changeIDCalls)
	assert.Equal(t, []int64{100, 101}, catalog.changesCalls)
}

func TestSync_EmptyPageDoesNotEndDate(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.changeIDs["2025-01-02"] = 100
	catalog.pages[100] = &domain.ChangePage{
		Changes:         []domain.Change{added("a", map[string]any{"mark": "宝马"})},
		CurrentChangeID: 100,
		NextChangeID:    101,
	}
	catalog.pages[101] = &domain.ChangePage{CurrentChangeID: 101, NextChangeID: 102}
	catalog.pages[102] = &domain.ChangePage{
		Changes:         []domain.Change{added("c", map[string]any{"mark": "大众"})},
		CurrentChangeID: 102,
	}
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	report, err := o.Sync(ctx, driving.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 2, report.Stats.Created)
	assert.Equal(t, []int64{100, 101, 102}, catalog.changesCalls)

	want := domain.Cursor{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), ChangeID: 102, Complete: true}
	assert.Equal(t, want, report.Cursor)
	_, err = store.RawStore().Get(ctx, "c")
	require.NoError(t, err)
}

func TestSync_NothingToDoWhenCursorComplete(t *testing.T) {
	catalog := twoPageFeed()
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	done := domain.Cursor{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), ChangeID: 101, Complete: true}
	require.NoError(t, store.SyncStateStore().Reset(ctx, domain.DefaultScope, done))

	report, err := o.Sync(ctx, driving.SyncOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Pages)
	assert.Empty(t, catalog.changeIDCalls)
}

func TestSync_ResumesInProgressDate(t *testing.T) {
	catalog := twoPageFeed()
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	partial := domain.Cursor{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), ChangeID: 101}
	require.NoError(t, store.SyncStateStore().Reset(ctx, domain.DefaultScope, partial))

	report, err := o.Sync(ctx, driving.SyncOptions{})
	require.NoError(t, err)

	assert.Empty(t, catalog.changeIDCalls)
	assert.Equal(t, []int64{101}, catalog.changesCalls)
	assert.Equal(t, 1, report.Pages)
	assert.True(t, report.Cursor.Complete)
}

func TestSync_FailedPageLeavesCursorOnIt(t *testing.T) {
	catalog := twoPageFeed()
	catalog.failWith(changeKey(101), &domain.HTTPStatusError{Source: "catalog", StatusCode: 503})
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	report, err := o.Sync(ctx, driving.SyncOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, report.Status)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 1, report.FailedPages)
	assert.Equal(t, int64(101), report.Cursor.ChangeID)
	assert.False(t, report.Cursor.Complete)

	// The next run refetches only the failed page.
	catalog.failWith(changeKey(101), nil)
	catalog.changesCalls = nil

	report, err = o.Sync(ctx, driving.SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, report.Status)
	assert.Equal(t, []int64{101}, catalog.changesCalls)

	st, err := store.SyncStateStore().Get(ctx, domain.DefaultScope)
	require.NoError(t, err)
	assert.True(t, st.Cursor.Complete)

	stats, err := store.RawStore().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
}

func TestSync_AuthenticationIsFatal(t *testing.T) {
	catalog := twoPageFeed()
	catalog.failWith("date:2025-01-02", &domain.HTTPStatusError{Source: "catalog", StatusCode: 401})
	o, _ := newTestSync(t, catalog)

	_, err := o.Sync(context.Background(), driving.SyncOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Len(t, catalog.changeIDCalls, 1, "fatal errors are not retried")
}

func TestSync_IdenticalRunsMutateNothing(t *testing.T) {
	catalog := twoPageFeed()
	o, _ := newTestSync(t, catalog)
	ctx := context.Background()
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	first, err := o.Sync(ctx, driving.SyncOptions{StartDate: start})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.Mutations())

	second, err := o.Sync(ctx, driving.SyncOptions{StartDate: start})
	require.NoError(t, err)
	assert.Zero(t, second.Stats.Mutations())
	assert.Equal(t, 3, second.Stats.Unchanged)
	assert.True(t, second.Cursor.Complete)
}

func TestSync_MaxDatesLimitsBacklog(t *testing.T) {
	catalog := newFakeCatalog()
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	old := domain.Cursor{Date: time.Date(2024, 12, 29, 0, 0, 0, 0, time.UTC), Complete: true}
	require.NoError(t, store.SyncStateStore().Reset(ctx, domain.DefaultScope, old))

	report, err := o.Sync(ctx, driving.SyncOptions{MaxDates: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Dates)
	assert.Equal(t, []string{"2024-12-30", "2024-12-31"}, catalog.changeIDCalls)
	assert.Equal(t, domain.Cursor{Date: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), Complete: true}, report.Cursor)
}

func TestSync_SnapshotTimesFetchAndUpsertApart(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.offers[1] = &domain.SnapshotPage{Page: 1, Records: []domain.Change{added("1", map[string]any{"v": 1.0})}}
	o, _ := newTestSync(t, catalog)

	// Each reading of the clock moves it one second on
	tick := syncNow
	o.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	report, err := o.Sync(context.Background(), driving.SyncOptions{Snapshot: true})
	require.NoError(t, err)
	assert.Equal(t, time.Second, report.FetchTime)
	assert.Equal(t, 2*time.Second, report.UpsertTime, "page write and sweep")
}

func TestSync_SnapshotSweepsMissingRecords(t *testing.T) {
	catalog := newFakeCatalog()
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	store.SetClock(func() time.Time { return syncNow.Add(-time.Hour) })
	_, err := store.RawStore().UpsertBatch(ctx, []domain.Change{
		added("1", map[string]any{"v": 1.0}),
		added("2", map[string]any{"v": 2.0}),
		added("3", map[string]any{"v": 3.0}),
	})
	require.NoError(t, err)
	store.SetClock(func() time.Time { return syncNow })

	catalog.offers[1] = &domain.SnapshotPage{Page: 1, Records: []domain.Change{added("1", map[string]any{"v": 1.0})}, NextPage: 2}
	catalog.offers[2] = &domain.SnapshotPage{Page: 2, Records: []domain.Change{added("2", map[string]any{"v": 2.5})}}

	report, err := o.Sync(ctx, driving.SyncOptions{Snapshot: true})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, report.Status)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 1, report.Swept)
	assert.Equal(t, 1, report.Stats.Updated)

	gone, err := store.RawStore().Get(ctx, "3")
	require.NoError(t, err)
	assert.True(t, gone.IsDeleted)
	assert.False(t, gone.IsProcessed)

	history, err := store.RawStore().History(ctx, "3")
	require.NoError(t, err)
	assert.Len(t, history, 1, "history survives soft deletion")
}

func TestSync_SnapshotFailedPageSkipsSweep(t *testing.T) {
	catalog := newFakeCatalog()
	o, store := newTestSync(t, catalog)
	ctx := context.Background()

	store.SetClock(func() time.Time { return syncNow.Add(-time.Hour) })
	_, err := store.RawStore().UpsertBatch(ctx, []domain.Change{added("9", nil)})
	require.NoError(t, err)
	store.SetClock(func() time.Time { return syncNow })

	catalog.offers[1] = &domain.SnapshotPage{Page: 1, Records: []domain.Change{added("1", nil)}, NextPage: 2}
	catalog.failWith(offersKey(2), &domain.HTTPStatusError{Source: "catalog", StatusCode: 502})
	catalog.offers[3] = &domain.SnapshotPage{Page: 3, Records: []domain.Change{added("3", nil)}}

	report, err := o.Sync(ctx, driving.SyncOptions{Snapshot: true})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, report.Status)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 1, report.FailedPages)
	assert.Zero(t, report.Swept)

	rec, err := store.RawStore().Get(ctx, "9")
	require.NoError(t, err)
	assert.False(t, rec.IsDeleted)
}

func TestSync_SnapshotMaxPagesSkipsSweep(t *testing.T) {
	catalog := newFakeCatalog()
	o, _ := newTestSync(t, catalog)

	catalog.offers[1] = &domain.SnapshotPage{Page: 1, Records: []domain.Change{added("1", nil)}, NextPage: 2}
	catalog.offers[2] = &domain.SnapshotPage{Page: 2, Records: []domain.Change{added("2", nil)}}

	report, err := o.Sync(context.Background(), driving.SyncOptions{Snapshot: true, MaxPages: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, []int{1}, catalog.offersCalls)
	assert.Zero(t, report.Swept)
}

func TestSync_CancelledContext(t *testing.T) {
	o, _ := newTestSync(t, twoPageFeed())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Sync(ctx, driving.SyncOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSync_StatusIdleReportsStoredCursor(t *testing.T) {
	o, store := newTestSync(t, twoPageFeed())
	ctx := context.Background()

	status, err := o.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.True(t, status.Cursor.IsZero())

	c := domain.Cursor{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Complete: true}
	require.NoError(t, store.SyncStateStore().Reset(ctx, domain.DefaultScope, c))

	status, err = o.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, status.Cursor)
}
