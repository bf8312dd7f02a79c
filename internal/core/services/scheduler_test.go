package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
)

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.Mutex
	states   map[string]domain.ScheduleState
	runs     []domain.ScheduledRun
	recorded chan domain.ScheduledRun
	pruned   int
	getErr   error
}

var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		states:   make(map[string]domain.ScheduleState),
		recorded: make(chan domain.ScheduledRun, 16),
	}
}

func (m *mockSchedulerStore) GetSchedule(_ context.Context, name string) (*domain.ScheduleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	state, ok := m.states[name]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *mockSchedulerStore) SaveSchedule(_ context.Context, state *domain.ScheduleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Name] = *state
	return nil
}

func (m *mockSchedulerStore) RecordRun(_ context.Context, run *domain.ScheduledRun) error {
	m.mu.Lock()
	m.runs = append(m.runs, *run)
	m.mu.Unlock()
	select {
	case m.recorded <- *run:
	default:
	}
	return nil
}

func (m *mockSchedulerStore) RecentRuns(_ context.Context, _ string, limit int) ([]domain.ScheduledRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *mockSchedulerStore) PruneRuns(_ context.Context, _ string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = keep
	return nil
}

func (m *mockSchedulerStore) state(name string) domain.ScheduleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[name]
}

// mockPipeline implements driving.Pipeline for testing.
type mockPipeline struct {
	mu      sync.Mutex
	calls   int
	report  *driving.RunReport
	err     error
	block   bool
	started chan struct{}
}

var _ driving.Pipeline = (*mockPipeline)(nil)

func (m *mockPipeline) Run(ctx context.Context, _ driving.RunOptions) (*driving.RunReport, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.block {
		<-ctx.Done()
		return &driving.RunReport{RunID: "cancelled", Status: domain.StatusFailed}, ctx.Err()
	}
	return m.report, m.err
}

func (m *mockPipeline) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// startScheduler runs s in the background and returns Start's result channel.
func startScheduler(t *testing.T, ctx context.Context, s *Scheduler) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	t.Cleanup(func() { _ = s.Stop() })
	return errCh
}

func waitRun(t *testing.T, store *mockSchedulerStore) domain.ScheduledRun {
	t.Helper()
	select {
	case run := <-store.recorded:
		return run
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled run")
		return domain.ScheduledRun{}
	}
}

func waitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the scheduler to return")
		return nil
	}
}

func hourly() domain.ScheduleConfig {
	return domain.ScheduleConfig{Enabled: true, Interval: time.Hour, FailureDelay: 20 * time.Millisecond}
}

func TestScheduler_RunsWhenNeverRun(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{report: &driving.RunReport{
		RunID:  "run-1",
		Status: domain.StatusSuccess,
		Sync:   &driving.SyncReport{Stats: domain.UpsertStats{Created: 2, Updated: 1, Unchanged: 5}},
	}}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	errCh := startScheduler(t, context.Background(), s)
	run := waitRun(t, store)

	assert.Equal(t, domain.PipelineSchedule, run.Schedule)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, domain.StatusSuccess, run.Status)
	assert.Equal(t, 3, run.Mutations)
	assert.Empty(t, run.Error)

	state := store.state(domain.PipelineSchedule)
	assert.Equal(t, "run-1", state.LastRunID)
	assert.Equal(t, run.FinishedAt.Add(time.Hour), state.NextRun)

	require.NoError(t, s.Stop())
	assert.NoError(t, waitResult(t, errCh))
	assert.Equal(t, 1, pipeline.callCount())
	assert.Equal(t, historyRetention, store.pruned)
}

func TestScheduler_WaitsForPersistedNextRun(t *testing.T) {
	store := newMockSchedulerStore()
	last := time.Now().Add(-10 * time.Minute)
	store.states[domain.PipelineSchedule] = domain.ScheduleState{
		Name:       domain.PipelineSchedule,
		Interval:   time.Hour,
		LastRun:    last,
		LastStatus: domain.StatusSuccess,
		NextRun:    last.Add(time.Hour),
	}
	pipeline := &mockPipeline{report: &driving.RunReport{Status: domain.StatusSuccess}}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	errCh := startScheduler(t, context.Background(), s)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Stop())
	assert.NoError(t, waitResult(t, errCh))
	assert.Zero(t, pipeline.callCount())
}

func TestScheduler_IntervalChangeReschedules(t *testing.T) {
	store := newMockSchedulerStore()
	last := time.Now().Add(-2 * time.Hour)
	store.states[domain.PipelineSchedule] = domain.ScheduleState{
		Name:       domain.PipelineSchedule,
		Interval:   24 * time.Hour,
		LastRun:    last,
		LastStatus: domain.StatusSuccess,
		NextRun:    last.Add(24 * time.Hour),
	}
	pipeline := &mockPipeline{report: &driving.RunReport{Status: domain.StatusSuccess}}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	startScheduler(t, context.Background(), s)
	waitRun(t, store)

	assert.Equal(t, 1, pipeline.callCount())
	assert.Equal(t, time.Hour, store.state(domain.PipelineSchedule).Interval)
}

func TestScheduler_FailureRetriesAfterFailureDelay(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{err: domain.ErrAuthentication}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	startScheduler(t, context.Background(), s)
	first := waitRun(t, store)
	second := waitRun(t, store)
	require.NoError(t, s.Stop())

	assert.Equal(t, domain.StatusFailed, first.Status)
	assert.Contains(t, first.Error, domain.ErrAuthentication.Error())
	assert.Equal(t, domain.StatusFailed, second.Status)
	assert.GreaterOrEqual(t, store.state(domain.PipelineSchedule).Failures, 2)
}

func TestScheduler_LeaseHeldIsSkipped(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{err: domain.ErrLeaseHeld}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	startScheduler(t, context.Background(), s)
	run := waitRun(t, store)
	require.NoError(t, s.Stop())

	assert.Equal(t, domain.StatusSkipped, run.Status)
	state := store.state(domain.PipelineSchedule)
	assert.Zero(t, state.Failures)
	assert.Equal(t, domain.StatusSkipped, state.LastStatus)
}

func TestScheduler_StopCancelsRunInProgress(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{block: true, started: make(chan struct{}, 1)}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	errCh := startScheduler(t, context.Background(), s)
	select {
	case <-pipeline.started:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline never started")
	}

	require.NoError(t, s.Stop())
	assert.NoError(t, waitResult(t, errCh))

	run := waitRun(t, store)
	assert.Equal(t, "cancelled", run.RunID)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Contains(t, run.Error, context.Canceled.Error())
}

func TestScheduler_ContextCancelReturnsError(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{report: &driving.RunReport{Status: domain.StatusSuccess}}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := startScheduler(t, ctx, s)
	waitRun(t, store)
	cancel()

	assert.ErrorIs(t, waitResult(t, errCh), context.Canceled)
}

func TestScheduler_DisabledRunsNothing(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{}
	cfg := hourly()
	cfg.Enabled = false
	s := NewScheduler(cfg, store, pipeline, driving.RunOptions{})

	errCh := startScheduler(t, context.Background(), s)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.NoError(t, waitResult(t, errCh))
	assert.Zero(t, pipeline.callCount())
	assert.Empty(t, store.states)
}

func TestScheduler_DoubleStart(t *testing.T) {
	store := newMockSchedulerStore()
	pipeline := &mockPipeline{block: true, started: make(chan struct{}, 1)}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})

	startScheduler(t, context.Background(), s)
	<-pipeline.started

	assert.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, pipeline.callCount())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := NewScheduler(hourly(), newMockSchedulerStore(), &mockPipeline{}, driving.RunOptions{})
	assert.NoError(t, s.Stop())
}

func TestScheduler_LoadError(t *testing.T) {
	store := newMockSchedulerStore()
	store.getErr = errors.New("database is locked")
	s := NewScheduler(hourly(), store, &mockPipeline{}, driving.RunOptions{})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading schedule: database is locked")
}

func TestScheduleHistory(t *testing.T) {
	store := newMockSchedulerStore()
	history := NewScheduleHistory(store)
	ctx := context.Background()

	state, runs, err := history.Schedule(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Empty(t, runs)

	pipeline := &mockPipeline{report: &driving.RunReport{RunID: "run-1", Status: domain.StatusSuccess}}
	s := NewScheduler(hourly(), store, pipeline, driving.RunOptions{})
	startScheduler(t, ctx, s)
	waitRun(t, store)
	require.NoError(t, s.Stop())

	state, runs, err = history.Schedule(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "run-1", state.LastRunID)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)

	store.getErr = errors.New("database is locked")
	_, _, err = history.Schedule(ctx, 10)
	assert.ErrorContains(t, err, "loading schedule")
}
