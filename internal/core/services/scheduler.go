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

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of scheduled runs kept.
const historyRetention = 100

// Scheduler is the periodic invoker used in serve mode. It runs the
// pipeline whenever the persisted schedule is due, so a restart resumes
// the cadence instead of running again immediately. Overlapping runs
// across processes are prevented by the pipeline lease, not here.
type Scheduler struct {
	config   domain.ScheduleConfig
	store    driven.SchedulerStore
	pipeline driving.Pipeline
	options  driving.RunOptions
	now      func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewScheduler creates a scheduler that runs pipeline with opts.
func NewScheduler(
	config domain.ScheduleConfig,
	store driven.SchedulerStore,
	pipeline driving.Pipeline,
	opts driving.RunOptions,
) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		pipeline: pipeline,
		options:  opts,
		now:      time.Now,
	}
}

// Start runs the schedule until ctx is cancelled or Stop is called.
// It returns nil after Stop and ctx.Err() after cancellation. Calling
// Start on a running scheduler returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return nil
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.stopCh, s.done = stop, done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopCh, s.done = nil, nil
		s.mu.Unlock()
		close(done)
	}()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.loop(ctx)
	if parent.Err() != nil {
		return parent.Err()
	}
	return err
}

// Stop cancels a run in progress and waits for Start to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	stop, done := s.stopCh, s.done
	if stop == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	s.mu.Unlock()

	<-done
	return nil
}

func (s *Scheduler) loop(ctx context.Context) error {
	if !s.config.Enabled || s.config.Interval <= 0 {
		logger.Info("Scheduler disabled")
		<-ctx.Done()
		return nil
	}

	state, err := s.loadState(ctx)
	if err != nil {
		return fmt.Errorf("loading schedule: %w", err)
	}

	timer := time.NewTimer(state.Wait(s.now()))
	defer timer.Stop()
	for {
		if !state.NextRun.IsZero() {
			logger.Debug("Next scheduled run at %s", state.NextRun.Local().Format(time.DateTime))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		s.runOnce(ctx, state)
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(state.Wait(s.now()))
	}
}

// loadState returns the persisted schedule, creating it on first use.
func (s *Scheduler) loadState(ctx context.Context) (*domain.ScheduleState, error) {
	state, err := s.store.GetSchedule(ctx, domain.PipelineSchedule)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = domain.NewScheduleState(domain.PipelineSchedule, s.config.Interval)
	}
	state.Reschedule(s.config.Interval)
	if err := s.store.SaveSchedule(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// runOnce executes one pipeline run and records it against state.
func (s *Scheduler) runOnce(ctx context.Context, state *domain.ScheduleState) {
	run := domain.ScheduledRun{Schedule: state.Name, StartedAt: s.now()}
	report, err := s.pipeline.Run(ctx, s.options)
	run.FinishedAt = s.now()

	if report != nil {
		run.RunID = report.RunID
		run.Status = report.Status
		if report.Sync != nil {
			run.Mutations = report.Sync.Stats.Mutations()
		}
	}
	switch {
	case errors.Is(err, domain.ErrLeaseHeld):
		run.Status = domain.StatusSkipped
		run.Error = err.Error()
		logger.Warn("Scheduled run skipped: %v", err)
	case err != nil:
		run.Status = domain.StatusFailed
		run.Error = err.Error()
		logger.Error("Scheduled run failed: %v", err)
	default:
		logger.Info("Scheduled run %s finished: %s, %d raw records changed", run.RunID, run.Status, run.Mutations)
	}

	state.Record(run, s.config)

	// Recorded even when the run was cancelled by shutdown
	saveCtx := context.WithoutCancel(ctx)
	if err := s.store.SaveSchedule(saveCtx, state); err != nil {
		logger.Warn("Scheduler: failed to save schedule: %v", err)
	}
	if err := s.store.RecordRun(saveCtx, &run); err != nil {
		logger.Warn("Scheduler: failed to record run: %v", err)
	}
	if err := s.store.PruneRuns(saveCtx, state.Name, historyRetention); err != nil {
		logger.Warn("Scheduler: failed to prune run history: %v", err)
	}
}

// Ensure ScheduleHistory implements the interface.
var _ driving.ScheduleHistory = (*ScheduleHistory)(nil)

// ScheduleHistory reads the pipeline schedule for status reporting.
type ScheduleHistory struct {
	store driven.SchedulerStore
}

// NewScheduleHistory creates a reader over store.
func NewScheduleHistory(store driven.SchedulerStore) *ScheduleHistory {
	return &ScheduleHistory{store: store}
}

// Schedule returns the pipeline schedule and its recent runs.
func (h *ScheduleHistory) Schedule(ctx context.Context, limit int) (*domain.ScheduleState, []domain.ScheduledRun, error) {
	state, err := h.store.GetSchedule(ctx, domain.PipelineSchedule)
	if err != nil {
		return nil, nil, fmt.Errorf("loading schedule: %w", err)
	}
	runs, err := h.store.RecentRuns(ctx, domain.PipelineSchedule, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("loading scheduled runs: %w", err)
	}
	return state, runs, nil
}
