package memory

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// schedulerStore implements driven.SchedulerStore.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

func (t *schedulerStore) GetSchedule(_ context.Context, name string) (*domain.ScheduleState, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.schedules[name]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (t *schedulerStore) SaveSchedule(_ context.Context, state *domain.ScheduleState) error {
	if state == nil || state.Name == "" {
		return domain.ErrInvalidInput
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[state.Name] = *state
	return nil
}

func (t *schedulerStore) RecordRun(_ context.Context, run *domain.ScheduledRun) error {
	if run == nil || run.Schedule == "" {
		return domain.ErrInvalidInput
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

// RecentRuns walks the history backwards, so the newest run comes first.
func (t *schedulerStore) RecentRuns(_ context.Context, name string, limit int) ([]domain.ScheduledRun, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledRun
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.runs[i].Schedule == name {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

func (t *schedulerStore) PruneRuns(_ context.Context, name string, keep int) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, r := range s.runs {
		if r.Schedule == name {
			total++
		}
	}
	drop := total - max(keep, 0)
	if drop <= 0 {
		return nil
	}
	out := make([]domain.ScheduledRun, 0, len(s.runs)-drop)
	for _, r := range s.runs {
		if r.Schedule == name && drop > 0 {
			drop--
			continue
		}
		out = append(out, r)
	}
	s.runs = out
	return nil
}
