package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/listsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/listsync/internal/core/domain"
)

func TestOperationsLog_FinishAppends(t *testing.T) {
	store := memory.NewStore()
	log := NewOperationsLog(store.OperationsLogStore())
	start := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	clock := start
	log.now = func() time.Time { return clock }

	run := log.Start("run-1", domain.StageUpsert)
	clock = start.Add(3 * time.Second)
	entry := run.Finish(context.Background(), domain.StatusSuccess, domain.Counts{Created: 2, Updated: 1}, nil)

	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, 3*time.Second, entry.Duration())
	assert.Empty(t, entry.ErrorSummary)

	got, err := store.OperationsLogStore().ByRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StageUpsert, got[0].Stage)
	assert.Equal(t, 2, got[0].Counts.Created)
	assert.Equal(t, start, got[0].StartedAt)
}

func TestOperationsLog_TookOverridesClock(t *testing.T) {
	store := memory.NewStore()
	log := NewOperationsLog(store.OperationsLogStore())
	start := time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC)
	clock := start
	log.now = func() time.Time { return clock }

	fetch := log.Start("run-1", domain.StageFetch).Took(4 * time.Second)
	upsert := log.Start("run-1", domain.StageUpsert).Took(0)
	clock = start.Add(10 * time.Second)

	assert.Equal(t, 4*time.Second, fetch.Finish(context.Background(), domain.StatusSuccess, domain.Counts{}, nil).Duration())
	assert.Zero(t, upsert.Finish(context.Background(), domain.StatusSuccess, domain.Counts{}, nil).Duration())
}

func TestOperationsLog_ErrorSummary(t *testing.T) {
	store := memory.NewStore()
	log := NewOperationsLog(store.OperationsLogStore())

	entry := log.Start("run-1", domain.StageFetch).
		Finish(context.Background(), domain.StatusFailed, domain.Counts{}, errors.New("catalog down"))
	assert.Equal(t, "catalog down", entry.ErrorSummary)
	assert.Equal(t, domain.StatusFailed, entry.Status)
}

func TestOperationsLog_WritesAfterCancellation(t *testing.T) {
	store := memory.NewStore()
	log := NewOperationsLog(store.OperationsLogStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log.Start("run-1", domain.StageEnrich).Finish(ctx, domain.StatusFailed, domain.Counts{}, context.Canceled)

	recent, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, domain.StageEnrich, recent[0].Stage)
}

func TestOperationsLog_RecentNewestFirst(t *testing.T) {
	store := memory.NewStore()
	log := NewOperationsLog(store.OperationsLogStore())
	ctx := context.Background()

	for _, stage := range []domain.Stage{domain.StageFetch, domain.StageUpsert, domain.StageNormalize} {
		log.Start("run-1", stage).Finish(ctx, domain.StatusSuccess, domain.Counts{}, nil)
	}

	recent, err := log.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.StageNormalize, recent[0].Stage)
	assert.Equal(t, domain.StageUpsert, recent[1].Stage)
}
