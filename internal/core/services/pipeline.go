package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure PipelineService implements the interface.
var _ driving.Pipeline = (*PipelineService)(nil)

// PipelineService runs the stages of one pipeline run in order:
// fetch and upsert, then normalise and enrich. Every run holds the lease
// for its scope and writes one operations log entry per stage.
type PipelineService struct {
	leases   *LeaseManager
	sync     driving.SyncOrchestrator
	enricher driving.Enricher
	oplog    *OperationsLog
	scope    string
}

// NewPipelineService creates a pipeline for the default scope.
func NewPipelineService(
	leases *LeaseManager,
	sync driving.SyncOrchestrator,
	enricher driving.Enricher,
	oplog *OperationsLog,
) *PipelineService {
	return &PipelineService{
		leases:   leases,
		sync:     sync,
		enricher: enricher,
		oplog:    oplog,
		scope:    domain.DefaultScope,
	}
}

// Run executes one pipeline run.
func (p *PipelineService) Run(ctx context.Context, opts driving.RunOptions) (*driving.RunReport, error) {
	held, err := p.leases.Acquire(ctx, p.scope)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Releasing lease: %v", err)
		}
	}()

	runCtx := held.Context()
	report := &driving.RunReport{RunID: uuid.NewString(), Status: domain.StatusSuccess}
	logger.Info("Run %s started", report.RunID)

	if !opts.SkipSync {
		if err := p.runSync(runCtx, held, opts.Sync, report); err != nil {
			return report, err
		}
	}

	if !opts.SkipNormalization {
		if err := p.runEnrich(runCtx, held, opts.Enrich, report); err != nil {
			return report, err
		}
	}

	logger.Info("Run %s finished: %s", report.RunID, report.Status)
	return report, nil
}

func (p *PipelineService) runSync(ctx context.Context, held *HeldLease, opts driving.SyncOptions, report *driving.RunReport) error {
	logger.Section("Sync")
	fetch := p.oplog.Start(report.RunID, domain.StageFetch)
	upsert := p.oplog.Start(report.RunID, domain.StageUpsert)

	sr, err := p.sync.Sync(ctx, opts)
	report.Sync = sr
	err = leaseErr(held, err)

	var fetchCounts domain.Counts
	var upsertCounts domain.Counts
	status := domain.StatusSuccess
	if sr != nil {
		fetch.Took(sr.FetchTime)
		upsert.Took(sr.UpsertTime)
		fetchCounts.Errored = sr.FailedPages
		upsertCounts = domain.Counts{
			Created: sr.Stats.Created,
			Updated: sr.Stats.Updated,
			Deleted: sr.Stats.Deleted + sr.Swept,
			Skipped: sr.Stats.Skipped,
		}
		status = sr.Status
	}
	if err != nil {
		status = domain.StatusFailed
	}

	fetch.Finish(ctx, status, fetchCounts, err)
	upsertStatus := domain.StatusSuccess
	if err != nil {
		upsertStatus = domain.StatusFailed
	}
	upsert.Finish(ctx, upsertStatus, upsertCounts, err)

	report.Status = worse(report.Status, status)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (p *PipelineService) runEnrich(ctx context.Context, held *HeldLease, opts driving.EnrichOptions, report *driving.RunReport) error {
	logger.Section("Normalise")
	normalize := p.oplog.Start(report.RunID, domain.StageNormalize)
	enrich := p.oplog.Start(report.RunID, domain.StageEnrich)

	er, err := p.enricher.Enrich(ctx, opts)
	report.Enrich = er
	err = leaseErr(held, err)

	status := domain.StatusSuccess
	if err != nil {
		status = domain.StatusFailed
	}

	var normCounts, enrichCounts domain.Counts
	enrichStatus := status
	if er != nil {
		normCounts = er.Normalization.Counts()
		enrichCounts = domain.Counts{
			Created: er.Added,
			Skipped: er.Conflicts,
			Errored: er.ProviderErrors,
		}
		if err == nil && (er.ProviderErrors > 0 || er.Outcome == driving.OutcomeCapped) {
			enrichStatus = domain.StatusPartial
		}
	}

	normalize.Finish(ctx, status, normCounts, err)
	enrich.Finish(ctx, enrichStatus, enrichCounts, err)

	report.Status = worse(report.Status, enrichStatus)
	if err != nil {
		return fmt.Errorf("normalise: %w", err)
	}
	return nil
}

// leaseErr reports a lost lease in place of the cancellation it caused.
func leaseErr(held *HeldLease, err error) error {
	if err != nil && held.Lost() && errors.Is(err, context.Canceled) {
		return domain.ErrLeaseLost
	}
	return err
}

// worse returns the more severe of two statuses.
func worse(a, b domain.RunStatus) domain.RunStatus {
	rank := func(s domain.RunStatus) int {
		switch s {
		case domain.StatusFailed:
			return 2
		case domain.StatusPartial:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
