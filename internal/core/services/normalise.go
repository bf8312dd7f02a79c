package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure NormalizationService implements the interface.
var _ driving.Normalizer = (*NormalizationService)(nil)

// snapshotSource provides the dictionary snapshot a pass normalises against.
type snapshotSource interface {
	Snapshot() *domain.DictionarySnapshot
}

// NormalizationService turns pending raw records into processed records.
type NormalizationService struct {
	raw        driven.RawStore
	processed  driven.ProcessedStore
	dict       snapshotSource
	normaliser driven.Normaliser
	maxSkips   int
	now        func() time.Time
}

// NewNormalizationService creates a normalisation service. Records that fail
// validation maxSkips times in a row are flagged for manual review.
func NewNormalizationService(
	raw driven.RawStore,
	processed driven.ProcessedStore,
	dict snapshotSource,
	normaliser driven.Normaliser,
	maxSkips int,
) *NormalizationService {
	if maxSkips < 1 {
		maxSkips = domain.DefaultSettings().Normalization.MaxSkips
	}
	return &NormalizationService{
		raw:        raw,
		processed:  processed,
		dict:       dict,
		normaliser: normaliser,
		maxSkips:   maxSkips,
		now:        time.Now,
	}
}

// RunBatch reflects pending deletions and normalises up to batchSize
// pending records against the current dictionary snapshot.
func (s *NormalizationService) RunBatch(ctx context.Context, batchSize int) (*driving.BatchReport, error) {
	batchSize = s.batchSize(batchSize)
	snap := s.dict.Snapshot()
	report := &driving.BatchReport{DictionaryVersion: snap.Version()}

	if _, err := s.deactivate(ctx, "", batchSize, report); err != nil {
		return report, err
	}

	recs, err := s.raw.ListUnprocessed(ctx, "", batchSize)
	if err != nil {
		return report, fmt.Errorf("list unprocessed: %w", err)
	}
	for i := range recs {
		if err := s.normaliseOne(ctx, &recs[i], snap, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// RunAll visits every pending record once, in id order. Records saved with
// untranslated tokens stay pending but are not revisited in the same pass.
func (s *NormalizationService) RunAll(ctx context.Context, batchSize int) (*driving.BatchReport, error) {
	batchSize = s.batchSize(batchSize)
	snap := s.dict.Snapshot()
	report := &driving.BatchReport{DictionaryVersion: snap.Version()}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		next, err := s.deactivate(ctx, after, batchSize, report)
		if err != nil {
			return report, err
		}
		if next == "" {
			break
		}
		after = next
	}

	after = ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		recs, err := s.raw.ListUnprocessed(ctx, after, batchSize)
		if err != nil {
			return report, fmt.Errorf("list unprocessed: %w", err)
		}
		if len(recs) == 0 {
			break
		}
		for i := range recs {
			if err := s.normaliseOne(ctx, &recs[i], snap, report); err != nil {
				return report, err
			}
		}
		after = recs[len(recs)-1].ExternalID
		logger.Debug("Normalised up to %s: %d completed, %d pending", after, report.Completed, report.Pending)
	}

	logger.Info("Normalisation: %d seen, %d completed, %d pending, %d skipped, %d deactivated",
		report.Seen, report.Completed, report.Pending, report.Skipped, report.Deactivated)
	return report, nil
}

// deactivate reflects one page of soft-deleted records downstream and
// returns the last id visited, or "" when the page was empty.
func (s *NormalizationService) deactivate(ctx context.Context, after string, limit int, report *driving.BatchReport) (string, error) {
	recs, err := s.raw.ListDeletedUnprocessed(ctx, after, limit)
	if err != nil {
		return "", fmt.Errorf("list deleted: %w", err)
	}
	for _, r := range recs {
		err := s.processed.Deactivate(ctx, r.ExternalID, r.Version)
		switch {
		case err == nil:
			report.Deactivated++
		case errors.Is(err, domain.ErrVersionConflict):
			report.Conflicts++
			logger.Debug("Record %s changed during deactivation", r.ExternalID)
		default:
			return "", fmt.Errorf("deactivate %s: %w", r.ExternalID, err)
		}
	}
	if len(recs) == 0 {
		return "", nil
	}
	return recs[len(recs)-1].ExternalID, nil
}

// normaliseOne handles a single record. Per-record failures are counted,
// only store errors are returned.
func (s *NormalizationService) normaliseOne(
	ctx context.Context,
	raw *domain.RawRecord,
	snap *domain.DictionarySnapshot,
	report *driving.BatchReport,
) error {
	report.Seen++

	rec, err := s.normaliser.Normalise(raw, snap)
	if err != nil {
		report.Skipped++
		logger.Warn("Skipping record %s: %v", raw.ExternalID, err)

		flagged, skipErr := s.raw.RecordSkip(ctx, raw.ExternalID, raw.Version, s.maxSkips)
		switch {
		case skipErr == nil:
		case errors.Is(skipErr, domain.ErrVersionConflict):
			report.Conflicts++
			return nil
		default:
			return fmt.Errorf("record skip for %s: %w", raw.ExternalID, skipErr)
		}
		if flagged {
			report.ManualReview++
			logger.Error("Record %s failed %d times, flagged for manual review", raw.ExternalID, s.maxSkips)
		}
		return nil
	}

	rec.ProcessedAt = s.now()
	complete := !rec.HasUntranslated
	if err := s.processed.Save(ctx, rec, complete); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			report.Conflicts++
			logger.Debug("Record %s changed during normalisation", raw.ExternalID)
			return nil
		}
		return fmt.Errorf("save processed %s: %w", raw.ExternalID, err)
	}

	if complete {
		report.Completed++
	} else {
		report.Pending++
	}
	return nil
}

func (s *NormalizationService) batchSize(n int) int {
	if n < 1 {
		return domain.DefaultSettings().Normalization.BatchSize
	}
	return n
}
