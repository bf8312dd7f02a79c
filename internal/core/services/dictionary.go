package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure DictionaryService implements the interface.
var _ driving.DictionaryService = (*DictionaryService)(nil)

// requeuePage is the page size used when walking processed records.
const requeuePage = 500

// DictionaryService owns the translation dictionary. Readers get an
// immutable snapshot; merges build a new snapshot and swap it in.
type DictionaryService struct {
	store     driven.DictionaryStore
	raw       driven.RawStore
	processed driven.ProcessedStore
	lang      string
	now       func() time.Time

	// mu serialises merges. Readers never take it.
	mu   sync.Mutex
	snap atomic.Pointer[domain.DictionarySnapshot]
}

// NewDictionaryService creates a dictionary service for source language lang.
func NewDictionaryService(
	store driven.DictionaryStore,
	raw driven.RawStore,
	processed driven.ProcessedStore,
	lang string,
) *DictionaryService {
	return &DictionaryService{
		store:     store,
		raw:       raw,
		processed: processed,
		lang:      lang,
		now:       time.Now,
	}
}

// Load reads the persisted dictionary and makes it the current snapshot.
func (s *DictionaryService) Load(ctx context.Context) error {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dictionary: %w", err)
	}
	s.snap.Store(snap)
	logger.Debug("Loaded dictionary v%d (%d entries)", snap.Version(), snap.Len())
	return nil
}

// Snapshot returns the current snapshot. It may be nil before Load.
func (s *DictionaryService) Snapshot() *domain.DictionarySnapshot {
	return s.snap.Load()
}

// Merge adds entries to the dictionary. An existing entry with a different
// canonical value is kept unless overwrite is set; each rejected value is
// returned as a conflict and logged. Persisting and swapping the snapshot
// happen only when something changed.
func (s *DictionaryService) Merge(ctx context.Context, entries []domain.TranslationEntry, overwrite bool) (domain.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Load() == nil {
		if err := s.Load(ctx); err != nil {
			return domain.MergeResult{}, err
		}
	}
	cur := s.snap.Load()
	result := domain.MergeResult{Version: cur.Version()}

	now := s.now()
	seen := make(map[domain.DictionaryKey]struct{}, len(entries))
	var changes []domain.TranslationEntry

	for _, e := range entries {
		e.SourceToken = strings.TrimSpace(e.SourceToken)
		e.CanonicalToken = strings.TrimSpace(e.CanonicalToken)
		if e.SourceToken == "" || e.CanonicalToken == "" || e.SourceToken == e.CanonicalToken {
			continue
		}
		if e.SourceLanguage == "" {
			e.SourceLanguage = s.lang
		}
		if e.AddedAt.IsZero() {
			e.AddedAt = now
		}

		key := e.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		existing, ok := cur.Get(key)
		switch {
		case !ok:
			result.Added = append(result.Added, e)
			changes = append(changes, e)
		case existing.CanonicalToken == e.CanonicalToken:
		case overwrite:
			result.Overwritten = append(result.Overwritten, e)
			changes = append(changes, e)
		default:
			conflict := domain.DictionaryConflict{Existing: existing, Rejected: e}
			result.Conflicts = append(result.Conflicts, conflict)
			logger.Warn("%v", conflict)
		}
	}

	if len(changes) == 0 {
		return result, nil
	}

	version, err := s.store.Apply(ctx, changes)
	if err != nil {
		return result, fmt.Errorf("apply dictionary entries: %w", err)
	}
	s.snap.Store(cur.With(version, changes))
	result.Version = version

	logger.Info("Dictionary v%d: %d added, %d overwritten, %d conflicts",
		version, len(result.Added), len(result.Overwritten), len(result.Conflicts))
	return result, nil
}

// Requeue clears is_processed on every active record whose untranslated
// tokens intersect tokens.
func (s *DictionaryService) Requeue(ctx context.Context, tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	ids, err := s.processed.IDsWithTokens(ctx, tokens)
	if err != nil {
		return 0, fmt.Errorf("find records with tokens: %w", err)
	}
	n, err := s.raw.ResetProcessed(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("reset processed: %w", err)
	}
	return n, nil
}

// requeueAll clears is_processed on every active record. An overwritten
// entry can change records that no longer list the token as untranslated.
func (s *DictionaryService) requeueAll(ctx context.Context) (int, error) {
	total := 0
	after := ""
	for {
		recs, err := s.processed.ListActive(ctx, after, requeuePage)
		if err != nil {
			return total, fmt.Errorf("list active records: %w", err)
		}
		if len(recs) == 0 {
			return total, nil
		}
		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ExternalID
		}
		n, err := s.raw.ResetProcessed(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("reset processed: %w", err)
		}
		total += n
		after = recs[len(recs)-1].ExternalID
	}
}

// Import merges operator-supplied entries and queues affected records.
func (s *DictionaryService) Import(ctx context.Context, entries []domain.TranslationEntry, overwrite bool) (*driving.ImportReport, error) {
	for i := range entries {
		if entries[i].Provider == "" {
			entries[i].Provider = domain.ProviderManual.String()
		}
	}

	res, err := s.Merge(ctx, entries, overwrite)
	if err != nil {
		return nil, err
	}
	report := &driving.ImportReport{Merge: res}

	var requeued int
	if len(res.Overwritten) > 0 {
		requeued, err = s.requeueAll(ctx)
	} else {
		requeued, err = s.Requeue(ctx, res.Tokens())
	}
	if err != nil {
		return report, err
	}
	report.Requeued = requeued
	return report, nil
}

// Export returns every entry of the current snapshot.
func (s *DictionaryService) Export(ctx context.Context) ([]domain.TranslationEntry, error) {
	if s.snap.Load() == nil {
		if err := s.Load(ctx); err != nil {
			return nil, err
		}
	}
	return s.snap.Load().Entries(), nil
}

// Gaps lists untranslated tokens by descending record count.
func (s *DictionaryService) Gaps(ctx context.Context, minCount int) ([]driving.TokenGap, error) {
	counts, err := s.processed.Gaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("count gaps: %w", err)
	}

	gaps := make([]driving.TokenGap, 0, len(counts))
	for tok, n := range counts {
		if n >= minCount {
			gaps = append(gaps, driving.TokenGap{Token: tok, Count: n})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Count != gaps[j].Count {
			return gaps[i].Count > gaps[j].Count
		}
		return gaps[i].Token < gaps[j].Token
	})
	return gaps, nil
}
