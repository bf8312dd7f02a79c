package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/logger"
)

// Ensure EnrichmentService implements the interface.
var _ driving.Enricher = (*EnrichmentService)(nil)

// EnrichmentService alternates normalisation passes with provider
// translation of the remaining gaps until nothing is left to translate.
type EnrichmentService struct {
	normalizer driving.Normalizer
	processed  driven.ProcessedStore
	dict       *DictionaryService
	provider   driven.TranslationProvider
	retry      *RetryExecutor

	sourceLang string
	targetLang string
	normBatch  int
	defaults   driving.EnrichOptions
}

// NewEnrichmentService creates the enrichment loop. provider may be nil,
// in which case the loop normalises once and reports the remaining gaps.
func NewEnrichmentService(
	normalizer driving.Normalizer,
	processed driven.ProcessedStore,
	dict *DictionaryService,
	provider driven.TranslationProvider,
	retry *RetryExecutor,
	settings domain.Settings,
) *EnrichmentService {
	return &EnrichmentService{
		normalizer: normalizer,
		processed:  processed,
		dict:       dict,
		provider:   provider,
		retry:      retry,
		sourceLang: settings.Translation.SourceLanguage,
		targetLang: settings.Translation.TargetLanguage,
		normBatch:  settings.Normalization.BatchSize,
		defaults: driving.EnrichOptions{
			BatchSize:     settings.Enrichment.BatchSize,
			MaxIterations: settings.Enrichment.MaxIterations,
		},
	}
}

// Enrich runs the loop. Each iteration normalises every pending record,
// collects the untranslated tokens, translates them and merges the result
// into the dictionary. It stops when no gaps remain, when MaxIterations
// translation rounds have run, or when a round adds nothing new.
//
// Provider failures after retries are counted and the round continues with
// the next chunk. Authentication and configuration errors abort the loop.
func (s *EnrichmentService) Enrich(ctx context.Context, opts driving.EnrichOptions) (*driving.EnrichReport, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = s.defaults.BatchSize
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = s.defaults.MaxIterations
	}
	report := &driving.EnrichReport{}

	for {
		br, err := s.normalizer.RunAll(ctx, s.normBatch)
		if br != nil {
			report.Normalization.Add(*br)
		}
		if err != nil {
			return report, fmt.Errorf("normalise: %w", err)
		}

		gaps, err := s.gaps(ctx)
		if err != nil {
			return report, err
		}
		report.RemainingGaps = len(gaps)

		switch {
		case len(gaps) == 0:
			report.Outcome = driving.OutcomeConverged
		case report.Iterations >= opts.MaxIterations:
			report.Outcome = driving.OutcomeCapped
		case s.provider == nil:
			report.Outcome = driving.OutcomeNoProvider
		}
		if report.Outcome != "" {
			logger.Info("Enrichment %s after %d iterations, %d gaps remain",
				report.Outcome, report.Iterations, report.RemainingGaps)
			return report, nil
		}

		logger.Info("Enrichment iteration %d: translating %d tokens via %s",
			report.Iterations+1, len(gaps), s.provider.Name())

		translated, err := s.translate(ctx, gaps, opts.BatchSize, report)
		if err != nil {
			return report, err
		}

		res, err := s.dict.Merge(ctx, s.entries(translated), false)
		if err != nil {
			return report, err
		}
		report.Added += len(res.Added)
		report.Conflicts += len(res.Conflicts)
		report.Iterations++

		if !res.Changed() {
			report.Outcome = driving.OutcomeStalled
			logger.Warn("Enrichment stalled: provider returned no new mappings for %d tokens", len(gaps))
			return report, nil
		}

		requeued, err := s.dict.Requeue(ctx, res.Tokens())
		if err != nil {
			return report, err
		}
		logger.Debug("Dictionary v%d: requeued %d records", res.Version, requeued)
	}
}

// gaps returns the distinct untranslated tokens of active records, sorted.
func (s *EnrichmentService) gaps(ctx context.Context) ([]string, error) {
	counts, err := s.processed.Gaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect gaps: %w", err)
	}
	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens, nil
}

// translate sends tokens to the provider in chunks of size.
func (s *EnrichmentService) translate(ctx context.Context, tokens []string, size int, report *driving.EnrichReport) (map[string]string, error) {
	out := make(map[string]string, len(tokens))
	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		chunk := tokens[start:end]

		got, err := Retry(ctx, s.retry, "translate via "+s.provider.Name(),
			func(ctx context.Context) (map[string]string, error) {
				return s.provider.Translate(ctx, chunk, s.sourceLang, s.targetLang)
			})
		if err != nil {
			if runFatal(err) || ctx.Err() != nil {
				return out, fmt.Errorf("translate: %w", err)
			}
			report.ProviderErrors++
			logger.Warn("Translation of %d tokens failed: %v", len(chunk), err)
			continue
		}

		for _, tok := range chunk {
			v, ok := got[tok]
			v = strings.TrimSpace(v)
			if ok && v != "" && v != tok {
				out[tok] = v
			}
		}
	}
	return out, nil
}

func (s *EnrichmentService) entries(translated map[string]string) []domain.TranslationEntry {
	tokens := make([]string, 0, len(translated))
	for tok := range translated {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	entries := make([]domain.TranslationEntry, 0, len(tokens))
	for _, tok := range tokens {
		entries = append(entries, domain.TranslationEntry{
			SourceToken:    tok,
			SourceLanguage: s.sourceLang,
			CanonicalToken: translated[tok],
			Provider:       s.provider.Name(),
		})
	}
	return entries
}

// runFatal reports errors that end the whole run rather than one unit of work.
func runFatal(err error) bool {
	return errors.Is(err, domain.ErrAuthentication) || errors.Is(err, domain.ErrProviderUnavailable)
}
