package driving

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// Normalizer converts pending raw records into processed records.
type Normalizer interface {
	// RunBatch normalises up to batchSize pending records.
	RunBatch(ctx context.Context, batchSize int) (*BatchReport, error)

	// RunAll normalises every pending record once, in batches.
	RunAll(ctx context.Context, batchSize int) (*BatchReport, error)
}

// BatchReport summarises one or more normalisation batches.
type BatchReport struct {
	// Seen is the number of pending records examined.
	Seen int

	// Completed records were fully translated and marked processed.
	Completed int

	// Pending records were saved with untranslated tokens.
	Pending int

	// Skipped records failed validation.
	Skipped int

	// ManualReview records exhausted their skip budget in this pass.
	ManualReview int

	// Deactivated records were soft-deleted upstream.
	Deactivated int

	// Conflicts counts raw records that changed while being normalised.
	Conflicts int

	DictionaryVersion int64
}

// Add accumulates another report.
func (r *BatchReport) Add(o BatchReport) {
	r.Seen += o.Seen
	r.Completed += o.Completed
	r.Pending += o.Pending
	r.Skipped += o.Skipped
	r.ManualReview += o.ManualReview
	r.Deactivated += o.Deactivated
	r.Conflicts += o.Conflicts
	if o.DictionaryVersion > r.DictionaryVersion {
		r.DictionaryVersion = o.DictionaryVersion
	}
}

// Counts maps the report onto operations log counts.
func (r BatchReport) Counts() domain.Counts {
	return domain.Counts{
		Updated: r.Completed + r.Pending,
		Deleted: r.Deactivated,
		Skipped: r.Skipped,
		Errored: r.Conflicts,
	}
}

// Enricher runs the normalise-translate loop.
type Enricher interface {
	// Enrich runs until convergence, the iteration cap, or a stalled provider.
	Enrich(ctx context.Context, opts EnrichOptions) (*EnrichReport, error)
}

// EnrichOutcome explains why the enrichment loop stopped.
type EnrichOutcome string

// Enrichment outcomes.
const (
	// OutcomeConverged means no untranslated tokens remain.
	OutcomeConverged EnrichOutcome = "converged"

	// OutcomeCapped means max iterations was reached.
	OutcomeCapped EnrichOutcome = "capped"

	// OutcomeStalled means the provider returned no new mappings.
	OutcomeStalled EnrichOutcome = "stalled"

	// OutcomeNoProvider means gaps remain but no provider is configured.
	OutcomeNoProvider EnrichOutcome = "no_provider"
)

// EnrichOptions controls one enrichment run.
type EnrichOptions struct {
	BatchSize     int
	MaxIterations int
}

// EnrichReport summarises an enrichment run.
type EnrichReport struct {
	Outcome       EnrichOutcome
	Iterations    int
	Normalization BatchReport

	// Added counts dictionary entries created by the provider.
	Added int

	// Conflicts counts provider values rejected by the conflict policy.
	Conflicts int

	// ProviderErrors counts provider calls that failed after retries.
	ProviderErrors int

	// RemainingGaps is the number of distinct tokens still untranslated.
	RemainingGaps int
}
