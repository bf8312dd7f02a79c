package driving

import (
	"context"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// Pipeline runs sync and normalisation under the single-run lease.
type Pipeline interface {
	// Run executes the selected stages. Returns domain.ErrLeaseHeld
	// without side effects if another run is active.
	Run(ctx context.Context, opts RunOptions) (*RunReport, error)
}

// RunOptions selects the stages of one run.
type RunOptions struct {
	SkipSync          bool
	SkipNormalization bool
	Sync              SyncOptions
	Enrich            EnrichOptions
}

// RunReport summarises one pipeline run.
type RunReport struct {
	RunID  string
	Status domain.RunStatus
	Sync   *SyncReport
	Enrich *EnrichReport
}
