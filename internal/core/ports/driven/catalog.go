package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
)

// CatalogClient reads the upstream listing catalog.
// Implementations map HTTP failures onto the domain error taxonomy
// and do not retry; retries belong to the caller.
type CatalogClient interface {
	// ChangeID returns the first change id recorded on date.
	ChangeID(ctx context.Context, date time.Time) (int64, error)

	// Changes returns the change page starting at changeID.
	Changes(ctx context.Context, changeID int64) (*domain.ChangePage, error)

	// Offers returns one page of the full listing snapshot.
	Offers(ctx context.Context, page int) (*domain.SnapshotPage, error)
}
