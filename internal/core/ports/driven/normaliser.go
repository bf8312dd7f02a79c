package driven

import "github.com/custodia-labs/listsync/internal/core/domain"

// Normaliser converts a raw record into its canonical form.
// Normalise must be a pure function of its two inputs.
type Normaliser interface {
	// Normalise returns a *domain.SchemaValidationError when the payload
	// cannot be parsed or fails validation.
	Normalise(raw *domain.RawRecord, dict *domain.DictionarySnapshot) (*domain.ProcessedRecord, error)
}
