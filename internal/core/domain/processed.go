package domain

import "time"

// ConfigParam is one selected configuration parameter of a listing.
type ConfigParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Listing is the canonical, language-neutral form of a catalog entity.
// Pointer fields are nil when the source did not supply a usable value.
type Listing struct {
	URL               string                 `json:"url,omitempty"`
	Mark              string                 `json:"mark,omitempty"`
	Model             string                 `json:"model,omitempty"`
	Year              *int                   `json:"year,omitempty"`
	Color             string                 `json:"color,omitempty"`
	Price             *int                   `json:"price,omitempty"`
	KmAge             *int                   `json:"km_age,omitempty"`
	EngineType        string                 `json:"engine_type,omitempty"`
	TransmissionType  string                 `json:"transmission_type,omitempty"`
	BodyType          string                 `json:"body_type,omitempty"`
	Address           string                 `json:"address,omitempty"`
	Section           string                 `json:"section,omitempty"`
	OfferCreated      string                 `json:"offer_created,omitempty"`
	Description       string                 `json:"description,omitempty"`
	Displacement      *float64               `json:"displacement,omitempty"`
	VIN               string                 `json:"vin,omitempty"`
	FirstRegistration string                 `json:"first_registration,omitempty"`
	Power             *int                   `json:"power,omitempty"`
	DriveType         string                 `json:"drive_type,omitempty"`
	Images            []string               `json:"images,omitempty"`
	Options           []string               `json:"options,omitempty"`
	Configuration     map[string]ConfigParam `json:"configuration,omitempty"`
}

// ProcessedRecord is derived from one RawRecord version and one dictionary snapshot.
type ProcessedRecord struct {
	ExternalID string
	Listing    Listing

	// SourceVersion is the RawRecord.Version this record was derived from.
	SourceVersion int64

	// DictionaryVersion is the snapshot version used for translation.
	DictionaryVersion int64

	HasUntranslated bool

	// UntranslatedTokens is sorted and deduplicated.
	UntranslatedTokens []string

	// Active is false once the raw record is soft-deleted.
	Active bool

	ProcessedAt time.Time
}

// ProcessedStats summarises the processed table.
type ProcessedStats struct {
	Total        int
	Active       int
	Untranslated int
}

// RawStats summarises the raw table.
type RawStats struct {
	Total        int
	Deleted      int
	Unprocessed  int
	ManualReview int
}
