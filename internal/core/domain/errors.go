package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider or storage driver.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrLeaseHeld indicates another run currently holds the pipeline lease.
	ErrLeaseHeld = errors.New("pipeline lease held by another run")

	// ErrLeaseLost indicates the lease expired or was taken over mid-run.
	ErrLeaseLost = errors.New("pipeline lease lost")

	// ErrCursorRegression indicates an attempt to move the sync cursor backwards.
	ErrCursorRegression = errors.New("cursor regression")

	// ErrVersionConflict indicates a raw record changed between read and write.
	ErrVersionConflict = errors.New("record version conflict")

	// Remote call errors.

	// ErrTransient indicates a recoverable network or server failure.
	ErrTransient = errors.New("transient failure")

	// ErrAuthentication indicates rejected or missing credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrInvalidRequest indicates the remote side rejected the request as malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProviderUnavailable indicates the translation provider is not configured.
	ErrProviderUnavailable = errors.New("translation provider unavailable")

	// Record errors.

	// ErrSchemaValidation indicates a raw payload could not be normalised.
	ErrSchemaValidation = errors.New("schema validation failed")
)

// RateLimitError reports a rate-limited response with the wait the remote side asked for.
type RateLimitError struct {
	RetryAfter time.Duration
	Source     string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Source)
}

// SchemaValidationError describes why a single payload failed normalisation.
type SchemaValidationError struct {
	ExternalID string
	Field      string
	Reason     string
}

func (e *SchemaValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %s: %s", e.ExternalID, e.Reason)
	}
	return fmt.Sprintf("record %s: field %s: %s", e.ExternalID, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrSchemaValidation.
func (e *SchemaValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// HTTPStatusError maps a remote HTTP status onto the domain taxonomy.
// 401/403 become ErrAuthentication, 400/404/422 ErrInvalidRequest,
// 5xx ErrTransient; 429 is reported separately as RateLimitError.
type HTTPStatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Source, e.StatusCode, e.Body)
}

// Unwrap returns the taxonomy sentinel for the status code.
func (e *HTTPStatusError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuthentication
	case e.StatusCode == 400 || e.StatusCode == 404 || e.StatusCode == 422:
		return ErrInvalidRequest
	case e.StatusCode >= 500:
		return ErrTransient
	default:
		return nil
	}
}
