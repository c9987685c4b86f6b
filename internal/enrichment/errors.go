package enrichment

import (
	"errors"
	"fmt"
)

var (
	// ErrEnrichmentUnavailable is returned for any failed enrichment call:
	// transport error, timeout, non-2xx status or unparsable response.
	// Callers recover from it by keeping the heuristic record.
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

	// ErrMissingAPIKey is returned when a completer is built without credentials.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrNoJSON is returned when the response holds no JSON object.
	ErrNoJSON = errors.New("no JSON object found in response")
)

// EnrichmentError carries the failing operation and the provider.
type EnrichmentError struct {
	Op       string
	Provider string
	Err      error
	Details  string
}

func (e *EnrichmentError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("enrichment: %s (%s) failed: %s: %v", e.Op, e.Provider, e.Details, e.Err)
	}
	return fmt.Sprintf("enrichment: %s (%s) failed: %v", e.Op, e.Provider, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// Is makes every EnrichmentError match ErrEnrichmentUnavailable.
func (e *EnrichmentError) Is(target error) bool {
	return target == ErrEnrichmentUnavailable
}

// NewEnrichmentError creates an EnrichmentError.
func NewEnrichmentError(op, provider string, err error, details string) *EnrichmentError {
	return &EnrichmentError{Op: op, Provider: provider, Err: err, Details: details}
}

// WrapEnrichmentError wraps err unless it already is an EnrichmentError.
func WrapEnrichmentError(op, provider string, err error, details string) error {
	if err == nil {
		return nil
	}

	var enrichErr *EnrichmentError
	if errors.As(err, &enrichErr) {
		return err
	}

	return NewEnrichmentError(op, provider, err, details)
}
