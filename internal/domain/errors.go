package domain

import (
	"errors"
	"fmt"
)

// ErrNoDataAvailable is returned when the cache is empty and recomputation
// failed. It is the only error surfaced all the way to API callers; every
// other failure degrades into a partial result.
var ErrNoDataAvailable = errors.New("no composite result available")

// MalformedInputError reports a raw payload whose field value is not numeric.
// It aborts the ingestion of that single reading only.
type MalformedInputError struct {
	Source Source
	Field  string
	Value  any
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input from %s: field %q has non-numeric value %v (%T)",
		e.Source, e.Field, e.Value, e.Value)
}

// SchemaMismatchError reports a feature schema field that cannot be satisfied:
// the observation lacks the field and the schema declares no fallback default.
// It is fatal for that one model's prediction, which degrades.
type SchemaMismatchError struct {
	Model string
	Field string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch for model %s: field %q has no value and no default", e.Model, e.Field)
}

// ServiceUnavailableError reports an unreachable upstream source. The freshness
// manager treats it as a staleness event for that source, never a fatal error.
type ServiceUnavailableError struct {
	Source Source
	Err    error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }
