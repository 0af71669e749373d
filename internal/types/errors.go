package types

import (
	"errors"
	"fmt"
)

var (
	ErrDataNotFound       = errors.New("data not found")
	ErrInvalidFormat      = errors.New("invalid format")
	ErrMissingField       = errors.New("missing required field")
	ErrNegativeTokens     = errors.New("negative token count")
	ErrInvariantViolation = errors.New("aggregation invariant violation")
	ErrInvalidTimeRange   = errors.New("invalid time range")
	ErrEngineClosed       = errors.New("engine closed")
)

// DiscoveryError means the data root itself could not be walked. It aborts a
// load attempt; calling Load again retries.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("cannot discover usage files under %s: %v", e.Root, e.Err)
}

func (e DiscoveryError) Unwrap() error {
	return e.Err
}

// FileReadError marks a single data file that was skipped
type FileReadError struct {
	Path string
	Err  error
}

func (e FileReadError) Error() string {
	return fmt.Sprintf("failed to read %s: %v", e.Path, e.Err)
}

func (e FileReadError) Unwrap() error {
	return e.Err
}

type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse error at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse error in %s at line %d: %v", e.Path, e.Line, e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// PricingGapWarning is raised for a model missing from the pricing table.
// The entry is kept, priced at the table's fallback rate.
type PricingGapWarning struct {
	Model string
}

func (w PricingGapWarning) Error() string {
	return fmt.Sprintf("no pricing for model %q, priced at the fallback rate", w.Model)
}
