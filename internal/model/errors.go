package model

import "errors"

// Sentinel errors for the engine's error taxonomy (spec.md §7). Every
// component returns one of these, wrapped in a typed detail struct where
// detail is useful, so callers can always recover the kind with errors.Is.
var (
	// ErrValidation reports that an input violated a §3 invariant.
	ErrValidation = errors.New("validation error")
	// ErrNotFound reports that a target id/path is absent.
	ErrNotFound = errors.New("not found")
	// ErrPathConflict reports a path uniqueness violation in the Primary Index.
	ErrPathConflict = errors.New("path conflict")
	// ErrAlreadyExists reports a document id uniqueness violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAmbiguousSymbol reports that a relationship target name matched more
	// than one symbol with no disambiguating path supplied.
	ErrAmbiguousSymbol = errors.New("ambiguous symbol")
	// ErrTruncated reports that a query exceeded its budget or bound and
	// returned a partial result.
	ErrTruncated = errors.New("truncated")
	// ErrCorrupted reports a CRC mismatch on a stored record.
	ErrCorrupted = errors.New("corrupted record")
	// ErrIO reports an underlying filesystem failure.
	ErrIO = errors.New("io error")
	// ErrExtractor reports that the pluggable symbol extractor failed.
	ErrExtractor = errors.New("extractor error")
)

// ValidationError carries the failed field/reason alongside ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError wraps a ValidationFailure (produced by the validate
// helpers) as an *ValidationError.
func NewValidationError(f ValidationFailure) *ValidationError {
	return &ValidationError{Field: f.Field, Reason: f.Reason}
}

// AmbiguousSymbolError carries the candidate symbol ids alongside
// ErrAmbiguousSymbol.
type AmbiguousSymbolError struct {
	Name       string
	Candidates []SymbolID
}

func (e *AmbiguousSymbolError) Error() string {
	return "ambiguous symbol " + e.Name
}
func (e *AmbiguousSymbolError) Unwrap() error { return ErrAmbiguousSymbol }

// CorruptedRecordError carries the location of the corrupt record alongside
// ErrCorrupted.
type CorruptedRecordError struct {
	Component string
	Location  string
	Cause     error
}

func (e *CorruptedRecordError) Error() string {
	msg := "corrupted record in " + e.Component
	if e.Location != "" {
		msg += " at " + e.Location
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}
func (e *CorruptedRecordError) Unwrap() error { return ErrCorrupted }
