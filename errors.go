package cortex

import (
	"github.com/jward/cortex/internal/model"
)

// Sentinel errors mirror spec.md §7's error taxonomy one-for-one. They are
// re-exported from internal/model so callers never need to import an
// internal package to use errors.Is against them.
var (
	ErrValidation      = model.ErrValidation
	ErrNotFound        = model.ErrNotFound
	ErrPathConflict    = model.ErrPathConflict
	ErrAlreadyExists   = model.ErrAlreadyExists
	ErrAmbiguousSymbol = model.ErrAmbiguousSymbol
	ErrTruncated       = model.ErrTruncated
	ErrCorrupted       = model.ErrCorrupted
	ErrIO              = model.ErrIO
	ErrExtractor       = model.ErrExtractor
)

// ValidationError, AmbiguousSymbolError, and CorruptedRecordError are
// re-exported as type aliases so callers can type-assert against them
// without reaching into internal/model.
type (
	ValidationError      = model.ValidationError
	AmbiguousSymbolError = model.AmbiguousSymbolError
	CorruptedRecordError = model.CorruptedRecordError
)
