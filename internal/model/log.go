package model

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level structured logger for corruption and I/O
// failures, in the teacher pack's pkg/log idiom (one global zerolog.Logger,
// console output by default). Every component that constructs a
// CorruptedRecordError or wraps ErrIO goes through the helpers below so the
// failure is always both returned to the caller and logged as one
// structured event, per spec.md §7.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

// NewCorruptedRecordError builds a CorruptedRecordError for component/location
// and logs it as a structured event before returning it.
func NewCorruptedRecordError(component, location string, cause error) *CorruptedRecordError {
	Logger.Error().
		Str("component", component).
		Str("location", location).
		Err(cause).
		Msg("corrupted record")
	return &CorruptedRecordError{Component: component, Location: location, Cause: cause}
}

// WrapIOError wraps cause in ErrIO, identifying the component and operation
// that failed, and logs it as a structured event before returning it.
func WrapIOError(component, op string, cause error) error {
	Logger.Error().
		Str("component", component).
		Str("op", op).
		Err(cause).
		Msg("io error")
	return &ioError{component: component, op: op, cause: cause}
}

// ioError is the concrete type returned by WrapIOError; it unwraps to ErrIO
// so callers can keep using errors.Is(err, model.ErrIO).
type ioError struct {
	component string
	op        string
	cause     error
}

func (e *ioError) Error() string {
	msg := "io error in " + e.component
	if e.op != "" {
		msg += " during " + e.op
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}
func (e *ioError) Unwrap() error { return ErrIO }
