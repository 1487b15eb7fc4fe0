package units

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUnit is returned when a unit symbol is not registered.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrFamilyMismatch is returned when two units measure different quantities.
	ErrFamilyMismatch = errors.New("unit family mismatch")
	// ErrNotNumeric is returned when a string carries neither a number nor a
	// number with a recognised unit suffix.
	ErrNotNumeric = errors.New("not a number")
)

// ConversionError reports a value that could not be converted. It is local to
// the failed operation and never retried.
type ConversionError struct {
	Input  string
	Detail string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cannot convert %q: %v: %s", e.Input, e.Err, e.Detail)
	}
	return fmt.Sprintf("cannot convert %q: %v", e.Input, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
