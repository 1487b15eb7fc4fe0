package motion

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAlreadyBusy is returned when a move is requested while the device
	// is still moving.
	ErrAlreadyBusy = errors.New("already busy")
	// ErrFieldCount is returned when a target addresses the wrong number of
	// fields.
	ErrFieldCount = errors.New("wrong number of fields")
	// ErrNoField is returned for an out-of-range field index or unknown name.
	ErrNoField = errors.New("no such field")
)

// LimitViolation is returned when a target fails validation. No hardware
// command has been sent.
type LimitViolation struct {
	Name    string
	Message string
}

func (e *LimitViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ToleranceNotMet is returned by MoveTo when the readback is still outside
// tolerance after the final attempt. Values are in the internal frame.
type ToleranceNotMet struct {
	Name      string
	Field     string
	Tries     int
	Target    float64
	Readback  float64
	Tolerance float64
}

func (e *ToleranceNotMet) Error() string {
	return fmt.Sprintf("%s: %s did not reach %g within %g after %d tries (readback %g)",
		e.Name, e.Field, e.Target, e.Tolerance, e.Tries, e.Readback)
}

// TimeoutError is returned when a wait outlives its deadline. The move is
// not rolled back.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: timed out waiting for move", e.Name)
	if e.Timeout > 0 {
		fmt.Fprintf(&b, " after %s", e.Timeout)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TimeoutError) Unwrap() error { return e.Err }
