// Package limits checks internal-frame positions against configured (soft)
// limits, actuator (hard) limits and any number of extra validators.
package limits

import (
	"fmt"
	"math"
	"strconv"

	"github.com/banshee-data/positioner/internal/position"
)

// Check is an extra validator over the full internal-frame vector. It returns
// a human-readable violation message, or "" when the position is valid.
type Check func(internal []position.Value) string

// BoundsFunc reports the actuator limits of a field in the internal frame.
// NaN means unbounded.
type BoundsFunc func(field int) (lower, upper float64)

// Source identifies which bound set constrains a side of a field.
type Source int

const (
	Unbounded Source = iota
	Configured
	Actuator
)

func (s Source) label() string {
	switch s {
	case Configured:
		return "Configured"
	case Actuator:
		return "Actuator"
	}
	return "Unbounded"
}

// Validator holds the configured limits of each input field, stored in the
// internal frame with NaN for unset, plus the actuator bounds source and the
// extra validators. It is configured before use and not safe for concurrent
// mutation.
type Validator struct {
	lower    []float64
	upper    []float64
	actuator BoundsFunc
	checks   []Check
}

// New returns a Validator for n fields with no limits set.
func New(n int) *Validator {
	v := &Validator{}
	v.Resize(n)
	return v
}

// Resize changes the number of fields. New fields start unbounded.
func (v *Validator) Resize(n int) {
	lower := make([]float64, n)
	upper := make([]float64, n)
	for i := range lower {
		lower[i], upper[i] = math.NaN(), math.NaN()
	}
	copy(lower, v.lower)
	copy(upper, v.upper)
	v.lower, v.upper = lower, upper
}

// Fields returns the number of fields.
func (v *Validator) Fields() int { return len(v.lower) }

// SetActuatorBounds installs the actuator limit source. Nil removes it.
func (v *Validator) SetActuatorBounds(f BoundsFunc) { v.actuator = f }

// AddCheck registers an extra validator. Validators run in registration
// order after the bound checks.
func (v *Validator) AddCheck(c Check) { v.checks = append(v.checks, c) }

// SetConfiguredLower sets (or with NaN clears) a field's configured lower
// limit in the internal frame.
func (v *Validator) SetConfiguredLower(field int, lower float64) error {
	if err := v.checkField(field); err != nil {
		return err
	}
	v.lower[field] = lower
	return nil
}

// SetConfiguredUpper sets (or with NaN clears) a field's configured upper
// limit in the internal frame.
func (v *Validator) SetConfiguredUpper(field int, upper float64) error {
	if err := v.checkField(field); err != nil {
		return err
	}
	v.upper[field] = upper
	return nil
}

// Configured returns a field's configured limits; NaN when unset.
func (v *Validator) Configured(field int) (lower, upper float64) {
	if v.checkField(field) != nil {
		return math.NaN(), math.NaN()
	}
	return v.lower[field], v.upper[field]
}

// ActuatorLimits returns a field's actuator limits; NaN when unbounded.
func (v *Validator) ActuatorLimits(field int) (lower, upper float64) {
	if v.actuator == nil {
		return math.NaN(), math.NaN()
	}
	return v.actuator(field)
}

func (v *Validator) checkField(field int) error {
	if field < 0 || field >= len(v.lower) {
		return fmt.Errorf("field %d out of range for %d fields", field, len(v.lower))
	}
	return nil
}

// Effective intersects the configured and actuator bounds of a field. The
// tighter side wins; when both are equal the configured bound is reported
// as binding. Unset sides are NaN with source Unbounded.
func (v *Validator) Effective(field int) (lower float64, lowerSrc Source, upper float64, upperSrc Source) {
	cl, cu := v.Configured(field)
	al, au := v.ActuatorLimits(field)
	lower, lowerSrc = tighter(cl, al, func(a, b float64) bool { return a >= b })
	upper, upperSrc = tighter(cu, au, func(a, b float64) bool { return a <= b })
	return lower, lowerSrc, upper, upperSrc
}

// tighter picks between a configured and an actuator bound; wins reports
// whether the configured bound is at least as tight as the actuator bound.
func tighter(configured, actuator float64, wins func(a, b float64) bool) (float64, Source) {
	switch {
	case math.IsNaN(configured) && math.IsNaN(actuator):
		return math.NaN(), Unbounded
	case math.IsNaN(actuator):
		return configured, Configured
	case math.IsNaN(configured):
		return actuator, Actuator
	case wins(configured, actuator):
		return configured, Configured
	default:
		return actuator, Actuator
	}
}

// Check validates the internal-frame vector. paths names each field in
// messages and may be shorter than the vector. It returns the first
// violation message, or "" when valid.
func (v *Validator) Check(internal []position.Value, paths []string) string {
	for i, val := range internal {
		if !val.Set || i >= len(v.lower) {
			continue
		}
		if msg := v.checkBounds(i, val.V, pathFor(paths, i)); msg != "" {
			return msg
		}
	}
	for _, c := range v.checks {
		if msg := c(internal); msg != "" {
			return msg
		}
	}
	return ""
}

func (v *Validator) checkBounds(field int, value float64, path string) string {
	lower, lowerSrc, upper, upperSrc := v.Effective(field)
	if lowerSrc != Unbounded && value < lower {
		return Message(lowerSrc.label()+" lower", path, value, "<", lower)
	}
	if upperSrc != Unbounded && value > upper {
		return Message(upperSrc.label()+" upper", path, value, ">", upper)
	}
	return ""
}

func pathFor(paths []string, i int) string {
	if i < len(paths) && paths[i] != "" {
		return paths[i]
	}
	return "field " + strconv.Itoa(i)
}

// Message formats a limit violation the way every validator reports it.
func Message(label, path string, value float64, cmp string, bound float64) string {
	return fmt.Sprintf("%s limit violation on %s: %s %s %s (internal/hardware/dial values).",
		label, path, formatFloat(value), cmp, formatFloat(bound))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
