package motion

import (
	"context"
	"fmt"

	"github.com/banshee-data/positioner/internal/position"
)

// FieldHandle presents one input field of a Unit as a single-field
// Positionable. Moving it sends the parent a vector with every other field
// null.
type FieldHandle struct {
	Hooks

	unit  *Unit
	field int
}

// Field returns a sub-handle for input field i.
func (u *Unit) Field(i int) (*FieldHandle, error) {
	if err := u.checkInput(i); err != nil {
		return nil, err
	}
	return &FieldHandle{unit: u, field: i}, nil
}

// FieldByName returns a sub-handle for the named input field.
func (u *Unit) FieldByName(name string) (*FieldHandle, error) {
	i, err := u.FieldIndex(name)
	if err != nil {
		return nil, err
	}
	return u.Field(i)
}

// Unit returns the parent unit.
func (f *FieldHandle) Unit() *Unit { return f.unit }

// Index returns the field index within the parent.
func (f *FieldHandle) Index() int { return f.field }

func (f *FieldHandle) Name() string { return f.unit.path(f.field) }

func (f *FieldHandle) InputNames() []string { return []string{f.unit.inputNames[f.field]} }

func (f *FieldHandle) ExtraNames() []string { return nil }

func (f *FieldHandle) OutputFormat() []string { return []string{f.unit.outputFormat[f.field]} }

// Units returns the user unit of the field.
func (f *FieldHandle) Units() []string { return []string{f.unit.UserUnit(f.field)} }

// internal builds the parent's internal vector with only this field set.
func (f *FieldHandle) internal(target position.Position) ([]position.Value, error) {
	var x any
	if s, ok := target.TextValue(); ok {
		x = s
	} else {
		vals, err := position.ToNumberArray(target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		if len(vals) != 1 {
			return nil, fmt.Errorf("%s: %w: target %s for 1 input field", f.Name(), ErrFieldCount, target)
		}
		if !vals[0].Set {
			return make([]position.Value, len(f.unit.inputNames)), nil
		}
		x = vals[0].V
	}
	hw, err := f.unit.fieldToInternal(f.field, x)
	if err != nil {
		return nil, err
	}
	out := make([]position.Value, len(f.unit.inputNames))
	out[f.field] = position.Some(hw)
	return out, nil
}

func (f *FieldHandle) AsynchronousMoveTo(target position.Position) error {
	internal, err := f.internal(target)
	if err != nil {
		return err
	}
	return f.unit.MoveInternal(internal)
}

func (f *FieldHandle) MoveTo(ctx context.Context, target position.Position) error {
	internal, err := f.internal(target)
	if err != nil {
		return err
	}
	return f.unit.MoveToInternal(ctx, internal)
}

func (f *FieldHandle) CheckPositionValid(target position.Position) (string, error) {
	internal, err := f.internal(target)
	if err != nil {
		return "", err
	}
	return f.unit.validator.Check(internal, f.unit.paths()), nil
}

func (f *FieldHandle) Position() (position.Position, error) {
	vals, err := f.unit.positionValues()
	if err != nil {
		return position.Position{}, err
	}
	return position.ToCanonical(vals[f.field : f.field+1]), nil
}

func (f *FieldHandle) IsBusy() (bool, error) { return f.unit.IsBusy() }

func (f *FieldHandle) WaitWhileBusy(ctx context.Context) error { return f.unit.WaitWhileBusy(ctx) }

func (f *FieldHandle) Stop() error { return f.unit.Stop() }

// AtCommandFailure stops the parent.
func (f *FieldHandle) AtCommandFailure() error { return f.unit.Stop() }

func (f *FieldHandle) Format() (string, error) {
	vals, err := f.unit.positionValues()
	if err != nil {
		return "", err
	}
	v := vals[f.field]
	if !v.Set {
		return f.Name() + " : null", nil
	}
	return f.Name() + " : " + formatValue(f.unit.outputFormat[f.field], v.V, f.unit.UserUnit(f.field)), nil
}

var (
	_ Positionable  = (*Unit)(nil)
	_ Positionable  = (*FieldHandle)(nil)
	_ UnitsReporter = (*Unit)(nil)
	_ UnitsReporter = (*FieldHandle)(nil)
)
