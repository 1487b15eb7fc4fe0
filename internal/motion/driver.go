package motion

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/banshee-data/positioner/internal/device"
	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/position"
)

// Driver is the internal-frame side of a Unit. Values are in hardware units
// after offset/scale has been removed.
type Driver interface {
	// RawMoveTo dispatches one slot per input field; null slots are left
	// where they are.
	RawMoveTo(internal []position.Value) error
	// RawPosition reads every input field followed by every extra field.
	RawPosition() ([]float64, error)
	IsBusy() (bool, error)
	Stop() error
	// Limits reports the hardware limits of an input field, NaN unbounded.
	Limits(field int) (lower, upper float64)
}

// ActuatorDriver drives one Actuator per input field.
type ActuatorDriver struct {
	actuators []device.Actuator
}

// NewActuatorDriver returns a driver over the given actuators in field order.
func NewActuatorDriver(actuators ...device.Actuator) *ActuatorDriver {
	return &ActuatorDriver{actuators: actuators}
}

// Actuators returns the driven actuators in field order.
func (d *ActuatorDriver) Actuators() []device.Actuator {
	out := make([]device.Actuator, len(d.actuators))
	copy(out, d.actuators)
	return out
}

// RawMoveTo moves each actuator whose slot is set.
func (d *ActuatorDriver) RawMoveTo(internal []position.Value) error {
	if len(internal) > len(d.actuators) {
		return fmt.Errorf("%w: %d values for %d actuators", ErrFieldCount, len(internal), len(d.actuators))
	}
	for i, v := range internal {
		if !v.Set {
			continue
		}
		if err := d.actuators[i].Move(v.V); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}

// RawPosition reads every actuator.
func (d *ActuatorDriver) RawPosition() ([]float64, error) {
	out := make([]float64, len(d.actuators))
	for i, a := range d.actuators {
		v, err := a.Position()
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// IsBusy reports whether any actuator is moving. A faulted actuator is an
// error so that waits terminate.
func (d *ActuatorDriver) IsBusy() (bool, error) {
	busy := false
	for i, a := range d.actuators {
		st, err := a.Status()
		if err != nil {
			return false, fmt.Errorf("field %d: %w", i, err)
		}
		switch st {
		case device.StatusFault:
			return false, fmt.Errorf("field %d: %w", i, device.ErrFault)
		case device.StatusBusy:
			busy = true
		}
	}
	return busy, nil
}

// Stop stops every actuator, continuing past failures.
func (d *ActuatorDriver) Stop() error {
	var err error
	for i, a := range d.actuators {
		if stopErr := a.Stop(); stopErr != nil {
			err = multierr.Append(err, fmt.Errorf("field %d: %w", i, stopErr))
		}
	}
	return err
}

// Limits reads the actuator's hardware limits. A failed read is treated as
// unbounded; the device will still refuse an out-of-range move.
func (d *ActuatorDriver) Limits(field int) (lower, upper float64) {
	if field < 0 || field >= len(d.actuators) {
		return math.NaN(), math.NaN()
	}
	a := d.actuators[field]
	lower, err := a.MinLimit()
	if err != nil {
		monitoring.Logf("[motion] reading lower limit of field %d: %v", field, err)
		lower = math.NaN()
	}
	upper, err = a.MaxLimit()
	if err != nil {
		monitoring.Logf("[motion] reading upper limit of field %d: %v", field, err)
		upper = math.NaN()
	}
	return lower, upper
}

// NewMotor builds a single-field Unit over one actuator. The field is named
// after the unit and the hardware unit is taken from the actuator when it
// reports one.
func NewMotor(name string, a device.Actuator, opts ...Option) (*Unit, error) {
	pre := []Option{}
	if sym, ok := a.NativeUnit(); ok {
		pre = append(pre, WithHardwareUnit(sym))
	}
	return New(name, NewActuatorDriver(a), append(pre, opts...)...)
}
