package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/banshee-data/positioner/internal/notify"
	"github.com/banshee-data/positioner/internal/position"
)

// fieldToInternal maps an external value of an input field (a number in user
// units or a string that may carry its own unit) to the internal frame:
// offset/scale is removed in user units, then the result is converted to
// hardware units.
func (u *Unit) fieldToInternal(field int, x any) (float64, error) {
	c := u.converters[field]
	user, err := c.Normalize(x)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", u.path(field), err)
	}
	hw, err := c.ToHardware(u.scaling.ToInternalValue(field, user))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", u.path(field), err)
	}
	return hw, nil
}

func (u *Unit) fieldToExternal(field int, hw float64) (float64, error) {
	user, err := u.converters[field].ToUser(hw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", u.path(field), err)
	}
	return u.scaling.ToExternalValue(field, user), nil
}

// ExternalToInternal converts a target to one internal-frame slot per input
// field. A target may address the input fields only, or the input and extra
// fields, in which case the extra slots are ignored. Text targets such as
// "5 mm" are accepted by single-field units.
func (u *Unit) ExternalToInternal(target position.Position) ([]position.Value, error) {
	n := len(u.inputNames)
	if s, ok := target.TextValue(); ok && n == 1 {
		hw, err := u.fieldToInternal(0, s)
		if err != nil {
			return nil, err
		}
		return []position.Value{position.Some(hw)}, nil
	}
	vals, err := position.ToNumberArray(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u.name, err)
	}
	if len(vals) != n && len(vals) != n+len(u.extraNames) {
		return nil, fmt.Errorf("%s: %w: target %s for %d input fields", u.name, ErrFieldCount, target, n)
	}
	out := make([]position.Value, n)
	for i := 0; i < n; i++ {
		if !vals[i].Set {
			continue
		}
		hw, err := u.fieldToInternal(i, vals[i].V)
		if err != nil {
			return nil, err
		}
		out[i] = position.Some(hw)
	}
	return out, nil
}

// InternalToExternal converts a raw readback (inputs then extras) to the
// external frame. Extra fields pass through; missing slots are null.
func (u *Unit) InternalToExternal(raw []float64) ([]position.Value, error) {
	out := make([]position.Value, len(u.inputNames)+len(u.extraNames))
	for i := range out {
		if i >= len(raw) {
			continue
		}
		if i >= len(u.inputNames) {
			out[i] = position.Some(raw[i])
			continue
		}
		v, err := u.fieldToExternal(i, raw[i])
		if err != nil {
			return nil, err
		}
		out[i] = position.Some(v)
	}
	return out, nil
}

// Validate runs the limit checks and extra validators over an internal-frame
// vector.
func (u *Unit) Validate(internal []position.Value) error {
	if msg := u.validator.Check(internal, u.paths()); msg != "" {
		return &LimitViolation{Name: u.name, Message: msg}
	}
	return nil
}

// CheckPositionValid converts target and returns the first violation
// message, or "" when target is within limits.
func (u *Unit) CheckPositionValid(target position.Position) (string, error) {
	internal, err := u.ExternalToInternal(target)
	if err != nil {
		return "", err
	}
	return u.validator.Check(internal, u.paths()), nil
}

// AsynchronousMoveTo validates target and dispatches it without waiting.
func (u *Unit) AsynchronousMoveTo(target position.Position) error {
	internal, err := u.ExternalToInternal(target)
	if err != nil {
		return err
	}
	return u.MoveInternal(internal)
}

// MoveInternal validates and dispatches an internal-frame vector. Null slots
// are sent as null so the driver leaves those fields alone. An all-null
// vector is not dispatched.
func (u *Unit) MoveInternal(internal []position.Value) error {
	if err := u.Validate(internal); err != nil {
		return err
	}
	if position.AllNull(internal) {
		return nil
	}
	busy, err := u.driver.IsBusy()
	if err != nil {
		return fmt.Errorf("%s: %w", u.name, err)
	}
	if busy {
		return fmt.Errorf("%s: %w", u.name, ErrAlreadyBusy)
	}
	if err := u.driver.RawMoveTo(internal); err != nil {
		u.state = Failed
		return fmt.Errorf("%s: %w", u.name, err)
	}
	u.recordDemand(internal)
	if u.maxTries <= 1 {
		u.state = Achieved
	} else {
		u.state = Moving
	}
	u.publish(u.demandPosition())
	return nil
}

// recordDemand merges a dispatched vector into the demand; fields that were
// not moved keep their previous demand.
func (u *Unit) recordDemand(internal []position.Value) {
	if len(u.demand) != len(internal) {
		u.demand = make([]position.Value, len(internal))
	}
	for i, v := range internal {
		if v.Set {
			u.demand[i] = v
		}
	}
	u.demandWarned = false
}

// MoveTo moves to target and waits. With maxTries > 1 each toleranced field is
// compared with the readback in the internal frame and the same move is
// re-issued until it converges or maxTries attempts have been made.
func (u *Unit) MoveTo(ctx context.Context, target position.Position) error {
	internal, err := u.ExternalToInternal(target)
	if err != nil {
		return err
	}
	return u.MoveToInternal(ctx, internal)
}

// MoveToInternal is MoveTo for an already converted internal-frame vector.
func (u *Unit) MoveToInternal(ctx context.Context, internal []position.Value) error {
	ctx, cancel := u.withTimeout(ctx)
	defer cancel()

	if err := u.MoveInternal(internal); err != nil {
		return err
	}
	if position.AllNull(internal) {
		return nil
	}
	if u.maxTries <= 1 {
		return u.wait(ctx)
	}
	for try := 1; ; try++ {
		if err := u.wait(ctx); err != nil {
			u.state = Failed
			return err
		}
		raw, err := u.driver.RawPosition()
		if err != nil {
			u.state = Failed
			return fmt.Errorf("%s: %w", u.name, err)
		}
		miss := u.outOfTolerance(internal, raw)
		if miss < 0 {
			u.state = Achieved
			return nil
		}
		if try >= u.maxTries {
			u.state = Failed
			readback := math.NaN()
			if miss < len(raw) {
				readback = raw[miss]
			}
			return &ToleranceNotMet{
				Name:      u.name,
				Field:     u.path(miss),
				Tries:     try,
				Target:    internal[miss].V,
				Readback:  readback,
				Tolerance: *u.tolerances[miss],
			}
		}
		if err := u.driver.RawMoveTo(internal); err != nil {
			u.state = Failed
			return fmt.Errorf("%s: %w", u.name, err)
		}
	}
}

// outOfTolerance returns the first toleranced field whose readback misses the
// target, or -1.
func (u *Unit) outOfTolerance(internal []position.Value, raw []float64) int {
	for i, v := range internal {
		if !v.Set || u.tolerances[i] == nil {
			continue
		}
		if i >= len(raw) || !scalar.EqualWithinAbs(raw[i], v.V, *u.tolerances[i]) {
			return i
		}
	}
	return -1
}

func (u *Unit) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.timeout > 0 {
		return context.WithTimeout(ctx, u.timeout)
	}
	return context.WithCancel(ctx)
}

// IsBusy reports whether the driver is moving.
func (u *Unit) IsBusy() (bool, error) {
	busy, err := u.driver.IsBusy()
	if err != nil {
		return false, fmt.Errorf("%s: %w", u.name, err)
	}
	return busy, nil
}

// WaitWhileBusy polls until the driver is idle, the unit timeout elapses or
// ctx is done.
func (u *Unit) WaitWhileBusy(ctx context.Context) error {
	ctx, cancel := u.withTimeout(ctx)
	defer cancel()
	return u.wait(ctx)
}

func (u *Unit) wait(ctx context.Context) error {
	for {
		busy, err := u.IsBusy()
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return u.waitError(err)
		}
		u.clock.Sleep(u.pollInterval)
	}
}

func (u *Unit) waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Name: u.name, Timeout: u.timeout, Err: err}
	}
	return fmt.Errorf("%s: %w", u.name, err)
}

// Stop stops the driver. The unit is left Failed if a move was in progress.
func (u *Unit) Stop() error {
	if u.state == Moving {
		u.state = Failed
	}
	if err := u.driver.Stop(); err != nil {
		return fmt.Errorf("%s: %w", u.name, err)
	}
	return nil
}

// AtCommandFailure stops the unit.
func (u *Unit) AtCommandFailure() error { return u.Stop() }

// Position reads the unit in the external frame. With demand reporting on,
// the demand is returned while busy, and when idle as long as the readback
// agrees with it; otherwise the readback is returned and a warning logged
// once per demand.
func (u *Unit) Position() (position.Position, error) {
	vals, err := u.positionValues()
	if err != nil {
		return position.Position{}, err
	}
	p := position.ToCanonical(vals)
	u.publish(p)
	return p, nil
}

func (u *Unit) positionValues() ([]position.Value, error) {
	if u.demandEnabled && u.demand != nil {
		busy, err := u.IsBusy()
		if err != nil {
			return nil, err
		}
		if busy {
			if len(u.extraNames) == 0 {
				return u.demandValues(nil)
			}
			// Extra fields are not demanded, so they still report live.
			raw, err := u.driver.RawPosition()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", u.name, err)
			}
			return u.demandValues(raw)
		}
	}
	raw, err := u.driver.RawPosition()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u.name, err)
	}
	if u.demandEnabled && u.demand != nil {
		if field := u.staleDemand(raw); field >= 0 {
			if !u.demandWarned {
				u.demandWarned = true
				u.logf("%s: readback %g differs from demand %g by more than %g; reporting readback",
					u.path(field), raw[field], u.demand[field].V, u.demandTolerance)
			}
		} else {
			return u.demandValues(raw)
		}
	}
	return u.InternalToExternal(raw)
}

// staleDemand returns the first demanded field whose readback is outside the
// staleness tolerance, or -1.
func (u *Unit) staleDemand(raw []float64) int {
	for i, d := range u.demand {
		if !d.Set || i >= len(raw) {
			continue
		}
		if !scalar.EqualWithinAbs(raw[i], d.V, u.demandTolerance) {
			return i
		}
	}
	return -1
}

// demandValues reports the demand for demanded fields and the readback for
// the rest. raw may be nil while busy, in which case undemanded fields are
// null.
func (u *Unit) demandValues(raw []float64) ([]position.Value, error) {
	merged := make([]float64, len(u.inputNames)+len(u.extraNames))
	set := make([]bool, len(merged))
	for i := range merged {
		switch {
		case i < len(u.demand) && u.demand[i].Set:
			merged[i], set[i] = u.demand[i].V, true
		case i < len(raw):
			merged[i], set[i] = raw[i], true
		}
	}
	ext, err := u.InternalToExternal(merged)
	if err != nil {
		return nil, err
	}
	for i := range ext {
		if !set[i] {
			ext[i] = position.Null
		}
	}
	return ext, nil
}

// demandPosition is the last demand in the external frame, used for updates
// published at dispatch.
func (u *Unit) demandPosition() position.Position {
	vals, err := u.demandValues(nil)
	if err != nil {
		return position.Vector()
	}
	return position.ToCanonical(vals)
}

// Format renders "name : value" for a single field or "name : f1: v1 f2: v2"
// otherwise, using the output format and user unit of each field.
func (u *Unit) Format() (string, error) {
	vals, err := u.positionValues()
	if err != nil {
		return "", err
	}
	names := append(u.InputNames(), u.extraNames...)
	unitSyms := u.Units()
	var b strings.Builder
	b.WriteString(u.name)
	b.WriteString(" :")
	for i, v := range vals {
		b.WriteByte(' ')
		if len(vals) > 1 || names[i] != u.name {
			b.WriteString(names[i])
			b.WriteString(": ")
		}
		if !v.Set {
			b.WriteString("null")
			continue
		}
		b.WriteString(formatValue(u.outputFormat[i], v.V, unitSyms[i]))
	}
	return b.String(), nil
}

func formatValue(format string, v float64, unit string) string {
	s := strings.TrimSpace(fmt.Sprintf(format, v))
	return s + unit
}

// Subscribe registers fn for position updates. Deliveries to each subscriber
// are coalesced to the latest value and spaced by the update interval.
func (u *Unit) Subscribe(fn func(Update)) string {
	if u.updates == nil {
		u.updates = notify.NewBroadcaster[Update](u.updateInterval, u.clock)
	}
	return u.updates.Subscribe(fn)
}

// Unsubscribe removes a subscriber.
func (u *Unit) Unsubscribe(id string) {
	if u.updates != nil {
		u.updates.Unsubscribe(id)
	}
}

func (u *Unit) publish(p position.Position) {
	if u.updates == nil {
		return
	}
	u.updates.Publish(Update{Name: u.name, Position: p, State: u.state, At: u.clock.Now()})
}
