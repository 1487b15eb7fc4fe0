package group

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/banshee-data/positioner/internal/device"
	"github.com/banshee-data/positioner/internal/motion"
	"github.com/banshee-data/positioner/internal/position"
)

// DeferredTrajectoryGroup is a Group whose coordinated moves are bracketed by
// a deferred-start gate (1 before the member moves, 0 after) so the members
// start together. Members added with AddAxis can instead run continuously,
// in which case a coordinated move buffers one trajectory point rather than
// moving them.
type DeferredTrajectoryGroup struct {
	*Group

	gate       device.GateSink
	controller device.TrajectoryController
	deferred   bool
}

// NewDeferred returns a group with deferred moves enabled when gate is
// non-nil. controller may be nil if no member runs continuously.
func NewDeferred(name string, gate device.GateSink, controller device.TrajectoryController, members ...motion.Positionable) *DeferredTrajectoryGroup {
	return &DeferredTrajectoryGroup{
		Group:      New(name, members...),
		gate:       gate,
		controller: controller,
		deferred:   gate != nil,
	}
}

// SetDeferred turns the gate on or off. It stays off without a gate.
func (g *DeferredTrajectoryGroup) SetDeferred(on bool) { g.deferred = on && g.gate != nil }

// Deferred reports whether moves are gated.
func (g *DeferredTrajectoryGroup) Deferred() bool { return g.deferred }

// AddAxis adds a single-field unit as a member bound to a trajectory axis of
// the group's controller.
func (g *DeferredTrajectoryGroup) AddAxis(u *motion.Unit, axis int) (*TrajectoryAxis, error) {
	if g.controller == nil {
		return nil, fmt.Errorf("%s: no trajectory controller", g.name)
	}
	if axis < 0 || axis >= g.controller.AxisCount() {
		return nil, fmt.Errorf("%s: axis %d outside controller range [0, %d)", g.name, axis, g.controller.AxisCount())
	}
	if n := len(u.InputNames()); n != 1 {
		return nil, fmt.Errorf("%s: trajectory axis %s has %d input fields, want 1", g.name, u.Name(), n)
	}
	a := &TrajectoryAxis{Unit: u, axis: axis, group: g}
	g.Add(a)
	return a, nil
}

// Axes returns the trajectory members in declaration order.
func (g *DeferredTrajectoryGroup) Axes() []*TrajectoryAxis {
	var out []*TrajectoryAxis
	for _, m := range g.members {
		if a, ok := m.(*TrajectoryAxis); ok {
			out = append(out, a)
		}
	}
	return out
}

// SetContinuous switches every trajectory axis in or out of continuous mode
// and clears the controller queue.
func (g *DeferredTrajectoryGroup) SetContinuous(on bool) error {
	for _, a := range g.Axes() {
		a.continuous = on
	}
	if g.controller == nil {
		return nil
	}
	if err := g.controller.ClearQueue(); err != nil {
		return fmt.Errorf("%s: clearing trajectory queue: %w", g.name, err)
	}
	return nil
}

// Continuous reports whether any axis is in continuous mode.
func (g *DeferredTrajectoryGroup) Continuous() bool {
	for _, a := range g.Axes() {
		if a.continuous {
			return true
		}
	}
	return false
}

// AsynchronousMoveTo validates every continuous contribution first, so a
// limit violation on any axis buffers nothing. It then sets the gate, moves
// the other members in declaration order, buffers at most one point and
// releases the gate. If a member move fails the gate is left set; Stop or
// AtCommandFailure release it.
func (g *DeferredTrajectoryGroup) AsynchronousMoveTo(target position.Position) error {
	slices, err := g.partition(target)
	if err != nil {
		return err
	}
	point, err := g.stagePoint(slices)
	if err != nil {
		return err
	}
	if g.deferred {
		if err := g.gate.SetValue(1); err != nil {
			return fmt.Errorf("%s: setting deferred gate: %w", g.name, err)
		}
	}
	for i, m := range g.members {
		if a, ok := m.(*TrajectoryAxis); ok && a.continuous {
			continue
		}
		if err := moveMember(m, slices[i]); err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
	}
	if point != nil {
		if err := g.controller.AddPoint(point); err != nil {
			return fmt.Errorf("%s: buffering trajectory point: %w", g.name, err)
		}
	}
	if g.deferred {
		if err := g.gate.SetValue(0); err != nil {
			return fmt.Errorf("%s: releasing deferred gate: %w", g.name, err)
		}
	}
	return nil
}

// stagePoint converts and validates the slices of continuous axes. It
// returns nil when no continuous axis has a value.
func (g *DeferredTrajectoryGroup) stagePoint(slices [][]position.Value) ([]float64, error) {
	var point []float64
	for i, m := range g.members {
		a, ok := m.(*TrajectoryAxis)
		if !ok || !a.continuous || position.AllNull(slices[i]) {
			continue
		}
		v, err := a.internal(position.ToCanonical(slices[i]))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
		if point == nil {
			point = nanPoint(g.controller.AxisCount())
		}
		point[a.axis] = v
	}
	return point, nil
}

func nanPoint(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = math.NaN()
	}
	return p
}

// MoveTo moves and then waits for the members that are not continuous.
func (g *DeferredTrajectoryGroup) MoveTo(ctx context.Context, target position.Position) error {
	if err := g.AsynchronousMoveTo(target); err != nil {
		return err
	}
	return g.WaitWhileBusy(ctx)
}

// Stop stops every member in declaration order and then releases the gate,
// whatever the members returned.
func (g *DeferredTrajectoryGroup) Stop() error {
	err := g.Group.Stop()
	return multierr.Append(err, g.releaseGate())
}

// AtCommandFailure fans out to every member, clears the trajectory queue in
// continuous mode and releases the gate last.
func (g *DeferredTrajectoryGroup) AtCommandFailure() error {
	err := g.Group.AtCommandFailure()
	if g.controller != nil && g.Continuous() {
		if e := g.controller.ClearQueue(); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: clearing trajectory queue: %w", g.name, e))
		}
	}
	return multierr.Append(err, g.releaseGate())
}

func (g *DeferredTrajectoryGroup) releaseGate() error {
	if g.gate == nil {
		return nil
	}
	if err := g.gate.SetValue(0); err != nil {
		return fmt.Errorf("%s: releasing deferred gate: %w", g.name, err)
	}
	return nil
}

// TrajectoryAxis is a single-field unit bound to one axis of its group's
// trajectory controller. In continuous mode its moves are buffered as
// trajectory points and it never reports busy.
type TrajectoryAxis struct {
	*motion.Unit

	axis       int
	group      *DeferredTrajectoryGroup
	continuous bool
}

// Axis returns the controller axis index.
func (a *TrajectoryAxis) Axis() int { return a.axis }

// Continuous reports whether the axis buffers instead of moving.
func (a *TrajectoryAxis) Continuous() bool { return a.continuous }

// SetContinuous switches this axis alone.
func (a *TrajectoryAxis) SetContinuous(on bool) { a.continuous = on }

// internal converts a target to the hardware value buffered for this axis
// and checks it against the unit's limits.
func (a *TrajectoryAxis) internal(target position.Position) (float64, error) {
	vals, err := a.ExternalToInternal(target)
	if err != nil {
		return 0, err
	}
	if err := a.Validate(vals); err != nil {
		return 0, err
	}
	if !vals[0].Set {
		return math.NaN(), nil
	}
	return vals[0].V, nil
}

// AsynchronousMoveTo moves the unit, or in continuous mode buffers a point
// with only this axis set.
func (a *TrajectoryAxis) AsynchronousMoveTo(target position.Position) error {
	if !a.continuous {
		return a.Unit.AsynchronousMoveTo(target)
	}
	v, err := a.internal(target)
	if err != nil {
		return err
	}
	if math.IsNaN(v) {
		return nil
	}
	point := nanPoint(a.group.controller.AxisCount())
	point[a.axis] = v
	if err := a.group.controller.AddPoint(point); err != nil {
		return fmt.Errorf("%s: buffering trajectory point: %w", a.Name(), err)
	}
	return nil
}

// MoveTo does not wait in continuous mode.
func (a *TrajectoryAxis) MoveTo(ctx context.Context, target position.Position) error {
	if !a.continuous {
		return a.Unit.MoveTo(ctx, target)
	}
	return a.AsynchronousMoveTo(target)
}

func (a *TrajectoryAxis) IsBusy() (bool, error) {
	if a.continuous {
		return false, nil
	}
	return a.Unit.IsBusy()
}

func (a *TrajectoryAxis) WaitWhileBusy(ctx context.Context) error {
	if a.continuous {
		return nil
	}
	return a.Unit.WaitWhileBusy(ctx)
}

var (
	_ motion.Positionable = (*DeferredTrajectoryGroup)(nil)
	_ motion.Positionable = (*TrajectoryAxis)(nil)
)
