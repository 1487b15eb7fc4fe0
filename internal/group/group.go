// Package group aggregates positionables so they can be moved and read as
// one, optionally behind a deferred-start gate or into a trajectory buffer.
package group

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/motion"
	"github.com/banshee-data/positioner/internal/position"
)

// Unavailable replaces a member's line in Format when it cannot be read.
const Unavailable = "UNAVAILABLE"

// Group presents its members as one Positionable. Input fields are the
// concatenation of the members' input fields in declaration order, followed
// by all of their extra fields. Members are plain references; a Group never
// stops or releases them on its own.
type Group struct {
	name    string
	members []motion.Positionable
	logf    func(format string, v ...interface{})
}

// New returns a group of the given members.
func New(name string, members ...motion.Positionable) *Group {
	return &Group{
		name:    name,
		members: append([]motion.Positionable(nil), members...),
		logf:    monitoring.Tagged("group"),
	}
}

// Add appends members. Field concatenation and fan-out change immediately.
func (g *Group) Add(members ...motion.Positionable) {
	g.members = append(g.members, members...)
}

// Members returns the members in declaration order.
func (g *Group) Members() []motion.Positionable {
	return append([]motion.Positionable(nil), g.members...)
}

// Member finds a member by name.
func (g *Group) Member(name string) (motion.Positionable, bool) {
	for _, m := range g.members {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

func (g *Group) Name() string { return g.name }

func (g *Group) InputNames() []string {
	var out []string
	for _, m := range g.members {
		out = append(out, m.InputNames()...)
	}
	return out
}

func (g *Group) ExtraNames() []string {
	var out []string
	for _, m := range g.members {
		out = append(out, m.ExtraNames()...)
	}
	return out
}

// OutputFormat returns the input formats of every member followed by their
// extra formats, matching the field order.
func (g *Group) OutputFormat() []string {
	var inputs, extras []string
	for _, m := range g.members {
		f := m.OutputFormat()
		k := len(m.InputNames())
		if k > len(f) {
			k = len(f)
		}
		inputs = append(inputs, f[:k]...)
		extras = append(extras, f[k:]...)
	}
	return append(inputs, extras...)
}

// Units returns the user unit of every field in field order. Members that do
// not report units contribute "".
func (g *Group) Units() []string {
	var inputs, extras []string
	for _, m := range g.members {
		k := len(m.InputNames())
		n := k + len(m.ExtraNames())
		us := make([]string, n)
		if r, ok := m.(motion.UnitsReporter); ok {
			copy(us, r.Units())
		}
		inputs = append(inputs, us[:k]...)
		extras = append(extras, us[k:]...)
	}
	return append(inputs, extras...)
}

// partition splits a group target into one slice per member by input count.
// The target may also carry the extra fields, which are ignored.
func (g *Group) partition(target position.Position) ([][]position.Value, error) {
	vals, err := position.ToNumberArray(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", g.name, err)
	}
	inputs := len(g.InputNames())
	if len(vals) != inputs && len(vals) != inputs+len(g.ExtraNames()) {
		return nil, fmt.Errorf("%s: %w: target %s for %d input fields", g.name, motion.ErrFieldCount, target, inputs)
	}
	out := make([][]position.Value, len(g.members))
	off := 0
	for i, m := range g.members {
		k := len(m.InputNames())
		out[i] = vals[off : off+k]
		off += k
	}
	return out, nil
}

// memberTarget renders a member's slice in the member's native shape.
func memberTarget(slice []position.Value) position.Position {
	if len(slice) == 0 {
		return position.Vector()
	}
	return position.ToCanonical(slice)
}

// AsynchronousMoveTo dispatches each member's slice in declaration order.
// Members whose slice is entirely null are skipped; members with no input
// fields receive an empty move. The first member error aborts the rest.
func (g *Group) AsynchronousMoveTo(target position.Position) error {
	slices, err := g.partition(target)
	if err != nil {
		return err
	}
	return g.dispatch(slices)
}

func (g *Group) dispatch(slices [][]position.Value) error {
	for i, m := range g.members {
		if err := moveMember(m, slices[i]); err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
	}
	return nil
}

func moveMember(m motion.Positionable, slice []position.Value) error {
	if len(slice) > 0 && position.AllNull(slice) {
		return nil
	}
	return m.AsynchronousMoveTo(memberTarget(slice))
}

// MoveTo dispatches the move and waits for every member.
func (g *Group) MoveTo(ctx context.Context, target position.Position) error {
	if err := g.AsynchronousMoveTo(target); err != nil {
		return err
	}
	return g.WaitWhileBusy(ctx)
}

// CheckPositionValid returns the first member violation message.
func (g *Group) CheckPositionValid(target position.Position) (string, error) {
	slices, err := g.partition(target)
	if err != nil {
		return "", err
	}
	for i, m := range g.members {
		if len(slices[i]) == 0 || position.AllNull(slices[i]) {
			continue
		}
		msg, err := m.CheckPositionValid(memberTarget(slices[i]))
		if err != nil || msg != "" {
			return msg, err
		}
	}
	return "", nil
}

// Position reports every member's inputs in member order, then every
// member's extras.
func (g *Group) Position() (position.Position, error) {
	var inputs, extras []position.Value
	for _, m := range g.members {
		p, err := m.Position()
		if err != nil {
			return position.Position{}, fmt.Errorf("%s: %w", g.name, err)
		}
		vals, err := position.ToNumberArray(p)
		if err != nil {
			return position.Position{}, fmt.Errorf("%s: %s: %w", g.name, m.Name(), err)
		}
		k := len(m.InputNames())
		if k > len(vals) {
			k = len(vals)
		}
		inputs = append(inputs, vals[:k]...)
		extras = append(extras, vals[k:]...)
	}
	return position.ToCanonical(append(inputs, extras...)), nil
}

// IsBusy reports whether any member is busy.
func (g *Group) IsBusy() (bool, error) {
	for _, m := range g.members {
		busy, err := m.IsBusy()
		if err != nil {
			return false, fmt.Errorf("%s: %w", g.name, err)
		}
		if busy {
			return true, nil
		}
	}
	return false, nil
}

// WaitWhileBusy waits for each member in declaration order.
func (g *Group) WaitWhileBusy(ctx context.Context) error {
	for _, m := range g.members {
		if err := m.WaitWhileBusy(ctx); err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
	}
	return nil
}

// fanOut calls hook on every member in declaration order. Failures are
// logged and combined; they do not stop the remaining members.
func (g *Group) fanOut(hook string, call func(motion.Positionable) error) error {
	var err error
	for _, m := range g.members {
		if e := call(m); e != nil {
			g.logf("%s: %s failed on %s: %v", g.name, hook, m.Name(), e)
			err = multierr.Append(err, fmt.Errorf("%s: %w", m.Name(), e))
		}
	}
	return err
}

func (g *Group) Stop() error {
	return g.fanOut("Stop", motion.Positionable.Stop)
}

func (g *Group) AtScanStart() error {
	return g.fanOut("AtScanStart", motion.Positionable.AtScanStart)
}

func (g *Group) AtScanEnd() error {
	return g.fanOut("AtScanEnd", motion.Positionable.AtScanEnd)
}

func (g *Group) AtPointStart() error {
	return g.fanOut("AtPointStart", motion.Positionable.AtPointStart)
}

func (g *Group) AtPointEnd() error {
	return g.fanOut("AtPointEnd", motion.Positionable.AtPointEnd)
}

func (g *Group) AtLevelMoveStart() error {
	return g.fanOut("AtLevelMoveStart", motion.Positionable.AtLevelMoveStart)
}

func (g *Group) AtCommandFailure() error {
	return g.fanOut("AtCommandFailure", motion.Positionable.AtCommandFailure)
}

// Format renders one line per member. A member that cannot be read is shown
// as UNAVAILABLE rather than failing the whole group.
func (g *Group) Format() (string, error) {
	lines := make([]string, 0, len(g.members)+1)
	lines = append(lines, g.name+" ::")
	for _, m := range g.members {
		s, err := m.Format()
		if err != nil {
			g.logf("%s: formatting %s: %v", g.name, m.Name(), err)
			s = m.Name() + " : " + Unavailable
		}
		lines = append(lines, "  "+s)
	}
	return strings.Join(lines, "\n"), nil
}

var (
	_ motion.Positionable  = (*Group)(nil)
	_ motion.UnitsReporter = (*Group)(nil)
)
