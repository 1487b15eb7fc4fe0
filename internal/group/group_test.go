package group

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/motion"
	"github.com/banshee-data/positioner/internal/position"
)

// fakeDriver records raw moves and serves a fixed readback.
type fakeDriver struct {
	moves [][]position.Value
	raw   []float64
	busy  bool
}

func (d *fakeDriver) RawMoveTo(v []position.Value) error {
	d.moves = append(d.moves, append([]position.Value(nil), v...))
	return nil
}

func (d *fakeDriver) RawPosition() ([]float64, error) { return append([]float64(nil), d.raw...), nil }

func (d *fakeDriver) IsBusy() (bool, error) { return d.busy, nil }

func (d *fakeDriver) Stop() error { return nil }

func (d *fakeDriver) Limits(int) (float64, float64) { return math.NaN(), math.NaN() }

func newUnit(t *testing.T, name string, d *fakeDriver, opts ...motion.Option) *motion.Unit {
	t.Helper()
	u, err := motion.New(name, d, opts...)
	require.NoError(t, err)
	return u
}

// stubMember is a Positionable whose hooks and moves can be made to fail.
type stubMember struct {
	motion.Hooks
	name      string
	calls     *[]string
	hookErr   error
	moveErr   error
	formatErr error
	busy      bool
	moves     []position.Position
}

func (s *stubMember) Name() string { return s.name }
func (s *stubMember) InputNames() []string { return []string{s.name} }
func (s *stubMember) ExtraNames() []string { return nil }
func (s *stubMember) OutputFormat() []string { return []string{motion.DefaultOutputFormat} }

func (s *stubMember) AsynchronousMoveTo(p position.Position) error {
	*s.calls = append(*s.calls, "move "+s.name)
	if s.moveErr != nil {
		return s.moveErr
	}
	s.moves = append(s.moves, p)
	return nil
}

func (s *stubMember) MoveTo(_ context.Context, p position.Position) error {
	return s.AsynchronousMoveTo(p)
}

func (s *stubMember) IsBusy() (bool, error) { return s.busy, nil }
func (s *stubMember) WaitWhileBusy(context.Context) error { return nil }
func (s *stubMember) Position() (position.Position, error) { return position.Scalar(0), nil }
func (s *stubMember) CheckPositionValid(position.Position) (string, error) { return "", nil }

func (s *stubMember) Stop() error {
	*s.calls = append(*s.calls, "stop "+s.name)
	return s.hookErr
}

func (s *stubMember) AtScanStart() error {
	*s.calls = append(*s.calls, "scanstart "+s.name)
	return s.hookErr
}

func (s *stubMember) Format() (string, error) {
	if s.formatErr != nil {
		return "", s.formatErr
	}
	return s.name + " : 0", nil
}

func TestFieldConcatenation(t *testing.T) {
	a := newUnit(t, "a", &fakeDriver{raw: []float64{1, 2, 3}},
		motion.WithInputNames("a1", "a2"), motion.WithExtraNames("ae"))
	b := newUnit(t, "b", &fakeDriver{raw: []float64{4}}, motion.WithInputNames("b1"))
	c := newUnit(t, "c", &fakeDriver{raw: []float64{5}},
		motion.WithInputNames(), motion.WithExtraNames("ce"), motion.WithOutputFormat("%.2f"))

	g := New("g", a, b, c)

	assert.Equal(t, []string{"a1", "a2", "b1"}, g.InputNames())
	assert.Equal(t, []string{"ae", "ce"}, g.ExtraNames())
	assert.Equal(t, []string{"%5.5g", "%5.5g", "%5.5g", "%5.5g", "%.2f"}, g.OutputFormat())
	assert.Equal(t, []string{"", "", "", "", ""}, g.Units())

	p, err := g.Position()
	require.NoError(t, err)
	assert.Equal(t, position.Floats(1, 2, 4, 3, 5), p, "inputs in member order, then extras")
}

func TestMembershipIsMutable(t *testing.T) {
	g := New("g", newUnit(t, "x", &fakeDriver{}))
	assert.Equal(t, []string{"x"}, g.InputNames())

	g.Add(newUnit(t, "y", &fakeDriver{}))
	assert.Equal(t, []string{"x", "y"}, g.InputNames())

	m, ok := g.Member("y")
	require.True(t, ok)
	assert.Equal(t, "y", m.Name())
	_, ok = g.Member("z")
	assert.False(t, ok)
}

func TestMovePartitionsByInputCount(t *testing.T) {
	da, db, dc := &fakeDriver{}, &fakeDriver{}, &fakeDriver{}
	a := newUnit(t, "a", da, motion.WithInputNames("a1", "a2"), motion.WithExtraNames("ae"))
	b := newUnit(t, "b", db)
	c := newUnit(t, "c", dc, motion.WithInputNames(), motion.WithExtraNames("ce"))
	g := New("g", a, b, c)

	require.NoError(t, g.AsynchronousMoveTo(position.Floats(10, 20, 30)))
	assert.Equal(t, [][]position.Value{position.Values(10, 20)}, da.moves)
	assert.Equal(t, [][]position.Value{position.Values(30)}, db.moves)
	assert.Empty(t, dc.moves)

	// Targets may carry the extras too.
	require.NoError(t, g.AsynchronousMoveTo(position.Floats(1, 2, 3, 0, 0)))
	assert.Len(t, da.moves, 2)

	err := g.AsynchronousMoveTo(position.Floats(1, 2))
	assert.ErrorIs(t, err, motion.ErrFieldCount)
}

func TestPartialGroupMoveSendsNulls(t *testing.T) {
	da, db := &fakeDriver{}, &fakeDriver{}
	a := newUnit(t, "a", da, motion.WithInputNames("a1", "a2"))
	b := newUnit(t, "b", db)
	g := New("g", a, b)

	require.NoError(t, g.AsynchronousMoveTo(position.Vector(position.Some(5), position.Null, position.Null)))
	require.Len(t, da.moves, 1)
	assert.Equal(t, []position.Value{position.Some(5), position.Null}, da.moves[0])
	assert.Empty(t, db.moves, "all-null slices are not dispatched")

	// The same through the member's sub-handle.
	a1, err := a.Field(0)
	require.NoError(t, err)
	require.NoError(t, a1.AsynchronousMoveTo(position.Scalar(6)))
	assert.Equal(t, []position.Value{position.Some(6), position.Null}, da.moves[1])
}

func TestMoveAbortsOnFirstError(t *testing.T) {
	var calls []string
	bad := &stubMember{name: "bad", calls: &calls, moveErr: errors.New("refused")}
	good := &stubMember{name: "good", calls: &calls}
	g := New("g", bad, good)

	err := g.AsynchronousMoveTo(position.Floats(1, 2))
	assert.ErrorContains(t, err, "refused")
	assert.Equal(t, []string{"move bad"}, calls)
}

func TestHooksAreBestEffort(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	var calls []string
	first := &stubMember{name: "first", calls: &calls, hookErr: errors.New("first failed")}
	second := &stubMember{name: "second", calls: &calls}
	third := &stubMember{name: "third", calls: &calls, hookErr: errors.New("third failed")}
	g := New("g", first, second, third)

	err := g.AtScanStart()
	require.Error(t, err)
	assert.ErrorContains(t, err, "first failed")
	assert.ErrorContains(t, err, "third failed")
	assert.Equal(t, []string{"scanstart first", "scanstart second", "scanstart third"}, calls)
	assert.Len(t, logged, 2)

	calls = nil
	require.Error(t, g.Stop())
	assert.Equal(t, []string{"stop first", "stop second", "stop third"}, calls)
}

func TestIsBusyAnyMember(t *testing.T) {
	var calls []string
	a := &stubMember{name: "a", calls: &calls}
	b := &stubMember{name: "b", calls: &calls}
	g := New("g", a, b)

	busy, err := g.IsBusy()
	require.NoError(t, err)
	assert.False(t, busy)

	b.busy = true
	busy, err = g.IsBusy()
	require.NoError(t, err)
	assert.True(t, busy)
}

func TestFormatMarksUnavailableMembers(t *testing.T) {
	monitoring.SetLogger(nil)
	var calls []string
	ok := &stubMember{name: "ok", calls: &calls}
	broken := &stubMember{name: "broken", calls: &calls, formatErr: errors.New("no readback")}
	g := New("g", ok, broken)

	s, err := g.Format()
	require.NoError(t, err)
	assert.Equal(t, "g ::\n  ok : 0\n  broken : UNAVAILABLE", s)
}

func TestCheckPositionValidDelegates(t *testing.T) {
	a := newUnit(t, "a", &fakeDriver{}, motion.WithLimits(0, 0, 1))
	b := newUnit(t, "b", &fakeDriver{})
	g := New("g", a, b)

	msg, err := g.CheckPositionValid(position.Floats(0.5, 100))
	require.NoError(t, err)
	assert.Empty(t, msg)

	msg, err = g.CheckPositionValid(position.Floats(2, 100))
	require.NoError(t, err)
	assert.Equal(t, "Configured upper limit violation on a: 2 > 1 (internal/hardware/dial values).", msg)
}

func TestGroupMoveToWaits(t *testing.T) {
	d := &fakeDriver{}
	g := New("g", newUnit(t, "x", d))
	require.NoError(t, g.MoveTo(context.Background(), position.Scalar(3)))
	assert.Equal(t, [][]position.Value{position.Values(3)}, d.moves)
}
