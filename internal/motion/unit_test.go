package motion

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/positioner/internal/device"
	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/position"
	"github.com/banshee-data/positioner/internal/timeutil"
	"github.com/banshee-data/positioner/internal/units"
)

// recordingDriver captures raw moves for inspection.
type recordingDriver struct {
	moves [][]position.Value
	raw   []float64
	busy  bool
	stops int
}

func (d *recordingDriver) RawMoveTo(v []position.Value) error {
	d.moves = append(d.moves, append([]position.Value(nil), v...))
	return nil
}

func (d *recordingDriver) RawPosition() ([]float64, error) {
	return append([]float64(nil), d.raw...), nil
}

func (d *recordingDriver) IsBusy() (bool, error) { return d.busy, nil }

func (d *recordingDriver) Stop() error {
	d.stops++
	return nil
}

func (d *recordingDriver) Limits(int) (float64, float64) { return math.NaN(), math.NaN() }

func newMotor(t *testing.T, a *device.SimActuator, opts ...Option) *Unit {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	u, err := NewMotor(a.Name, a, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return u
}

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var mu sync.Mutex
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	return &lines
}

func TestMoveToConvergesWithinTolerance(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Readbacks = []float64{11, 10}
	u := newMotor(t, a, WithTolerance(0, 0.1), WithMaxTries(2))

	require.NoError(t, u.MoveTo(context.Background(), position.Scalar(10)))

	assert.Equal(t, []float64{10, 10}, a.Moves())
	assert.Equal(t, 2, a.Reads())
	assert.Equal(t, Achieved, u.State())
}

func TestMoveToExhaustsTries(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Readbacks = []float64{11, 11}
	u := newMotor(t, a, WithTolerance(0, 0.1), WithMaxTries(2))

	err := u.MoveTo(context.Background(), position.Scalar(10))

	var tnm *ToleranceNotMet
	require.ErrorAs(t, err, &tnm)
	assert.Equal(t, "m1", tnm.Field)
	assert.Equal(t, 2, tnm.Tries)
	assert.Equal(t, 10.0, tnm.Target)
	assert.Equal(t, 11.0, tnm.Readback)
	assert.Equal(t, []float64{10, 10}, a.Moves())
	assert.Equal(t, 2, a.Reads())
	assert.Equal(t, Failed, u.State())
}

func TestSingleTryNeverChecksTolerance(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Readbacks = []float64{11}
	u := newMotor(t, a, WithTolerance(0, 0.1), WithMaxTries(1))

	require.NoError(t, u.MoveTo(context.Background(), position.Scalar(10)))

	assert.Equal(t, []float64{10}, a.Moves())
	assert.Zero(t, a.Reads())
	assert.Equal(t, Achieved, u.State())
}

func TestUntoleratedFieldsAreNotRechecked(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Readbacks = []float64{99}
	u := newMotor(t, a, WithMaxTries(3))

	require.NoError(t, u.MoveTo(context.Background(), position.Scalar(10)))
	assert.Len(t, a.Moves(), 1)
}

func TestLimitIntersectionMicronOverMillimetre(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Lower = -1.001
	u := newMotor(t, a, WithUserUnit(units.Micron), WithLimits(0, -1000, 1000))

	lower, upper := u.ConfiguredLimits(0)
	assert.InDelta(t, -1000, lower, 1e-9)
	assert.InDelta(t, 1000, upper, 1e-9)

	lower, _ = u.EffectiveLimits(0)
	assert.InDelta(t, -1000, lower, 1e-9, "configured bound is tighter than the actuator's")

	err := u.AsynchronousMoveTo(position.Scalar(-1000.5))
	var lv *LimitViolation
	require.ErrorAs(t, err, &lv)
	assert.True(t, strings.HasPrefix(lv.Message, "Configured lower limit violation on m1: -1.0005 < -1"), lv.Message)
	assert.Empty(t, a.Moves(), "no hardware command on violation")

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(-1000)))
	assert.Equal(t, []float64{-1}, a.Moves())
}

func TestActuatorLimitBinds(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Upper = 2
	u := newMotor(t, a, WithLimits(0, math.NaN(), 5))

	msg, err := u.CheckPositionValid(position.Scalar(3))
	require.NoError(t, err)
	assert.Equal(t, "Actuator upper limit violation on m1: 3 > 2 (internal/hardware/dial values).", msg)

	msg, err = u.CheckPositionValid(position.Scalar(2))
	require.NoError(t, err)
	assert.Empty(t, msg, "limits are inclusive")
}

func TestNegativeScaleSwapsLimits(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	u := newMotor(t, a, WithOffset(0, 1), WithScale(0, -2), WithLimits(0, -3, math.NaN()))

	lower, upper := u.ConfiguredLimits(0)
	assert.Equal(t, -3.0, lower)
	assert.True(t, math.IsNaN(upper))

	// -5 external is 3 internal, beyond the internal upper bound of 2.
	err := u.AsynchronousMoveTo(position.Scalar(-5))
	var lv *LimitViolation
	require.ErrorAs(t, err, &lv)
	assert.Contains(t, lv.Message, "Configured upper limit violation on m1: 3 > 2")
}

func TestNegativeScaleTieReportsConfigured(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.Upper = 2
	u := newMotor(t, a, WithOffset(0, 1), WithScale(0, -2), WithLimits(0, -3, math.NaN()))

	lower, upper := u.EffectiveLimits(0)
	assert.Equal(t, -3.0, lower, "internal upper 2 shows as the external lower bound")
	assert.True(t, math.IsNaN(upper))

	msg, err := u.CheckPositionValid(position.Scalar(-5))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "Configured upper limit violation on m1: 3 > 2"), msg)
}

func TestPipelineAppliesScalingInUserUnits(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	u := newMotor(t, a, WithUserUnit(units.Micron), WithOffset(0, 100), WithScale(0, 2))

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(500)))
	require.Len(t, a.Moves(), 1)
	assert.InDelta(t, 0.2, a.Moves()[0], 1e-12)

	p, err := u.Position()
	require.NoError(t, err)
	v, ok := p.ScalarValue()
	require.True(t, ok)
	assert.InDelta(t, 500, v, 1e-9)
}

func TestTextTargetCarriesUnit(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	u := newMotor(t, a, WithUserUnit(units.Micron))

	require.NoError(t, u.AsynchronousMoveTo(position.Text("0.5 mm")))
	require.NoError(t, u.AsynchronousMoveTo(position.Text("250")))
	assert.Equal(t, []float64{0.5, 0.25}, a.Moves())

	err := u.AsynchronousMoveTo(position.Text("3 deg"))
	assert.ErrorIs(t, err, units.ErrFamilyMismatch)
}

func TestAlreadyBusy(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SettlePolls = 5
	u := newMotor(t, a)

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(1)))
	err := u.AsynchronousMoveTo(position.Scalar(2))
	assert.ErrorIs(t, err, ErrAlreadyBusy)
	assert.Equal(t, []float64{1}, a.Moves())
}

func TestWrongFieldCount(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	u := newMotor(t, a)

	err := u.AsynchronousMoveTo(position.Floats(1, 2))
	assert.ErrorIs(t, err, ErrFieldCount)
}

func TestWaitWhileBusyPollsWithClock(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SettlePolls = 3
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	u, err := NewMotor("m1", a, WithClock(clock), WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, u.MoveTo(context.Background(), position.Scalar(4)))
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}, clock.Sleeps())
}

func TestMoveToTimeoutDoesNotRollBack(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SettlePolls = 1000
	u := newMotor(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	err := u.MoveTo(ctx, position.Scalar(4))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []float64{4}, a.Moves())
	assert.Zero(t, a.Stops())
}

func TestFaultEndsWait(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SettlePolls = 2
	u := newMotor(t, a)

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(1)))
	a.Faulted = true
	err := u.WaitWhileBusy(context.Background())
	assert.ErrorIs(t, err, device.ErrFault)
}

func TestDemandPositionWithinTolerance(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.ArrivalError = 0.05
	u := newMotor(t, a, WithDemandPosition(0.1))

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(10)))
	p, err := u.Position()
	require.NoError(t, err)
	assert.Equal(t, position.Scalar(10), p)
}

func TestDemandPositionWhileBusy(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SettlePolls = 5
	u := newMotor(t, a, WithDemandPosition(0.1))

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(10)))
	p, err := u.Position()
	require.NoError(t, err)
	assert.Equal(t, position.Scalar(10), p)
	assert.Zero(t, a.Reads(), "busy demand is reported without a readback")
}

func TestDemandPositionWhileBusyWithExtras(t *testing.T) {
	logs := captureLogs(t)
	d := &recordingDriver{raw: []float64{0, 41}}
	u, err := New("m", d, WithExtraNames("temp"), WithDemandPosition(0.01))
	require.NoError(t, err)

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(10)))
	d.busy = true
	d.raw = []float64{3, 42}

	p, err := u.Position()
	require.NoError(t, err)
	assert.True(t, position.Equal(position.Floats(10, 42), p), "got %v", p)
	assert.Empty(t, *logs)
}

func TestDemandPositionStaleWarnsOnce(t *testing.T) {
	logs := captureLogs(t)
	a := device.NewSimActuator("m1", units.Millimetre)
	a.ArrivalError = 0.5
	u := newMotor(t, a, WithDemandPosition(0.1))

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(10)))
	for i := 0; i < 3; i++ {
		p, err := u.Position()
		require.NoError(t, err)
		assert.Equal(t, position.Scalar(10.5), p)
	}
	require.Len(t, *logs, 1)
	assert.Contains(t, (*logs)[0], "differs from demand")
}

func TestFormat(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SetPosition(1.5)
	u := newMotor(t, a)

	s, err := u.Format()
	require.NoError(t, err)
	assert.Equal(t, "m1 : 1.5mm", s)

	d := &recordingDriver{raw: []float64{1, 2, 3}}
	multi, err := New("stage", d, WithInputNames("x", "y"), WithExtraNames("temp"),
		WithOutputFormat("%.1f", "%.1f", "%.0f"))
	require.NoError(t, err)
	s, err = multi.Format()
	require.NoError(t, err)
	assert.Equal(t, "stage : x: 1.0 y: 2.0 temp: 3", s)
}

func TestExtraFieldsPassThrough(t *testing.T) {
	d := &recordingDriver{raw: []float64{1, 2, 7}}
	u, err := New("stage", d, WithInputNames("x", "y"), WithExtraNames("temp"), WithOffset(0, 10))
	require.NoError(t, err)

	p, err := u.Position()
	require.NoError(t, err)
	assert.Equal(t, position.Floats(11, 2, 7), p)

	// A target may also address the extras, which are ignored.
	require.NoError(t, u.AsynchronousMoveTo(position.Floats(11, 2, 99)))
	assert.Equal(t, [][]position.Value{position.Values(1, 2)}, d.moves)
}

func TestPartialMoveViaFieldHandle(t *testing.T) {
	d := &recordingDriver{raw: []float64{0, 0}}
	u, err := New("stage", d, WithInputNames("x", "y"))
	require.NoError(t, err)

	x, err := u.Field(0)
	require.NoError(t, err)
	assert.Equal(t, "stage.x", x.Name())
	assert.Equal(t, []string{"x"}, x.InputNames())

	require.NoError(t, x.AsynchronousMoveTo(position.Scalar(3)))
	require.Len(t, d.moves, 1)
	assert.Equal(t, []position.Value{position.Some(3), position.Null}, d.moves[0])

	y, err := u.FieldByName("y")
	require.NoError(t, err)
	d.raw = []float64{3, 8}
	p, err := y.Position()
	require.NoError(t, err)
	assert.Equal(t, position.Scalar(8), p)

	_, err = u.Field(2)
	assert.ErrorIs(t, err, ErrNoField)
}

func TestNullTargetsAreNotDispatched(t *testing.T) {
	d := &recordingDriver{}
	u, err := New("stage", d, WithInputNames("x", "y"))
	require.NoError(t, err)

	require.NoError(t, u.AsynchronousMoveTo(position.Vector(position.Null, position.Null)))
	assert.Empty(t, d.moves)
}

func TestExtraValidatorsRunAfterLimits(t *testing.T) {
	d := &recordingDriver{}
	u, err := New("slit", d, WithInputNames("gap", "centre"),
		WithValidator(func(internal []position.Value) string {
			if internal[0].Set && internal[0].V < 0 {
				return "gap must not be negative"
			}
			return ""
		}))
	require.NoError(t, err)

	err = u.AsynchronousMoveTo(position.Floats(-1, 0))
	var lv *LimitViolation
	require.ErrorAs(t, err, &lv)
	assert.Equal(t, "gap must not be negative", lv.Message)
	assert.Empty(t, d.moves)
}

func TestStopAndCommandFailure(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	a.SettlePolls = 5
	u := newMotor(t, a, WithMaxTries(2))

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(1)))
	assert.Equal(t, Moving, u.State())
	require.NoError(t, u.AtCommandFailure())
	assert.Equal(t, 1, a.Stops())
	assert.Equal(t, Failed, u.State())

	a.StopError = errors.New("controller offline")
	assert.ErrorContains(t, u.Stop(), "controller offline")
}

func TestUserUnitSurvivesHardwareChange(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	u := newMotor(t, a, WithUserUnit(units.Micron))

	require.NoError(t, u.SetHardwareUnit(0, units.Nanometre))
	assert.Equal(t, units.Micron, u.UserUnit(0))
	assert.Equal(t, []string{units.Micron}, u.Units())

	err := u.SetUserUnit(0, units.Degree)
	assert.ErrorIs(t, err, units.ErrFamilyMismatch)
}

func TestFieldNamesMustBeDisjoint(t *testing.T) {
	d := &recordingDriver{}
	_, err := New("stage", d, WithInputNames("x", "y"), WithExtraNames("y"))
	assert.ErrorContains(t, err, "duplicate field name")

	u, err := New("stage", d, WithInputNames("x"), WithExtraNames("t"))
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultOutputFormat, DefaultOutputFormat}, u.OutputFormat())
	assert.ErrorIs(t, u.SetOutputFormat("%g"), ErrFieldCount)
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	a := device.NewSimActuator("m1", units.Millimetre)
	u := newMotor(t, a)

	got := make(chan Update, 8)
	id := u.Subscribe(func(up Update) { got <- up })
	require.NotEmpty(t, id)

	require.NoError(t, u.AsynchronousMoveTo(position.Scalar(2)))
	select {
	case up := <-got:
		assert.Equal(t, "m1", up.Name)
		assert.Equal(t, position.Scalar(2), up.Position)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
	u.Unsubscribe(id)
}
