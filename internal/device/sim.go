package device

import (
	"fmt"
	"math"
	"sync"
)

// SimActuator implements Actuator with configurable behaviour for testing
// and for the simulated beamline. It gives control over settling time,
// scripted readbacks, arrival error and injected failures.
type SimActuator struct {
	mu sync.Mutex

	// Name labels the actuator in Journal events.
	Name string
	// Unit is reported by NativeUnit when non-empty.
	Unit string

	// SettlePolls is the number of Status calls that report Busy after a
	// Move before the actuator arrives.
	SettlePolls int
	// ArrivalError is added to the target on arrival.
	ArrivalError float64
	// Readbacks, when non-empty, are returned by Position in order (one per
	// call) instead of the simulated position.
	Readbacks []float64

	// Lower and Upper are the hardware limits; NaN is unbounded.
	Lower, Upper float64

	// MoveError, StopError and StatusError are returned by the next
	// corresponding call if set.
	MoveError   error
	StopError   error
	StatusError error
	// Faulted makes Status report StatusFault and Move fail with ErrFault.
	Faulted bool

	// Journal, if set, records every Move and Stop.
	Journal *Journal

	position  float64
	target    float64
	moving    bool
	remaining int

	moves     []float64
	reads     int
	stops     int
	statusCnt int
}

// NewSimActuator returns an idle, unbounded simulated actuator at 0.
func NewSimActuator(name, unit string) *SimActuator {
	return &SimActuator{
		Name:  name,
		Unit:  unit,
		Lower: math.NaN(),
		Upper: math.NaN(),
	}
}

// SetPosition places the actuator at v without a move.
func (a *SimActuator) SetPosition(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position, a.target, a.moving = v, v, false
}

// Status reports Busy for SettlePolls calls after each Move.
func (a *SimActuator) Status() (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCnt++
	if a.StatusError != nil {
		err := a.StatusError
		a.StatusError = nil
		return StatusFault, err
	}
	if a.Faulted {
		return StatusFault, nil
	}
	if a.moving {
		if a.remaining > 0 {
			a.remaining--
			return StatusBusy, nil
		}
		a.arrive()
	}
	return StatusReady, nil
}

func (a *SimActuator) arrive() {
	a.position = a.target + a.ArrivalError
	a.moving = false
}

// Position returns the next scripted readback or the simulated position.
func (a *SimActuator) Position() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reads++
	if len(a.Readbacks) > 0 {
		v := a.Readbacks[0]
		a.Readbacks = a.Readbacks[1:]
		return v, nil
	}
	return a.position, nil
}

// Move starts a simulated move.
func (a *SimActuator) Move(target float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.MoveError != nil {
		err := a.MoveError
		a.MoveError = nil
		return err
	}
	if a.Faulted {
		return ErrFault
	}
	if (!math.IsNaN(a.Lower) && target < a.Lower) || (!math.IsNaN(a.Upper) && target > a.Upper) {
		return fmt.Errorf("%s: target %g outside hardware limits [%g, %g]", a.Name, target, a.Lower, a.Upper)
	}
	a.Journal.Record("move %s %g", a.Name, target)
	a.moves = append(a.moves, target)
	a.target = target
	a.moving = true
	a.remaining = a.SettlePolls
	if a.remaining == 0 {
		a.arrive()
	}
	return nil
}

// MinLimit returns Lower.
func (a *SimActuator) MinLimit() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Lower, nil
}

// MaxLimit returns Upper.
func (a *SimActuator) MaxLimit() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Upper, nil
}

// Stop halts the simulated move where it is.
func (a *SimActuator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	a.Journal.Record("stop %s", a.Name)
	if a.StopError != nil {
		err := a.StopError
		a.StopError = nil
		return err
	}
	a.moving = false
	return nil
}

// NativeUnit returns Unit when set.
func (a *SimActuator) NativeUnit() (string, bool) {
	return a.Unit, a.Unit != ""
}

// Moves returns every accepted move target.
func (a *SimActuator) Moves() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.moves))
	copy(out, a.moves)
	return out
}

// Reads returns the number of Position calls.
func (a *SimActuator) Reads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reads
}

// Stops returns the number of Stop calls.
func (a *SimActuator) Stops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

// StatusCalls returns the number of Status calls.
func (a *SimActuator) StatusCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusCnt
}

// SimTrajectory implements TrajectoryController by recording points.
type SimTrajectory struct {
	mu       sync.Mutex
	axes     int
	points   [][]float64
	clears   int
	AddError error
	Journal  *Journal
}

// NewSimTrajectory returns a controller exposing axes trajectory axes.
func NewSimTrajectory(axes int) *SimTrajectory {
	return &SimTrajectory{axes: axes}
}

// AxisCount returns the fixed point width.
func (c *SimTrajectory) AxisCount() int { return c.axes }

// AddPoint records a copy of point.
func (c *SimTrajectory) AddPoint(point []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AddError != nil {
		return c.AddError
	}
	if len(point) != c.axes {
		return fmt.Errorf("point has %d axes, controller has %d", len(point), c.axes)
	}
	p := make([]float64, len(point))
	copy(p, point)
	c.points = append(c.points, p)
	c.Journal.Record("point %v", p)
	return nil
}

// ClearQueue discards recorded points.
func (c *SimTrajectory) ClearQueue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.points = nil
	c.clears++
	c.Journal.Record("clear")
	return nil
}

// Points returns the buffered points.
func (c *SimTrajectory) Points() [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]float64, len(c.points))
	copy(out, c.points)
	return out
}

// Clears returns the number of ClearQueue calls.
func (c *SimTrajectory) Clears() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// SimGate implements GateSink by recording every value written.
type SimGate struct {
	mu       sync.Mutex
	values   []float64
	SetError error
	Journal  *Journal
}

// SetValue records v.
func (g *SimGate) SetValue(v float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Journal.Record("gate %g", v)
	if g.SetError != nil {
		return g.SetError
	}
	g.values = append(g.values, v)
	return nil
}

// Values returns every value written.
func (g *SimGate) Values() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, len(g.values))
	copy(out, g.values)
	return out
}

var (
	_ Actuator             = (*SimActuator)(nil)
	_ TrajectoryController = (*SimTrajectory)(nil)
	_ GateSink             = (*SimGate)(nil)
)
