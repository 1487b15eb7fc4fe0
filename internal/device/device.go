// Package device defines the hardware-side collaborators the motion engine
// drives. Transports implement these interfaces; the engine never looks
// devices up itself, they are injected at construction.
package device

import (
	"errors"
	"fmt"
)

// Status is the coarse state an actuator reports.
type Status int

const (
	StatusReady Status = iota
	StatusBusy
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusBusy:
		return "Busy"
	case StatusFault:
		return "Fault"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ErrFault is returned by actuators that refuse commands while faulted.
var ErrFault = errors.New("actuator fault")

// Actuator defines the minimal interface needed for a single motor axis.
// Values are in the actuator's native unit.
type Actuator interface {
	// Status reports whether the actuator is ready, moving or faulted.
	Status() (Status, error)
	// Position reads back the current position.
	Position() (float64, error)
	// Move starts a move to target and returns without waiting.
	Move(target float64) error
	// MinLimit returns the hardware lower limit, NaN when unbounded.
	MinLimit() (float64, error)
	// MaxLimit returns the hardware upper limit, NaN when unbounded.
	MaxLimit() (float64, error)
	// Stop asks the actuator to stop. It may not be honoured immediately.
	Stop() error
	// NativeUnit returns the unit the actuator reports in, if it knows.
	NativeUnit() (string, bool)
}

// TrajectoryController buffers points for a continuous sweep. Execution of
// the buffered points is owned entirely by the controller.
type TrajectoryController interface {
	// AxisCount is the fixed width of every point.
	AxisCount() int
	// AddPoint buffers one point. NaN marks an axis with no demand.
	AddPoint(point []float64) error
	// ClearQueue discards buffered points.
	ClearQueue() error
}

// GateSink is a write-only coordination point used as a hold (1) / release
// (0) gate for synchronised starts.
type GateSink interface {
	SetValue(v float64) error
}
