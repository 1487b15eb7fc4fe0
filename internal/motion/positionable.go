// Package motion presents every controllable device as a Positionable and
// implements the move-and-verify engine for single devices (Unit).
package motion

import (
	"context"
	"time"

	"github.com/banshee-data/positioner/internal/position"
)

// Fields describes the named fields a Positionable reads and moves.
type Fields interface {
	Name() string
	InputNames() []string
	ExtraNames() []string
	OutputFormat() []string
}

// Mover commands and awaits motion.
type Mover interface {
	// AsynchronousMoveTo validates and dispatches target, returning without
	// waiting for completion.
	AsynchronousMoveTo(target position.Position) error
	// MoveTo moves to target and blocks until complete or ctx expires.
	MoveTo(ctx context.Context, target position.Position) error
	IsBusy() (bool, error)
	WaitWhileBusy(ctx context.Context) error
	// CheckPositionValid returns a violation message, or "" if target is
	// within limits. The error is non-nil only if target cannot be converted.
	CheckPositionValid(target position.Position) (string, error)
	Stop() error
}

// Reader reports the current position in external units.
type Reader interface {
	Position() (position.Position, error)
}

// Lifecycle hooks are called by scans around moves and points.
type Lifecycle interface {
	AtScanStart() error
	AtScanEnd() error
	AtPointStart() error
	AtPointEnd() error
	AtLevelMoveStart() error
	AtCommandFailure() error
}

// Positionable is the uniform abstraction over units, sub-handles and groups.
type Positionable interface {
	Fields
	Mover
	Reader
	Lifecycle
	// Format renders the current position for display.
	Format() (string, error)
}

// UnitsReporter is implemented by positionables that know the user unit of
// each field.
type UnitsReporter interface {
	Units() []string
}

// Hooks is embedded to get no-op lifecycle hooks.
type Hooks struct{}

func (Hooks) AtScanStart() error      { return nil }
func (Hooks) AtScanEnd() error        { return nil }
func (Hooks) AtPointStart() error     { return nil }
func (Hooks) AtPointEnd() error       { return nil }
func (Hooks) AtLevelMoveStart() error { return nil }
func (Hooks) AtCommandFailure() error { return nil }

// State is the motion state of a Unit.
type State int

const (
	Idle State = iota
	Moving
	Achieved
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Achieved:
		return "achieved"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Update is delivered to subscribers after dispatches and readbacks.
type Update struct {
	Name     string
	Position position.Position
	State    State
	At       time.Time
}

// DefaultOutputFormat is used for fields without an explicit format.
const DefaultOutputFormat = "%5.5g"
