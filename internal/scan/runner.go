package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/motion"
	"github.com/banshee-data/positioner/internal/position"
	"github.com/banshee-data/positioner/internal/snapshot"
	"github.com/banshee-data/positioner/internal/timeutil"
)

// Archiver stores a snapshot taken at a scan point. archive.Store
// implements it.
type Archiver interface {
	Save(snap snapshot.Snapshot, label string, scanPoint int) (string, error)
}

// Row is one completed scan point.
type Row struct {
	Point      int
	Target     position.Position
	Position   position.Position
	At         time.Time
	SnapshotID string
}

// Result holds the rows recorded so far. On failure it still carries every
// point completed before the error.
type Result struct {
	Name   string
	Fields []string
	Rows   []Row
}

// Runner drives a positionable through a step scan.
type Runner struct {
	// Archive, if set, receives a snapshot after every point.
	Archive Archiver
	// Label tags archived snapshots.
	Label string
	// Dwell is waited at each point between the move and the readback.
	Dwell time.Duration
	// OnPoint, if set, is called with each recorded row.
	OnPoint func(Row)

	clock timeutil.Clock
	logf  func(format string, v ...interface{})
}

// NewRunner returns a Runner on the real clock.
func NewRunner() *Runner {
	return &Runner{
		clock: timeutil.RealClock{},
		logf:  monitoring.Tagged("scan"),
	}
}

// SetClock replaces the clock used for dwell and row timestamps.
func (r *Runner) SetClock(c timeutil.Clock) { r.clock = c }

// Run calls AtScanStart, then for every point AtPointStart,
// AtLevelMoveStart, MoveTo, the readback and AtPointEnd, and finally
// AtScanEnd. Any error, including cancellation of ctx between points, calls
// AtCommandFailure and ends the scan.
func (r *Runner) Run(ctx context.Context, p motion.Positionable, points []position.Position) (*Result, error) {
	res := &Result{
		Name:   p.Name(),
		Fields: append(p.InputNames(), p.ExtraNames()...),
	}
	r.logf("%s: scanning %d points", p.Name(), len(points))
	if err := p.AtScanStart(); err != nil {
		return res, r.fail(p, fmt.Errorf("%s: scan start: %w", p.Name(), err))
	}
	for i, target := range points {
		if err := ctx.Err(); err != nil {
			return res, r.fail(p, fmt.Errorf("%s: scan interrupted before point %d: %w", p.Name(), i, err))
		}
		row, err := r.point(ctx, p, i, target)
		if err != nil {
			return res, r.fail(p, fmt.Errorf("point %d: %w", i, err))
		}
		res.Rows = append(res.Rows, row)
		if r.OnPoint != nil {
			r.OnPoint(row)
		}
	}
	if err := p.AtScanEnd(); err != nil {
		return res, r.fail(p, fmt.Errorf("%s: scan end: %w", p.Name(), err))
	}
	return res, nil
}

func (r *Runner) point(ctx context.Context, p motion.Positionable, i int, target position.Position) (Row, error) {
	if err := p.AtPointStart(); err != nil {
		return Row{}, err
	}
	if err := p.AtLevelMoveStart(); err != nil {
		return Row{}, err
	}
	if err := p.MoveTo(ctx, target); err != nil {
		return Row{}, err
	}
	if r.Dwell > 0 {
		r.clock.Sleep(r.Dwell)
	}
	pos, err := p.Position()
	if err != nil {
		return Row{}, err
	}
	if err := p.AtPointEnd(); err != nil {
		return Row{}, err
	}
	row := Row{Point: i, Target: target, Position: pos, At: r.clock.Now()}
	if r.Archive != nil {
		snap, err := snapshot.Capture(p)
		if err != nil {
			return Row{}, fmt.Errorf("capturing snapshot: %w", err)
		}
		id, err := r.Archive.Save(snap, r.Label, i)
		if err != nil {
			return Row{}, fmt.Errorf("archiving snapshot: %w", err)
		}
		row.SnapshotID = id
	}
	return row, nil
}

// fail runs the failure hook and returns the original error. A failing hook
// is logged only.
func (r *Runner) fail(p motion.Positionable, err error) error {
	r.logf("%v", err)
	if hookErr := p.AtCommandFailure(); hookErr != nil {
		r.logf("%s: AtCommandFailure: %v", p.Name(), hookErr)
	}
	return err
}
