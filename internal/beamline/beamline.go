// Package beamline builds motion units and groups from a BeamlineConfig over
// a set of injected devices.
package beamline

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/banshee-data/positioner/internal/config"
	"github.com/banshee-data/positioner/internal/device"
	"github.com/banshee-data/positioner/internal/group"
	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/motion"
)

// Devices are the hardware collaborators a beamline is built over, keyed by
// the axis name (actuators) or the group name (gates and controllers).
type Devices struct {
	Actuators   map[string]device.Actuator
	Gates       map[string]device.GateSink
	Controllers map[string]device.TrajectoryController
}

// Beamline holds everything built from one configuration. Lookups only see
// what this beamline built.
type Beamline struct {
	names  []string
	units  map[string]*motion.Unit
	groups map[string]motion.Positionable
	logf   func(format string, v ...interface{})
}

// Build creates one Unit per axis and one group per group entry, in file
// order. opts are applied to every unit after its configured options.
func Build(cfg *config.BeamlineConfig, dev Devices, opts ...motion.Option) (*Beamline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Beamline{
		units:  make(map[string]*motion.Unit, len(cfg.Axes)),
		groups: make(map[string]motion.Positionable, len(cfg.Groups)),
		logf:   monitoring.Tagged("beamline"),
	}
	for i := range cfg.Axes {
		a := &cfg.Axes[i]
		act, ok := dev.Actuators[a.Name]
		if !ok || act == nil {
			return nil, fmt.Errorf("axis %s: no actuator", a.Name)
		}
		u, err := motion.NewMotor(a.Name, act, append(axisOptions(a), opts...)...)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", a.Name, err)
		}
		b.units[a.Name] = u
		b.names = append(b.names, a.Name)
	}
	for i := range cfg.Groups {
		g, err := b.buildGroup(&cfg.Groups[i], dev)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", cfg.Groups[i].Name, err)
		}
		b.groups[g.Name()] = g
		b.names = append(b.names, g.Name())
	}
	b.logf("built %d axes and %d groups", len(b.units), len(b.groups))
	return b, nil
}

// axisOptions translates an axis entry. Units and scaling come before the
// limits, which are converted with them.
func axisOptions(a *config.AxisConfig) []motion.Option {
	var opts []motion.Option
	if sym := a.GetHardwareUnit(); sym != "" {
		opts = append(opts, motion.WithHardwareUnit(sym))
	}
	if sym := a.GetUserUnit(); sym != "" {
		opts = append(opts, motion.WithUserUnit(sym))
	}
	if a.Offset != nil {
		opts = append(opts, motion.WithOffset(0, *a.Offset))
	}
	if a.Scale != nil {
		opts = append(opts, motion.WithScale(0, *a.Scale))
	}
	opts = append(opts,
		motion.WithOutputFormat(a.GetOutputFormat()),
		motion.WithLimits(0, a.GetLowerLimit(), a.GetUpperLimit()),
		motion.WithMaxTries(a.GetMaxTries()),
		motion.WithPollInterval(a.GetPollInterval()),
	)
	if a.Tolerance != nil {
		opts = append(opts, motion.WithTolerance(0, *a.Tolerance))
	}
	if a.DemandTolerance != nil {
		opts = append(opts, motion.WithDemandPosition(*a.DemandTolerance))
	}
	if d := a.GetTimeout(); d > 0 {
		opts = append(opts, motion.WithTimeout(d))
	}
	return opts
}

func (b *Beamline) buildGroup(gc *config.GroupConfig, dev Devices) (motion.Positionable, error) {
	members := make([]motion.Positionable, 0, len(gc.Members))
	for _, name := range gc.Members {
		m, ok := b.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown member %q", name)
		}
		members = append(members, m)
	}
	if !gc.GetDeferred() && len(gc.Trajectory) == 0 {
		return group.New(gc.Name, members...), nil
	}

	var gate device.GateSink
	if gc.GetDeferred() {
		gate = dev.Gates[gc.Name]
		if gate == nil {
			return nil, fmt.Errorf("deferred group has no gate")
		}
	}
	var controller device.TrajectoryController
	if len(gc.Trajectory) > 0 {
		controller = dev.Controllers[gc.Name]
		if controller == nil {
			return nil, fmt.Errorf("trajectory group has no controller")
		}
	}
	g := group.NewDeferred(gc.Name, gate, controller, members...)
	for i, name := range gc.Trajectory {
		if _, err := g.AddAxis(b.units[name], i); err != nil {
			return nil, err
		}
	}
	if gc.GetContinuous() {
		if err := g.SetContinuous(true); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Lookup finds an axis or group by name.
func (b *Beamline) Lookup(name string) (motion.Positionable, bool) {
	if u, ok := b.units[name]; ok {
		return u, true
	}
	g, ok := b.groups[name]
	return g, ok
}

// Unit finds an axis by name.
func (b *Beamline) Unit(name string) (*motion.Unit, bool) {
	u, ok := b.units[name]
	return u, ok
}

// Names lists axes then groups in file order.
func (b *Beamline) Names() []string { return append([]string(nil), b.names...) }

// Units lists the axes in file order.
func (b *Beamline) Units() []*motion.Unit {
	out := make([]*motion.Unit, 0, len(b.units))
	for _, n := range b.names {
		if u, ok := b.units[n]; ok {
			out = append(out, u)
		}
	}
	return out
}

// StopAll stops every axis, continuing past failures.
func (b *Beamline) StopAll() error {
	var err error
	for _, u := range b.Units() {
		if e := u.Stop(); e != nil {
			b.logf("stopping %s: %v", u.Name(), e)
			err = multierr.Append(err, e)
		}
	}
	return err
}
