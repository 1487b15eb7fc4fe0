package beamline

import (
	"github.com/banshee-data/positioner/internal/config"
	"github.com/banshee-data/positioner/internal/device"
	"github.com/banshee-data/positioner/internal/motion"
)

// SimDevices are simulated collaborators for every axis and group of a
// configuration, sharing one Journal.
type SimDevices struct {
	Journal     *device.Journal
	Actuators   map[string]*device.SimActuator
	Gates       map[string]*device.SimGate
	Controllers map[string]*device.SimTrajectory
}

// NewSimDevices creates a simulated actuator per axis from its sim settings,
// a gate per deferred group and a controller per trajectory group.
func NewSimDevices(cfg *config.BeamlineConfig) *SimDevices {
	s := &SimDevices{
		Journal:     &device.Journal{},
		Actuators:   make(map[string]*device.SimActuator, len(cfg.Axes)),
		Gates:       make(map[string]*device.SimGate),
		Controllers: make(map[string]*device.SimTrajectory),
	}
	for i := range cfg.Axes {
		a := &cfg.Axes[i]
		sim := a.GetSim()
		act := device.NewSimActuator(a.Name, sim.GetUnit())
		act.SettlePolls = sim.GetSettlePolls()
		act.ArrivalError = sim.GetArrivalError()
		act.Lower = sim.GetLowerLimit()
		act.Upper = sim.GetUpperLimit()
		act.Journal = s.Journal
		act.SetPosition(sim.GetPosition())
		s.Actuators[a.Name] = act
	}
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		if g.GetDeferred() {
			s.Gates[g.Name] = &device.SimGate{Journal: s.Journal}
		}
		if len(g.Trajectory) > 0 {
			c := device.NewSimTrajectory(len(g.Trajectory))
			c.Journal = s.Journal
			s.Controllers[g.Name] = c
		}
	}
	return s
}

// Devices returns the simulators as the interfaces Build takes.
func (s *SimDevices) Devices() Devices {
	d := Devices{
		Actuators:   make(map[string]device.Actuator, len(s.Actuators)),
		Gates:       make(map[string]device.GateSink, len(s.Gates)),
		Controllers: make(map[string]device.TrajectoryController, len(s.Controllers)),
	}
	for k, v := range s.Actuators {
		d.Actuators[k] = v
	}
	for k, v := range s.Gates {
		d.Gates[k] = v
	}
	for k, v := range s.Controllers {
		d.Controllers[k] = v
	}
	return d
}

// Simulated builds a beamline over fresh simulated devices.
func Simulated(cfg *config.BeamlineConfig, opts ...motion.Option) (*Beamline, *SimDevices, error) {
	sim := NewSimDevices(cfg)
	b, err := Build(cfg, sim.Devices(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return b, sim, nil
}
