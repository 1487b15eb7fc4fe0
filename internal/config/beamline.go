package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/positioner/internal/units"
)

// DefaultConfigPath is the example beamline shipped with the repository.
const DefaultConfigPath = "config/beamline.example.json"

// BeamlineConfig describes the axes and groups of a beamline. Every optional
// field is a pointer so that an omitted value falls back to the Get* default.
type BeamlineConfig struct {
	Axes   []AxisConfig  `json:"axes"`
	Groups []GroupConfig `json:"groups,omitempty"`
}

// AxisConfig describes one single-actuator axis.
type AxisConfig struct {
	Name string `json:"name"`

	// HardwareUnit overrides the unit reported by the actuator.
	HardwareUnit *string `json:"hardware_unit,omitempty"`
	UserUnit     *string `json:"user_unit,omitempty"`
	OutputFormat *string `json:"output_format,omitempty"`

	Offset     *float64 `json:"offset,omitempty"`
	Scale      *float64 `json:"scale,omitempty"`
	LowerLimit *float64 `json:"lower_limit,omitempty"`
	UpperLimit *float64 `json:"upper_limit,omitempty"`

	Tolerance *float64 `json:"tolerance,omitempty"`
	MaxTries  *int     `json:"max_tries,omitempty"`

	// DemandTolerance enables demand position reporting when set.
	DemandTolerance *float64 `json:"demand_tolerance,omitempty"`

	PollInterval *string `json:"poll_interval,omitempty"` // duration string like "10ms"
	Timeout      *string `json:"timeout,omitempty"`       // "" or omitted waits forever

	Sim *SimConfig `json:"sim,omitempty"`
}

// SimConfig configures the simulated actuator behind an axis when the
// beamline is built without hardware.
type SimConfig struct {
	Unit         *string  `json:"unit,omitempty"`
	Position     *float64 `json:"position,omitempty"`
	SettlePolls  *int     `json:"settle_polls,omitempty"`
	ArrivalError *float64 `json:"arrival_error,omitempty"`
	LowerLimit   *float64 `json:"lower_limit,omitempty"`
	UpperLimit   *float64 `json:"upper_limit,omitempty"`
}

// GroupConfig describes a group. Members may name axes or groups declared
// earlier in the file. Trajectory axes are appended after the members and
// bound to controller axes in the order listed.
type GroupConfig struct {
	Name       string   `json:"name"`
	Members    []string `json:"members,omitempty"`
	Deferred   *bool    `json:"deferred,omitempty"`
	Trajectory []string `json:"trajectory,omitempty"`
	Continuous *bool    `json:"continuous,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// LoadBeamlineConfig loads and validates a BeamlineConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadBeamlineConfig(path string) (*BeamlineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseBeamlineConfig(data)
}

// ParseBeamlineConfig decodes and validates a JSON document.
func ParseBeamlineConfig(data []byte) (*BeamlineConfig, error) {
	cfg := &BeamlineConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks names, references, units and numeric ranges.
func (c *BeamlineConfig) Validate() error {
	if len(c.Axes) == 0 {
		return fmt.Errorf("at least one axis is required")
	}
	axes := make(map[string]bool, len(c.Axes))
	seen := make(map[string]bool, len(c.Axes)+len(c.Groups))
	for i := range c.Axes {
		a := &c.Axes[i]
		if a.Name == "" {
			return fmt.Errorf("axis %d has no name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate name %q", a.Name)
		}
		seen[a.Name] = true
		axes[a.Name] = true
		if err := a.Validate(); err != nil {
			return fmt.Errorf("axis %s: %w", a.Name, err)
		}
	}
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.Name == "" {
			return fmt.Errorf("group %d has no name", i)
		}
		if seen[g.Name] {
			return fmt.Errorf("duplicate name %q", g.Name)
		}
		if len(g.Members)+len(g.Trajectory) == 0 {
			return fmt.Errorf("group %s has no members", g.Name)
		}
		for _, m := range g.Members {
			if !seen[m] {
				return fmt.Errorf("group %s: unknown member %q (members must be declared first)", g.Name, m)
			}
		}
		for _, m := range g.Trajectory {
			if !axes[m] {
				return fmt.Errorf("group %s: trajectory member %q is not an axis", g.Name, m)
			}
		}
		listed := make(map[string]bool, len(g.Members)+len(g.Trajectory))
		for _, m := range append(append([]string(nil), g.Members...), g.Trajectory...) {
			if listed[m] {
				return fmt.Errorf("group %s: %q is listed more than once", g.Name, m)
			}
			listed[m] = true
		}
		if g.GetContinuous() && len(g.Trajectory) == 0 {
			return fmt.Errorf("group %s: continuous requires trajectory axes", g.Name)
		}
		seen[g.Name] = true
	}
	return nil
}

// Validate checks a single axis.
func (a *AxisConfig) Validate() error {
	for _, sym := range []*string{a.HardwareUnit, a.UserUnit} {
		if sym != nil && *sym != "" && !units.IsValid(*sym) {
			return fmt.Errorf("unknown unit %q", *sym)
		}
	}
	if a.Sim != nil && a.Sim.Unit != nil && *a.Sim.Unit != "" && !units.IsValid(*a.Sim.Unit) {
		return fmt.Errorf("unknown sim unit %q", *a.Sim.Unit)
	}
	if a.Scale != nil && (*a.Scale == 0 || math.IsNaN(*a.Scale) || math.IsInf(*a.Scale, 0)) {
		return fmt.Errorf("scale must be finite and non-zero, got %v", *a.Scale)
	}
	if a.LowerLimit != nil && a.UpperLimit != nil && *a.LowerLimit > *a.UpperLimit {
		return fmt.Errorf("lower_limit %v exceeds upper_limit %v", *a.LowerLimit, *a.UpperLimit)
	}
	if a.Tolerance != nil && *a.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative, got %v", *a.Tolerance)
	}
	if a.DemandTolerance != nil && *a.DemandTolerance < 0 {
		return fmt.Errorf("demand_tolerance must be non-negative, got %v", *a.DemandTolerance)
	}
	if a.MaxTries != nil && *a.MaxTries < 1 {
		return fmt.Errorf("max_tries must be at least 1, got %d", *a.MaxTries)
	}
	if a.PollInterval != nil && *a.PollInterval != "" {
		d, err := time.ParseDuration(*a.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *a.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}
	if a.Timeout != nil && *a.Timeout != "" {
		if _, err := time.ParseDuration(*a.Timeout); err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", *a.Timeout, err)
		}
	}
	if a.Sim != nil && a.Sim.SettlePolls != nil && *a.Sim.SettlePolls < 0 {
		return fmt.Errorf("sim settle_polls must be non-negative, got %d", *a.Sim.SettlePolls)
	}
	return nil
}

// Axis returns the named axis.
func (c *BeamlineConfig) Axis(name string) (*AxisConfig, bool) {
	for i := range c.Axes {
		if c.Axes[i].Name == name {
			return &c.Axes[i], true
		}
	}
	return nil, false
}

// GetHardwareUnit returns the configured hardware unit, or "" to use the
// actuator's own.
func (a *AxisConfig) GetHardwareUnit() string {
	if a.HardwareUnit == nil {
		return ""
	}
	return *a.HardwareUnit
}

// GetUserUnit returns the user unit, or "" to follow the hardware unit.
func (a *AxisConfig) GetUserUnit() string {
	if a.UserUnit == nil {
		return ""
	}
	return *a.UserUnit
}

// GetOutputFormat returns the printf format of the axis.
func (a *AxisConfig) GetOutputFormat() string {
	if a.OutputFormat == nil || *a.OutputFormat == "" {
		return "%5.5g"
	}
	return *a.OutputFormat
}

// GetOffset returns the offset or 0.
func (a *AxisConfig) GetOffset() float64 {
	if a.Offset == nil {
		return 0
	}
	return *a.Offset
}

// GetScale returns the scale or 1.
func (a *AxisConfig) GetScale() float64 {
	if a.Scale == nil {
		return 1
	}
	return *a.Scale
}

// GetLowerLimit returns the configured lower limit, NaN when unset.
func (a *AxisConfig) GetLowerLimit() float64 {
	if a.LowerLimit == nil {
		return math.NaN()
	}
	return *a.LowerLimit
}

// GetUpperLimit returns the configured upper limit, NaN when unset.
func (a *AxisConfig) GetUpperLimit() float64 {
	if a.UpperLimit == nil {
		return math.NaN()
	}
	return *a.UpperLimit
}

// GetMaxTries returns max_tries or 1.
func (a *AxisConfig) GetMaxTries() int {
	if a.MaxTries == nil {
		return 1
	}
	return *a.MaxTries
}

// GetPollInterval parses and returns the PollInterval as a time.Duration.
func (a *AxisConfig) GetPollInterval() time.Duration {
	if a.PollInterval == nil || *a.PollInterval == "" {
		return 10 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*a.PollInterval)
	if err != nil || d <= 0 {
		return 10 * time.Millisecond // default on parse error
	}
	return d
}

// GetTimeout returns the move timeout; zero means none.
func (a *AxisConfig) GetTimeout() time.Duration {
	if a.Timeout == nil || *a.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*a.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GetSim returns the simulator settings, never nil.
func (a *AxisConfig) GetSim() *SimConfig {
	if a.Sim == nil {
		return &SimConfig{}
	}
	return a.Sim
}

// GetUnit returns the simulated actuator's native unit, defaulting to mm.
func (s *SimConfig) GetUnit() string {
	if s.Unit == nil || *s.Unit == "" {
		return units.Millimetre
	}
	return *s.Unit
}

// GetPosition returns the starting position or 0.
func (s *SimConfig) GetPosition() float64 {
	if s.Position == nil {
		return 0
	}
	return *s.Position
}

// GetSettlePolls returns the number of busy polls per move, default 2.
func (s *SimConfig) GetSettlePolls() int {
	if s.SettlePolls == nil {
		return 2
	}
	return *s.SettlePolls
}

// GetArrivalError returns the simulated arrival error or 0.
func (s *SimConfig) GetArrivalError() float64 {
	if s.ArrivalError == nil {
		return 0
	}
	return *s.ArrivalError
}

// GetLowerLimit returns the simulated hardware lower limit, NaN when unset.
func (s *SimConfig) GetLowerLimit() float64 {
	if s.LowerLimit == nil {
		return math.NaN()
	}
	return *s.LowerLimit
}

// GetUpperLimit returns the simulated hardware upper limit, NaN when unset.
func (s *SimConfig) GetUpperLimit() float64 {
	if s.UpperLimit == nil {
		return math.NaN()
	}
	return *s.UpperLimit
}

// GetDeferred reports whether the group gates its moves. Defaults to false.
func (g *GroupConfig) GetDeferred() bool {
	if g.Deferred == nil {
		return false
	}
	return *g.Deferred
}

// GetContinuous reports whether trajectory axes start in continuous mode.
func (g *GroupConfig) GetContinuous() bool {
	if g.Continuous == nil {
		return false
	}
	return *g.Continuous
}
