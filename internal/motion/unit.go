package motion

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/positioner/internal/limits"
	"github.com/banshee-data/positioner/internal/monitoring"
	"github.com/banshee-data/positioner/internal/notify"
	"github.com/banshee-data/positioner/internal/position"
	"github.com/banshee-data/positioner/internal/scaling"
	"github.com/banshee-data/positioner/internal/timeutil"
	"github.com/banshee-data/positioner/internal/units"
)

const (
	defaultPollInterval   = 10 * time.Millisecond
	defaultUpdateInterval = 100 * time.Millisecond
)

// Unit is a single device presented as a Positionable. Targets pass through
// offset/scale (in user units) and then unit conversion to reach the internal
// frame the Driver works in; readbacks take the reverse path.
//
// A Unit is configured with setters or Options before first use and is
// driven from a single goroutine. Configuration is not safe for concurrent
// use. Subscriber callbacks run on their own goroutines.
type Unit struct {
	Hooks

	name         string
	inputNames   []string
	extraNames   []string
	outputFormat []string

	driver     Driver
	converters []*units.Converter
	scaling    *scaling.OffsetScaling
	validator  *limits.Validator
	tolerances []*float64
	maxTries   int

	pollInterval   time.Duration
	timeout        time.Duration
	updateInterval time.Duration
	clock          timeutil.Clock

	demandEnabled   bool
	demandTolerance float64
	demand          []position.Value
	demandWarned    bool

	state   State
	updates *notify.Broadcaster[Update]
	logf    func(format string, v ...interface{})
}

// Option configures a Unit at construction. Options apply in order, so limit
// options should follow the unit and scaling options they depend on.
type Option func(*Unit) error

// New returns a Unit with one input field named after the unit, no extras,
// maxTries 1 and the default output format.
func New(name string, driver Driver, opts ...Option) (*Unit, error) {
	if name == "" {
		return nil, fmt.Errorf("motion: empty name")
	}
	if driver == nil {
		return nil, fmt.Errorf("%s: nil driver", name)
	}
	u := &Unit{
		name:           name,
		driver:         driver,
		scaling:        scaling.New(0),
		validator:      limits.New(0),
		maxTries:       1,
		pollInterval:   defaultPollInterval,
		updateInterval: defaultUpdateInterval,
		clock:          timeutil.RealClock{},
		logf:           monitoring.Tagged("motion"),
	}
	u.validator.SetActuatorBounds(driver.Limits)
	if err := u.SetInputNames(name); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return u, nil
}

func (u *Unit) Name() string { return u.name }

func (u *Unit) InputNames() []string { return append([]string(nil), u.inputNames...) }

func (u *Unit) ExtraNames() []string { return append([]string(nil), u.extraNames...) }

func (u *Unit) OutputFormat() []string { return append([]string(nil), u.outputFormat...) }

// Driver returns the driver the unit moves.
func (u *Unit) Driver() Driver { return u.driver }

// State reports the motion state of the last move.
func (u *Unit) State() State { return u.state }

// SetInputNames replaces the input field names. Per-field settings of the
// surviving fields are kept; new fields copy the units of field 0.
func (u *Unit) SetInputNames(names ...string) error {
	if err := checkNames(names, u.extraNames); err != nil {
		return err
	}
	n := len(names)
	converters := make([]*units.Converter, n)
	for i := range converters {
		if i < len(u.converters) {
			converters[i] = u.converters[i]
			continue
		}
		converters[i] = u.newConverter()
	}
	tolerances := make([]*float64, n)
	copy(tolerances, u.tolerances)

	u.inputNames = append([]string(nil), names...)
	u.converters = converters
	u.tolerances = tolerances
	u.scaling.Resize(n)
	u.validator.Resize(n)
	u.demand = nil
	u.resizeFormat()
	return nil
}

// SetExtraNames replaces the read-only extra field names.
func (u *Unit) SetExtraNames(names ...string) error {
	if err := checkNames(names, u.inputNames); err != nil {
		return err
	}
	u.extraNames = append([]string(nil), names...)
	u.resizeFormat()
	return nil
}

func checkNames(names, other []string) error {
	seen := make(map[string]bool, len(names)+len(other))
	for _, n := range other {
		seen[n] = true
	}
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("empty field name")
		}
		if seen[n] {
			return fmt.Errorf("duplicate field name %q", n)
		}
		seen[n] = true
	}
	return nil
}

func (u *Unit) newConverter() *units.Converter {
	if len(u.converters) > 0 {
		c := *u.converters[0]
		return &c
	}
	c, _ := units.NewConverter(units.Dimensionless)
	return c
}

// resizeFormat keeps existing formats and fills new fields with the default.
func (u *Unit) resizeFormat() {
	n := len(u.inputNames) + len(u.extraNames)
	formats := make([]string, n)
	for i := range formats {
		if i < len(u.outputFormat) {
			formats[i] = u.outputFormat[i]
		} else {
			formats[i] = DefaultOutputFormat
		}
	}
	u.outputFormat = formats
}

// SetOutputFormat sets one printf verb per input and extra field.
func (u *Unit) SetOutputFormat(formats ...string) error {
	if want := len(u.inputNames) + len(u.extraNames); len(formats) != want {
		return fmt.Errorf("%w: %d output formats for %d fields", ErrFieldCount, len(formats), want)
	}
	u.outputFormat = append([]string(nil), formats...)
	return nil
}

func (u *Unit) checkInput(field int) error {
	if field < 0 || field >= len(u.inputNames) {
		return fmt.Errorf("%w: %s has no input field %d", ErrNoField, u.name, field)
	}
	return nil
}

// FieldIndex returns the index of the named input field.
func (u *Unit) FieldIndex(name string) (int, error) {
	for i, n := range u.inputNames {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s has no input field %q", ErrNoField, u.name, name)
}

// path names a field in messages: the unit name for a single field named
// after the unit, otherwise "unit.field".
func (u *Unit) path(field int) string {
	if len(u.inputNames) == 1 && u.inputNames[0] == u.name {
		return u.name
	}
	return u.name + "." + u.inputNames[field]
}

func (u *Unit) paths() []string {
	out := make([]string, len(u.inputNames))
	for i := range out {
		out[i] = u.path(i)
	}
	return out
}

// SetHardwareUnit sets the hardware unit of an input field.
func (u *Unit) SetHardwareUnit(field int, symbol string) error {
	if err := u.checkInput(field); err != nil {
		return err
	}
	if err := u.converters[field].SetHardwareUnit(symbol); err != nil {
		return fmt.Errorf("%s: %w", u.path(field), err)
	}
	return nil
}

// SetUserUnit fixes the user unit of an input field.
func (u *Unit) SetUserUnit(field int, symbol string) error {
	if err := u.checkInput(field); err != nil {
		return err
	}
	if err := u.converters[field].SetUserUnit(symbol); err != nil {
		return fmt.Errorf("%s: %w", u.path(field), err)
	}
	return nil
}

// HardwareUnit returns the hardware unit symbol of an input field.
func (u *Unit) HardwareUnit(field int) string {
	if u.checkInput(field) != nil {
		return ""
	}
	return u.converters[field].HardwareUnit().Symbol
}

// UserUnit returns the user unit symbol of an input field.
func (u *Unit) UserUnit(field int) string {
	if u.checkInput(field) != nil {
		return ""
	}
	return u.converters[field].UserUnit().Symbol
}

// Units returns the user unit of every input field followed by "" for each
// extra field.
func (u *Unit) Units() []string {
	out := make([]string, len(u.inputNames)+len(u.extraNames))
	for i, c := range u.converters {
		out[i] = c.UserUnit().Symbol
	}
	return out
}

// SetOffset sets the offset of an input field in user units; nil clears it.
func (u *Unit) SetOffset(field int, offset *float64) error {
	return u.scaling.SetOffset(field, offset)
}

// SetScale sets the scale of an input field; nil clears it, 0 is rejected.
func (u *Unit) SetScale(field int, scale *float64) error {
	return u.scaling.SetScale(field, scale)
}

// Offset returns a copy of the field's offset, or nil.
func (u *Unit) Offset(field int) *float64 { return u.scaling.Offset(field) }

// Scale returns a copy of the field's scale, or nil.
func (u *Unit) Scale(field int) *float64 { return u.scaling.Scale(field) }

// SetLowerLimit sets the configured lower limit of an input field in the
// external frame. The limit is stored in the internal frame, so a negative
// scale stores it as the internal upper bound. NaN clears it.
func (u *Unit) SetLowerLimit(field int, external float64) error {
	return u.setLimit(field, external, true)
}

// SetUpperLimit is the upper-limit counterpart of SetLowerLimit.
func (u *Unit) SetUpperLimit(field int, external float64) error {
	return u.setLimit(field, external, false)
}

func (u *Unit) setLimit(field int, external float64, externalLower bool) error {
	if err := u.checkInput(field); err != nil {
		return err
	}
	internal := math.NaN()
	if !math.IsNaN(external) {
		v, err := u.fieldToInternal(field, external)
		if err != nil {
			return err
		}
		internal = v
	}
	if u.scaling.InternalSide(field, externalLower) {
		return u.validator.SetConfiguredLower(field, internal)
	}
	return u.validator.SetConfiguredUpper(field, internal)
}

// ConfiguredLimits returns the configured limits of an input field in the
// external frame, NaN when unset.
func (u *Unit) ConfiguredLimits(field int) (lower, upper float64) {
	if u.checkInput(field) != nil {
		return math.NaN(), math.NaN()
	}
	cl, cu := u.validator.Configured(field)
	return u.externalLimits(field, cl, cu)
}

// EffectiveLimits returns the intersection of configured and actuator limits
// of an input field in the external frame, NaN when unbounded.
func (u *Unit) EffectiveLimits(field int) (lower, upper float64) {
	if u.checkInput(field) != nil {
		return math.NaN(), math.NaN()
	}
	l, _, h, _ := u.validator.Effective(field)
	return u.externalLimits(field, l, h)
}

func (u *Unit) externalLimits(field int, internalLower, internalUpper float64) (lower, upper float64) {
	toUser := func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		out, err := u.converters[field].ToUser(v)
		if err != nil {
			return math.NaN()
		}
		return out
	}
	return u.scaling.ExternalLimits(field, toUser(internalLower), toUser(internalUpper))
}

// AddValidator registers an extra check over the internal-frame vector. Checks
// run in registration order after the limit checks.
func (u *Unit) AddValidator(c limits.Check) { u.validator.AddCheck(c) }

// SetTolerance sets the retry tolerance of an input field in hardware units;
// nil disables checking for that field.
func (u *Unit) SetTolerance(field int, tol *float64) error {
	if err := u.checkInput(field); err != nil {
		return err
	}
	if tol != nil && (*tol < 0 || math.IsNaN(*tol)) {
		return fmt.Errorf("%s: invalid tolerance %g", u.path(field), *tol)
	}
	if tol != nil {
		v := *tol
		tol = &v
	}
	u.tolerances[field] = tol
	return nil
}

// Tolerance returns a copy of the field's tolerance, or nil.
func (u *Unit) Tolerance(field int) *float64 {
	if u.checkInput(field) != nil || u.tolerances[field] == nil {
		return nil
	}
	v := *u.tolerances[field]
	return &v
}

// SetMaxTries sets the number of move attempts MoveTo makes. With 1 the
// tolerance is never checked.
func (u *Unit) SetMaxTries(n int) error {
	if n < 1 {
		return fmt.Errorf("%s: maxTries must be at least 1, got %d", u.name, n)
	}
	u.maxTries = n
	return nil
}

// MaxTries returns the configured number of move attempts.
func (u *Unit) MaxTries() int { return u.maxTries }

// SetDemandPosition enables or disables reporting the demanded position
// instead of the readback. tol is the staleness tolerance in hardware units.
func (u *Unit) SetDemandPosition(enabled bool, tol float64) {
	u.demandEnabled = enabled
	u.demandTolerance = tol
	u.demandWarned = false
}

// SetPollInterval sets how often waits poll the driver.
func (u *Unit) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = defaultPollInterval
	}
	u.pollInterval = d
}

// SetTimeout bounds MoveTo and WaitWhileBusy; 0 leaves only the context
// deadline.
func (u *Unit) SetTimeout(d time.Duration) { u.timeout = d }

// SetClock replaces the clock used for polling and updates.
func (u *Unit) SetClock(c timeutil.Clock) {
	if c == nil {
		c = timeutil.RealClock{}
	}
	u.clock = c
}

// SetUpdateInterval sets the minimum spacing of subscriber deliveries. It
// takes effect for the first Subscribe.
func (u *Unit) SetUpdateInterval(d time.Duration) { u.updateInterval = d }

// WithInputNames sets the input field names.
func WithInputNames(names ...string) Option {
	return func(u *Unit) error { return u.SetInputNames(names...) }
}

// WithExtraNames sets the extra field names.
func WithExtraNames(names ...string) Option {
	return func(u *Unit) error { return u.SetExtraNames(names...) }
}

// WithOutputFormat sets the output format of every field.
func WithOutputFormat(formats ...string) Option {
	return func(u *Unit) error { return u.SetOutputFormat(formats...) }
}

// WithHardwareUnit sets the hardware unit of every input field.
func WithHardwareUnit(symbol string) Option {
	return func(u *Unit) error {
		for i := range u.inputNames {
			if err := u.SetHardwareUnit(i, symbol); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithUserUnit fixes the user unit of every input field.
func WithUserUnit(symbol string) Option {
	return func(u *Unit) error {
		for i := range u.inputNames {
			if err := u.SetUserUnit(i, symbol); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithOffset sets the offset of one input field.
func WithOffset(field int, offset float64) Option {
	return func(u *Unit) error { return u.SetOffset(field, &offset) }
}

// WithScale sets the scale of one input field.
func WithScale(field int, scale float64) Option {
	return func(u *Unit) error { return u.SetScale(field, &scale) }
}

// WithLimits sets the configured limits of one input field in the external
// frame. Either side may be NaN.
func WithLimits(field int, lower, upper float64) Option {
	return func(u *Unit) error {
		if err := u.SetLowerLimit(field, lower); err != nil {
			return err
		}
		return u.SetUpperLimit(field, upper)
	}
}

// WithTolerance sets the retry tolerance of one input field.
func WithTolerance(field int, tol float64) Option {
	return func(u *Unit) error { return u.SetTolerance(field, &tol) }
}

// WithMaxTries sets the number of move attempts.
func WithMaxTries(n int) Option {
	return func(u *Unit) error { return u.SetMaxTries(n) }
}

// WithDemandPosition enables demand reporting with a staleness tolerance.
func WithDemandPosition(tol float64) Option {
	return func(u *Unit) error {
		u.SetDemandPosition(true, tol)
		return nil
	}
}

// WithPollInterval sets the busy polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(u *Unit) error {
		u.SetPollInterval(d)
		return nil
	}
}

// WithTimeout sets the move timeout.
func WithTimeout(d time.Duration) Option {
	return func(u *Unit) error {
		u.SetTimeout(d)
		return nil
	}
}

// WithClock sets the clock.
func WithClock(c timeutil.Clock) Option {
	return func(u *Unit) error {
		u.SetClock(c)
		return nil
	}
}

// WithUpdateInterval sets the minimum spacing of subscriber deliveries.
func WithUpdateInterval(d time.Duration) Option {
	return func(u *Unit) error {
		u.SetUpdateInterval(d)
		return nil
	}
}

// WithValidator registers an extra validator.
func WithValidator(c limits.Check) Option {
	return func(u *Unit) error {
		u.AddValidator(c)
		return nil
	}
}
