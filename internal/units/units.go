// Package units converts field values between the unit an actuator reports in
// (hardware units) and the unit exposed to callers (user units).
package units

import (
	"math"
	"sort"
	"strings"
)

// Family is the physical quantity a unit measures. Conversions are only
// defined between units of the same family.
type Family string

const (
	Length Family = "length"
	Angle  Family = "angle"
	Time   Family = "time"
	Energy Family = "energy"
	Count  Family = "count"
)

// Unit symbols
const (
	Metre      = "m"
	Kilometre  = "km"
	Centimetre = "cm"
	Millimetre = "mm"
	Micron     = "um"
	Nanometre  = "nm"
	Picometre  = "pm"
	Angstrom   = "Ang"

	Radian      = "rad"
	Milliradian = "mrad"
	Microradian = "urad"
	Degree      = "deg"
	Millidegree = "mdeg"
	Arcsecond   = "arcsec"

	Second      = "s"
	Millisecond = "ms"
	Microsecond = "us"
	Nanosecond  = "ns"

	ElectronVolt     = "eV"
	KiloElectronVolt = "keV"
	MegaElectronVolt = "MeV"

	Dimensionless = ""
)

// Unit is a named unit of one family. A value v in this unit equals
// v * mult * 10^pow10 in the family's base unit; keeping the decimal
// exponent separate makes metric prefix conversions exact.
type Unit struct {
	Symbol string
	Family Family
	mult   float64
	pow10  int
}

// String returns the unit symbol.
func (u Unit) String() string {
	return u.Symbol
}

var registry = map[string]Unit{}

// aliases maps alternative spellings onto canonical symbols.
var aliases = map[string]string{
	"micron":      Micron,
	"microns":     Micron,
	"µm":          Micron,
	"μm":          Micron,
	"angstrom":    Angstrom,
	"Angstrom":    Angstrom,
	"Å":           Angstrom,
	"degree":      Degree,
	"degrees":     Degree,
	"°":           Degree,
	"millidegree": Millidegree,
	"radian":      Radian,
	"radians":     Radian,
	"µrad":        Microradian,
	"μrad":        Microradian,
	"sec":         Second,
	"µs":          Microsecond,
	"counts":      Dimensionless,
}

func register(symbol string, family Family, mult float64, pow10 int) {
	registry[symbol] = Unit{Symbol: symbol, Family: family, mult: mult, pow10: pow10}
}

func init() {
	register(Kilometre, Length, 1, 3)
	register(Metre, Length, 1, 0)
	register(Centimetre, Length, 1, -2)
	register(Millimetre, Length, 1, -3)
	register(Micron, Length, 1, -6)
	register(Nanometre, Length, 1, -9)
	register(Angstrom, Length, 1, -10)
	register(Picometre, Length, 1, -12)

	register(Radian, Angle, 1, 0)
	register(Milliradian, Angle, 1, -3)
	register(Microradian, Angle, 1, -6)
	register(Degree, Angle, math.Pi/180, 0)
	register(Millidegree, Angle, math.Pi/180, -3)
	register(Arcsecond, Angle, math.Pi/648000, 0)

	register(Second, Time, 1, 0)
	register(Millisecond, Time, 1, -3)
	register(Microsecond, Time, 1, -6)
	register(Nanosecond, Time, 1, -9)

	register(MegaElectronVolt, Energy, 1, 6)
	register(KiloElectronVolt, Energy, 1, 3)
	register(ElectronVolt, Energy, 1, 0)

	register(Dimensionless, Count, 1, 0)
}

// Lookup returns the unit for a symbol or one of its aliases.
func Lookup(symbol string) (Unit, error) {
	s := strings.TrimSpace(symbol)
	if canonical, ok := aliases[s]; ok {
		s = canonical
	}
	u, ok := registry[s]
	if !ok {
		return Unit{}, &ConversionError{Input: symbol, Err: ErrUnknownUnit}
	}
	return u, nil
}

// IsValid checks if the given symbol names a known unit.
func IsValid(symbol string) bool {
	_, err := Lookup(symbol)
	return err == nil
}

// AcceptableUnits returns the canonical symbols of a family, largest unit
// first. These are the user units a field of that family may be set to.
func AcceptableUnits(f Family) []string {
	var found []Unit
	for _, u := range registry {
		if u.Family == f {
			found = append(found, u)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].magnitude() > found[j].magnitude()
	})
	out := make([]string, len(found))
	for i, u := range found {
		out[i] = u.Symbol
	}
	return out
}

// AcceptableUnitsString returns a comma-separated list of the units of a
// family for error messages.
func AcceptableUnitsString(f Family) string {
	return strings.Join(AcceptableUnits(f), ", ")
}

func (u Unit) magnitude() float64 {
	return u.mult * math.Pow10(u.pow10)
}

// Convert converts v from one unit to another of the same family. Identical
// units return v unchanged; infinities and NaN propagate.
func Convert(v float64, from, to Unit) (float64, error) {
	if from.Family != to.Family {
		return 0, &ConversionError{
			Input: formatValue(v, from),
			Err:   ErrFamilyMismatch,
			Detail: "cannot express " + string(from.Family) + " in " +
				to.Symbol + " (" + string(to.Family) + ")",
		}
	}
	if from == to {
		return v, nil
	}
	out := v
	if from.mult != to.mult {
		out = out * from.mult / to.mult
	}
	switch exp := from.pow10 - to.pow10; {
	case exp > 0:
		out *= math.Pow10(exp)
	case exp < 0:
		out /= math.Pow10(-exp)
	}
	return out, nil
}
