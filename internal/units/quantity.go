package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Quantity is a value tagged with the unit it is expressed in.
type Quantity struct {
	Value float64
	Unit  Unit
}

// NewQuantity builds a Quantity from a value and a unit symbol.
func NewQuantity(v float64, symbol string) (Quantity, error) {
	u, err := Lookup(symbol)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: u}, nil
}

// String renders the quantity as "<value> <unit>".
func (q Quantity) String() string {
	return formatValue(q.Value, q.Unit)
}

// In converts the quantity to another unit of the same family.
func (q Quantity) In(symbol string) (Quantity, error) {
	to, err := Lookup(symbol)
	if err != nil {
		return Quantity{}, err
	}
	v, err := Convert(q.Value, q.Unit, to)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: to}, nil
}

// ParseQuantity parses a plain number ("5", "-inf", "nan") or a number with a
// unit suffix ("5 mm", "5mm", "1e-3 m"). hasUnit reports whether a unit was
// present.
func ParseQuantity(s string) (q Quantity, hasUnit bool, err error) {
	trimmed := strings.TrimSpace(s)
	if v, perr := strconv.ParseFloat(trimmed, 64); perr == nil {
		return Quantity{Value: v}, false, nil
	}

	// Longest numeric prefix first, so "1e-3m" splits as 1e-3 and "m".
	for i := len(trimmed) - 1; i > 0; i-- {
		suffix := strings.TrimSpace(trimmed[i:])
		if suffix == "" {
			continue
		}
		v, perr := strconv.ParseFloat(strings.TrimSpace(trimmed[:i]), 64)
		if perr != nil {
			continue
		}
		u, lerr := Lookup(suffix)
		if lerr != nil {
			continue
		}
		return Quantity{Value: v, Unit: u}, true, nil
	}
	return Quantity{}, false, &ConversionError{Input: s, Err: ErrNotNumeric}
}

func formatValue(v float64, u Unit) string {
	if u.Symbol == "" {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("%s %s", strconv.FormatFloat(v, 'g', -1, 64), u.Symbol)
}
