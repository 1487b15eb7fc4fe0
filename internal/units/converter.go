package units

import (
	"fmt"
	"strconv"
)

// Converter converts one field's values between its hardware unit and its
// user unit. The user unit follows the hardware unit until it is set
// explicitly; after that, changing the hardware unit leaves it alone.
//
// A Converter is configured before use and is not safe for concurrent
// reconfiguration.
type Converter struct {
	hardware  Unit
	user      Unit
	userFixed bool
}

// NewConverter returns a Converter whose hardware and user units are both
// the given symbol.
func NewConverter(hardware string) (*Converter, error) {
	c := &Converter{}
	if err := c.SetHardwareUnit(hardware); err != nil {
		return nil, err
	}
	return c, nil
}

// MustConverter is NewConverter for statically known symbols.
func MustConverter(hardware, user string) *Converter {
	c, err := NewConverter(hardware)
	if err != nil {
		panic(err)
	}
	if user != hardware {
		if err := c.SetUserUnit(user); err != nil {
			panic(err)
		}
	}
	return c
}

// HardwareUnit returns the unit the actuator reports in.
func (c *Converter) HardwareUnit() Unit { return c.hardware }

// UserUnit returns the unit exposed to callers.
func (c *Converter) UserUnit() Unit { return c.user }

// SetHardwareUnit changes the hardware unit. If the user unit has been fixed
// it must belong to the same family.
func (c *Converter) SetHardwareUnit(symbol string) error {
	u, err := Lookup(symbol)
	if err != nil {
		return err
	}
	if c.userFixed && u.Family != c.user.Family {
		return &ConversionError{
			Input:  symbol,
			Err:    ErrFamilyMismatch,
			Detail: fmt.Sprintf("user unit %q is %s", c.user.Symbol, c.user.Family),
		}
	}
	c.hardware = u
	if !c.userFixed {
		c.user = u
	}
	return nil
}

// SetUserUnit fixes the user unit. It must measure the same quantity as the
// hardware unit; the acceptable choices are AcceptableUnits(hardware family).
func (c *Converter) SetUserUnit(symbol string) error {
	u, err := Lookup(symbol)
	if err != nil {
		return err
	}
	if u.Family != c.hardware.Family {
		return &ConversionError{
			Input: symbol,
			Err:   ErrFamilyMismatch,
			Detail: fmt.Sprintf("hardware unit %q is %s; acceptable units: %s",
				c.hardware.Symbol, c.hardware.Family, AcceptableUnitsString(c.hardware.Family)),
		}
	}
	c.user = u
	c.userFixed = true
	return nil
}

// ToHardware converts v to hardware units. A value without an embedded unit
// is taken to be in user units.
func (c *Converter) ToHardware(v any) (float64, error) {
	return c.convert(v, c.user, c.hardware)
}

// ToUser converts v to user units. A value without an embedded unit is taken
// to be in hardware units.
func (c *Converter) ToUser(v any) (float64, error) {
	return c.convert(v, c.hardware, c.user)
}

// Normalize returns v in user units: an embedded unit is converted, a bare
// value is taken to be in user units already.
func (c *Converter) Normalize(v any) (float64, error) {
	return c.convert(v, c.user, c.user)
}

func (c *Converter) convert(v any, implicit, target Unit) (float64, error) {
	q, hasUnit, err := toQuantity(v)
	if err != nil {
		return 0, err
	}
	from := implicit
	if hasUnit {
		from = q.Unit
	}
	return Convert(q.Value, from, target)
}

func toQuantity(v any) (Quantity, bool, error) {
	switch x := v.(type) {
	case float64:
		return Quantity{Value: x}, false, nil
	case float32:
		return Quantity{Value: float64(x)}, false, nil
	case int:
		return Quantity{Value: float64(x)}, false, nil
	case int32:
		return Quantity{Value: float64(x)}, false, nil
	case int64:
		return Quantity{Value: float64(x)}, false, nil
	case uint:
		return Quantity{Value: float64(x)}, false, nil
	case uint32:
		return Quantity{Value: float64(x)}, false, nil
	case uint64:
		return Quantity{Value: float64(x)}, false, nil
	case Quantity:
		return x, true, nil
	case *Quantity:
		if x == nil {
			break
		}
		return *x, true, nil
	case string:
		return ParseQuantity(x)
	case fmt.Stringer:
		return ParseQuantity(x.String())
	}
	return Quantity{}, false, &ConversionError{Input: fmt.Sprintf("%v", v), Err: ErrNotNumeric}
}

// FormatFloat renders v the way quantities are printed in error messages.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
