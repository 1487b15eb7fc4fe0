package position

import (
	"fmt"
	"strconv"
	"strings"
)

// CoercionError reports a position whose shape or elements cannot be
// represented as an ordered array of nullable numbers.
type CoercionError struct {
	Input string
	// Element is the 1-based offending element, 0 when the whole input is
	// at fault.
	Element int
	Reason  string
}

func (e *CoercionError) Error() string {
	if e.Element > 0 {
		return fmt.Sprintf("cannot coerce %s: element %d: %s", e.Input, e.Element-1, e.Reason)
	}
	return fmt.Sprintf("cannot coerce %s: %s", e.Input, e.Reason)
}

// FromAny converts a caller-supplied value into a Position. Numbers become
// scalars, strings become text (parsed later so unit suffixes survive),
// slices become vectors with nil elements as null slots.
func FromAny(x any) (Position, error) {
	switch v := x.(type) {
	case nil:
		return Vector(Null), nil
	case Position:
		return v, nil
	case *Position:
		if v == nil {
			return Vector(Null), nil
		}
		return *v, nil
	case Value:
		if !v.Set {
			return Vector(Null), nil
		}
		return Scalar(v.V), nil
	case string:
		return Text(v), nil
	case []Value:
		return Vector(v...), nil
	case []float64:
		return Floats(v...), nil
	case []int:
		out := make([]Value, len(v))
		for i, n := range v {
			out[i] = Some(float64(n))
		}
		return Vector(out...), nil
	case []*float64:
		out := make([]Value, len(v))
		for i, p := range v {
			if p != nil {
				out[i] = Some(*p)
			}
		}
		return Vector(out...), nil
	case []string:
		out := make([]Value, len(v))
		for i, s := range v {
			f, err := parseElement(s)
			if err != nil {
				return Position{}, &CoercionError{Input: fmt.Sprintf("%q", v), Element: i + 1, Reason: err.Error()}
			}
			out[i] = f
		}
		return Vector(out...), nil
	case []any:
		out := make([]Value, len(v))
		for i, elem := range v {
			f, err := elementFromAny(elem)
			if err != nil {
				return Position{}, &CoercionError{Input: fmt.Sprintf("%v", v), Element: i + 1, Reason: err.Error()}
			}
			out[i] = f
		}
		return Vector(out...), nil
	}
	if f, ok := toFloat(x); ok {
		return Scalar(f), nil
	}
	return Position{}, &CoercionError{Input: fmt.Sprintf("%v", x), Reason: fmt.Sprintf("unsupported type %T", x)}
}

func elementFromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null, nil
	case Value:
		return v, nil
	case *float64:
		if v == nil {
			return Null, nil
		}
		return Some(*v), nil
	case string:
		return parseElement(v)
	}
	if f, ok := toFloat(x); ok {
		return Some(f), nil
	}
	return Null, fmt.Errorf("unsupported element type %T", x)
}

func parseElement(s string) (Value, error) {
	t := strings.TrimSpace(s)
	if t == "null" || t == "None" {
		return Null, nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return Null, fmt.Errorf("%q is not numeric", s)
	}
	return Some(f), nil
}

func toFloat(x any) (float64, bool) {
	switch v := x.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// ToNumberArray unwraps p into an ordered array of nullable numbers: a
// scalar becomes one slot, a vector is copied, text must parse as a number.
func ToNumberArray(p Position) ([]Value, error) {
	switch p.kind {
	case KindScalar:
		return []Value{Some(p.scalar)}, nil
	case KindVector:
		out := make([]Value, len(p.vector))
		copy(out, p.vector)
		return out, nil
	case KindText:
		v, err := parseElement(p.text)
		if err != nil {
			return nil, &CoercionError{Input: fmt.Sprintf("%q", p.text), Reason: err.Error()}
		}
		return []Value{v}, nil
	}
	return nil, &CoercionError{Input: p.String(), Reason: "unknown position kind " + p.kind.String()}
}

// ToCanonical produces the native return shape: a scalar for one set slot,
// otherwise a vector.
func ToCanonical(vs []Value) Position {
	if len(vs) == 1 && vs[0].Set {
		return Scalar(vs[0].V)
	}
	return Vector(vs...)
}

// Coerce is FromAny followed by ToNumberArray.
func Coerce(x any) ([]Value, error) {
	p, err := FromAny(x)
	if err != nil {
		return nil, err
	}
	return ToNumberArray(p)
}
