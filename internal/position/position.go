// Package position normalises the shapes a target or readback can take
// (scalar, vector of nullable numbers, free text) into one canonical form.
package position

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is one nullable numeric slot of a position. The zero Value is null,
// meaning "no target for this field".
type Value struct {
	V   float64
	Set bool
}

// Null is the empty slot.
var Null = Value{}

// Some wraps v as a set slot.
func Some(v float64) Value { return Value{V: v, Set: true} }

// Float returns the value and whether it is set.
func (v Value) Float() (float64, bool) { return v.V, v.Set }

// String renders the value, or "null".
func (v Value) String() string {
	if !v.Set {
		return "null"
	}
	return strconv.FormatFloat(v.V, 'g', -1, 64)
}

// Values builds a slice of set Values.
func Values(vs ...float64) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Some(v)
	}
	return out
}

// Kind tags the variant held by a Position.
type Kind int

const (
	KindScalar Kind = iota
	KindVector
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindVector:
		return "vector"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Position is Scalar(float64) | Vector([]Value) | Text(string). Single-field
// positionables report scalars; callers must accept both shapes.
type Position struct {
	kind   Kind
	scalar float64
	vector []Value
	text   string
}

// Scalar builds a scalar position.
func Scalar(v float64) Position { return Position{kind: KindScalar, scalar: v} }

// Vector builds a vector position. The slice is copied.
func Vector(vs ...Value) Position {
	out := make([]Value, len(vs))
	copy(out, vs)
	return Position{kind: KindVector, vector: out}
}

// Floats builds a vector position with every slot set.
func Floats(vs ...float64) Position { return Position{kind: KindVector, vector: Values(vs...)} }

// Text builds a free-text position such as "5 mm".
func Text(s string) Position { return Position{kind: KindText, text: s} }

// Kind returns the variant tag.
func (p Position) Kind() Kind { return p.kind }

// ScalarValue returns the scalar and true if p is a scalar.
func (p Position) ScalarValue() (float64, bool) { return p.scalar, p.kind == KindScalar }

// TextValue returns the text and true if p is text.
func (p Position) TextValue() (string, bool) { return p.text, p.kind == KindText }

// VectorValues returns a copy of the slots and true if p is a vector.
func (p Position) VectorValues() ([]Value, bool) {
	if p.kind != KindVector {
		return nil, false
	}
	out := make([]Value, len(p.vector))
	copy(out, p.vector)
	return out, true
}

// Len is the number of fields p addresses: 1 for scalars and text.
func (p Position) Len() int {
	if p.kind == KindVector {
		return len(p.vector)
	}
	return 1
}

// String renders the position for logs and error messages.
func (p Position) String() string {
	switch p.kind {
	case KindScalar:
		return strconv.FormatFloat(p.scalar, 'g', -1, 64)
	case KindText:
		return p.text
	}
	parts := make([]string, len(p.vector))
	for i, v := range p.vector {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports behavioural equality: a scalar equals a one-slot vector with
// the same value, and text equals the number it parses to. NaN equals NaN.
func Equal(a, b Position) bool {
	av, aerr := ToNumberArray(a)
	bv, berr := ToNumberArray(b)
	if aerr != nil || berr != nil {
		return a.kind == KindText && b.kind == KindText && a.text == b.text
	}
	if len(av) != len(bv) {
		return false
	}
	for i := range av {
		if !sameValue(av[i], bv[i]) {
			return false
		}
	}
	return true
}

func sameValue(a, b Value) bool {
	if a.Set != b.Set {
		return false
	}
	if !a.Set {
		return true
	}
	if math.IsNaN(a.V) && math.IsNaN(b.V) {
		return true
	}
	return a.V == b.V
}

// AllNull reports whether no slot is set.
func AllNull(vs []Value) bool {
	for _, v := range vs {
		if v.Set {
			return false
		}
	}
	return true
}

// Slice returns the slots [from, to) of p as a canonical position. It backs
// indexed and sliced access for adapters layered over the engine.
func Slice(p Position, from, to int) (Position, error) {
	vs, err := ToNumberArray(p)
	if err != nil {
		return Position{}, err
	}
	if from < 0 || to > len(vs) || from > to {
		return Position{}, &CoercionError{Input: p.String(), Reason: fmt.Sprintf("slice [%d:%d] out of range for %d fields", from, to, len(vs))}
	}
	return ToCanonical(vs[from:to]), nil
}
