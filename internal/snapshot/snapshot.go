// Package snapshot captures the archivable state of a positionable and
// encodes it as protobuf bytes.
package snapshot

import (
	"fmt"
	"slices"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/positioner/internal/motion"
	"github.com/banshee-data/positioner/internal/position"
)

// Version is written into every encoded snapshot.
const Version = 1

// Snapshot is a value copy of a positionable's description and last
// position, independent of the live object.
type Snapshot struct {
	Name         string
	InputNames   []string
	ExtraNames   []string
	OutputFormat []string
	Units        []string
	Busy         bool
	LastPosition position.Position
}

// Capture reads p and returns its snapshot. Positionables that do not report
// units get an empty unit per field.
func Capture(p motion.Positionable) (Snapshot, error) {
	s := Snapshot{
		Name:         p.Name(),
		InputNames:   p.InputNames(),
		ExtraNames:   p.ExtraNames(),
		OutputFormat: p.OutputFormat(),
	}
	if r, ok := p.(motion.UnitsReporter); ok {
		s.Units = r.Units()
	} else {
		s.Units = make([]string, len(s.InputNames)+len(s.ExtraNames))
	}
	busy, err := p.IsBusy()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", s.Name, err)
	}
	s.Busy = busy
	pos, err := p.Position()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", s.Name, err)
	}
	s.LastPosition = pos
	return s, nil
}

// Marshal encodes s deterministically.
func Marshal(s Snapshot) ([]byte, error) {
	st := &structpb.Struct{Fields: map[string]*structpb.Value{
		"version":      structpb.NewNumberValue(Version),
		"name":         structpb.NewStringValue(s.Name),
		"inputNames":   stringList(s.InputNames),
		"extraNames":   stringList(s.ExtraNames),
		"outputFormat": stringList(s.OutputFormat),
		"units":        stringList(s.Units),
		"busy":         structpb.NewBoolValue(s.Busy),
		"lastPosition": encodePosition(s.LastPosition),
	}}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot %s: %w", s.Name, err)
	}
	return b, nil
}

// Unmarshal decodes bytes produced by Marshal.
func Unmarshal(b []byte) (Snapshot, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(b, st); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	f := st.GetFields()
	if v := f["version"].GetNumberValue(); v != Version {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: unsupported version %v", v)
	}
	pos, err := decodePosition(f["lastPosition"])
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Name:         f["name"].GetStringValue(),
		InputNames:   fromStringList(f["inputNames"]),
		ExtraNames:   fromStringList(f["extraNames"]),
		OutputFormat: fromStringList(f["outputFormat"]),
		Units:        fromStringList(f["units"]),
		Busy:         f["busy"].GetBoolValue(),
		LastPosition: pos,
	}, nil
}

// stringList encodes a nil slice as null so an empty one survives decoding.
func stringList(ss []string) *structpb.Value {
	if ss == nil {
		return structpb.NewNullValue()
	}
	vals := make([]*structpb.Value, len(ss))
	for i, s := range ss {
		vals[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func fromStringList(v *structpb.Value) []string {
	lv := v.GetListValue()
	if lv == nil {
		return nil
	}
	list := lv.GetValues()
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.GetStringValue()
	}
	return out
}

// encodePosition stores the variant tag beside the value so a one-element
// vector does not decode as a scalar.
func encodePosition(p position.Position) *structpb.Value {
	fields := map[string]*structpb.Value{"kind": structpb.NewStringValue(p.Kind().String())}
	switch p.Kind() {
	case position.KindScalar:
		v, _ := p.ScalarValue()
		fields["value"] = structpb.NewNumberValue(v)
	case position.KindText:
		s, _ := p.TextValue()
		fields["value"] = structpb.NewStringValue(s)
	case position.KindVector:
		vals, _ := p.VectorValues()
		list := make([]*structpb.Value, len(vals))
		for i, v := range vals {
			if v.Set {
				list[i] = structpb.NewNumberValue(v.V)
			} else {
				list[i] = structpb.NewNullValue()
			}
		}
		fields["value"] = structpb.NewListValue(&structpb.ListValue{Values: list})
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func decodePosition(v *structpb.Value) (position.Position, error) {
	f := v.GetStructValue().GetFields()
	val := f["value"]
	switch kind := f["kind"].GetStringValue(); kind {
	case position.KindScalar.String():
		return position.Scalar(val.GetNumberValue()), nil
	case position.KindText.String():
		return position.Text(val.GetStringValue()), nil
	case position.KindVector.String():
		list := val.GetListValue().GetValues()
		out := make([]position.Value, len(list))
		for i, e := range list {
			if _, null := e.GetKind().(*structpb.Value_NullValue); null {
				continue
			}
			out[i] = position.Some(e.GetNumberValue())
		}
		return position.Vector(out...), nil
	default:
		return position.Position{}, fmt.Errorf("unmarshal snapshot: unknown position kind %q", kind)
	}
}

// Equal reports whether two snapshots hold the same values. Positions are
// compared with position.Equal, so NaN equals NaN.
func Equal(a, b Snapshot) bool {
	return a.Name == b.Name &&
		slices.Equal(a.InputNames, b.InputNames) &&
		slices.Equal(a.ExtraNames, b.ExtraNames) &&
		slices.Equal(a.OutputFormat, b.OutputFormat) &&
		slices.Equal(a.Units, b.Units) &&
		a.Busy == b.Busy &&
		position.Equal(a.LastPosition, b.LastPosition)
}
