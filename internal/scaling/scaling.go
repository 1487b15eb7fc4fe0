// Package scaling applies per-field offset and scale corrections between the
// external (caller) frame and the internal frame of a positionable.
//
//	internal = (external - offset) / scale
//	external = internal*scale + offset
//
// Offsets and scales are expressed in user units. An unset offset is 0 and an
// unset scale is 1; the identity short-circuits so values pass through
// bit-for-bit.
package scaling

import (
	"errors"
	"fmt"

	"github.com/banshee-data/positioner/internal/position"
)

// ErrZeroScale is returned when a scale of 0 is configured.
var ErrZeroScale = errors.New("scale must be non-zero")

// OffsetScaling holds the nullable offset and scale of each input field.
// It is configured before use and is not safe for concurrent mutation.
type OffsetScaling struct {
	offsets []*float64
	scales  []*float64
}

// New returns an identity OffsetScaling for n fields.
func New(n int) *OffsetScaling {
	s := &OffsetScaling{}
	s.Resize(n)
	return s
}

// Fields returns the number of configured fields.
func (s *OffsetScaling) Fields() int { return len(s.offsets) }

// Resize changes the number of fields, keeping existing settings for fields
// that survive and leaving new fields at the identity.
func (s *OffsetScaling) Resize(n int) {
	offsets := make([]*float64, n)
	scales := make([]*float64, n)
	copy(offsets, s.offsets)
	copy(scales, s.scales)
	s.offsets, s.scales = offsets, scales
}

func (s *OffsetScaling) checkField(field int) error {
	if field < 0 || field >= len(s.offsets) {
		return fmt.Errorf("field %d out of range for %d fields", field, len(s.offsets))
	}
	return nil
}

// SetOffset sets or clears (nil) the offset of one field.
func (s *OffsetScaling) SetOffset(field int, offset *float64) error {
	if err := s.checkField(field); err != nil {
		return err
	}
	s.offsets[field] = clone(offset)
	return nil
}

// SetScale sets or clears (nil) the scale of one field.
func (s *OffsetScaling) SetScale(field int, scale *float64) error {
	if err := s.checkField(field); err != nil {
		return err
	}
	if scale != nil && *scale == 0 {
		return fmt.Errorf("field %d: %w", field, ErrZeroScale)
	}
	s.scales[field] = clone(scale)
	return nil
}

// Offset returns the offset of a field, nil when unset.
func (s *OffsetScaling) Offset(field int) *float64 {
	if s.checkField(field) != nil {
		return nil
	}
	return clone(s.offsets[field])
}

// Scale returns the scale of a field, nil when unset.
func (s *OffsetScaling) Scale(field int) *float64 {
	if s.checkField(field) != nil {
		return nil
	}
	return clone(s.scales[field])
}

// Negative reports whether the field's scale is negative, which reverses
// the ordering of its limits between frames.
func (s *OffsetScaling) Negative(field int) bool {
	sc := s.Scale(field)
	return sc != nil && *sc < 0
}

func (s *OffsetScaling) params(field int) (offset, scale float64, identity bool) {
	offset, scale = 0, 1
	if field < 0 || field >= len(s.offsets) {
		return offset, scale, true
	}
	if o := s.offsets[field]; o != nil {
		offset = *o
	}
	if sc := s.scales[field]; sc != nil {
		scale = *sc
	}
	return offset, scale, offset == 0 && scale == 1
}

// ToInternalValue removes the field's offset and scale from v.
func (s *OffsetScaling) ToInternalValue(field int, v float64) float64 {
	offset, scale, identity := s.params(field)
	if identity {
		return v
	}
	return (v - offset) / scale
}

// ToExternalValue applies the field's scale and offset to v.
func (s *OffsetScaling) ToExternalValue(field int, v float64) float64 {
	offset, scale, identity := s.params(field)
	if identity {
		return v
	}
	return v*scale + offset
}

// ToInternal converts external values element-wise. Null slots and slots
// beyond the configured fields pass through unchanged.
func (s *OffsetScaling) ToInternal(external []position.Value) []position.Value {
	out := make([]position.Value, len(external))
	for i, v := range external {
		if !v.Set {
			out[i] = v
			continue
		}
		out[i] = position.Some(s.ToInternalValue(i, v.V))
	}
	return out
}

// ToExternal converts internal values element-wise. Null slots and slots
// beyond the configured fields pass through unchanged.
func (s *OffsetScaling) ToExternal(internal []position.Value) []position.Value {
	out := make([]position.Value, len(internal))
	for i, v := range internal {
		if !v.Set {
			out[i] = v
			continue
		}
		out[i] = position.Some(s.ToExternalValue(i, v.V))
	}
	return out
}

// ExternalLimits maps a field's internal-frame bounds to the external frame.
// Under a negative scale the internal upper bound becomes the external lower
// bound and vice versa. NaN (unset) bounds stay NaN.
func (s *OffsetScaling) ExternalLimits(field int, internalLower, internalUpper float64) (lower, upper float64) {
	lower = s.ToExternalValue(field, internalLower)
	upper = s.ToExternalValue(field, internalUpper)
	if s.Negative(field) {
		return upper, lower
	}
	return lower, upper
}

// InternalSide reports which internal bound an external-frame lower (true)
// or upper (false) limit lands on.
func (s *OffsetScaling) InternalSide(field int, externalLower bool) (internalLower bool) {
	if s.Negative(field) {
		return !externalLower
	}
	return externalLower
}

func clone(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
