package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverterDefaultsUserToHardware(t *testing.T) {
	c, err := NewConverter(Millimetre)
	require.NoError(t, err)

	assert.Equal(t, Millimetre, c.HardwareUnit().Symbol)
	assert.Equal(t, Millimetre, c.UserUnit().Symbol)

	// User unit follows the hardware unit until fixed.
	require.NoError(t, c.SetHardwareUnit(Micron))
	assert.Equal(t, Micron, c.UserUnit().Symbol)
}

func TestConverterFixedUserUnitSurvivesHardwareChange(t *testing.T) {
	c, err := NewConverter(Millimetre)
	require.NoError(t, err)
	require.NoError(t, c.SetUserUnit(Micron))

	require.NoError(t, c.SetHardwareUnit(Metre))
	assert.Equal(t, Metre, c.HardwareUnit().Symbol)
	assert.Equal(t, Micron, c.UserUnit().Symbol)

	err = c.SetHardwareUnit(Degree)
	assert.ErrorIs(t, err, ErrFamilyMismatch)
	assert.Equal(t, Metre, c.HardwareUnit().Symbol, "failed change must not apply")
}

func TestConverterRejectsWrongFamilyAtConfiguration(t *testing.T) {
	c, err := NewConverter(Millimetre)
	require.NoError(t, err)

	err = c.SetUserUnit(Degree)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFamilyMismatch)
	assert.Contains(t, err.Error(), "acceptable units: km, m, cm, mm, um, nm, Ang, pm")

	_, err = NewConverter("parsec")
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestConverterToHardware(t *testing.T) {
	c := MustConverter(Millimetre, Micron)

	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{"float in user units", 1500.0, 1.5},
		{"int in user units", 2000, 2},
		{"numeric string", "-1000", -1},
		{"string with unit", "5 mm", 5},
		{"string with other unit", "0.01 m", 10},
		{"quantity", Quantity{Value: 3, Unit: mustLookup(Millimetre)}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ToHardware(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestConverterToUser(t *testing.T) {
	c := MustConverter(Millimetre, Micron)

	got, err := c.ToUser(1.5)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, got)

	got, err = c.ToUser("2 um")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = c.ToUser(math.Inf(-1))
	require.NoError(t, err)
	assert.True(t, math.IsInf(got, -1))
}

func TestConverterRejectsUnconvertible(t *testing.T) {
	c := MustConverter(Millimetre, Micron)

	_, err := c.ToHardware("five")
	assert.ErrorIs(t, err, ErrNotNumeric)

	_, err = c.ToHardware("5 deg")
	assert.ErrorIs(t, err, ErrFamilyMismatch)

	_, err = c.ToHardware([]int{1})
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestConverterIdentityIsExact(t *testing.T) {
	c := MustConverter(Degree, Degree)
	v := 0.1 + 0.2
	got, err := c.ToHardware(v)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestFormat(t *testing.T) {
	mm := mustLookup(Millimetre)
	assert.Equal(t, "1.5mm", Format("%g", 1.5, mm))
	assert.Equal(t, "    3", Format("%5.5g", 3, mustLookup(Dimensionless)))
}

func mustLookup(symbol string) Unit {
	u, err := Lookup(symbol)
	if err != nil {
		panic(err)
	}
	return u
}

func TestConverterNormalize(t *testing.T) {
	c := MustConverter(Millimetre, Micron)

	got, err := c.Normalize(250.0)
	require.NoError(t, err)
	assert.Equal(t, 250.0, got, "bare values are already in user units")

	got, err = c.Normalize("0.5 mm")
	require.NoError(t, err)
	assert.Equal(t, 500.0, got)

	_, err = c.Normalize("1 rad")
	assert.ErrorIs(t, err, ErrFamilyMismatch)
}
