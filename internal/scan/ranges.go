// Package scan runs step scans: a positionable is moved through a list of
// points and read back at each one, with the scan lifecycle hooks called
// around every point.
package scan

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/positioner/internal/position"
)

// maxValues bounds the points generated from one range or grid.
const maxValues = 10000

// RangeSpec is an inclusive "min:max:step" range. Min may exceed Max, in
// which case the range runs downward.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	if step <= 0 || math.IsInf(step, 0) || math.IsNaN(step) {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", step)
	}
	if math.IsInf(min, 0) || math.IsInf(max, 0) || math.IsNaN(min) || math.IsNaN(max) {
		return RangeSpec{}, fmt.Errorf("range bounds must be finite, got %q", s)
	}

	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// Values generates the points from Min towards Max inclusive. Each value is
// computed from its index, not accumulated, and rounded to 12 significant
// digits so 0:0.3:0.1 ends on 0.3.
func (r RangeSpec) Values() ([]float64, error) {
	if r.Step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %f", r.Step)
	}
	dir := 1.0
	if r.Min > r.Max {
		dir = -1
	}
	span := math.Abs(r.Max - r.Min)
	steps := math.Floor(span/r.Step + 1e-9)
	if steps+1 > maxValues {
		return nil, fmt.Errorf("range %g:%g:%g would generate more than %d points", r.Min, r.Max, r.Step, maxValues)
	}
	n := int(steps) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = round12(r.Min + dir*float64(i)*r.Step)
	}
	return out, nil
}

func round12(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 12, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// ParseValues parses either a "min:max:step" range or a comma-separated
// list of numbers. An empty string yields no values.
func ParseValues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		return spec.Values()
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Grid expands one spec per field into the cartesian product of their
// values. The last field varies fastest.
func Grid(specs ...string) ([][]float64, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	values := make([][]float64, len(specs))
	total := 1
	for i, spec := range specs {
		v, err := ParseValues(spec)
		if err != nil {
			return nil, fmt.Errorf("parsing spec %d (%q): %w", i, spec, err)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("spec %d is empty", i)
		}
		values[i] = v
		total *= len(v)
		if total > maxValues {
			return nil, fmt.Errorf("grid would exceed %d points", maxValues)
		}
	}

	result := make([][]float64, total)
	for i := range result {
		result[i] = make([]float64, len(specs))
	}
	repeat := 1
	for dim := len(specs) - 1; dim >= 0; dim-- {
		cycle := len(values[dim])
		for i := 0; i < total; i++ {
			result[i][dim] = values[dim][(i/repeat)%cycle]
		}
		repeat *= cycle
	}
	return result, nil
}

// Points turns grid rows into move targets: a scalar for one field, a
// vector otherwise.
func Points(rows [][]float64) []position.Position {
	out := make([]position.Position, len(rows))
	for i, row := range rows {
		if len(row) == 1 {
			out[i] = position.Scalar(row[0])
			continue
		}
		out[i] = position.Floats(row...)
	}
	return out
}
