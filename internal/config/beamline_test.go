package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "axes": [
    {"name": "x", "user_unit": "um", "offset": 1.5, "lower_limit": -10, "upper_limit": 10,
     "tolerance": 0.01, "max_tries": 3, "poll_interval": "5ms", "timeout": "2s",
     "sim": {"unit": "mm", "settle_polls": 1, "upper_limit": 50}},
    {"name": "y", "scale": -2, "demand_tolerance": 0.001},
    {"name": "z"}
  ],
  "groups": [
    {"name": "xy", "members": ["x", "y"], "deferred": true},
    {"name": "stage", "members": ["xy"], "trajectory": ["z"], "continuous": true}
  ]
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadBeamlineConfig(t *testing.T) {
	cfg, err := LoadBeamlineConfig(writeConfig(t, "beamline.json", sampleJSON))
	require.NoError(t, err)
	require.Len(t, cfg.Axes, 3)
	require.Len(t, cfg.Groups, 2)

	x, ok := cfg.Axis("x")
	require.True(t, ok)
	assert.Equal(t, "um", x.GetUserUnit())
	assert.Equal(t, "", x.GetHardwareUnit())
	assert.Equal(t, 1.5, x.GetOffset())
	assert.Equal(t, 1.0, x.GetScale())
	assert.Equal(t, -10.0, x.GetLowerLimit())
	assert.Equal(t, 10.0, x.GetUpperLimit())
	assert.Equal(t, 3, x.GetMaxTries())
	assert.Equal(t, 5*time.Millisecond, x.GetPollInterval())
	assert.Equal(t, 2*time.Second, x.GetTimeout())
	assert.Equal(t, 1, x.GetSim().GetSettlePolls())
	assert.Equal(t, 50.0, x.GetSim().GetUpperLimit())
	assert.True(t, math.IsNaN(x.GetSim().GetLowerLimit()))

	y, _ := cfg.Axis("y")
	assert.Equal(t, -2.0, y.GetScale())
	require.NotNil(t, y.DemandTolerance)

	assert.True(t, cfg.Groups[0].GetDeferred())
	assert.False(t, cfg.Groups[0].GetContinuous())
	assert.True(t, cfg.Groups[1].GetContinuous())

	_, ok = cfg.Axis("nope")
	assert.False(t, ok)
}

func TestAxisDefaults(t *testing.T) {
	a := &AxisConfig{Name: "m"}
	assert.Equal(t, "%5.5g", a.GetOutputFormat())
	assert.Equal(t, 0.0, a.GetOffset())
	assert.Equal(t, 1.0, a.GetScale())
	assert.True(t, math.IsNaN(a.GetLowerLimit()))
	assert.True(t, math.IsNaN(a.GetUpperLimit()))
	assert.Equal(t, 1, a.GetMaxTries())
	assert.Equal(t, 10*time.Millisecond, a.GetPollInterval())
	assert.Zero(t, a.GetTimeout())

	sim := a.GetSim()
	assert.Equal(t, "mm", sim.GetUnit())
	assert.Equal(t, 2, sim.GetSettlePolls())
	assert.Zero(t, sim.GetPosition())
	assert.Zero(t, sim.GetArrivalError())

	// Unparseable durations fall back to the defaults.
	a.PollInterval = ptrString("soon")
	a.Timeout = ptrString("later")
	assert.Equal(t, 10*time.Millisecond, a.GetPollInterval())
	assert.Zero(t, a.GetTimeout())
}

func TestAxisValidate(t *testing.T) {
	tests := []struct {
		name    string
		axis    AxisConfig
		wantErr string
	}{
		{name: "minimal", axis: AxisConfig{Name: "m"}},
		{name: "bad user unit", axis: AxisConfig{UserUnit: ptrString("furlong")}, wantErr: "unknown unit"},
		{name: "bad sim unit", axis: AxisConfig{Sim: &SimConfig{Unit: ptrString("parsec")}}, wantErr: "unknown sim unit"},
		{name: "zero scale", axis: AxisConfig{Scale: ptrFloat64(0)}, wantErr: "non-zero"},
		{name: "inverted limits", axis: AxisConfig{LowerLimit: ptrFloat64(2), UpperLimit: ptrFloat64(1)}, wantErr: "exceeds"},
		{name: "negative tolerance", axis: AxisConfig{Tolerance: ptrFloat64(-1)}, wantErr: "tolerance"},
		{name: "zero tries", axis: AxisConfig{MaxTries: ptrInt(0)}, wantErr: "max_tries"},
		{name: "bad poll", axis: AxisConfig{PollInterval: ptrString("fast")}, wantErr: "poll_interval"},
		{name: "negative poll", axis: AxisConfig{PollInterval: ptrString("-1ms")}, wantErr: "positive"},
		{name: "bad timeout", axis: AxisConfig{Timeout: ptrString("1 hour")}, wantErr: "timeout"},
		{name: "negative settle", axis: AxisConfig{Sim: &SimConfig{SettlePolls: ptrInt(-1)}}, wantErr: "settle_polls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.axis.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBeamlineValidate(t *testing.T) {
	axes := []AxisConfig{{Name: "x"}, {Name: "y"}}
	tests := []struct {
		name    string
		cfg     BeamlineConfig
		wantErr string
	}{
		{name: "no axes", cfg: BeamlineConfig{}, wantErr: "at least one axis"},
		{name: "unnamed axis", cfg: BeamlineConfig{Axes: []AxisConfig{{}}}, wantErr: "no name"},
		{name: "duplicate axis", cfg: BeamlineConfig{Axes: []AxisConfig{{Name: "x"}, {Name: "x"}}}, wantErr: "duplicate"},
		{
			name:    "group shadows axis",
			cfg:     BeamlineConfig{Axes: axes, Groups: []GroupConfig{{Name: "x", Members: []string{"y"}}}},
			wantErr: "duplicate",
		},
		{
			name:    "empty group",
			cfg:     BeamlineConfig{Axes: axes, Groups: []GroupConfig{{Name: "g"}}},
			wantErr: "no members",
		},
		{
			name:    "forward reference",
			cfg:     BeamlineConfig{Axes: axes, Groups: []GroupConfig{{Name: "a", Members: []string{"b"}}, {Name: "b", Members: []string{"x"}}}},
			wantErr: "unknown member",
		},
		{
			name: "trajectory group member",
			cfg: BeamlineConfig{Axes: axes, Groups: []GroupConfig{
				{Name: "a", Members: []string{"x"}},
				{Name: "b", Trajectory: []string{"a"}},
			}},
			wantErr: "is not an axis",
		},
		{
			name:    "member also on trajectory",
			cfg:     BeamlineConfig{Axes: axes, Groups: []GroupConfig{{Name: "g", Members: []string{"x"}, Trajectory: []string{"x", "y"}}}},
			wantErr: "listed more than once",
		},
		{
			name:    "repeated member",
			cfg:     BeamlineConfig{Axes: axes, Groups: []GroupConfig{{Name: "g", Members: []string{"x", "x"}}}},
			wantErr: "listed more than once",
		},
		{
			name:    "continuous without trajectory",
			cfg:     BeamlineConfig{Axes: axes, Groups: []GroupConfig{{Name: "g", Members: []string{"x"}, Continuous: ptrBool(true)}}},
			wantErr: "continuous requires",
		},
		{
			name: "nested groups",
			cfg: BeamlineConfig{Axes: axes, Groups: []GroupConfig{
				{Name: "a", Members: []string{"x"}},
				{Name: "b", Members: []string{"a", "y"}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadBeamlineConfigRejects(t *testing.T) {
	_, err := LoadBeamlineConfig(writeConfig(t, "beamline.yaml", sampleJSON))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadBeamlineConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	_, err = LoadBeamlineConfig(writeConfig(t, "broken.json", `{"axes": [`))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = LoadBeamlineConfig(writeConfig(t, "invalid.json", `{"axes": [{"name": "x", "max_tries": 0}]}`))
	assert.ErrorContains(t, err, "invalid configuration")

	big := `{"axes": [{"name": "x"}], "pad": "` + strings.Repeat("a", 1024*1024) + `"}`
	_, err = LoadBeamlineConfig(writeConfig(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := LoadBeamlineConfig(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Axes)
}
