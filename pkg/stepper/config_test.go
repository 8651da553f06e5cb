package stepper_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/stepper/pkg/stepper"
)

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepper.json")
	cfg := &stepper.Config{
		Motors: map[string]stepper.MotorConfig{
			"pan":  {Port: "/dev/ttyUSB0", Pins: stepper.Pins{8, 9, 10, 11}},
			"tilt": {Port: "/dev/ttyUSB0", Pins: stepper.Pins{4, 5, 6, 7}, Delay: 2000},
		},
		Program: []stepper.Step{
			{Motor: "pan", Action: stepper.ActionRotate, Direction: stepper.Right, Steps: 200},
			{Motor: "tilt", Action: stepper.ActionDelay, Delay: 800},
		},
	}

	require.False(t, stepper.ConfigExists(path))
	require.NoError(t, cfg.SaveTo(path))
	require.True(t, stepper.ConfigExists(path))

	loaded, err := stepper.LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, []string{"pan", "tilt"}, loaded.MotorNames())
}

func TestConfig_ParseJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepper.json")
	data := `{
  "motors": {"x": {"port": "COM3", "pins": [2, 3, 4, 5]}},
  "program": [
    {"motor": "x", "action": "rotate", "direction": "left", "steps": 10},
    {"motor": "x", "action": "spin", "direction": "r"},
    {"motor": "x", "action": "wait"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := stepper.LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, stepper.Pins{2, 3, 4, 5}, cfg.Motors["x"].Pins)
	require.Len(t, cfg.Program, 3)
	assert.Equal(t, stepper.Left, cfg.Program[0].Direction)
	assert.Equal(t, stepper.Right, cfg.Program[1].Direction)
	assert.Equal(t, stepper.ActionWait, cfg.Program[2].Action)
}

func TestConfig_Validate(t *testing.T) {
	motor := stepper.MotorConfig{Port: "/dev/ttyUSB0", Pins: testPins}

	motors := func(names ...string) map[string]stepper.MotorConfig {
		out := make(map[string]stepper.MotorConfig)
		for _, n := range names {
			out[n] = motor
		}
		return out
	}

	tests := []struct {
		name    string
		cfg     stepper.Config
		wantErr bool
		is      error
	}{
		{"ok", stepper.Config{Motors: motors("a", "b", "c")}, false, nil},
		{"no port", stepper.Config{Motors: map[string]stepper.MotorConfig{"a": {Pins: testPins}}}, true, nil},
		{"bad pin", stepper.Config{Motors: map[string]stepper.MotorConfig{"a": {Port: "p", Pins: stepper.Pins{-1, 0, 0, 0}}}}, true, stepper.ErrInvalidArgument},
		{"too many", stepper.Config{Motors: motors("a", "b", "c", "d")}, true, stepper.ErrMotorLimitExceeded},
		{"unknown motor", stepper.Config{Motors: motors("a"), Program: []stepper.Step{{Motor: "b", Action: stepper.ActionStop}}}, true, nil},
		{"bad action", stepper.Config{Motors: motors("a"), Program: []stepper.Step{{Motor: "a", Action: "jump"}}}, true, nil},
		{"negative steps", stepper.Config{Motors: motors("a"), Program: []stepper.Step{{Motor: "a", Action: stepper.ActionRotate, Steps: -5}}}, true, stepper.ErrInvalidArgument},
		{"zero delay", stepper.Config{Motors: motors("a"), Program: []stepper.Step{{Motor: "a", Action: stepper.ActionDelay}}}, true, stepper.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := stepper.ParseDirection("LEFT")
	require.NoError(t, err)
	assert.Equal(t, stepper.Left, d)

	_, err = stepper.ParseDirection("up")
	assert.ErrorIs(t, err, stepper.ErrInvalidArgument)
}
