package stepper

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
)

const DefaultConfigFile = "stepper.json"

// Config holds the named motors and an optional program.
type Config struct {
	Motors  map[string]MotorConfig `json:"motors"`
	Program []Step                 `json:"program,omitempty"`
}

// MotorConfig holds configuration for a single motor
type MotorConfig struct {
	Port  string `json:"port"`
	Pins  Pins   `json:"pins"`
	Delay int32  `json:"delay_us,omitempty"`
}

// Action is what a program step does.
type Action string

const (
	ActionRotate Action = "rotate" // Steps in Direction, then busy
	ActionSpin   Action = "spin"   // continuous rotation in Direction
	ActionStop   Action = "stop"
	ActionDelay  Action = "delay" // set step delay to Delay
	ActionWait   Action = "wait"  // wait until the motor is ready
)

// Step is one program instruction for a named motor.
type Step struct {
	Motor     string    `json:"motor"`
	Action    Action    `json:"action"`
	Direction Direction `json:"direction,omitempty"`
	Steps     int32     `json:"steps,omitempty"`
	Delay     int32     `json:"delay_us,omitempty"`
}

// ParseDirection parses "left" or "right".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return Left, fmt.Errorf("%w: direction %q", ErrInvalidArgument, s)
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MotorNames returns the configured motor names, sorted.
func (c *Config) MotorNames() []string {
	names := make([]string, 0, len(c.Motors))
	for name := range c.Motors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks pins, delays, the per-port motor limit and that every
// program step names a configured motor.
func (c *Config) Validate() error {
	perPort := make(map[string]int)
	for _, name := range c.MotorNames() {
		mc := c.Motors[name]
		if mc.Port == "" {
			return fmt.Errorf("motor %s: no port", name)
		}
		if _, err := mc.Pins.wire(); err != nil {
			return fmt.Errorf("motor %s: %w", name, err)
		}
		if mc.Delay < 0 {
			return fmt.Errorf("motor %s: %w: delay_us %d", name, ErrInvalidArgument, mc.Delay)
		}
		perPort[mc.Port]++
		if perPort[mc.Port] > MaxMotorsPerPort {
			return fmt.Errorf("port %s: %w", mc.Port, ErrMotorLimitExceeded)
		}
	}

	for i, s := range c.Program {
		if _, ok := c.Motors[s.Motor]; !ok {
			return fmt.Errorf("step %d: unknown motor %q", i, s.Motor)
		}
		switch s.Action {
		case ActionRotate:
			if s.Steps < 0 {
				return fmt.Errorf("step %d: %w: steps %d", i, ErrInvalidArgument, s.Steps)
			}
		case ActionDelay:
			if s.Delay < 1 {
				return fmt.Errorf("step %d: %w: delay_us %d", i, ErrInvalidArgument, s.Delay)
			}
		case ActionSpin, ActionStop, ActionWait:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, s.Action)
		}
	}
	return nil
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads and validates configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
