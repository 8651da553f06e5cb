package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/stepper/pkg/logging"
	"github.com/gwillem/stepper/pkg/stepper"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"stepper.json" description:"Motor configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log every frame sent"`
	DevLog  bool   `long:"dev-log" env:"STEPPER_DEV_LOG" description:"Human readable log output instead of JSON"`

	Ports  PortsCommand  `command:"ports" description:"List serial ports and configured motors"`
	Setup  SetupCommand  `command:"setup" description:"Configure motors interactively"`
	Rotate RotateCommand `command:"rotate" description:"Rotate one motor by a number of steps"`
	Spin   SpinCommand   `command:"spin" description:"Rotate one motor continuously for a while"`
	Run    RunCommand    `command:"run" description:"Run the configured program"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "stepper - drive up to three stepper motors per serial port"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, level, opts.DevLog)
}

func newPool(logger *slog.Logger) *stepper.Pool {
	return stepper.NewPool(stepper.WithLogger(logger))
}

// MotorFlags select a motor either by name from the config file or by
// explicit port and pins.
type MotorFlags struct {
	Motor string `short:"m" long:"motor" description:"Motor name from the config file"`
	Port  string `short:"p" long:"port" description:"Serial port (with --pins)"`
	Pins  string `long:"pins" description:"Four comma separated controller pins, e.g. 8,9,10,11"`
}

func (f MotorFlags) resolve(configPath string) (port string, pins stepper.Pins, delay int32, err error) {
	if f.Motor != "" {
		cfg, err := stepper.LoadConfigFrom(configPath)
		if err != nil {
			return "", pins, 0, fmt.Errorf("load config: %w", err)
		}
		mc, ok := cfg.Motors[f.Motor]
		if !ok {
			return "", pins, 0, fmt.Errorf("motor %q not in %s", f.Motor, configPath)
		}
		return mc.Port, mc.Pins, mc.Delay, nil
	}

	if f.Port == "" || f.Pins == "" {
		return "", pins, 0, fmt.Errorf("either --motor or both --port and --pins are required")
	}
	pins, err = parsePins(f.Pins)
	return f.Port, pins, 0, err
}

func parsePins(s string) (stepper.Pins, error) {
	var pins stepper.Pins
	parts := strings.Split(s, ",")
	if len(parts) != len(pins) {
		return pins, fmt.Errorf("need %d pins, got %q", len(pins), s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return pins, fmt.Errorf("pin %d: %w", i, err)
		}
		if v < 0 || v > 255 {
			return pins, fmt.Errorf("pin %d out of range: %d", i, v)
		}
		pins[i] = v
	}
	return pins, nil
}

func formatPins(p stepper.Pins) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
