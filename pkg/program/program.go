// Package program runs scripted motion sequences on stepper motors.
package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gwillem/stepper/pkg/logging"
	"github.com/gwillem/stepper/pkg/stepper"
)

// MotorState is the readiness of one motor at a point in time.
type MotorState struct {
	Ready     bool
	Remaining time.Duration
}

// State represents the current state of a running program.
type State struct {
	Step      int // index of the step being executed, len(steps) when done
	Motors    map[string]MotorState
	Timestamp time.Time
	Error     error
}

// Controller runs a program against a set of named motors.
type Controller struct {
	motors map[string]*stepper.Motor
	steps  []stepper.Step
	hz     int
	log    *slog.Logger

	mu      sync.RWMutex
	running bool
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Motors map[string]*stepper.Motor
	Steps  []stepper.Step
	Hz     int // readiness polling rate
	Logger *slog.Logger
}

// NewController creates a new program controller.
func NewController(cfg Config) (*Controller, error) {
	for i, s := range cfg.Steps {
		if _, ok := cfg.Motors[s.Motor]; !ok {
			return nil, fmt.Errorf("step %d: unknown motor %q", i, s.Motor)
		}
	}

	if cfg.Hz <= 0 {
		cfg.Hz = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &Controller{
		motors:  cfg.Motors,
		steps:   cfg.Steps,
		hz:      cfg.Hz,
		log:     cfg.Logger,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the polling frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Motors returns the names of the motors driven by the program.
func (c *Controller) Motors() []string {
	names := make([]string, 0, len(c.motors))
	for name := range c.motors {
		names = append(names, name)
	}
	return names
}

func (c *Controller) logf(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.log.Info(text)

	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs every step in order and returns when the program completes or
// ctx is cancelled. Each step waits for its motor to become ready first.
// On cancellation or a failed step every motor is turned off.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.logf("Program started: %d steps at %d Hz", len(c.steps), c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for i, step := range c.steps {
		m := c.motors[step.Motor]

		for !m.IsReady() {
			select {
			case <-ctx.Done():
				c.shutdown()
				return ctx.Err()
			case <-ticker.C:
				c.sendState(i, nil)
			}
		}

		if err := c.exec(m, step); err != nil {
			err = fmt.Errorf("step %d (%s %s): %w", i, step.Action, step.Motor, err)
			c.logf("Error: %v", err)
			c.shutdown()
			c.sendState(i, err)
			return err
		}
		c.sendState(i, nil)
	}

	for _, name := range c.Motors() {
		m := c.motors[name]
		for !m.IsReady() {
			select {
			case <-ctx.Done():
				c.shutdown()
				return ctx.Err()
			case <-ticker.C:
				c.sendState(len(c.steps), nil)
			}
		}
	}

	c.sendState(len(c.steps), nil)
	c.logf("Program finished")
	return nil
}

func (c *Controller) exec(m *stepper.Motor, s stepper.Step) error {
	switch s.Action {
	case stepper.ActionRotate:
		c.logf("%s: rotate %s %d steps", s.Motor, s.Direction, s.Steps)
		return m.RotateSteps(s.Direction, s.Steps)
	case stepper.ActionSpin:
		c.logf("%s: spin %s", s.Motor, s.Direction)
		return m.RotateContinuous(s.Direction)
	case stepper.ActionStop:
		c.logf("%s: stop", s.Motor)
		return m.RotateOff()
	case stepper.ActionDelay:
		c.logf("%s: delay %dus", s.Motor, s.Delay)
		return m.SetDelay(s.Delay)
	case stepper.ActionWait:
		// readiness was awaited before exec
		return nil
	}
	return fmt.Errorf("unknown action %q", s.Action)
}

// Snapshot returns the readiness of every motor.
func (c *Controller) Snapshot() map[string]MotorState {
	out := make(map[string]MotorState, len(c.motors))
	for name, m := range c.motors {
		out[name] = MotorState{Ready: m.IsReady(), Remaining: m.Remaining()}
	}
	return out
}

func (c *Controller) sendState(step int, err error) {
	s := State{
		Step:      step,
		Motors:    c.Snapshot(),
		Timestamp: time.Now(),
		Error:     err,
	}
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	for name, m := range c.motors {
		if err := m.RotateOff(); err != nil {
			c.logf("Warning: failed to stop %s: %v", name, err)
		}
	}
	c.logf("Program stopped")
}
