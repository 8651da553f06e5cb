package stepper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gwillem/stepper/pkg/protocol"
)

// Direction of rotation.
type Direction int

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// The controller firmware is wired so that turning left uses the "right"
// opcodes and vice versa. Keep this mapping as is.
var (
	stepsOpcode = map[Direction]protocol.Opcode{
		Left:  protocol.RotateRightSteps,
		Right: protocol.RotateLeftSteps,
	}
	continuousOpcode = map[Direction]protocol.Opcode{
		Left:  protocol.RotateRightOn,
		Right: protocol.RotateLeftOn,
	}
)

// Pins are the four controller pins wired to a motor's coils.
type Pins [4]int

func (p Pins) wire() (protocol.Pins, error) {
	var out protocol.Pins
	for i, pin := range p {
		if pin < 0 || pin > 255 {
			return out, fmt.Errorf("%w: pin %d out of range: %d", ErrInvalidArgument, i, pin)
		}
		out[i] = byte(pin)
	}
	return out, nil
}

const readyPollInterval = 10 * time.Millisecond

// Motor is a handle to one motor on a shared link.
//
// Motion calls return as soon as the frame is written. IsReady reports a
// client-side estimate of when a step command finishes; the controller
// never confirms completion.
type Motor struct {
	pool   *Pool
	conn   *connection
	number byte
	pins   Pins

	mu           sync.Mutex
	delay        int32 // microseconds
	busyUntil    time.Time
	disconnected bool
}

func (m *Motor) init(pins protocol.Pins) error {
	if err := m.conn.write(protocol.Init(m.number, pins)); err != nil {
		return err
	}
	return m.SetDelay(m.delay)
}

// Number returns the motor number on its link (0 to 2).
func (m *Motor) Number() int { return int(m.number) }

// Pins returns the pins given at creation.
func (m *Motor) Pins() Pins { return m.pins }

// Port returns the port the motor's link was opened on.
func (m *Motor) Port() string { return m.conn.port }

// Delay returns the step delay last set through this handle, in microseconds.
// SET_DELAY applies to the whole link, so another motor on the same port
// may have changed the controller's actual delay since.
func (m *Motor) Delay() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delay
}

// Connected reports whether the motor has not been disconnected yet.
func (m *Motor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *Motor) markDisconnected() {
	m.mu.Lock()
	m.disconnected = true
	m.mu.Unlock()
}

// send writes f unless the motor is disconnected. m.mu must be held.
func (m *Motor) send(f protocol.Frame) error {
	if m.disconnected {
		return fmt.Errorf("motor %d %s: %w", m.number, f.Op(), ErrInvalidState)
	}
	return m.conn.write(f)
}

// RotateContinuous starts turning until RotateOff. No busy time is tracked.
func (m *Motor) RotateContinuous(dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(protocol.On(continuousOpcode[dir], m.number))
}

// RotateContinuousLeft starts turning left until RotateOff.
func (m *Motor) RotateContinuousLeft() error { return m.RotateContinuous(Left) }

// RotateContinuousRight starts turning right until RotateOff.
func (m *Motor) RotateContinuousRight() error { return m.RotateContinuous(Right) }

// RotateOff stops the motor. The busy estimate is left alone.
func (m *Motor) RotateOff() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(protocol.Off(m.number))
}

// RotateSteps turns the motor by steps and returns without waiting.
//
// The motor is considered busy for steps*delay plus a 10% margin. The
// estimate only ever moves forward.
func (m *Motor) RotateSteps(dir Direction, steps int32) error {
	if steps < 0 {
		return fmt.Errorf("%w: negative step count %d", ErrInvalidArgument, steps)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnected {
		return fmt.Errorf("motor %d rotate: %w", m.number, ErrInvalidState)
	}

	expectedMs := int64(steps) * int64(m.delay) / 1000
	marginMs := expectedMs / 10
	until := m.pool.clock.Now().Add(time.Duration(expectedMs+marginMs) * time.Millisecond)
	if until.After(m.busyUntil) {
		m.busyUntil = until
	}

	return m.send(protocol.Steps(stepsOpcode[dir], m.number, steps))
}

// SetDelay sets the delay between steps in microseconds. It does not change
// the busy estimate of a move already under way.
func (m *Motor) SetDelay(microseconds int32) error {
	if microseconds < 1 {
		return fmt.Errorf("%w: step delay %dus", ErrInvalidArgument, microseconds)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnected {
		return fmt.Errorf("motor %d set delay: %w", m.number, ErrInvalidState)
	}
	m.delay = microseconds
	return m.send(protocol.Delay(microseconds))
}

// BusyUntil returns the time the last step command is expected to finish.
func (m *Motor) BusyUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busyUntil
}

// IsReady reports whether the busy estimate has passed. It never blocks and
// does not consult the controller.
func (m *Motor) IsReady() bool {
	return !m.pool.clock.Now().Before(m.BusyUntil())
}

// Remaining returns the time left in the busy estimate, or zero.
func (m *Motor) Remaining() time.Duration {
	d := m.BusyUntil().Sub(m.pool.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// WaitReady blocks until IsReady or ctx is done.
func (m *Motor) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if m.IsReady() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Disconnect stops the motor and releases it back to the pool.
func (m *Motor) Disconnect() error {
	return m.pool.Disconnect(m)
}

func (m *Motor) String() string {
	return fmt.Sprintf("%s#%d", m.conn.port, m.number)
}
