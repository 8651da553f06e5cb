// Package stepper drives up to three stepper motors multiplexed over one
// serial link per port.
//
// A Pool owns every open link. Create opens (or reuses) the link for a port,
// allocates the lowest free motor number and returns a Motor handle. Motion
// commands are fire-and-forget; readiness is a client-side estimate.
package stepper

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/stepper/pkg/logging"
	"github.com/gwillem/stepper/pkg/protocol"
)

const (
	// MaxMotorsPerPort is the number of motors one controller can drive.
	MaxMotorsPerPort = 3

	// DefaultSettleDelay models the controller boot time after a port opens.
	DefaultSettleDelay = 3000 * time.Millisecond

	// DefaultStepDelay is the step delay, in microseconds, set on every new motor.
	DefaultStepDelay = 1000
)

// connection is one open link and the motors multiplexed on it.
type connection struct {
	id        ulid.ULID
	port      string
	transport Transport
	log       *slog.Logger

	wmu    sync.Mutex
	motors *xsync.MapOf[byte, *Motor]
}

// write sends one frame. Frames from motors sharing the link never interleave.
func (c *connection) write(f protocol.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.transport.Write(f); err != nil {
		return &IOError{Op: "write", Port: c.port, Err: err}
	}
	c.log.Debug("frame sent", "op", f.Op().String(), "bytes", len(f))
	return nil
}

// freeNumber returns the lowest motor number not in use, or false if the
// link is full.
func (c *connection) freeNumber() (byte, bool) {
	for n := byte(0); n < MaxMotorsPerPort; n++ {
		if _, used := c.motors.Load(n); !used {
			return n, true
		}
	}
	return 0, false
}

func (c *connection) sortedMotors() []*Motor {
	motors := make([]*Motor, 0, MaxMotorsPerPort)
	c.motors.Range(func(_ byte, m *Motor) bool {
		motors = append(motors, m)
		return true
	})
	slices.SortFunc(motors, func(a, b *Motor) int { return int(a.number) - int(b.number) })
	return motors
}

// Pool is the registry of open links, keyed by port name.
//
// Create and Disconnect are serialized by a single lock shared by every
// port, so a slow first open on one port delays teardown on another.
// Ports and Motors read the registry without taking that lock.
type Pool struct {
	mu    sync.Mutex
	conns *xsync.MapOf[string, *connection]

	opener       Opener
	clock        Clock
	log          *slog.Logger
	settle       time.Duration
	defaultDelay int32
	baud         int
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pool) { p.log = l } }

// WithClock replaces the wall clock used for settle waits and busy estimates.
func WithClock(c Clock) Option { return func(p *Pool) { p.clock = c } }

// WithOpener replaces the serial port opener.
func WithOpener(o Opener) Option { return func(p *Pool) { p.opener = o } }

// WithSettleDelay changes the wait after a port is first opened.
func WithSettleDelay(d time.Duration) Option { return func(p *Pool) { p.settle = d } }

// WithDefaultDelay changes the step delay, in microseconds, given to new motors.
func WithDefaultDelay(us int32) Option { return func(p *Pool) { p.defaultDelay = us } }

// WithBaudRate changes the link speed.
func WithBaudRate(baud int) Option { return func(p *Pool) { p.baud = baud } }

// NewPool creates an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		conns:        xsync.NewMapOf[string, *connection](),
		opener:       SerialOpener,
		clock:        SystemClock,
		log:          logging.Discard(),
		settle:       DefaultSettleDelay,
		defaultDelay: DefaultStepDelay,
		baud:         DefaultBaudRate,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create returns a new motor on port driven by pins.
//
// The link is opened on first use and the call then waits for the
// controller to boot. The motor gets the lowest free number, is
// initialized and has its step delay set to the pool default.
func (p *Pool) Create(port string, pins Pins) (*Motor, error) {
	wire, err := pins.wire()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, opened, err := p.connect(port)
	if err != nil {
		return nil, err
	}

	number, ok := conn.freeNumber()
	if !ok {
		return nil, fmt.Errorf("create motor on %s: %w", port, ErrMotorLimitExceeded)
	}

	m := &Motor{
		pool:   p,
		conn:   conn,
		number: number,
		pins:   pins,
		delay:  p.defaultDelay,
	}
	if err := m.init(wire); err != nil {
		if opened {
			if cerr := p.teardown(conn); cerr != nil {
				conn.log.Warn("close after failed init", "error", cerr)
			}
		}
		return nil, err
	}

	conn.motors.Store(number, m)
	if opened {
		p.conns.Store(port, conn)
	}
	conn.log.Info("motor created", "motor", number, "pins", pins)

	return m, nil
}

// connect returns the registered link for port, or opens a fresh one.
// A fresh link is not registered until a motor is added to it.
func (p *Pool) connect(port string) (*connection, bool, error) {
	if conn, ok := p.conns.Load(port); ok {
		return conn, false, nil
	}

	transport, err := p.opener.Open(port, p.baud)
	if err != nil {
		return nil, false, &IOError{Op: "open", Port: port, Err: err}
	}

	id := ulid.Make()
	conn := &connection{
		id:        id,
		port:      port,
		transport: transport,
		log:       p.log.With("port", port, "session", id.String()),
		motors:    xsync.NewMapOf[byte, *Motor](),
	}
	conn.log.Info("port opened", "baud", p.baud, "settle", p.settle)

	p.clock.Sleep(p.settle)

	return conn, true, nil
}

// Disconnect stops the motor, releases its number and closes the link when
// no motors remain on it. The link is dropped from the pool even if closing
// it fails.
func (p *Pool) Disconnect(m *Motor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.disconnect(m)
}

func (p *Pool) disconnect(m *Motor) error {
	if !m.Connected() {
		return fmt.Errorf("disconnect motor %d: %w", m.number, ErrInvalidState)
	}
	if cur, ok := p.conns.Load(m.conn.port); !ok || cur != m.conn {
		return fmt.Errorf("disconnect motor %d on %s: %w", m.number, m.conn.port, ErrInvalidState)
	}

	if err := m.conn.write(protocol.Off(m.number)); err != nil {
		return err
	}
	if err := m.conn.write(protocol.Disconnect(m.number)); err != nil {
		return err
	}

	m.markDisconnected()

	// The last motor leaves only after the link is unregistered, so Ports
	// never lists a link without motors.
	var err error
	if m.conn.motors.Size() == 1 {
		err = p.teardown(m.conn)
	}
	m.conn.motors.Delete(m.number)
	m.conn.log.Info("motor disconnected", "motor", m.number)
	return err
}

// teardown removes conn from the registry and closes its transport.
func (p *Pool) teardown(conn *connection) error {
	p.conns.Compute(conn.port, func(cur *connection, loaded bool) (*connection, bool) {
		return cur, !loaded || cur == conn
	})

	if err := conn.transport.Close(); err != nil {
		conn.log.Warn("port close failed", "error", err)
		return &IOError{Op: "close", Port: conn.port, Err: err}
	}
	conn.log.Info("port closed")
	return nil
}

// Close disconnects every motor and closes every link. Ports are torn down
// in parallel; the first error is returned. Links whose motors could not be
// stopped are closed anyway.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var g errgroup.Group
	p.conns.Range(func(_ string, conn *connection) bool {
		g.Go(func() error { return p.closeConnection(conn) })
		return true
	})
	return g.Wait()
}

func (p *Pool) closeConnection(conn *connection) error {
	var first error
	for _, m := range conn.sortedMotors() {
		if err := p.disconnect(m); err != nil && first == nil {
			first = err
		}
	}

	if _, ok := p.conns.Load(conn.port); !ok {
		return first
	}

	// Some motor could not be stopped; close the link and drop the rest.
	if err := p.teardown(conn); err != nil && first == nil {
		first = err
	}
	conn.motors.Range(func(n byte, m *Motor) bool {
		m.markDisconnected()
		conn.motors.Delete(n)
		return true
	})
	return first
}

// Ports returns the ports with an open link, sorted.
func (p *Pool) Ports() []string {
	var ports []string
	p.conns.Range(func(port string, _ *connection) bool {
		ports = append(ports, port)
		return true
	})
	slices.Sort(ports)
	return ports
}

// Motors returns the motors on port ordered by motor number.
func (p *Pool) Motors(port string) []*Motor {
	conn, ok := p.conns.Load(port)
	if !ok {
		return nil
	}
	return conn.sortedMotors()
}
