// Package steppertest provides an in-memory transport and a manual clock
// for testing code built on package stepper.
package steppertest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gwillem/stepper/pkg/protocol"
	"github.com/gwillem/stepper/pkg/stepper"
)

// ErrBroken is a canned transport failure.
var ErrBroken = errors.New("broken pipe")

// Clock is a manual clock. Sleep records the duration and returns at once.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewClock returns a clock stopped at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// Transport records written bytes.
type Transport struct {
	name string

	mu       sync.Mutex
	written  []byte
	closed   bool
	writeErr error
	closeErr error
}

func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.written = append(t.written, p...)
	return len(p), nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.closeErr
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// FailWrites makes every later Write return err. A nil err heals the link.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// Frames decodes and drains the bytes written since the last call.
func (t *Transport) Frames(tb testing.TB) []protocol.Frame {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()
	frames, err := protocol.Decode(t.written)
	require.NoError(tb, err)
	t.written = nil
	return frames
}

// Opener hands out Transports and records every open.
type Opener struct {
	mu       sync.Mutex
	opened   []*Transport
	bauds    []int
	openErr  error
	closeErr error
	writeErr error
}

var _ stepper.Opener = (*Opener)(nil)

func (o *Opener) Open(port string, baud int) (stepper.Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	t := &Transport{name: port, closeErr: o.closeErr, writeErr: o.writeErr}
	o.opened = append(o.opened, t)
	o.bauds = append(o.bauds, baud)
	return t, nil
}

// FailOpen makes later opens fail with err.
func (o *Opener) FailOpen(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// FailClose makes transports opened from now on fail to close with err.
func (o *Opener) FailClose(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeErr = err
}

// FailWrites makes transports opened from now on fail every write with err.
func (o *Opener) FailWrites(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writeErr = err
}

// Last returns the most recently opened transport for port, or nil.
func (o *Opener) Last(port string) *Transport {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.opened) - 1; i >= 0; i-- {
		if o.opened[i].name == port {
			return o.opened[i]
		}
	}
	return nil
}

// Count returns the number of successful opens.
func (o *Opener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

// Bauds returns the baud rate of every successful open.
func (o *Opener) Bauds() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.bauds...)
}

// NewPool returns a pool wired to a fresh Opener and Clock.
func NewPool(opts ...stepper.Option) (*stepper.Pool, *Opener, *Clock) {
	opener := &Opener{}
	clock := NewClock()
	opts = append([]stepper.Option{stepper.WithOpener(opener), stepper.WithClock(clock)}, opts...)
	return stepper.NewPool(opts...), opener, clock
}
