package stepper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/stepper/pkg/protocol"
	"github.com/gwillem/stepper/pkg/stepper"
	"github.com/gwillem/stepper/pkg/stepper/steppertest"
)

func newTestMotor(t *testing.T) (*stepper.Motor, *steppertest.Transport, *steppertest.Clock) {
	t.Helper()
	pool, opener, clock := steppertest.NewPool()
	m, err := pool.Create("/dev/ttyUSB0", testPins)
	require.NoError(t, err)
	tr := opener.Last("/dev/ttyUSB0")
	tr.Frames(t)
	return m, tr, clock
}

func TestMotor_BusyEstimate(t *testing.T) {
	m, _, clock := newTestMotor(t)
	start := clock.Now()

	assert.True(t, m.IsReady(), "fresh motor is ready")

	require.NoError(t, m.RotateSteps(stepper.Left, 12000))
	assert.Equal(t, start.Add(13200*time.Millisecond), m.BusyUntil())
	assert.False(t, m.IsReady())
	assert.Equal(t, 13200*time.Millisecond, m.Remaining())

	clock.Advance(13199 * time.Millisecond)
	assert.False(t, m.IsReady())

	clock.Advance(time.Millisecond)
	assert.True(t, m.IsReady())
	assert.Zero(t, m.Remaining())

	clock.Advance(time.Hour)
	assert.True(t, m.IsReady())
}

func TestMotor_BusyEstimateIntegerMath(t *testing.T) {
	tests := []struct {
		steps int32
		delay int32
		want  time.Duration
	}{
		{0, 1000, 0},
		{1, 1000, 1 * time.Millisecond},
		{9, 1000, 9 * time.Millisecond},   // margin rounds down to 0
		{10, 1000, 11 * time.Millisecond}, // margin 1ms
		{3, 500, 1 * time.Millisecond},    // 1.5ms truncates to 1ms
		{200, 2500, 550 * time.Millisecond},
		{100000, 100000, 11000000 * time.Millisecond}, // product exceeds int32
	}

	for _, tt := range tests {
		m, _, clock := newTestMotor(t)
		require.NoError(t, m.SetDelay(tt.delay))
		require.NoError(t, m.RotateSteps(stepper.Right, tt.steps))
		assert.Equal(t, clock.Now().Add(tt.want), m.BusyUntil(), "steps=%d delay=%d", tt.steps, tt.delay)
	}
}

func TestMotor_BusyUntilNeverDecreases(t *testing.T) {
	m, _, clock := newTestMotor(t)
	start := clock.Now()

	require.NoError(t, m.RotateSteps(stepper.Left, 10000))
	long := m.BusyUntil()
	assert.Equal(t, start.Add(11*time.Second), long)

	clock.Advance(time.Second)
	require.NoError(t, m.RotateSteps(stepper.Left, 10))
	assert.Equal(t, long, m.BusyUntil())

	require.NoError(t, m.RotateOff())
	require.NoError(t, m.SetDelay(1))
	require.NoError(t, m.RotateContinuousRight())
	assert.Equal(t, long, m.BusyUntil())
}

func TestMotor_SetDelayDoesNotAdjustInFlight(t *testing.T) {
	m, _, _ := newTestMotor(t)

	require.NoError(t, m.RotateSteps(stepper.Left, 1000))
	before := m.BusyUntil()
	require.NoError(t, m.SetDelay(5000))
	assert.Equal(t, before, m.BusyUntil())
	assert.Equal(t, int32(5000), m.Delay())
}

func TestMotor_Frames(t *testing.T) {
	pool, opener, _ := steppertest.NewPool()
	var m *stepper.Motor
	for i := 0; i < 3; i++ {
		var err error
		m, err = pool.Create("/dev/ttyUSB0", testPins)
		require.NoError(t, err)
	}
	require.Equal(t, 2, m.Number())
	tr := opener.Last("/dev/ttyUSB0")
	tr.Frames(t)

	require.NoError(t, m.RotateSteps(stepper.Left, 1))
	require.NoError(t, m.RotateSteps(stepper.Right, 1))
	require.NoError(t, m.RotateContinuousLeft())
	require.NoError(t, m.RotateContinuousRight())
	require.NoError(t, m.RotateOff())
	require.NoError(t, m.SetDelay(500))

	assert.Equal(t, []protocol.Frame{
		{4, 2, 0, 0, 0, 1},
		{3, 2, 0, 0, 0, 1},
		{6, 2},
		{5, 2},
		{7, 2},
		{8, 0, 0, 1, 244},
	}, tr.Frames(t))
}

func TestMotor_InvalidArguments(t *testing.T) {
	m, tr, _ := newTestMotor(t)

	assert.ErrorIs(t, m.RotateSteps(stepper.Left, -1), stepper.ErrInvalidArgument)
	assert.ErrorIs(t, m.SetDelay(0), stepper.ErrInvalidArgument)
	assert.Equal(t, int32(stepper.DefaultStepDelay), m.Delay())
	assert.True(t, m.IsReady())
	assert.Empty(t, tr.Frames(t))
}

func TestMotor_WriteErrorKeepsEstimate(t *testing.T) {
	m, tr, clock := newTestMotor(t)
	tr.FailWrites(steppertest.ErrBroken)

	err := m.RotateSteps(stepper.Left, 1000)
	var ioErr *stepper.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "write", ioErr.Op)
	assert.Equal(t, clock.Now().Add(1100*time.Millisecond), m.BusyUntil())
	assert.True(t, m.Connected())
}

func TestMotor_WaitReady(t *testing.T) {
	m, _, clock := newTestMotor(t)
	require.NoError(t, m.RotateSteps(stepper.Left, 100))

	done := make(chan error, 1)
	go func() { done <- m.WaitReady(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitReady returned while busy")
	case <-time.After(30 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not return")
	}
}

func TestMotor_WaitReadyCancelled(t *testing.T) {
	m, _, _ := newTestMotor(t)
	require.NoError(t, m.RotateSteps(stepper.Left, 100))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitReady(ctx), context.DeadlineExceeded)
}

func TestMotor_String(t *testing.T) {
	m, _, _ := newTestMotor(t)
	assert.Equal(t, "/dev/ttyUSB0#0", m.String())
	assert.Equal(t, testPins, m.Pins())
}
