package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []byte
	}{
		{"init", Init(1, Pins{8, 9, 10, 11}), []byte{1, 1, 8, 9, 10, 11}},
		{"disconnect", Disconnect(2), []byte{2, 2}},
		{"off", Off(0), []byte{7, 0}},
		{"left on", On(RotateLeftOn, 1), []byte{5, 1}},
		{"right on", On(RotateRightOn, 2), []byte{6, 2}},
		{"one step", Steps(RotateRightSteps, 2, 1), []byte{4, 2, 0, 0, 0, 1}},
		{"many steps", Steps(RotateLeftSteps, 0, 0x01020304), []byte{3, 0, 1, 2, 3, 4}},
		{"delay 500", Delay(500), []byte{8, 0, 0, 1, 244}},
		{"delay 1000", Delay(1000), []byte{8, 0, 0, 0x03, 0xE8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, []byte(tt.frame))
			assert.Len(t, tt.frame, tt.frame.Op().FrameLen())
		})
	}
}

func TestSteps_NegativeIsTwosComplement(t *testing.T) {
	assert.Equal(t, []byte{3, 1, 0xFF, 0xFF, 0xFF, 0xFF}, []byte(Steps(RotateLeftSteps, 1, -1)))
}

func TestFrame_Payload(t *testing.T) {
	v, ok := Steps(RotateLeftSteps, 0, 12000).Payload()
	require.True(t, ok)
	assert.Equal(t, int32(12000), v)

	v, ok = Delay(500).Payload()
	require.True(t, ok)
	assert.Equal(t, int32(500), v)

	_, ok = Off(0).Payload()
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	var stream []byte
	stream = append(stream, Init(0, Pins{1, 2, 3, 4})...)
	stream = append(stream, Delay(1000)...)
	stream = append(stream, Steps(RotateRightSteps, 0, 10)...)
	stream = append(stream, Off(0)...)

	frames, err := Decode(stream)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, InitMotor, frames[0].Op())
	assert.Equal(t, SetDelay, frames[1].Op())
	assert.Equal(t, RotateRightSteps, frames[2].Op())
	assert.Equal(t, RotateOff, frames[3].Op())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte{9, 0})
	assert.Error(t, err)

	frames, err := Decode([]byte{7, 0, 3, 1, 0})
	assert.Error(t, err)
	assert.Len(t, frames, 1)
}

func TestOpcode_String(t *testing.T) {
	assert.Equal(t, "set_delay", SetDelay.String())
	assert.Equal(t, "opcode(42)", Opcode(42).String())
}
