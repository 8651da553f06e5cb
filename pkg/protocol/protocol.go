// Package protocol encodes commands for the stepper controller firmware.
//
// Every command is a fixed-length frame whose length is implied by its
// opcode. There is no delimiter, checksum or acknowledgement.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies a command and its frame layout.
type Opcode byte

// Opcodes understood by the controller.
const (
	InitMotor        Opcode = 1
	DisconnectMotor  Opcode = 2
	RotateLeftSteps  Opcode = 3
	RotateRightSteps Opcode = 4
	RotateLeftOn     Opcode = 5
	RotateRightOn    Opcode = 6
	RotateOff        Opcode = 7
	SetDelay         Opcode = 8
)

var opcodeNames = map[Opcode]string{
	InitMotor:        "init_motor",
	DisconnectMotor:  "disconnect_motor",
	RotateLeftSteps:  "rotate_left_steps",
	RotateRightSteps: "rotate_right_steps",
	RotateLeftOn:     "rotate_left_on",
	RotateRightOn:    "rotate_right_on",
	RotateOff:        "rotate_off",
	SetDelay:         "set_delay",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", byte(o))
}

// FrameLen returns the total frame length for op, or 0 if op is unknown.
func (o Opcode) FrameLen() int {
	switch o {
	case InitMotor, RotateLeftSteps, RotateRightSteps:
		return 6
	case SetDelay:
		return 5
	case DisconnectMotor, RotateLeftOn, RotateRightOn, RotateOff:
		return 2
	}
	return 0
}

// Frame is one encoded command as written to the link.
type Frame []byte

// Op returns the frame opcode.
func (f Frame) Op() Opcode {
	if len(f) == 0 {
		return 0
	}
	return Opcode(f[0])
}

// Pins holds the four controller pin indices driving one motor.
type Pins [4]byte

// Init builds INIT_MOTOR: [op, motor, pin0, pin1, pin2, pin3].
func Init(motor byte, pins Pins) Frame {
	return Frame{byte(InitMotor), motor, pins[0], pins[1], pins[2], pins[3]}
}

// Disconnect builds DISCONNECT_MOTOR: [op, motor].
func Disconnect(motor byte) Frame {
	return Frame{byte(DisconnectMotor), motor}
}

// Off builds ROTATE_OFF: [op, motor].
func Off(motor byte) Frame {
	return Frame{byte(RotateOff), motor}
}

// On builds a continuous rotation frame: [op, motor].
// op must be RotateLeftOn or RotateRightOn.
func On(op Opcode, motor byte) Frame {
	return Frame{byte(op), motor}
}

// Steps builds a step frame: [op, motor, s3, s2, s1, s0] with the step
// count big-endian. op must be RotateLeftSteps or RotateRightSteps.
func Steps(op Opcode, motor byte, steps int32) Frame {
	f := make(Frame, 6)
	f[0] = byte(op)
	f[1] = motor
	binary.BigEndian.PutUint32(f[2:], uint32(steps))
	return f
}

// Delay builds SET_DELAY: [op, d3, d2, d1, d0]. The frame has no motor
// number, so the controller applies it to the whole link.
func Delay(microseconds int32) Frame {
	f := make(Frame, 5)
	f[0] = byte(SetDelay)
	binary.BigEndian.PutUint32(f[1:], uint32(microseconds))
	return f
}

// Payload returns the 32-bit value carried by a step or delay frame.
func (f Frame) Payload() (int32, bool) {
	switch f.Op() {
	case RotateLeftSteps, RotateRightSteps:
		if len(f) != 6 {
			return 0, false
		}
		return int32(binary.BigEndian.Uint32(f[2:])), true
	case SetDelay:
		if len(f) != 5 {
			return 0, false
		}
		return int32(binary.BigEndian.Uint32(f[1:])), true
	}
	return 0, false
}

// Decode splits a byte stream into frames using the opcode lengths.
func Decode(b []byte) ([]Frame, error) {
	var frames []Frame
	for len(b) > 0 {
		op := Opcode(b[0])
		n := op.FrameLen()
		if n == 0 {
			return frames, fmt.Errorf("unknown %s", op)
		}
		if len(b) < n {
			return frames, fmt.Errorf("short %s frame: have %d bytes, need %d", op, len(b), n)
		}
		frames = append(frames, Frame(b[:n:n]))
		b = b[n:]
	}
	return frames, nil
}
