package stepper

import (
	"errors"
	"fmt"
)

var (
	// ErrMotorLimitExceeded is returned by Create when the port already
	// drives MaxMotorsPerPort motors.
	ErrMotorLimitExceeded = errors.New("motor limit per port exceeded")

	// ErrInvalidState is returned by any operation on a disconnected motor.
	ErrInvalidState = errors.New("motor is disconnected")

	// ErrInvalidArgument is returned for negative step counts, delays below
	// one microsecond and pins that do not fit in a byte.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IOError wraps a failure of the serial transport.
type IOError struct {
	Op   string // "open", "write" or "close"
	Port string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
