package stepper

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// Link parameters of the controller.
const (
	DefaultBaudRate = 115200
	DataBits        = 8
)

// Transport is an open serial link. The controller never answers, so only
// writes are needed.
type Transport interface {
	io.Writer
	io.Closer
}

// Opener opens and configures a link on the named port.
type Opener interface {
	Open(port string, baud int) (Transport, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(port string, baud int) (Transport, error)

func (f OpenerFunc) Open(port string, baud int) (Transport, error) { return f(port, baud) }

// SerialOpener opens real serial ports, 8 data bits, no parity, one stop bit.
var SerialOpener Opener = OpenerFunc(openSerial)

func openSerial(port string, baud int) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", port, err)
	}

	return p, nil
}

// ListPorts returns the serial ports present on the system, skipping
// macOS Bluetooth ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	var out []string
	for _, port := range ports {
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out, nil
}
