// Package serialdump fetches a raw recording from a device over a serial link
// so it can be decoded like a file.
package serialdump

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal interface needed for a serial port. It lets the
// downloader run against test doubles.
type Port interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPort is a Port whose reads return (0, nil) after an idle period.
type TimeoutPort interface {
	Port
	SetReadTimeout(t time.Duration) error
}

// Opener opens the port at path.
type Opener func(path string, opts PortOptions) (Port, error)

// OpenSerial opens a real serial port with go.bug.st/serial.
func OpenSerial(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
