// Package serialport is the thin layer between the serial worker and the
// operating system's serial devices. Everything above it talks to the Port and
// Factory interfaces so the worker can be exercised without hardware.
package serialport

import (
	"errors"
	"io"
)

// ErrPortClosed is returned by test ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// Port defines the minimal interface the worker needs from an open device.
type Port interface {
	io.ReadWriter
	io.Closer
}

// Factory opens serial ports.
type Factory interface {
	// Open opens the device at path with the given options.
	Open(path string, opts Options) (Port, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(path string, opts Options) (Port, error)

// Open calls f(path, opts).
func (f FactoryFunc) Open(path string, opts Options) (Port, error) {
	return f(path, opts)
}
