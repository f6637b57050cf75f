package serialport

import "go.bug.st/serial"

// DefaultBaudRate is applied when a connect request carries no usable rate.
const DefaultBaudRate = 115200

// Options describes how a device is opened. Only the baud rate travels over
// the worker protocol; the line is always 8N1.
type Options struct {
	BaudRate int `json:"baudRate"`
}

// Normalise applies the default baud rate when none is set.
func (o Options) Normalise() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	return o
}

// Mode converts the options into the 8N1 serial.Mode required by
// go.bug.st/serial.
func (o Options) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: o.Normalise().BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}
