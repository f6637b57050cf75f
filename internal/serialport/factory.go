package serialport

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// RealFactory opens operating-system serial devices via go.bug.st/serial.
type RealFactory struct{}

// Open opens the device at path.
func (RealFactory) Open(path string, opts Options) (Port, error) {
	port, err := serial.Open(path, opts.Mode())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return port, nil
}

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts enumerates the serial devices visible to this process.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
