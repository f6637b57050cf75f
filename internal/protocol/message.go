// Package protocol defines the messages exchanged between the supervisor in the
// kiosk process and a transport backend (the serial worker process or the mock
// generator).
//
// Commands flow supervisor -> backend, events flow backend -> supervisor. Both
// are closed sets: the marker methods are unexported so only this package can
// declare variants, and every switch over them ends in a default branch that
// reports ErrUnknownMessage.
package protocol

import (
	"errors"
	"fmt"
)

// Wire type tags. These match the keys of the cross-process contract.
const (
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
	TypeSend       = "send"
	TypeData       = "data"
	TypeError      = "error"
	TypeConnected  = "connected"
)

// ErrUnknownMessage is returned when a frame or value does not match any known
// command or event variant.
var ErrUnknownMessage = errors.New("unknown message type")

// Command is a message sent from the supervisor to a backend.
type Command interface {
	command()
	// Type returns the wire tag for the command.
	Type() string
}

// Connect asks the backend to open the serial device at Path.
type Connect struct {
	Path     string
	BaudRate int
}

// Disconnect asks the backend to close its serial device.
type Disconnect struct{}

// Send asks the backend to write Data to the open device.
type Send struct {
	Data string
}

func (Connect) command()    {}
func (Disconnect) command() {}
func (Send) command()       {}

func (Connect) Type() string    { return TypeConnect }
func (Disconnect) Type() string { return TypeDisconnect }
func (Send) Type() string       { return TypeSend }

func (c Connect) String() string  { return fmt.Sprintf("connect(%s@%d)", c.Path, c.BaudRate) }
func (Disconnect) String() string { return "disconnect" }
func (s Send) String() string     { return fmt.Sprintf("send(%q)", s.Data) }

// Event is a message sent from a backend to the supervisor.
type Event interface {
	event()
	// Type returns the wire tag for the event.
	Type() string
}

// Data carries text received from the device.
type Data struct {
	Payload string
}

// Error reports a backend-side failure. It never changes connection state on
// its own.
type Error struct {
	Message string
}

// Connected reports that the device was opened.
type Connected struct{}

func (Data) event()      {}
func (Error) event()     {}
func (Connected) event() {}

func (Data) Type() string      { return TypeData }
func (Error) Type() string     { return TypeError }
func (Connected) Type() string { return TypeConnected }

func (d Data) String() string    { return fmt.Sprintf("data(%q)", d.Payload) }
func (e Error) String() string   { return fmt.Sprintf("error(%s)", e.Message) }
func (Connected) String() string { return "connected" }
