package protocol

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// frame is the on-wire shape of every message. Each message is one
// self-delimiting CBOR map, so a byte stream of frames needs no extra length
// prefix.
type frame struct {
	Type     string  `cbor:"type"`
	Path     string  `cbor:"path,omitempty"`
	BaudRate int     `cbor:"baudRate,omitempty"`
	Data     *string `cbor:"data,omitempty"`
	Error    string  `cbor:"error,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

func commandFrame(c Command) (frame, error) {
	switch c := c.(type) {
	case Connect:
		return frame{Type: TypeConnect, Path: c.Path, BaudRate: c.BaudRate}, nil
	case Disconnect:
		return frame{Type: TypeDisconnect}, nil
	case Send:
		data := c.Data
		return frame{Type: TypeSend, Data: &data}, nil
	default:
		return frame{}, fmt.Errorf("%w: command %T", ErrUnknownMessage, c)
	}
}

func eventFrame(e Event) (frame, error) {
	switch e := e.(type) {
	case Data:
		payload := e.Payload
		return frame{Type: TypeData, Data: &payload}, nil
	case Error:
		return frame{Type: TypeError, Error: e.Message}, nil
	case Connected:
		return frame{Type: TypeConnected}, nil
	default:
		return frame{}, fmt.Errorf("%w: event %T", ErrUnknownMessage, e)
	}
}

func (f frame) data() string {
	if f.Data == nil {
		return ""
	}
	return *f.Data
}

func (f frame) command() (Command, error) {
	switch f.Type {
	case TypeConnect:
		return Connect{Path: f.Path, BaudRate: f.BaudRate}, nil
	case TypeDisconnect:
		return Disconnect{}, nil
	case TypeSend:
		return Send{Data: f.data()}, nil
	default:
		return nil, fmt.Errorf("%w: command %q", ErrUnknownMessage, f.Type)
	}
}

func (f frame) event() (Event, error) {
	switch f.Type {
	case TypeData:
		return Data{Payload: f.data()}, nil
	case TypeError:
		return Error{Message: f.Error}, nil
	case TypeConnected:
		return Connected{}, nil
	default:
		return nil, fmt.Errorf("%w: event %q", ErrUnknownMessage, f.Type)
	}
}

// Encoder writes frames to a stream. It is safe for concurrent use; frames
// from concurrent writers are never interleaved.
type Encoder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: encMode.NewEncoder(w)}
}

// WriteCommand encodes a single command frame.
func (e *Encoder) WriteCommand(c Command) error {
	f, err := commandFrame(c)
	if err != nil {
		return err
	}
	return e.write(f)
}

// WriteEvent encodes a single event frame.
func (e *Encoder) WriteEvent(ev Event) error {
	f, err := eventFrame(ev)
	if err != nil {
		return err
	}
	return e.write(f)
}

func (e *Encoder) write(f frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}
	return nil
}

// Decoder reads frames from a stream. It is not safe for concurrent use.
type Decoder struct {
	dec *cbor.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: decMode.NewDecoder(r)}
}

// ReadCommand decodes the next command. It returns io.EOF when the stream ends
// cleanly between frames.
func (d *Decoder) ReadCommand() (Command, error) {
	var f frame
	if err := d.dec.Decode(&f); err != nil {
		return nil, err
	}
	return f.command()
}

// ReadEvent decodes the next event. It returns io.EOF when the stream ends
// cleanly between frames.
func (d *Decoder) ReadEvent() (Event, error) {
	var f frame
	if err := d.dec.Decode(&f); err != nil {
		return nil, err
	}
	return f.event()
}
