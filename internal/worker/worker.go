// Package worker implements the serial worker process: it owns one serial
// handle and speaks the protocol package's frames on stdin/stdout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/protocol"
	"github.com/banshee-data/kiosk/internal/serialport"
)

const readBufferSize = 4096

// Worker turns commands into serial I/O and serial I/O into events.
type Worker struct {
	factory serialport.Factory

	mu   sync.Mutex
	port serialport.Port
	path string

	enc     *protocol.Encoder
	readers sync.WaitGroup
}

// New returns a Worker that opens devices through factory.
func New(factory serialport.Factory) *Worker {
	return &Worker{factory: factory}
}

// Run processes commands from in until in reaches EOF or ctx is cancelled,
// writing events to out. Device failures are reported as Error events and
// never end the loop. A malformed frame does, with a non-nil error.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w.enc = protocol.NewEncoder(out)
	dec := protocol.NewDecoder(in)

	cmdChan := make(chan protocol.Command)
	readErrChan := make(chan error, 1)

	// decoding blocks on in, so it runs beside the loop that watches ctx.
	go func() {
		defer close(cmdChan)
		for {
			cmd, err := dec.ReadCommand()
			if err != nil {
				readErrChan <- err
				return
			}
			select {
			case cmdChan <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-cmdChan:
			if !ok {
				var err error
				select {
				case err = <-readErrChan:
				default:
					return nil
				}
				if errors.Is(err, io.EOF) {
					monitoring.Logf("command stream closed, exiting")
					return nil
				}
				return fmt.Errorf("failed to read command: %w", err)
			}
			w.handle(cmd)
		}
	}
}

func (w *Worker) handle(cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.Connect:
		w.connect(c.Path, c.BaudRate)
	case protocol.Send:
		w.send(c.Data)
	case protocol.Disconnect:
		w.disconnect()
	default:
		monitoring.Logf("ignoring %v: %v", cmd, protocol.ErrUnknownMessage)
	}
}

func (w *Worker) connect(path string, baudRate int) {
	w.mu.Lock()
	if w.port != nil {
		open := w.path
		w.mu.Unlock()
		w.emit(protocol.Error{Message: fmt.Sprintf("serial port %s is already open", open)})
		return
	}
	w.mu.Unlock()

	port, err := w.factory.Open(path, serialport.Options{BaudRate: baudRate})
	if err != nil {
		monitoring.Logf("failed to open %s: %v", path, err)
		w.emit(protocol.Error{Message: err.Error()})
		return
	}

	w.mu.Lock()
	w.port = port
	w.path = path
	w.mu.Unlock()

	monitoring.Logf("opened %s at %d baud", path, baudRate)
	w.emit(protocol.Connected{})

	w.readers.Add(1)
	go w.read(port)
}

func (w *Worker) send(data string) {
	w.mu.Lock()
	port := w.port
	w.mu.Unlock()

	if port == nil {
		monitoring.Logf("no open serial port, ignoring send of %d bytes", len(data))
		return
	}
	if _, err := io.WriteString(port, data); err != nil {
		monitoring.Logf("write failed: %v", err)
		w.emit(protocol.Error{Message: fmt.Sprintf("failed to write to serial port: %v", err)})
	}
}

func (w *Worker) disconnect() {
	w.mu.Lock()
	port, path := w.port, w.path
	w.port, w.path = nil, ""
	w.mu.Unlock()

	if port == nil {
		return
	}
	if err := port.Close(); err != nil {
		monitoring.Logf("failed to close %s: %v", path, err)
		return
	}
	monitoring.Logf("closed %s", path)
}

// read forwards chunks from port until it fails. Errors on a port we have
// already released are the result of our own Close and are not reported.
func (w *Worker) read(port serialport.Port) {
	defer w.readers.Done()

	buf := make([]byte, readBufferSize)
	var partial []byte
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := append(partial, buf[:n]...)
			var text string
			text, partial = decodeText(chunk)
			if text != "" {
				w.emit(protocol.Data{Payload: text})
			}
		}
		if err != nil {
			w.mu.Lock()
			current := w.port == port
			w.mu.Unlock()
			if current {
				monitoring.Logf("read failed: %v", err)
				w.emit(protocol.Error{Message: fmt.Sprintf("serial read error: %v", err)})
			}
			return
		}
	}
}

// decodeText returns b as text with invalid UTF-8 replaced by U+FFFD. A
// multi-byte sequence cut off at the end of b is held back as rest so it can
// be completed by the next read.
func decodeText(b []byte) (text string, rest []byte) {
	cut := len(b)
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				cut = i
			}
			break
		}
	}
	if cut < len(b) {
		rest = append([]byte(nil), b[cut:]...)
	}
	return strings.ToValidUTF8(string(b[:cut]), "\uFFFD"), rest
}

func (w *Worker) emit(ev protocol.Event) {
	if err := w.enc.WriteEvent(ev); err != nil {
		monitoring.Logf("failed to write %v: %v", ev, err)
	}
}

func (w *Worker) shutdown() {
	w.disconnect()
	w.readers.Wait()
}
