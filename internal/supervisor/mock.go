package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/kiosk/internal/mockserial"
	"github.com/banshee-data/kiosk/internal/protocol"
)

// MockBackend adapts a mockserial.Generator to the Backend interface so the
// supervisor drives it with the same commands as a worker process.
type MockBackend struct {
	gen       *mockserial.Generator
	inputFile string
	interval  time.Duration

	mu       sync.Mutex
	sink     *eventSink
	done     chan struct{}
	stopOnce sync.Once
}

// NewMockBackend returns a backend replaying inputFile every interval.
func NewMockBackend(gen *mockserial.Generator, inputFile string, interval time.Duration) *MockBackend {
	return &MockBackend{
		gen:       gen,
		inputFile: inputFile,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start records where events go. Playback begins on Connect.
func (m *MockBackend) Start(emit func(protocol.Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = &eventSink{emit: emit}
	return nil
}

// Send maps commands onto the generator. The device path and baud rate of
// Connect are ignored; the generator has no device.
func (m *MockBackend) Send(cmd protocol.Command) error {
	select {
	case <-m.done:
		return ErrBackendStopped
	default:
	}
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("mock backend: %w", ErrBackendStopped)
	}

	switch c := cmd.(type) {
	case protocol.Connect:
		m.gen.Initialize(sink, m.inputFile, m.interval)
	case protocol.Send:
		m.gen.SendData(c.Data)
	case protocol.Disconnect:
		m.gen.Disconnect()
	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnknownMessage, cmd)
	}
	return nil
}

// Stop halts playback for good and marks the backend done. It does not wait
// for the playback goroutine and is safe to call from an emit callback.
func (m *MockBackend) Stop() error {
	m.stopOnce.Do(func() {
		m.gen.Close()
		close(m.done)
	})
	return nil
}

// Done is closed by Stop.
func (m *MockBackend) Done() <-chan struct{} { return m.done }

// Err is always nil; the generator cannot crash.
func (m *MockBackend) Err() error { return nil }

// eventSink turns generator callbacks back into protocol events.
type eventSink struct {
	emit func(protocol.Event)
}

func (s *eventSink) DataReceived(payload string) { s.emit(protocol.Data{Payload: payload}) }
func (s *eventSink) Error(message string)        { s.emit(protocol.Error{Message: message}) }
func (s *eventSink) Connected()                  { s.emit(protocol.Connected{}) }
