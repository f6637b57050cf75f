package supervisor

import (
	"errors"
	"fmt"

	"github.com/banshee-data/kiosk/internal/config"
	"github.com/banshee-data/kiosk/internal/mockserial"
	"github.com/banshee-data/kiosk/internal/protocol"
)

var (
	// ErrNotConnected is returned by SendData while no device is connected.
	ErrNotConnected = errors.New("serial port not connected")
	// ErrBackendStopped is returned when sending to a backend that has exited
	// or been stopped.
	ErrBackendStopped = errors.New("serial backend stopped")
	// ErrQueueFull is returned when a backend cannot accept a command without
	// blocking.
	ErrQueueFull = errors.New("serial backend queue full")
)

// Kind identifies the backend implementation.
type Kind string

const (
	KindReal Kind = "real"
	KindMock Kind = "mock"
)

// KindOf reports which backend cfg selects.
func KindOf(cfg config.SerialConfig) Kind {
	if cfg.UseMock {
		return KindMock
	}
	return KindReal
}

// Backend is one transport instance: a worker process or a mock generator.
// Events passed to emit must be delivered from one goroutine at a time and in
// order. Send must not block.
type Backend interface {
	// Start begins delivering events to emit.
	Start(emit func(protocol.Event)) error
	// Send queues a command for the backend.
	Send(cmd protocol.Command) error
	// Stop begins teardown. It does not wait for Done.
	Stop() error
	// Done is closed once the backend has fully terminated.
	Done() <-chan struct{}
	// Err describes why the backend terminated, after Done is closed.
	Err() error
}

// BackendFactory builds an unstarted backend for cfg.
type BackendFactory func(cfg config.SerialConfig) (Backend, error)

// DefaultFactory returns a factory that spawns cfg.WorkerPath for real
// devices and replays cfg.MockInputFile otherwise.
func DefaultFactory(mockOpts ...mockserial.Option) BackendFactory {
	return func(cfg config.SerialConfig) (Backend, error) {
		switch KindOf(cfg) {
		case KindMock:
			return NewMockBackend(mockserial.New(mockOpts...), cfg.MockInputFile, cfg.MockPeriod()), nil
		case KindReal:
			if cfg.WorkerPath == "" {
				return nil, fmt.Errorf("%w: no worker path", config.ErrInvalidConfig)
			}
			return NewProcessBackend(cfg.WorkerPath), nil
		default:
			return nil, fmt.Errorf("unsupported backend kind %q", KindOf(cfg))
		}
	}
}
