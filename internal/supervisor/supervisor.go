// Package supervisor owns the lifecycle of the kiosk's single serial backend
// and relays its events to the UI.
//
// Every Initialize starts a new generation. Disconnect, a later Initialize,
// or the backend exiting retires it. Connected events from a retired
// generation are dropped so a slow backend cannot mark a newer one as
// connected; its Data and Error events are still relayed and the UI decides
// whether they are stale.
package supervisor

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/kiosk/internal/config"
	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/protocol"
)

// UISink receives relayed events.
type UISink interface {
	DataReceived(payload string)
	Error(message string)
	Connected()
}

// Settings supplies the persisted fallback port path and baud rate.
type Settings interface {
	PortPath() (string, error)
	BaudRate() (int, error)
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	Kind       Kind   `json:"kind,omitempty"`
	PortPath   string `json:"portPath,omitempty"`
	BaudRate   int    `json:"baudRate,omitempty"`
	Connected  bool   `json:"connected"`
	Active     bool   `json:"active"`
	Generation uint64 `json:"generation"`
}

// session is one generation: a backend and the sink its events go to.
type session struct {
	gen      uint64
	kind     Kind
	portPath string
	baudRate int
	backend  Backend
	sink     UISink
}

// Supervisor is safe for concurrent use. Its lock is never held while
// calling into a backend or a sink.
type Supervisor struct {
	factory  BackendFactory
	settings Settings

	// opMu serialises backend replacement in Initialize and Disconnect. It is
	// never held while a backend can emit.
	opMu sync.Mutex

	mu         sync.Mutex
	current    *session
	connected  bool
	generation uint64

	tapMu sync.Mutex
	taps  map[string]chan string
}

// New returns an idle Supervisor. settings may be nil, in which case missing
// port paths and baud rates are passed to the backend as zero values.
func New(factory BackendFactory, settings Settings) *Supervisor {
	return &Supervisor{
		factory:  factory,
		settings: settings,
		taps:     make(map[string]chan string),
	}
}

// Initialize starts a backend for cfg, routes its events to sink and asks it
// to connect. It is a logged no-op while connected. A backend that was
// started but never connected is stopped and replaced. On failure nothing of
// the new backend is left running and the error also goes to sink.
func (s *Supervisor) Initialize(sink UISink, cfg config.SerialConfig) error {
	sess, err := s.start(sink, cfg)
	if err != nil {
		monitoring.Logf("%v", err)
		sink.Error(err.Error())
		return err
	}
	if sess == nil {
		return nil
	}

	monitoring.Logf("initialized %s serial backend (generation %d), connecting to %s at %d baud", sess.kind, sess.gen, sess.portPath, sess.baudRate)
	if err := sess.backend.Send(protocol.Connect{Path: sess.portPath, BaudRate: sess.baudRate}); err != nil {
		err = fmt.Errorf("failed to send connect: %w", err)
		monitoring.Logf("%v", err)
		s.retire(sess)
		sess.backend.Stop()
		sink.Error(err.Error())
		return err
	}
	return nil
}

// start builds and starts the backend for a new generation under opMu. It
// returns a nil session when already connected. The caller sends Connect
// after opMu is released: a backend may emit events from inside Send.
func (s *Supervisor) start(sink UISink, cfg config.SerialConfig) (*session, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		monitoring.Logf("serial already connected, ignoring initialize")
		return nil, nil
	}
	old := s.current
	s.current = nil
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if old != nil {
		monitoring.Logf("replacing pending serial backend (generation %d)", old.gen)
		old.backend.Stop()
	}

	kind := KindOf(cfg)
	portPath, baudRate := s.resolve(cfg)

	backend, err := s.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s serial backend: %w", kind, err)
	}

	sess := &session{
		gen:      gen,
		kind:     kind,
		portPath: portPath,
		baudRate: baudRate,
		backend:  backend,
		sink:     sink,
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	if err := backend.Start(func(ev protocol.Event) { s.route(sess, ev) }); err != nil {
		s.retire(sess)
		return nil, err
	}
	go s.watch(sess)
	return sess, nil
}

func (s *Supervisor) resolve(cfg config.SerialConfig) (string, int) {
	portPath, baudRate := cfg.PortPath, cfg.BaudRate
	if s.settings == nil {
		return portPath, baudRate
	}
	if portPath == "" {
		p, err := s.settings.PortPath()
		if err != nil {
			monitoring.Logf("failed to read port path from settings: %v", err)
		}
		portPath = p
	}
	if baudRate <= 0 {
		b, err := s.settings.BaudRate()
		if err != nil {
			monitoring.Logf("failed to read baud rate from settings: %v", err)
		}
		baudRate = b
	}
	return portPath, baudRate
}

// route relays one event from sess.
func (s *Supervisor) route(sess *session, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Data:
		s.tap(fmt.Sprintf("data: %s", e.Payload))
		sess.sink.DataReceived(e.Payload)

	case protocol.Error:
		monitoring.Logf("serial error (generation %d): %s", sess.gen, e.Message)
		s.tap(fmt.Sprintf("error: %s", e.Message))
		sess.sink.Error(e.Message)

	case protocol.Connected:
		s.mu.Lock()
		if s.current != sess {
			s.mu.Unlock()
			monitoring.Logf("ignoring connected from retired generation %d", sess.gen)
			return
		}
		s.connected = true
		s.mu.Unlock()
		monitoring.Logf("serial connected (generation %d)", sess.gen)
		s.tap("connected")
		sess.sink.Connected()

	default:
		monitoring.Logf("ignoring %v: %v", ev, protocol.ErrUnknownMessage)
	}
}

// watch marks the supervisor disconnected when the current backend exits.
func (s *Supervisor) watch(sess *session) {
	<-sess.backend.Done()
	if !s.retire(sess) {
		return
	}
	if err := sess.backend.Err(); err != nil {
		monitoring.Logf("serial backend exited (generation %d): %v", sess.gen, err)
	} else {
		monitoring.Logf("serial backend exited (generation %d)", sess.gen)
	}
	// Release the writer and any kill timer.
	sess.backend.Stop()
}

// retire clears sess if it is still current and reports whether it was.
func (s *Supervisor) retire(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != sess {
		return false
	}
	s.current = nil
	s.connected = false
	return true
}

// SendData forwards payload to the backend while connected. Otherwise the
// payload is dropped and ErrNotConnected returned. It never blocks.
func (s *Supervisor) SendData(payload string) error {
	s.mu.Lock()
	sess, connected := s.current, s.connected
	s.mu.Unlock()

	if !connected || sess == nil {
		monitoring.Logf("serial not connected, dropping %d bytes", len(payload))
		return ErrNotConnected
	}
	if err := sess.backend.Send(protocol.Send{Data: payload}); err != nil {
		monitoring.Logf("failed to queue send: %v", err)
		return err
	}
	return nil
}

// Disconnect tells the backend to close the device, marks the supervisor
// disconnected and stops the backend. It is a logged no-op without one.
func (s *Supervisor) Disconnect() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.connected = false
	s.mu.Unlock()

	if sess == nil {
		monitoring.Logf("serial disconnect requested with no backend")
		return
	}
	if err := sess.backend.Send(protocol.Disconnect{}); err != nil {
		monitoring.Logf("failed to send disconnect: %v", err)
	}
	sess.backend.Stop()
	monitoring.Logf("serial disconnected (generation %d)", sess.gen)
}

// Connected reports whether the current backend has connected.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Status returns the current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Connected: s.connected, Generation: s.generation}
	if sess := s.current; sess != nil {
		st.Active = true
		st.Kind = sess.kind
		st.PortPath = sess.portPath
		st.BaudRate = sess.baudRate
	}
	return st
}

// Subscribe returns a channel carrying a one-line rendering of every relayed
// event. Slow readers miss lines.
func (s *Supervisor) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 16)
	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	s.taps[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a Subscribe channel.
func (s *Supervisor) Unsubscribe(id string) {
	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	if ch, ok := s.taps[id]; ok {
		close(ch)
		delete(s.taps, id)
	}
}

func (s *Supervisor) tap(line string) {
	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	for _, ch := range s.taps {
		select {
		case ch <- line:
		default:
		}
	}
}
