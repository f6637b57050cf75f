package serialport

import (
	"bytes"
	"fmt"
	"sync"
)

// FakePort is an in-memory Port for tests. Reads block until data is fed with
// Feed, an error is injected with FailRead, or the port is closed.
type FakePort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bytes.Buffer
	written bytes.Buffer
	readErr error
	closed  bool

	// WriteError, when set, is returned by every Write.
	WriteError error
	// CloseCalls counts calls to Close.
	CloseCalls int
}

// NewFakePort returns an empty FakePort.
func NewFakePort() *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until data, an injected error or Close.
func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readErr == nil && p.pending.Len() == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	return p.pending.Read(b)
}

// Write records b, or fails with WriteError.
func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.WriteError != nil {
		return 0, p.WriteError
	}
	return p.written.Write(b)
}

// Close marks the port closed and wakes any blocked reader.
func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Feed makes data available to the next Read.
func (p *FakePort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.WriteString(data)
	p.cond.Broadcast()
}

// FailRead makes the next Read return err, simulating an unplugged device.
func (p *FakePort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.cond.Broadcast()
}

// Written returns everything written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// Closed reports whether Close has been called.
func (p *FakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// OpenCall records one FakeFactory.Open invocation.
type OpenCall struct {
	Path string
	Opts Options
}

// FakeFactory hands out FakePorts for registered paths and fails for the rest,
// the way a missing device node would.
type FakeFactory struct {
	mu     sync.Mutex
	ports  map[string]*FakePort
	errors map[string]error
	calls  []OpenCall
}

// NewFakeFactory returns a factory with no devices.
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{
		ports:  make(map[string]*FakePort),
		errors: make(map[string]error),
	}
}

// AddPort registers a device at path and returns it.
func (f *FakeFactory) AddPort(path string) *FakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := NewFakePort()
	f.ports[path] = p
	return p
}

// FailPath makes Open(path) return err.
func (f *FakeFactory) FailPath(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[path] = err
}

// Open implements Factory.
func (f *FakeFactory) Open(path string, opts Options) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, OpenCall{Path: path, Opts: opts})
	if err, ok := f.errors[path]; ok {
		return nil, err
	}
	p, ok := f.ports[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file or directory", path)
	}
	return p, nil
}

// Calls returns a copy of the recorded Open calls.
func (f *FakeFactory) Calls() []OpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]OpenCall, len(f.calls))
	copy(out, f.calls)
	return out
}
