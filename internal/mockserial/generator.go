// Package mockserial replays a line-oriented file as if it were arriving on
// a serial port, for kiosks and development machines without the hardware.
package mockserial

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/kiosk/internal/fsutil"
	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/timeutil"
)

// Sink receives the generator's event stream. Within one playback, calls are
// made from a single goroutine at a time, in emission order.
type Sink interface {
	DataReceived(payload string)
	Error(message string)
	Connected()
}

// Generator emits one line of its input file per tick, looping forever.
type Generator struct {
	clock   timeutil.Clock
	fs      fsutil.FileSystem
	baseDir string

	mu        sync.Mutex
	lines     []string
	cursor    int
	connected bool
	closed    bool
	ticker    timeutil.Ticker
	stop      chan struct{}
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock that drives playback.
func WithClock(c timeutil.Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithFileSystem sets where input files are read from.
func WithFileSystem(fsys fsutil.FileSystem) Option {
	return func(g *Generator) { g.fs = fsys }
}

// WithBaseDir sets the directory relative input paths are resolved against.
// The default is the process working directory.
func WithBaseDir(dir string) Option {
	return func(g *Generator) { g.baseDir = dir }
}

// New returns an idle Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		clock: timeutil.RealClock{},
		fs:    fsutil.OSFileSystem{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			g.baseDir = wd
		}
	}
	return g
}

// Initialize loads inputFile and starts playback at interval. Load failures
// are reported once through sink.Error and leave the generator idle.
func (g *Generator) Initialize(sink Sink, inputFile string, interval time.Duration) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		monitoring.Logf("mock serial: closed, ignoring initialize for %s", inputFile)
		return
	}
	if g.connected {
		g.mu.Unlock()
		monitoring.Logf("mock serial: already playing, ignoring initialize for %s", inputFile)
		return
	}
	g.mu.Unlock()

	if interval <= 0 {
		sink.Error(fmt.Sprintf("mock interval must be positive, got %v", interval))
		return
	}

	path := g.resolve(inputFile)
	lines, err := g.load(path)
	if err != nil {
		monitoring.Logf("mock serial: %v", err)
		sink.Error(err.Error())
		return
	}

	g.mu.Lock()
	if g.closed || g.connected {
		g.mu.Unlock()
		monitoring.Logf("mock serial: state changed while loading %s, not starting playback", path)
		return
	}
	g.lines = lines
	g.connected = true
	g.ticker = g.clock.NewTicker(interval)
	g.stop = make(chan struct{})
	ticker, stop := g.ticker, g.stop
	g.mu.Unlock()

	monitoring.Logf("mock serial: replaying %d lines from %s every %v", len(lines), path, interval)
	sink.Connected()
	go g.play(sink, ticker, stop)
}

func (g *Generator) resolve(inputFile string) string {
	if filepath.IsAbs(inputFile) || g.baseDir == "" {
		return inputFile
	}
	return filepath.Join(g.baseDir, inputFile)
}

func (g *Generator) load(path string) ([]string, error) {
	data, err := g.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("mock input file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("mock input file could not be read: %s: %v", path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("mock input file is empty: %s", path)
	}
	return lines, nil
}

func (g *Generator) play(sink Sink, ticker timeutil.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		g.mu.Lock()
		if g.stop != stop {
			// Disconnected, possibly followed by a new Initialize.
			g.mu.Unlock()
			return
		}
		line := g.lines[g.cursor]
		g.cursor = (g.cursor + 1) % len(g.lines)
		g.mu.Unlock()

		sink.DataReceived(line)
	}
}

// SendData accepts outbound data while playing. There is no device behind
// the generator, so the payload is only logged.
func (g *Generator) SendData(payload string) {
	if !g.Connected() {
		monitoring.Logf("mock serial: not connected, dropping %q", payload)
		return
	}
	monitoring.Logf("mock serial: send %q", payload)
}

// Disconnect stops playback and rewinds to the first line. No DataReceived
// call starts after it returns; one already in progress may still finish.
// It does not wait for the playback goroutine, so a Sink callback may call it.
func (g *Generator) Disconnect() {
	g.mu.Lock()
	if !g.connected {
		g.cursor = 0
		g.mu.Unlock()
		return
	}
	g.connected = false
	g.cursor = 0
	ticker, stop := g.ticker, g.stop
	g.ticker, g.stop = nil, nil
	g.mu.Unlock()

	ticker.Stop()
	close(stop)
	monitoring.Logf("mock serial: playback stopped")
}

// Close disconnects and makes every later Initialize a no-op, including one
// that is already loading its input file.
func (g *Generator) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.Disconnect()
}

// Connected reports whether playback is running.
func (g *Generator) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}
