package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/protocol"
)

const (
	outboundQueueSize = 64
	defaultStopGrace  = 2 * time.Second
)

// ProcessBackend runs the serial worker as a child process and exchanges
// protocol frames with it over stdin and stdout. The child's stderr is
// passed through to ours.
type ProcessBackend struct {
	path  string
	args  []string
	grace time.Duration

	cmd      *exec.Cmd
	outbound chan protocol.Command
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewProcessBackend returns a backend that will run path with args.
func NewProcessBackend(path string, args ...string) *ProcessBackend {
	return &ProcessBackend{
		path:     path,
		args:     args,
		grace:    defaultStopGrace,
		outbound: make(chan protocol.Command, outboundQueueSize),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithStopGrace sets how long Stop waits for the child to exit on its own
// before killing it.
func (p *ProcessBackend) WithStopGrace(d time.Duration) *ProcessBackend {
	p.grace = d
	return p
}

// Start spawns the worker.
func (p *ProcessBackend) Start(emit func(protocol.Event)) error {
	cmd := exec.Command(p.path, p.args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start serial worker %s: %w", p.path, err)
	}
	p.cmd = cmd
	monitoring.Logf("started serial worker %s (pid %d)", p.path, cmd.Process.Pid)

	go p.writeLoop(stdin)
	go p.readLoop(stdout, emit)
	return nil
}

// writeLoop owns the child's stdin. On Stop it flushes whatever is queued,
// then closes stdin so the worker sees EOF.
func (p *ProcessBackend) writeLoop(stdin io.WriteCloser) {
	defer stdin.Close()
	enc := protocol.NewEncoder(stdin)

	write := func(c protocol.Command) bool {
		if err := enc.WriteCommand(c); err != nil {
			monitoring.Logf("failed to send %v to serial worker: %v", c, err)
			return false
		}
		return true
	}

	for {
		select {
		case c := <-p.outbound:
			if !write(c) {
				return
			}
		case <-p.stopping:
			for {
				select {
				case c := <-p.outbound:
					if !write(c) {
						return
					}
				default:
					return
				}
			}
		case <-p.done:
			return
		}
	}
}

// readLoop decodes events until the child closes stdout, then reaps it.
func (p *ProcessBackend) readLoop(stdout io.Reader, emit func(protocol.Event)) {
	dec := protocol.NewDecoder(stdout)
	var readErr error
	for {
		ev, err := dec.ReadEvent()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		emit(ev)
	}
	if readErr != nil {
		monitoring.Logf("serial worker stream error: %v", readErr)
		// The stream is unusable, so make sure the child goes away.
		p.cmd.Process.Kill()
	}

	waitErr := p.cmd.Wait()
	p.mu.Lock()
	switch {
	case waitErr != nil:
		p.err = fmt.Errorf("serial worker exited: %w", waitErr)
	case readErr != nil:
		p.err = fmt.Errorf("serial worker stream: %w", readErr)
	}
	p.mu.Unlock()
	close(p.done)
}

// Send queues cmd for the writer. It never blocks.
func (p *ProcessBackend) Send(cmd protocol.Command) error {
	select {
	case <-p.done:
		return ErrBackendStopped
	case <-p.stopping:
		return ErrBackendStopped
	default:
	}
	select {
	case p.outbound <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the worker's stdin after flushing queued commands and kills the
// worker if it has not exited within the grace period.
func (p *ProcessBackend) Stop() error {
	p.stopOnce.Do(func() {
		close(p.stopping)
		if p.cmd == nil {
			close(p.done)
			return
		}
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.grace):
				monitoring.Logf("serial worker did not exit within %v, killing", p.grace)
				p.cmd.Process.Kill()
			}
		}()
	})
	return nil
}

// Done is closed after the worker has been reaped.
func (p *ProcessBackend) Done() <-chan struct{} { return p.done }

// Err returns the worker's exit error, or nil for a clean exit.
func (p *ProcessBackend) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
