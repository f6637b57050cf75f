// Package timeutil provides a testable abstraction over wall-clock time and
// tickers.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the time operations used by the mock transport and the
// supervisor.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers ticks every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks of a clock at intervals.
type Ticker interface {
	// C returns the channel on which ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker. No tick is delivered after Stop returns.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// NewTicker returns a ticker backed by time.Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// MockClock is a manually driven clock for tests. Ticks are delivered
// synchronously: Advance does not return until every due tick has been
// received by the ticker's reader, or the ticker was stopped.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*MockTicker
}

// NewMockClock creates a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker creates a MockTicker whose first tick is due d from now.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		ch:       make(chan time.Time),
		stop:     make(chan struct{}),
		interval: d,
		next:     c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d and delivers every tick that falls due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fireUntil(now)
	}
}

// Tickers returns the number of tickers created and not yet stopped.
func (c *MockClock) Tickers() int {
	c.mu.Lock()
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	n := 0
	for _, t := range tickers {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

// MockTicker is a ticker driven by a MockClock.
type MockTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	stop     chan struct{}
	stopped  bool
	interval time.Duration
	next     time.Time
}

// C returns the tick channel.
func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop turns off the ticker and releases any pending delivery.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		close(t.stop)
	}
}

// Stopped reports whether Stop has been called.
func (t *MockTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *MockTicker) fireUntil(now time.Time) {
	for {
		t.mu.Lock()
		if t.stopped || t.interval <= 0 || t.next.After(now) {
			t.mu.Unlock()
			return
		}
		at := t.next
		t.next = t.next.Add(t.interval)
		t.mu.Unlock()

		select {
		case t.ch <- at:
		case <-t.stop:
			return
		}
	}
}
