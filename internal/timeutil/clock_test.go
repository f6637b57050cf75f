package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	ticker := RealClock{}.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_AdvanceDeliversEachDueTick(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	advanced := make(chan struct{})
	go func() {
		clock.Advance(35 * time.Millisecond)
		close(advanced)
	}()

	for i := 1; i <= 3; i++ {
		want := start.Add(time.Duration(i) * 10 * time.Millisecond)
		select {
		case at := <-ticker.C():
			if !at.Equal(want) {
				t.Errorf("tick %d at %v, want %v", i, at, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick %d not delivered", i)
		}
	}
	<-advanced

	select {
	case at := <-ticker.C():
		t.Errorf("unexpected extra tick at %v", at)
	default:
	}
	if !clock.Now().Equal(start.Add(35 * time.Millisecond)) {
		t.Errorf("Now() = %v after Advance", clock.Now())
	}
}

func TestMockClock_StoppedTickerDoesNotBlockAdvance(t *testing.T) {
	clock := NewMockClock(time.Time{})
	ticker := clock.NewTicker(time.Millisecond)
	if clock.Tickers() != 1 {
		t.Fatalf("Tickers() = %d, want 1", clock.Tickers())
	}

	ticker.Stop()
	ticker.Stop()

	done := make(chan struct{})
	go func() {
		clock.Advance(time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Advance blocked on a stopped ticker")
	}
	if clock.Tickers() != 0 {
		t.Errorf("Tickers() = %d after Stop, want 0", clock.Tickers())
	}
}
