package mockserial

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kiosk/internal/fsutil"
	"github.com/banshee-data/kiosk/internal/testutil"
	"github.com/banshee-data/kiosk/internal/timeutil"
)

type event struct {
	kind string
	text string
}

type recordingSink struct {
	events chan event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan event, 256)}
}

func (s *recordingSink) DataReceived(payload string) { s.events <- event{"data", payload} }
func (s *recordingSink) Error(message string)        { s.events <- event{"error", message} }
func (s *recordingSink) Connected()                  { s.events <- event{"connected", ""} }

func (s *recordingSink) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event{}
	}
}

func (s *recordingSink) drain() []event {
	var out []event
	for {
		select {
		case e := <-s.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func newTestGenerator(files map[string]string) (*Generator, *timeutil.MockClock) {
	fsys := fsutil.NewMemoryFileSystem()
	for name, content := range files {
		fsys.WriteFile(name, []byte(content))
	}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(WithClock(clock), WithFileSystem(fsys), WithBaseDir("/kiosk")), clock
}

func TestGenerator_PlaybackIsCyclic(t *testing.T) {
	lines := []string{"ST,GS,+0001.20kg", "ST,GS,+0001.25kg", "US,GS,+0001.31kg"}
	g, clock := newTestGenerator(map[string]string{
		"/kiosk/mock-data/scale.txt": "ST,GS,+0001.20kg\r\nST,GS,+0001.25kg\r\n\r\n   \nUS,GS,+0001.31kg",
	})
	sink := newRecordingSink()

	g.Initialize(sink, "mock-data/scale.txt", 10*time.Millisecond)
	defer g.Disconnect()
	require.Equal(t, event{"connected", ""}, sink.next(t))
	require.True(t, g.Connected())

	const ticks = 7
	var got []string
	for k := 0; k < ticks; k++ {
		clock.Advance(10 * time.Millisecond)
		e := sink.next(t)
		require.Equal(t, "data", e.kind)
		got = append(got, e.text)
	}

	var want []string
	for k := 0; k < ticks; k++ {
		want = append(want, lines[k%len(lines)])
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("playback mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerator_MissingOrEmptyFile(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		files map[string]string
	}{
		{"missing", "nope.txt", nil},
		{"empty", "empty.txt", map[string]string{"/kiosk/empty.txt": ""}},
		{"blank lines only", "blank.txt", map[string]string{"/kiosk/blank.txt": "\n  \r\n\t\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, clock := newTestGenerator(tt.files)
			sink := newRecordingSink()

			g.Initialize(sink, tt.file, 10*time.Millisecond)
			clock.Advance(50 * time.Millisecond)

			events := sink.drain()
			require.Len(t, events, 1)
			assert.Equal(t, "error", events[0].kind)
			assert.Contains(t, events[0].text, tt.file)
			assert.False(t, g.Connected())
			assert.Zero(t, clock.Tickers())
		})
	}
}

func TestGenerator_NonPositiveInterval(t *testing.T) {
	g, clock := newTestGenerator(map[string]string{"/kiosk/a.txt": "a\n"})
	sink := newRecordingSink()

	g.Initialize(sink, "a.txt", 0)

	events := sink.drain()
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].kind)
	assert.False(t, g.Connected())
	assert.Zero(t, clock.Tickers())
}

func TestGenerator_DisconnectRewinds(t *testing.T) {
	g, clock := newTestGenerator(map[string]string{"/kiosk/a.txt": "one\ntwo\nthree\n"})
	sink := newRecordingSink()

	g.Initialize(sink, "a.txt", time.Second)
	require.Equal(t, "connected", sink.next(t).kind)
	clock.Advance(time.Second)
	clock.Advance(time.Second)
	assert.Equal(t, "one", sink.next(t).text)
	assert.Equal(t, "two", sink.next(t).text)

	g.Disconnect()
	assert.False(t, g.Connected())
	assert.Zero(t, clock.Tickers())

	clock.Advance(5 * time.Second)
	assert.Empty(t, sink.drain(), "no data after disconnect")

	g.Initialize(sink, "a.txt", time.Second)
	defer g.Disconnect()
	require.Equal(t, "connected", sink.next(t).kind)
	clock.Advance(time.Second)
	assert.Equal(t, "one", sink.next(t).text)
}

func TestGenerator_InitializeWhilePlayingIsIgnored(t *testing.T) {
	g, clock := newTestGenerator(map[string]string{"/kiosk/a.txt": "a\n", "/kiosk/b.txt": "b\n"})
	sink := newRecordingSink()

	g.Initialize(sink, "a.txt", time.Second)
	defer g.Disconnect()
	require.Equal(t, "connected", sink.next(t).kind)

	g.Initialize(sink, "b.txt", time.Second)
	assert.Empty(t, sink.drain())
	assert.Equal(t, 1, clock.Tickers())

	clock.Advance(time.Second)
	assert.Equal(t, "a", sink.next(t).text)
}

func TestGenerator_SendDataAndDisconnectWhenIdle(t *testing.T) {
	g, _ := newTestGenerator(nil)
	g.SendData("tare\r\n")
	g.Disconnect()
	assert.False(t, g.Connected())
}

func TestGenerator_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLines(t, dir, "mock.txt", "first", "second")

	clock := timeutil.NewMockClock(time.Time{})
	g := New(WithClock(clock), WithBaseDir(dir))
	sink := newRecordingSink()

	g.Initialize(sink, "mock.txt", time.Millisecond)
	defer g.Disconnect()
	require.Equal(t, "connected", sink.next(t).kind)
	clock.Advance(2 * time.Millisecond)
	assert.Equal(t, "first", sink.next(t).text)
	assert.Equal(t, "second", sink.next(t).text)
}

// disconnectingSink stops the generator from inside its first data callback.
type disconnectingSink struct {
	g        *Generator
	returned chan string
}

func (s *disconnectingSink) DataReceived(payload string) {
	s.g.Disconnect()
	s.returned <- payload
}
func (s *disconnectingSink) Error(string) {}
func (s *disconnectingSink) Connected()   {}

func TestGenerator_DisconnectFromCallback(t *testing.T) {
	g, clock := newTestGenerator(map[string]string{"/kiosk/a.txt": "one\ntwo\n"})
	sink := &disconnectingSink{g: g, returned: make(chan string, 4)}

	g.Initialize(sink, "a.txt", time.Second)
	require.True(t, g.Connected())
	clock.Advance(time.Second)

	select {
	case payload := <-sink.returned:
		assert.Equal(t, "one", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect called from DataReceived did not return")
	}
	assert.False(t, g.Connected())
	assert.Zero(t, clock.Tickers())

	clock.Advance(5 * time.Second)
	assert.Empty(t, sink.returned)
}

func TestGenerator_CloseBlocksInitialize(t *testing.T) {
	g, clock := newTestGenerator(map[string]string{"/kiosk/a.txt": "a\n"})
	sink := newRecordingSink()

	g.Initialize(sink, "a.txt", time.Second)
	require.Equal(t, "connected", sink.next(t).kind)
	g.Close()
	assert.False(t, g.Connected())

	g.Initialize(sink, "a.txt", time.Second)
	assert.False(t, g.Connected())
	assert.Zero(t, clock.Tickers())
	assert.Empty(t, sink.drain())
}
