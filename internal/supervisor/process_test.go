package supervisor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kiosk/internal/config"
	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/protocol"
	"github.com/banshee-data/kiosk/internal/serialport"
	"github.com/banshee-data/kiosk/internal/worker"
)

const helperEnv = "KIOSK_SUPERVISOR_HELPER"

// TestHelperWorkerProcess is not a real test. It is re-executed as the child
// process by the tests below and runs a worker over an in-memory device.
func TestHelperWorkerProcess(t *testing.T) {
	switch os.Getenv(helperEnv) {
	case "worker":
		monitoring.UseWriter(os.Stderr, "helper-worker: ")
		factory := serialport.NewFakeFactory()
		factory.AddPort("/dev/fake0").Feed("ST,GS,+0001.20kg\r\n")
		if err := worker.New(factory).Run(context.Background(), os.Stdin, os.Stdout); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "crash":
		os.Exit(3)
	}
}

func helperFactory() BackendFactory {
	return func(config.SerialConfig) (Backend, error) {
		return NewProcessBackend(os.Args[0], "-test.run=^TestHelperWorkerProcess$").WithStopGrace(time.Second), nil
	}
}

func TestProcessBackend_RoundTrip(t *testing.T) {
	t.Setenv(helperEnv, "worker")
	s := New(helperFactory(), nil)
	sink := newRecordingSink()

	cfg := realConfig
	cfg.PortPath = "/dev/fake0"
	cfg.BaudRate = 9600
	require.NoError(t, s.Initialize(sink, cfg))

	assert.Equal(t, uiEvent{"connected", ""}, sink.next(t))
	assert.True(t, s.Connected())
	assert.Equal(t, uiEvent{"data", "ST,GS,+0001.20kg\r\n"}, sink.next(t))
	require.NoError(t, s.SendData("T\r\n"))

	s.mu.Lock()
	backend := s.current.backend
	s.mu.Unlock()

	s.Disconnect()
	select {
	case <-backend.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after disconnect")
	}
	assert.NoError(t, backend.Err())
}

func TestProcessBackend_OpenFailure(t *testing.T) {
	t.Setenv(helperEnv, "worker")
	s := New(helperFactory(), nil)
	sink := newRecordingSink()

	cfg := realConfig
	cfg.PortPath = "/dev/missing"
	require.NoError(t, s.Initialize(sink, cfg))

	e := sink.next(t)
	assert.Equal(t, "error", e.kind)
	assert.Contains(t, e.text, "/dev/missing")
	assert.False(t, s.Connected())
	assert.True(t, s.Status().Active, "the worker keeps running after an open failure")
	s.Disconnect()
}

func TestProcessBackend_UnexpectedExit(t *testing.T) {
	t.Setenv(helperEnv, "crash")
	s := New(helperFactory(), nil)

	// The child may already be gone when the connect command is queued.
	_ = s.Initialize(newRecordingSink(), realConfig)
	require.Eventually(t, func() bool { return !s.Status().Active }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, s.Connected())
}

func TestProcessBackend_StartFailure(t *testing.T) {
	b := NewProcessBackend("/nonexistent/serial-worker")
	err := b.Start(func(protocol.Event) {})
	require.Error(t, err)

	require.NoError(t, b.Stop())
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop on an unstarted backend")
	}
	assert.ErrorIs(t, b.Send(protocol.Disconnect{}), ErrBackendStopped)
}
