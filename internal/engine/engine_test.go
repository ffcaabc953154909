package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a minimal LampController for tests: no real sockets,
// just an in-memory device table and a call log.
type fakeTransport struct {
	mu      sync.Mutex
	devices map[string]string // device id -> ip
	colors  map[string]int    // ip -> number of SetColor calls
	turnedOn map[string]bool
}

func newFakeTransport(devices map[string]string) *fakeTransport {
	return &fakeTransport{devices: devices, colors: make(map[string]int), turnedOn: make(map[string]bool)}
}

func (f *fakeTransport) GetIP(_ context.Context, deviceID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip, ok := f.devices[deviceID]
	return ip, ok
}

func (f *fakeTransport) Turn(ip string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turnedOn[ip] = on
}

func (f *fakeTransport) SetBrightness(ip string, percent int) {}

func (f *fakeTransport) SetColor(ip string, r, g, b uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.colors[ip]++
}

func (f *fakeTransport) colorCount(ip string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.colors[ip]
}

// panicTransport wraps a fakeTransport and panics on every SetColor
// call, simulating an unexpected failure inside the worker loop's
// dispatch path.
type panicTransport struct {
	*fakeTransport
}

func (p *panicTransport) SetColor(ip string, r, g, b uint8) {
	panic("simulated worker dispatch panic")
}

func TestStartFailsWithZeroLamps(t *testing.T) {
	tr := newFakeTransport(map[string]string{})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	err := e.Start(context.Background(), "pulse", []string{"X"}, 0, 5)
	if err == nil {
		t.Fatal("expected NoLampsError")
	}
	if _, ok := err.(*NoLampsError); !ok {
		t.Fatalf("expected *NoLampsError, got %T", err)
	}
	if e.Status().Active {
		t.Fatal("engine must remain Idle when start resolves zero lamps")
	}
}

func TestStartRejectsUnknownMode(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	err := e.Start(context.Background(), "strobe", []string{"D1"}, 0, 5)
	if _, ok := err.(*BadModeError); !ok {
		t.Fatalf("expected *BadModeError, got %v", err)
	}
}

func TestStartWithMissingFIFORunsPatternOnlyAndIsActive(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1", "D2": "10.0.0.2"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	if err := e.Start(context.Background(), "ambient", []string{"D1", "D2"}, 0, 3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if tr.colorCount("10.0.0.1") > 0 && tr.colorCount("10.0.0.2") > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := e.Status()
	if !status.Active {
		t.Fatal("engine should be active even with no FIFO")
	}
	if status.PipeExists {
		t.Fatal("pipe_exists should be false when the FIFO is missing")
	}
	if tr.colorCount("10.0.0.1") == 0 || tr.colorCount("10.0.0.2") == 0 {
		t.Fatal("expected both lamps to have received at least one color datagram")
	}
}

func TestStopLeavesEngineInactiveWithinDeadline(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	if err := e.Start(context.Background(), "pulse", []string{"D1"}, 0, 5); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(stopJoinTimeout + time.Second):
		t.Fatal("Stop did not return within its join deadline")
	}

	if e.Status().Active {
		t.Fatal("status().active must be false after Stop")
	}
}

func TestStopSendsResetColorPerLamp(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1", "D2": "10.0.0.2"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	if err := e.Start(context.Background(), "party", []string{"D1", "D2"}, 0, 5); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before1 := tr.colorCount("10.0.0.1")
	before2 := tr.colorCount("10.0.0.2")

	e.Stop()

	if tr.colorCount("10.0.0.1") <= before1 {
		t.Fatal("expected a reset color datagram to lamp 1")
	}
	if tr.colorCount("10.0.0.2") <= before2 {
		t.Fatal("expected a reset color datagram to lamp 2")
	}
}

func TestLatencyBoundaryDoesNotStallWorker(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	if err := e.Start(context.Background(), "pulse", []string{"D1"}, 500, 5); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	// With no FIFO, the worker takes the pattern-only branch every
	// iteration and never reaches the latency sleep, so it must keep
	// emitting well inside the 500 ms bound.
	deadline := time.Now().Add(700 * time.Millisecond)
	for time.Now().Before(deadline) {
		if tr.colorCount("10.0.0.1") > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker appears stalled with a 500 ms latency offset configured")
}

func TestSetIntensityClamps(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))
	e.SetIntensity(999)
	if got := e.Status().Intensity; got != maxIntensity {
		t.Fatalf("expected intensity clamped to %d, got %d", maxIntensity, got)
	}
	e.SetIntensity(-5)
	if got := e.Status().Intensity; got != minIntensity {
		t.Fatalf("expected intensity clamped to %d, got %d", minIntensity, got)
	}
}

// TestWorkerPanicLeavesEngineIdleAndRestartable exercises spec section
// 4.D's worker-panic failure row: a panic inside the worker must leave
// running=false and joinable, and the next Start must succeed.
func TestWorkerPanicLeavesEngineIdleAndRestartable(t *testing.T) {
	tr := &panicTransport{fakeTransport: newFakeTransport(map[string]string{"D1": "10.0.0.1"})}
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	if err := e.Start(context.Background(), "pulse", []string{"D1"}, 0, 5); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitForInactive(t, e)

	// The worker goroutine must have fully joined, not just set the
	// flag, so a second Start is free to spawn a fresh one.
	if err := e.Start(context.Background(), "pulse", []string{"D1"}, 0, 5); err != nil {
		t.Fatalf("second Start after panic: %v", err)
	}
	waitForInactive(t, e)
}

func waitForInactive(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.Status().Active {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("engine did not become inactive after the worker panicked")
}

func TestSetLatencyRejectsOutOfRange(t *testing.T) {
	tr := newFakeTransport(map[string]string{"D1": "10.0.0.1"})
	e := New(tr, filepath.Join(t.TempDir(), "missing.fifo"))

	_, ok := e.SetLatency(501).(*ConfigOutOfRangeError)
	assert.True(t, ok, "expected ConfigOutOfRangeError for latency_ms > 500")

	_, ok = e.SetLatency(-501).(*ConfigOutOfRangeError)
	assert.True(t, ok, "expected ConfigOutOfRangeError for latency_ms < -500")

	require.NoError(t, e.SetLatency(500), "500 is in-range")
	require.NoError(t, e.SetLatency(-500), "-500 is in-range")
}
