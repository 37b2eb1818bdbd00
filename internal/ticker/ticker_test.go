package ticker

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestTicker_StopBeforeStart verifies that calling Stop() on a ticker that was
// never started does not panic and is a safe no-op.
func TestTicker_StopBeforeStart(t *testing.T) {
	tk := New(time.Minute, func() {}, testLogger())

	// this must not panic
	tk.Stop()
	tk.wait()

	if tk.running() {
		t.Error("running() = true after Stop(), want false")
	}
}

// TestTicker_StopTwice verifies that Stop() is idempotent.
func TestTicker_StopTwice(t *testing.T) {
	tk := New(time.Minute, func() {}, testLogger())
	tk.Start()

	tk.Stop()
	tk.Stop()
	tk.wait()
}

// TestTicker_StartTwice verifies that a second Start() does not spawn a
// second ticking goroutine.
func TestTicker_StartTwice(t *testing.T) {
	var calls atomic.Int64
	tk := New(20*time.Millisecond, func() { calls.Add(1) }, testLogger())

	tk.Start()
	tk.Start()
	time.Sleep(110 * time.Millisecond)
	tk.Stop()
	tk.wait()

	// one goroutine ticks ~5 times in 110ms; two would tick ~10 times
	if n := calls.Load(); n < 1 || n > 7 {
		t.Errorf("tick count = %d, want between 1 and 7", n)
	}
}

// TestTicker_StartAfterStop verifies that a stopped ticker stays stopped.
func TestTicker_StartAfterStop(t *testing.T) {
	var calls atomic.Int64
	tk := New(10*time.Millisecond, func() { calls.Add(1) }, testLogger())

	tk.Stop()
	tk.Start()
	time.Sleep(50 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("tick count = %d after Start() on stopped ticker, want 0", n)
	}
}

// TestTicker_PanicDoesNotStopClock verifies that a panicking tick function is
// recovered and later ticks still fire.
func TestTicker_PanicDoesNotStopClock(t *testing.T) {
	var calls atomic.Int64
	tk := New(10*time.Millisecond, func() {
		if calls.Add(1) == 1 {
			panic("first tick fails")
		}
	}, testLogger())

	tk.Start()
	defer tk.Stop()

	deadline := time.After(time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("tick count = %d after 1s, want >= 3", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestTicker_StopFromInsideTick verifies that Stop can be called from the
// tick function without deadlocking.
func TestTicker_StopFromInsideTick(t *testing.T) {
	var tk *Ticker
	stopped := make(chan struct{})
	tk = New(10*time.Millisecond, func() {
		tk.Stop()
		select {
		case <-stopped:
		default:
			close(stopped)
		}
	}, testLogger())

	tk.Start()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("tick did not run within 1s")
	}
	tk.wait()
}

func TestNew_DefaultInterval(t *testing.T) {
	tk := New(0, func() {}, nil)
	if tk.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", tk.interval, DefaultInterval)
	}
}
