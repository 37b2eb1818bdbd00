// Package ticker provides the periodic age clock that keeps relative-age text
// fresh between snapshots.
package ticker

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInterval is the age refresh period.
const DefaultInterval = time.Second

// Ticker invokes a function on a fixed period in a background goroutine.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use. A Ticker
// runs at most once: Start after Stop is a no-op.
type Ticker struct {
	interval time.Duration
	fn       func()
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a [Ticker] calling fn every interval. A non-positive interval
// uses [DefaultInterval].
func New(interval time.Duration, fn func(), logger *slog.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{
		interval: interval,
		fn:       fn,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins ticking. Start is idempotent; subsequent calls after the first
// are no-ops, and Start after [Ticker.Stop] is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		tk := time.NewTicker(t.interval)
		defer tk.Stop()

		for {
			select {
			case <-t.done:
				return
			case <-tk.C:
				t.tick()
			}
		}
	}()
}

// Stop halts the ticker. Stop is idempotent and safe to call before Start.
//
// Stop does not wait for an in-flight tick to finish, so it may be called
// from inside the tick function itself.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}

// wait blocks until the ticking goroutine has exited. It must not be called
// from inside the tick function.
func (t *Ticker) wait() {
	t.wg.Wait()
}

// running reports whether the ticker has been started and not yet stopped.
func (t *Ticker) running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped
}

// tick calls fn with panic recovery so one bad tick does not stop the clock.
func (t *Ticker) tick() {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tick panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	t.fn()
}
