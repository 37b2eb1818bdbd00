package signal

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// subscriber is one registered callback and the last version it has seen.
type subscriber[T any] struct {
	fn   func(T)
	seen uint64
}

// Value is a multicast holder for the latest value of type T.
//
// New subscribers immediately receive the current value. Every later
// publication is delivered to every subscriber that has not seen it yet.
// Value is safe for concurrent use.
type Value[T any] struct {
	mu       sync.Mutex
	current  T
	version  uint64
	lastSeq  uint64
	subs     []*subscriber[T]
	flushing bool
	logger   *slog.Logger
}

// New creates a [Value] holding initial. A nil logger falls back to
// [slog.Default].
func New[T any](initial T, logger *slog.Logger) *Value[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Value[T]{
		current: initial,
		version: 1,
		logger:  logger,
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and delivers it to all subscribers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.current = val
	v.version++
	v.mu.Unlock()

	v.flush()
}

// Offer publishes val only if seq is greater than every seq offered before.
//
// Offer lets several goroutines compute values concurrently while keeping
// publication monotonic: a value computed from older inputs never replaces
// one computed from newer inputs. Returns false if val was dropped.
func (v *Value[T]) Offer(seq uint64, val T) bool {
	v.mu.Lock()
	if seq <= v.lastSeq {
		v.mu.Unlock()
		return false
	}
	v.lastSeq = seq
	v.current = val
	v.version++
	v.mu.Unlock()

	v.flush()
	return true
}

// Subscribe registers fn and returns a function that removes it.
//
// fn receives the current value before Subscribe returns unless another
// goroutine is delivering at that moment, in which case that goroutine
// delivers it. The returned function is safe to call more than once.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	sub := &subscriber[T]{fn: fn}

	v.mu.Lock()
	v.subs = append(v.subs, sub)
	v.mu.Unlock()

	v.flush()

	var once sync.Once
	return func() {
		once.Do(func() { v.remove(sub) })
	}
}

// Watch registers fn to be called on every change, ignoring the value.
func (v *Value[T]) Watch(fn func()) (cancel func()) {
	return v.Subscribe(func(T) { fn() })
}

// Len returns the number of active subscribers.
func (v *Value[T]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) remove(sub *subscriber[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, s := range v.subs {
		if s == sub {
			v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
			return
		}
	}
}

// flush delivers pending versions until every subscriber is current.
// Only one goroutine flushes at a time; others return immediately and
// leave their work to the active flusher.
func (v *Value[T]) flush() {
	v.mu.Lock()
	if v.flushing {
		v.mu.Unlock()
		return
	}
	v.flushing = true

	for {
		var target *subscriber[T]
		for _, s := range v.subs {
			if s.seen < v.version {
				target = s
				break
			}
		}
		if target == nil {
			v.flushing = false
			v.mu.Unlock()
			return
		}

		target.seen = v.version
		val := v.current
		v.mu.Unlock()

		v.deliver(target.fn, val)

		v.mu.Lock()
	}
}

// deliver calls fn with panic recovery. A panicking subscriber is logged and
// keeps its subscription.
func (v *Value[T]) deliver(fn func(T), val T) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("subscriber panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(val)
}
