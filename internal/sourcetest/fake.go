// Package sourcetest provides an in-memory push channel for tests.
//
// [Transport] records every Open call and hands out [Stream] values whose
// payloads are pushed by the test with [Stream.Push]. Close calls are counted
// so tests can assert that a stream is released exactly once.
package sourcetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/kubetable/internal/source"
)

// ErrRefused is returned by Open when the transport is set to refuse.
var ErrRefused = errors.New("sourcetest: open refused")

// Transport is a fake transport. The zero value is not usable; use [New].
type Transport struct {
	mu      sync.Mutex
	streams []*Stream
	refuse  bool
	opened  chan *Stream
}

// New creates a [Transport].
func New() *Transport {
	return &Transport{opened: make(chan *Stream, 16)}
}

// Refuse makes subsequent Open calls fail with [ErrRefused].
func (t *Transport) Refuse(refuse bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refuse = refuse
}

// Open records the address and returns a new [Stream].
func (t *Transport) Open(ctx context.Context, address string) (source.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.refuse {
		return nil, ErrRefused
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		Address: address,
		msgs:    make(chan []byte, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	t.streams = append(t.streams, s)

	select {
	case t.opened <- s:
	default:
	}
	return s, nil
}

// Opens returns how many streams have been opened.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

// Last returns the most recently opened stream, or nil.
func (t *Transport) Last() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

// Streams returns every stream opened so far.
func (t *Transport) Streams() []*Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Stream(nil), t.streams...)
}

// WaitOpen returns the next opened stream or nil after timeout.
func (t *Transport) WaitOpen(timeout time.Duration) *Stream {
	select {
	case s := <-t.opened:
		return s
	case <-time.After(timeout):
		return nil
	}
}

// Stream is a fake push channel.
type Stream struct {
	// Address is the address passed to Open.
	Address string

	msgs     chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	closes   atomic.Int64
	endOnce  sync.Once
	sendLock sync.Mutex
}

// Messages returns the payload channel.
func (s *Stream) Messages() <-chan []byte {
	return s.msgs
}

// Push delivers payload to the consumer. Returns false if the stream has been
// closed or ended.
func (s *Stream) Push(payload string) bool {
	s.sendLock.Lock()
	defer s.sendLock.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.msgs <- []byte(payload):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// End simulates the server dropping the connection.
func (s *Stream) End() {
	s.endOnce.Do(func() {
		s.cancel()
		s.sendLock.Lock()
		close(s.msgs)
		s.sendLock.Unlock()
	})
}

// Close counts the call and ends the stream.
func (s *Stream) Close() error {
	s.closes.Add(1)
	s.End()
	return nil
}

// Closes returns how many times Close was called.
func (s *Stream) Closes() int {
	return int(s.closes.Load())
}

// Closed reports whether the stream has been closed or ended.
func (s *Stream) Closed() bool {
	return s.ctx.Err() != nil
}
