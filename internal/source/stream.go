package source

import (
	"context"
	"sync"
)

// Stream is an open push channel.
type Stream interface {
	// Messages returns the channel of raw payloads. It is closed when the
	// stream ends for any reason.
	Messages() <-chan []byte

	// Close releases the stream. Safe to call multiple times.
	Close() error
}

// stream is the shared Stream implementation used by every transport.
//
// The producer goroutine owns msgs and closes it on exit. Close cancels the
// producer's context and runs the optional onClose hook exactly once.
type stream struct {
	msgs      chan []byte
	cancel    context.CancelFunc
	onClose   func()
	closeOnce sync.Once
}

func newStream(cancel context.CancelFunc) *stream {
	return &stream{
		// one slot: a slow consumer sees the newest payload, not a backlog
		msgs:   make(chan []byte, 1),
		cancel: cancel,
	}
}

func (s *stream) Messages() <-chan []byte {
	return s.msgs
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// publish hands payload to the consumer, replacing an unread older payload.
// Returns false once ctx is cancelled.
func (s *stream) publish(ctx context.Context, payload []byte) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case s.msgs <- payload:
			return true
		default:
			// consumer is behind; drop the stale payload
			select {
			case <-s.msgs:
			default:
			}
		}
	}
}
