package kubetable

import (
	"context"
	"log/slog"

	"github.com/jpalmerr/kubetable/internal/source"
)

// Stream is an open push channel. Messages yields raw payloads and is closed
// when the stream ends; Close is idempotent.
type Stream = source.Stream

// Transport opens push channels.
//
// Open must not block on the network: it returns a [Stream] straight away and
// connects in the background. It returns an error only when the address
// cannot be used at all. Connection failures after Open are the transport's
// to log; they end the stream.
type Transport interface {
	Open(ctx context.Context, address string) (Stream, error)
}

// DefaultTransport returns the transport used when none is configured:
// Server-Sent Events for http and https addresses, WebSocket for ws and wss.
func DefaultTransport(logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return source.NewDialer(logger)
}

// Watchable is anything that can notify a store of changes. Stores and
// [SideTable] implement it, so either can be passed to [WithExtraStores].
type Watchable interface {
	// Watch calls fn on every change, including once on registration, and
	// returns a function that cancels the registration.
	Watch(fn func()) (cancel func())
}
