package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Dialer opens a stream with the transport matching the address scheme:
// http and https use [SSE], ws and wss use [WebSocket].
type Dialer struct {
	sse *SSE
	ws  *WebSocket
}

// NewDialer creates a [Dialer] with default SSE and WebSocket transports.
func NewDialer(logger *slog.Logger) *Dialer {
	return &Dialer{
		sse: NewSSE(nil, logger),
		ws:  NewWebSocket(nil, nil, logger),
	}
}

// Open dispatches to the transport for the address scheme.
func (d *Dialer) Open(ctx context.Context, address string) (Stream, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid stream address: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		return d.sse.Open(ctx, address)
	case "ws", "wss":
		return d.ws.Open(ctx, address)
	default:
		return nil, fmt.Errorf("unsupported stream scheme %q (expected http, https, ws or wss)", u.Scheme)
	}
}
