package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocket opens push channels over WebSocket connections. Each text or
// binary frame is one payload.
type WebSocket struct {
	dialer *websocket.Dialer
	header http.Header
	logger *slog.Logger
}

// NewWebSocket creates a [WebSocket] transport. A nil dialer uses
// [websocket.DefaultDialer]; header is sent with the handshake and may be nil.
func NewWebSocket(dialer *websocket.Dialer, header http.Header, logger *slog.Logger) *WebSocket {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{dialer: dialer, header: header, logger: logger}
}

// Open dials address in the background and returns immediately. Returns an
// error only if address is not a ws(s) URL.
func (t *WebSocket) Open(ctx context.Context, address string) (Stream, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid stream address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket stream address must be ws or wss, got %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)

	go func() {
		defer close(s.msgs)
		t.run(ctx, s, address)
	}()

	return s, nil
}

func (t *WebSocket) run(ctx context.Context, s *stream, address string) {
	conn, resp, err := t.dialer.DialContext(ctx, address, t.header)
	if err != nil {
		if ctx.Err() == nil {
			attrs := []any{"address", address, "error", err}
			if resp != nil {
				attrs = append(attrs, "status", resp.StatusCode)
			}
			t.logger.Warn("stream connect failed", attrs...)
		}
		return
	}

	// unblock ReadMessage when the stream is closed
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = conn.Close()
	}()
	defer wg.Wait()
	defer s.cancel()

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Info("stream ended by server", "address", address)
				return
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				t.logger.Warn("stream closed", "address", address, "code", closeErr.Code, "text", closeErr.Text)
				return
			}
			t.logger.Warn("stream read failed", "address", address, "error", err)
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if !s.publish(ctx, payload) {
			return
		}
	}
}
