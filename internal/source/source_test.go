package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// receive reads one payload or fails after a timeout.
func receive(t *testing.T, s Stream) string {
	t.Helper()
	select {
	case msg, ok := <-s.Messages():
		if !ok {
			t.Fatal("stream closed before a message arrived")
		}
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
	}
	return ""
}

// waitClosed fails unless the Messages channel closes within a timeout.
func waitClosed(t *testing.T, s Stream) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Messages():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestSSE_DeliversEvents(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept header = %q, want text/event-stream", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: snapshot\ndata: [{\"a\":1}]\n\n")
		fmt.Fprint(w, "data: [1,\ndata: 2]\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	s, err := NewSSE(nil, testLogger()).Open(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if got := receive(t, s); got != `[{"a":1}]` {
		t.Errorf("first payload = %q, want %q", got, `[{"a":1}]`)
	}
	if got := receive(t, s); got != "[1,\n2]" {
		t.Errorf("multi-line payload = %q, want %q", got, "[1,\n2]")
	}
}

func TestSSE_CloseEndsStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: []\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	s, err := NewSSE(nil, testLogger()).Open(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	receive(t, s)

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	waitClosed(t, s)
}

func TestSSE_NonOKStatusEndsStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	s, err := NewSSE(nil, testLogger()).Open(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	waitClosed(t, s)
}

func TestSSE_RejectsNonHTTPAddress(t *testing.T) {
	_, err := NewSSE(nil, testLogger()).Open(context.Background(), "ws://example.com/stream")
	if err == nil {
		t.Fatal("Open() expected error for ws address, got nil")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Errorf("error = %v, want mention of http or https", err)
	}
}

func TestSSE_ConnectFailureEndsStream(t *testing.T) {
	// reserve a port and close it so the dial fails fast
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	s, err := NewSSE(nil, testLogger()).Open(context.Background(), addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	waitClosed(t, s)
}

func newWebSocketServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebSocket_DeliversFrames(t *testing.T) {
	ts := newWebSocketServer(t, `[{"n":1}]`, `[{"n":2}]`)
	defer ts.Close()

	s, err := NewWebSocket(nil, nil, testLogger()).Open(context.Background(), wsURL(ts.URL))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	// frames may coalesce when the consumer is slower than the server, but
	// the newest one always arrives
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-s.Messages():
			if !ok {
				t.Fatal("stream closed before the last frame arrived")
			}
			if string(msg) == `[{"n":2}]` {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the last frame")
		}
	}
}

func TestWebSocket_CloseEndsStream(t *testing.T) {
	ts := newWebSocketServer(t, `[]`)
	defer ts.Close()

	s, err := NewWebSocket(nil, nil, testLogger()).Open(context.Background(), wsURL(ts.URL))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	receive(t, s)
	_ = s.Close()
	_ = s.Close()
	waitClosed(t, s)
}

func TestWebSocket_RejectsHTTPAddress(t *testing.T) {
	if _, err := NewWebSocket(nil, nil, testLogger()).Open(context.Background(), "http://example.com"); err == nil {
		t.Fatal("Open() expected error for http address, got nil")
	}
}

func TestDialer_DispatchesByScheme(t *testing.T) {
	sseServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: \"sse\"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer sseServer.Close()

	wsServer := newWebSocketServer(t, `"ws"`)
	defer wsServer.Close()

	d := NewDialer(testLogger())

	tests := []struct {
		name    string
		address string
		want    string
	}{
		{"http uses sse", sseServer.URL, `"sse"`},
		{"ws uses websocket", wsURL(wsServer.URL), `"ws"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := d.Open(context.Background(), tt.address)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s.Close()
			if got := receive(t, s); got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialer_UnsupportedScheme(t *testing.T) {
	_, err := NewDialer(testLogger()).Open(context.Background(), "ftp://example.com")
	if err == nil {
		t.Fatal("Open() expected error for ftp scheme, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported stream scheme") {
		t.Errorf("error = %v, want unsupported stream scheme", err)
	}
}
