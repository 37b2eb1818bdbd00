package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/jpalmerr/kubetable/internal/feed"
)

const (
	// writeTimeout is the maximum time allowed for a single SSE or WebSocket
	// write. This prevents goroutine leaks when clients are slow or gone.
	// Must be <= shutdown timeout to ensure clean shutdown.
	writeTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown after the context ends.
	shutdownTimeout = 5 * time.Second

	// ResourcesPath prefixes the per-kind stream routes.
	ResourcesPath = "/api/v1/resources/"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server pushes resource snapshots from a [feed.Feed] to clients.
//
// Routes:
//   - GET /healthz: liveness probe, answers "ok"
//   - GET /api/v1/resources: JSON list of served kinds
//   - GET /api/v1/resources/{kind}: the kind's snapshots as Server-Sent
//     Events, or over a WebSocket when the request is an upgrade; with
//     ?once=true, the current snapshot as plain JSON
//
// Every stream sends the full snapshot on connect, on every change and, when
// a resend interval is set, periodically so that a client that missed a push
// catches up. The namespace query parameter filters server-side; other
// parameters are accepted and ignored.
type Server struct {
	feed       *feed.Feed
	port       int
	resend     time.Duration
	httpServer *http.Server
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a [Server] for f listening on port. A resend of zero
// disables periodic resends. The server is not started until
// [Server.Start] is called.
func NewServer(f *feed.Feed, port int, resend time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		feed:   f,
		port:   port,
		resend: resend,
		upgrader: websocket.Upgrader{
			// the feed is read-only fixture data
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/resources", s.handleKinds)
	mux.HandleFunc("GET "+ResourcesPath+"{kind}", s.handleResources)
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until ctx is cancelled, then shuts down
// gracefully with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx, so streaming handlers end on
		// shutdown as well as on client disconnect
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("snapshot server listening", "addr", ln.Addr().String(), "kinds", s.feed.Kinds())
	return nil
}

// Addr returns the listening address once started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleKinds(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(s.feed.Kinds()); err != nil {
		s.logger.Error("failed to encode kinds response", "error", err)
	}
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	if _, ok := s.feed.Get(kind); !ok {
		http.Error(w, fmt.Sprintf("unknown resource kind %q", kind), http.StatusNotFound)
		return
	}

	namespace := r.URL.Query().Get("namespace")

	switch {
	case websocket.IsWebSocketUpgrade(r):
		s.handleWebSocket(w, r, kind, namespace)
	case isTrue(r.URL.Query().Get("once")):
		s.handleOnce(w, kind, namespace)
	default:
		s.handleSSE(w, r, kind, namespace)
	}
}

// handleOnce writes the current snapshot as a JSON array.
func (s *Server) handleOnce(w http.ResponseWriter, kind, namespace string) {
	snap, _ := s.feed.Get(kind)
	payload, err := payloadFor(snap, namespace)
	if err != nil {
		s.logger.Error("failed to encode snapshot", "kind", kind, "error", err)
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(payload); err != nil {
		s.logger.Error("failed to write snapshot response", "error", err)
	}
}

// handleSSE streams snapshots via Server-Sent Events, one event per
// snapshot with the whole JSON array on a single data line.
//
// Writes carry deadlines so that a blocked write to a slow or disconnected
// client cannot keep the handler from noticing shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request, kind, namespace string) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	s.stream(r.Context(), kind, namespace, writeAndFlush)
}

// handleWebSocket streams snapshots as WebSocket text messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, kind, namespace string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		s.logger.Warn("websocket upgrade failed", "kind", kind, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the client never sends data; reading surfaces its close frame
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(data []byte) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.stream(ctx, kind, namespace, write)

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

// stream sends the current snapshot and then every change until ctx ends
// or a write fails.
func (s *Server) stream(ctx context.Context, kind, namespace string, write func([]byte) error) {
	ch := s.feed.Subscribe(kind)
	defer s.feed.Unsubscribe(ch)

	send := func(snap feed.Snapshot) bool {
		payload, err := payloadFor(snap, namespace)
		if err != nil {
			s.logger.Error("failed to encode snapshot", "kind", kind, "error", err)
			return true
		}
		if err := write(payload); err != nil {
			s.logger.Debug("client write failed", "kind", kind, "error", err)
			return false
		}
		return true
	}

	current, _ := s.feed.Get(kind)
	if !send(current) {
		return
	}

	var resend <-chan time.Time
	if s.resend > 0 {
		ticker := time.NewTicker(s.resend)
		defer ticker.Stop()
		resend = ticker.C
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			current = snap
			if !send(snap) {
				return
			}

		case <-resend:
			if latest, ok := s.feed.Get(kind); ok {
				current = latest
			}
			if !send(current) {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// payloadFor returns the JSON array for snap, keeping only objects in
// namespace when it is set.
func payloadFor(snap feed.Snapshot, namespace string) ([]byte, error) {
	if namespace == "" {
		if snap.Payload == nil {
			return []byte("[]"), nil
		}
		return snap.Payload, nil
	}

	filtered := make([]feed.Object, 0, len(snap.Objects))
	for _, obj := range snap.Objects {
		md, _ := obj["metadata"].(map[string]any)
		if ns, _ := md["namespace"].(string); ns == namespace {
			filtered = append(filtered, obj)
		}
	}
	return json.Marshal(filtered)
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
