package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

const (
	// initialScanBuffer and maxScanBuffer size the line scanner. Full
	// collection snapshots arrive as a single data line, so the default 64KB
	// limit is far too small.
	initialScanBuffer = 4 * 1024 * 1024
	maxScanBuffer     = 32 * 1024 * 1024
)

// SSE opens Server-Sent Events streams over HTTP.
//
// Each event's data lines are joined with newlines and delivered as one
// payload. Comment lines and the event, id and retry fields are ignored.
type SSE struct {
	client *http.Client
	logger *slog.Logger
}

// NewSSE creates an [SSE] transport. A nil client uses a client without a
// global timeout, since streams are long-lived; a nil logger uses
// [slog.Default].
func NewSSE(client *http.Client, logger *slog.Logger) *SSE {
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSE{client: client, logger: logger}
}

// Open starts streaming from address in the background and returns
// immediately. Returns an error only if address is not an http(s) URL.
func (t *SSE) Open(ctx context.Context, address string) (Stream, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid stream address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sse stream address must be http or https, got %q", u.Scheme)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)

	go func() {
		defer close(s.msgs)
		t.run(ctx, s, address)
	}()

	return s, nil
}

func (t *SSE) run(ctx context.Context, s *stream, address string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		t.logger.Error("failed to create stream request", "address", address, "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("stream connect failed", "address", address, "error", err)
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn("stream returned unexpected status", "address", address, "status", resp.StatusCode)
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, initialScanBuffer), maxScanBuffer)

	var data bytes.Buffer
	hasData := false

	for scanner.Scan() {
		line := scanner.Bytes()

		// blank line terminates an event
		if len(line) == 0 {
			if hasData {
				payload := append([]byte(nil), data.Bytes()...)
				data.Reset()
				hasData = false
				if !s.publish(ctx, payload) {
					return
				}
			}
			continue
		}

		// comment / keepalive
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if hasData {
			data.WriteByte('\n')
		}
		data.Write(value)
		hasData = true
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		t.logger.Warn("stream read failed", "address", address, "error", err)
		return
	}
	if ctx.Err() == nil {
		t.logger.Info("stream ended by server", "address", address)
	}
}
