package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultInterval is the time between probes when none is configured.
	DefaultInterval = 5 * time.Second

	// DefaultTimeout is the per-probe timeout when none is configured.
	DefaultTimeout = 2 * time.Second

	// maxBodySize bounds how much of a health response is read.
	maxBodySize = 1 << 20
)

// Config describes what a [Monitor] probes.
type Config struct {
	// URL is the health endpoint, e.g. "https://cluster.local/healthz".
	URL string

	// Headers are sent with every probe, typically Authorization.
	Headers map[string]string

	// Interval is the time between probes. Zero means [DefaultInterval].
	Interval time.Duration

	// Timeout bounds each probe. Zero means [DefaultTimeout].
	Timeout time.Duration

	// Extractor interprets the response. Nil means [DefaultExtractor].
	Extractor Extractor
}

// Result is the outcome of one probe.
type Result struct {
	Status     Status
	StatusCode int
	Latency    time.Duration
	CheckedAt  time.Time
	Error      error
}

// Change describes a status transition.
type Change struct {
	From   Status
	To     Status
	Result Result
}

// Monitor probes a health URL periodically and reports status transitions.
//
// The monitor probes immediately on Start and then on every interval.
// Callbacks registered with [Monitor.OnChange] and [Monitor.OnRecover] run on
// the probing goroutine, one at a time; a panicking callback is logged and
// does not stop the monitor.
//
// All methods are safe for concurrent use.
type Monitor struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	last      Result
	onChange  []func(Change)
	onRecover []func()
}

// NewMonitor creates a [Monitor]. It returns an error if the URL is not an
// absolute http or https URL or a duration is negative.
func NewMonitor(cfg Config, logger *slog.Logger) (*Monitor, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid health url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("health url must be http or https, got %q", cfg.URL)
	}
	if u.Host == "" {
		return nil, errors.New("health url must have a host")
	}
	if cfg.Interval < 0 || cfg.Timeout < 0 {
		return nil, errors.New("health interval and timeout cannot be negative")
	}

	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Extractor == nil {
		cfg.Extractor = DefaultExtractor
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		cfg: cfg,
		// one host, probed sequentially: a single kept-alive connection
		// is all the monitor uses
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     cfg.Interval + cfg.Timeout,
			},
		},
		logger: logger.With("health_url", cfg.URL),
		last:   Result{Status: StatusUnknown},
	}, nil
}

// OnChange registers fn for every status transition, including the first
// probe's transition out of [StatusUnknown].
func (m *Monitor) OnChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// OnRecover registers fn for transitions to [StatusUp] from down or degraded.
// The first successful probe is not a recovery.
func (m *Monitor) OnRecover(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecover = append(m.onRecover, fn)
}

// Status returns the status of the latest probe.
func (m *Monitor) Status() Status {
	return m.Last().Status
}

// Last returns the latest probe result.
func (m *Monitor) Last() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Start begins probing in a background goroutine and returns immediately.
//
// Start is idempotent; calls after the first are no-ops, as is Start after
// Stop. If ctx is nil, context.Background() is used.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		m.Check(ctx)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop halts probing and waits for an in-flight probe and its callbacks to
// finish. Stop is idempotent and safe to call before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		if m.cancel != nil {
			m.cancel()
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.httpClient.CloseIdleConnections()
}

// Check probes once, records the result and fires callbacks for any
// transition. It is what the background loop runs on every tick.
func (m *Monitor) Check(ctx context.Context) Result {
	result := m.fetch(ctx)

	// a probe cut short by Stop says nothing about the API
	if ctx.Err() != nil {
		return result
	}

	m.mu.Lock()
	prev := m.last.Status
	m.last = result
	onChange := append([]func(Change){}, m.onChange...)
	onRecover := append([]func(){}, m.onRecover...)
	m.mu.Unlock()

	if prev == result.Status {
		return result
	}

	m.logger.Info("health status changed",
		"from", prev.String(),
		"to", result.Status.String(),
		"status_code", result.StatusCode,
		"latency", result.Latency,
		"error", result.Error,
	)

	change := Change{From: prev, To: result.Status, Result: result}
	for _, fn := range onChange {
		m.safeCall("change callback", func() { fn(change) })
	}
	if result.Status == StatusUp && (prev == StatusDown || prev == StatusDegraded) {
		for _, fn := range onRecover {
			m.safeCall("recover callback", fn)
		}
	}

	return result
}

// fetch GETs the health URL once within the configured timeout and
// interprets the response. Transport failures are reported as down.
func (m *Monitor) fetch(ctx context.Context) (result Result) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	result = Result{Status: StatusDown}
	defer func() {
		result.Latency = time.Since(start)
		result.CheckedAt = time.Now()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.URL, nil)
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result
	}
	for key, value := range m.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("request failed: %w", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	result.StatusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		result.Error = fmt.Errorf("failed to read response body: %w", err)
		return result
	}

	result.Status, result.Error = m.safeExtract(body, resp.StatusCode)
	return result
}

// safeExtract calls the extractor with panic recovery. A panicking extractor
// reports the API as down with an error carrying a correlation ID.
func (m *Monitor) safeExtract(body []byte, statusCode int) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			m.logger.Error("extractor panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			status = StatusDown
			err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
		}
	}()
	return m.cfg.Extractor(body, statusCode), nil
}

func (m *Monitor) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(what+" panic",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
