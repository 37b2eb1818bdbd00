package kubetable

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewStore_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil extra store", WithExtraStores(nil)},
		{"nil transport", WithTransport(nil)},
		{"nil logger", WithLogger(nil)},
		{"zero tick interval", WithTickInterval(0)},
		{"negative tick interval", WithTickInterval(-time.Second)},
		{"nil clock", WithClock(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStore("name", tt.opt); err == nil {
				t.Errorf("NewStore() expected error for %s, got nil", tt.name)
			}
		})
	}
}

func TestNewStore_Defaults(t *testing.T) {
	s, err := NewStore("age")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if s.tickInterval != time.Second {
		t.Errorf("tickInterval = %v, want %v", s.tickInterval, time.Second)
	}
	if !s.SortAscending() {
		t.Error("SortAscending() = false, want true")
	}
	if s.transport == nil {
		t.Error("transport = nil, want default transport")
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s, err := NewStore("name",
		WithLogger(logger),
		WithName("pods"),
		WithTransport(refusingTransport{}),
	)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	s.Start("ws://cluster/pods", nil)

	out := buf.String()
	if !strings.Contains(out, "failed to open stream") {
		t.Errorf("log output = %q, want open failure", out)
	}
	if !strings.Contains(out, "store=pods") {
		t.Errorf("log output = %q, want store name attribute", out)
	}
}

func TestWithTickInterval(t *testing.T) {
	s, err := NewStore("name", WithTickInterval(250*time.Millisecond))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if s.tickInterval != 250*time.Millisecond {
		t.Errorf("tickInterval = %v, want %v", s.tickInterval, 250*time.Millisecond)
	}
}
