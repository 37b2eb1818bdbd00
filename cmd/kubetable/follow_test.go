package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kubetable.yaml")
	other := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	err := watchFiles(ctx, []string{path}, 100*time.Millisecond, testLogger(), func(p string) {
		changed <- p
	})
	if err != nil {
		t.Fatalf("watchFiles() error = %v", err)
	}

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(other, []byte("b: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// a burst of writes is debounced into one call
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case p := <-changed:
		if p != path {
			t.Errorf("changed path = %q, want %q", p, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}

	select {
	case p := <-changed:
		t.Errorf("unexpected second change for %q", p)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchFiles_MissingDirectory(t *testing.T) {
	err := watchFiles(context.Background(), []string{"/nonexistent/dir/kubetable.yaml"}, 0, testLogger(), func(string) {})
	if err == nil {
		t.Error("watchFiles() expected error for missing directory, got nil")
	}
}
