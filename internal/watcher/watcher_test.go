package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherFiresOnMarkdownChange(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	changed := []string{}
	service, err := New(dir, discardLogger(), func(ctx context.Context, path string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, path)
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	// Give the watcher a moment to register the root.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "horarios.md"), []byte("# Horarios"), 0o644); err != nil {
		t.Fatalf("write knowledge file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("write ignored file: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		got := len(changed)
		mu.Unlock()
		if got > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never fired for markdown change")
		case <-time.After(50 * time.Millisecond):
		}
	}

	mu.Lock()
	for _, path := range changed {
		if filepath.Ext(path) != ".md" {
			t.Fatalf("non-markdown change leaked through: %s", path)
		}
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherIdlesWithoutKnowledgeDir(t *testing.T) {
	service, err := New(filepath.Join(t.TempDir(), "missing"), discardLogger(), func(context.Context, string) {})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("missing dir must not fail the watcher: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
