package watch

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

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_FiresAfterDebounce(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var fired []string
	w := New([]string{dir}, 50*time.Millisecond, func(path string) {
		mu.Lock()
		fired = append(fired, path)
		mu.Unlock()
	}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(dir, "history.json")
	if err := os.WriteFile(target, []byte(`{"id": "w1"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(fired)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never fired")
		case <-time.After(20 * time.Millisecond):
		}
	}

	mu.Lock()
	got := fired[0]
	mu.Unlock()
	if got != target {
		t.Errorf("fired for %q, want %q", got, target)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned error: %v", err)
	}
}

func TestWatcher_IgnoresUnparseableFiles(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var fired []string
	w := New([]string{dir}, 30*time.Millisecond, func(path string) {
		mu.Lock()
		fired = append(fired, path)
		mu.Unlock()
	}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 0 {
		t.Errorf("fired for unparseable file: %v", fired)
	}
}

func TestWatcher_NoDirsBlocksUntilCancel(t *testing.T) {
	w := New(nil, 10*time.Millisecond, func(string) {
		t.Error("onChange must not fire without dirs")
	}, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run returned error: %v", err)
	}
}
