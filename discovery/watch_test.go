package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaban/dsphost/internal/testutil"
)

func TestWatcherMarksDirtyOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if w.Dirty() {
		t.Fatal("watcher should start clean")
	}
	if err := os.WriteFile(filepath.Join(dir, "lib.rs"), []byte("fn main() {}"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	wait := 5 * time.Second
	if testutil.IsCI() {
		wait = 30 * time.Second // shared runners deliver fsnotify events late
	}
	deadline := time.Now().Add(wait)
	for !w.Dirty() {
		if time.Now().After(deadline) {
			t.Fatal("watcher never saw the write")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w.Clear()
	if w.Dirty() {
		t.Error("Clear should reset the dirty flag")
	}
}
