package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
)

// recordingIngester records every path it is asked to ingest.
type recordingIngester struct {
	mu    sync.Mutex
	paths []string
	err   error
	seen  map[string]bool
}

func (r *recordingIngester) IngestFile(_ context.Context, path string, _ []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.err != nil {
		return false, r.err
	}
	if r.seen == nil {
		r.seen = map[string]bool{}
	}
	if r.seen[path] {
		return false, nil
	}
	r.seen[path] = true
	return true, nil
}

func (r *recordingIngester) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func watchConfig(dirs []string, exts ...string) config.WatchConfig {
	return config.WatchConfig{Directories: dirs, Extensions: exts}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func containsSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := New(watchConfig(nil, ".txt"), &recordingIngester{})
	if err := w.AddDirectory(dir, false); err == nil {
		t.Error("AddDirectory before Start should fail")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := New(watchConfig([]string{dir}, ".txt"), ing, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "f.txt")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(ing.snapshot()) >= 1 }) {
		t.Fatal("expected f.txt to be ingested")
	}
	time.Sleep(300 * time.Millisecond)
	paths := ing.snapshot()
	if len(paths) != 1 {
		t.Errorf("writes within the debounce window should ingest once, got %v", paths)
	}
	if containsSuffix(paths, "ignored.bin") {
		t.Error("ignored.bin should not be ingested")
	}
	if got := w.Stats(); got.Ingested != 1 {
		t.Errorf("Stats = %+v", got)
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{"a.txt": "hello", "ignore.xyz": "x", "sub/b.txt": "nested"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	ing := &recordingIngester{}
	w := New(watchConfig([]string{dir}, ".txt"), ing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.SyncExisting()
	paths := ing.snapshot()
	if len(paths) != 2 || !containsSuffix(paths, "a.txt") || !containsSuffix(paths, "b.txt") {
		t.Errorf("expected a.txt and sub/b.txt, got %v", paths)
	}

	w.SyncExisting()
	if got := w.Stats(); got.Ingested != 2 || got.Skipped != 2 {
		t.Errorf("Stats = %+v", got)
	}
}

func TestWatcher_NonRecursiveSync(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "top.txt"), []byte("a"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "sub", "deep.txt"), []byte("b"), 0600)

	off := false
	ing := &recordingIngester{}
	w := New(config.WatchConfig{Directories: []string{dir}, Recursive: &off}, ing)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExisting()
	paths := ing.snapshot()
	if len(paths) != 1 || !containsSuffix(paths, "top.txt") {
		t.Errorf("non-recursive sync should only see top.txt, got %v", paths)
	}
}

func TestWatcher_FailuresCounted(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0600)
	ing := &recordingIngester{err: errors.New("extract failed")}
	w := New(watchConfig([]string{dir}), ing)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SyncExisting()
	if got := w.Stats(); got.Failed != 1 || got.Ingested != 0 {
		t.Errorf("Stats = %+v", got)
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := New(watchConfig([]string{root}, ".txt"), &recordingIngester{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewDirectoryIsIngested(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := New(watchConfig([]string{dir}, ".txt", ".md"), ing, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(nested, "deep.txt"), []byte("deep content"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "level1", "doc.md"), []byte("world"), 0600)
	_ = os.WriteFile(filepath.Join(dir, "level1", "ignore.xyz"), []byte("skip"), 0600)

	ok := waitFor(t, 3*time.Second, func() bool {
		paths := ing.snapshot()
		return containsSuffix(paths, "deep.txt") && containsSuffix(paths, "doc.md")
	})
	if !ok {
		t.Errorf("expected deep.txt and doc.md to be ingested, got %v", ing.snapshot())
	}
	if containsSuffix(ing.snapshot(), "ignore.xyz") {
		t.Error("ignore.xyz should not be ingested")
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
		{"/tmp/a", "/tmp/ab", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
