package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"curator/internal/dataset"
	"curator/internal/metadata"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

type recorder struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (r *recorder) FileAdded(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, path)
}

func (r *recorder) FileRemoved(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.added...), append([]string(nil), r.removed...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func isWav(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

func TestIgnored(t *testing.T) {
	tests := map[string]bool{
		"/d/.hidden.wav": true,
		"/d/upload.tmp":  true,
		"/d/track.wav":   false,
		"/d/.":           true,
	}
	for path, want := range tests {
		if got := ignored(path); got != want {
			t.Errorf("ignored(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestHandleEventFiltering(t *testing.T) {
	rec := &recorder{}
	w := New("/d", isWav, rec, time.Hour, quietLogger())

	w.handleEvent(fsnotify.Event{Name: "/d/notes.txt", Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: "/d/.tmp.wav", Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: "/d/gone.wav", Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: "/d/moved.wav", Op: fsnotify.Rename})

	_, removed := rec.snapshot()
	if len(removed) != 2 || removed[0] != "/d/gone.wav" || removed[1] != "/d/moved.wav" {
		t.Errorf("expected gone.wav and moved.wav removed, got %v", removed)
	}

	w.handleEvent(fsnotify.Event{Name: "/d/new.wav", Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: "/d/other.wav", Op: fsnotify.Write})
	w.mu.Lock()
	_, newPending := w.pending["/d/new.wav"]
	_, otherPending := w.pending["/d/other.wav"]
	w.mu.Unlock()
	if !newPending {
		t.Error("expected created file to be pending")
	}
	if otherPending {
		t.Error("expected a write without create to be ignored")
	}

	w.handleEvent(fsnotify.Event{Name: "/d/new.wav", Op: fsnotify.Remove})
	w.mu.Lock()
	_, newPending = w.pending["/d/new.wav"]
	w.mu.Unlock()
	if newPending {
		t.Error("expected removal to cancel the pending add")
	}
}

func TestRunReportsChanges(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.wav")
	if err := os.WriteFile(existing, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := New(dir, isWav, rec, 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run failed: %v", err)
		}
	}()

	// give the watcher time to register the folder
	time.Sleep(100 * time.Millisecond)

	added := filepath.Join(dir, "new.wav")
	if err := os.WriteFile(added, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(existing); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		a, r := rec.snapshot()
		if len(a) == 1 && len(r) == 1 {
			if a[0] != added || r[0] != existing {
				t.Errorf("unexpected events: added %v removed %v", a, r)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	a, r := rec.snapshot()
	t.Fatalf("timed out waiting for events: added %v removed %v", a, r)
}

func TestRunMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), isWav, &recorder{}, 0, quietLogger())
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for a missing folder")
	}
}

func TestSessionHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.wav"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	logger := quietLogger()
	s := dataset.NewSession(metadata.NewExtractor(nil, logger, nil), logger)
	if err := s.OpenFolder(dir); err != nil {
		t.Fatal(err)
	}

	h := &SessionHandler{Session: s, AutoSave: true, Lock: &sync.Mutex{}, Logger: logger}

	added := filepath.Join(dir, "b.wav")
	if err := os.WriteFile(added, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	h.FileAdded(added)
	if s.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", s.Len())
	}
	if s.HasUnsavedChanges() {
		t.Error("expected auto-save after add")
	}
	if _, err := os.Stat(s.DefaultManifestPath()); err != nil {
		t.Errorf("expected manifest to be written: %v", err)
	}

	h.FileAdded(filepath.Join(dir, "cover.jpg"))
	if s.Len() != 2 {
		t.Errorf("expected non-audio file to be skipped, got %d records", s.Len())
	}

	h.FileRemoved(filepath.Join(dir, "a.wav"))
	if s.Len() != 1 {
		t.Errorf("expected 1 record after removal, got %d", s.Len())
	}
	if s.HasUnsavedChanges() {
		t.Error("expected auto-save after removal")
	}

	h.AutoSave = false
	h.FileRemoved(added)
	if !s.HasUnsavedChanges() {
		t.Error("expected removal without auto-save to stay unsaved")
	}
}
