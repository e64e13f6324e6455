// Package watcher follows a dataset folder and reports audio files that
// appear in it or disappear from it.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a new file must stay quiet before it is
// reported, so partially copied files are not picked up.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives folder changes. Calls are made one at a time from the
// goroutine running Watcher.Run.
type Handler interface {
	FileAdded(path string)
	FileRemoved(path string)
}

// Watcher watches a single folder, non-recursively.
type Watcher struct {
	dir      string
	isAudio  func(string) bool
	handler  Handler
	debounce time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

// New creates a watcher for dir. isAudio decides which files are reported.
func New(dir string, isAudio func(string) bool, handler Handler, debounce time.Duration, logger *logrus.Logger) *Watcher {
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Watcher{
		dir:      dir,
		isAudio:  isAudio,
		handler:  handler,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
	}
}

// Run watches until ctx is done. It returns an error only when the watch
// cannot be set up. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	defer w.stopTimers()

	w.logger.WithField("dir", w.dir).Info("File watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.WithField("dir", w.dir).Info("File watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case path := <-w.ready:
			w.logger.WithField("file_path", path).Info("New audio file detected")
			w.handler.FileAdded(path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleEvent filters an event and schedules or reports it.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if ignored(event.Name) || !w.isAudio(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.schedule(event.Name)

	case event.Has(fsnotify.Write):
		w.extend(event.Name)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
		w.logger.WithField("file_path", event.Name).Info("Audio file removed")
		w.handler.FileRemoved(event.Name)
	}
}

// schedule starts the quiet period for a created file.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

// extend restarts the quiet period of a file still being written. Writes to
// files that were not created while watched are ignored.
func (w *Watcher) extend(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// ignored reports hidden and temporary files.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}
