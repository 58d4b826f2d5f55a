package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a set of folder roots recursively.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	exts      map[string]struct{}
	errors    chan error
	opts      Options

	mu      sync.RWMutex
	roots   []string
	watched map[string]struct{}
	started bool
	stopped bool
	stopCh  chan struct{}
}

// New creates a watcher. Nothing is watched until Start.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}

	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		exts:      exts,
		errors:    make(chan error, 10),
		opts:      opts,
		watched:   make(map[string]struct{}),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches roots and processes events in the background until ctx is
// cancelled or Stop is called. Roots that cannot be watched are logged and
// skipped.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher is stopped")
	}
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	w.SetRoots(roots)
	go w.loop(ctx)
	return nil
}

// SetRoots replaces the watched roots, dropping watches outside the new set.
func (w *Watcher) SetRoots(roots []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	for dir := range w.watched {
		if !withinAny(dir, roots) {
			_ = w.fsw.Remove(dir)
			delete(w.watched, dir)
		}
	}

	w.roots = append([]string(nil), roots...)
	for _, root := range roots {
		if err := w.addRecursiveLocked(root); err != nil {
			slog.Warn("watch_root_failed",
				slog.String("root", root),
				slog.String("error", err.Error()))
		}
	}
	slog.Debug("watch_roots_updated",
		slog.Int("roots", len(roots)),
		slog.Int("directories", len(w.watched)))
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.roots...)
}

// addRecursiveLocked adds every directory under root to fsnotify.
func (w *Watcher) addRecursiveLocked(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if _, ok := w.watched[path]; ok {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.emitError(fmt.Errorf("watch %s: %w", path, err))
			return nil
		}
		w.watched[path] = struct{}{}
		return nil
	})
}

// skipDir names directories that never hold user images.
func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "@eaDir", ".thumbnails", ".Trash":
		return true
	}
	return false
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

// handle converts and filters one fsnotify event.
func (w *Watcher) handle(event fsnotify.Event) {
	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return // chmod
	}

	if isDir && op == OpCreate {
		w.mu.Lock()
		if !w.stopped && withinAny(event.Name, w.roots) && !skipDir(filepath.Base(event.Name)) {
			_ = w.addRecursiveLocked(event.Name)
		}
		w.mu.Unlock()
	}
	if op.Removes() {
		w.mu.Lock()
		if _, ok := w.watched[event.Name]; ok {
			delete(w.watched, event.Name)
			isDir = true
		}
		w.mu.Unlock()
	}

	if !interesting(event.Name, op, isDir, w.exts) {
		return
	}
	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// emitError sends a non-fatal error without blocking.
func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Debug("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

// Events returns the channel of debounced batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the fsnotify handle and closes Events.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	return w.fsw.Close()
}

// withinAny reports whether path equals or lies under one of roots.
func withinAny(path string, roots []string) bool {
	for _, r := range roots {
		r = strings.TrimRight(r, string(os.PathSeparator))
		if path == r || strings.HasPrefix(path, r+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
