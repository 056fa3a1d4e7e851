// watcher.go: Recursive filesystem watcher with prefix-based event correlation
//
// The watcher owns exactly one background goroutine. Raw fsnotify events are
// mapped to CREATE/MODIFY/DELETE, fanned out to every listener whose
// registered root is a path-prefix of the event's path, and directories
// discovered via CREATE are registered on the fly so recursion stays current
// without re-scanning the whole tree.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherState models the watcher lifecycle: Idle → Running → Stopping → Stopped.
type WatcherState int32

const (
	WatcherIdle WatcherState = iota
	WatcherRunning
	WatcherStopping
	WatcherStopped
)

// String returns a human-readable representation of the watcher state.
func (s WatcherState) String() string {
	switch s {
	case WatcherIdle:
		return "idle"
	case WatcherRunning:
		return "running"
	case WatcherStopping:
		return "stopping"
	case WatcherStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// watchRegistration is one prefix-keyed listener group, kept in registration
// order for deterministic fan-out.
type watchRegistration struct {
	root      string
	listeners []WatchListener
}

// Watcher observes directory trees through the OS change-notification
// primitive and correlates events to interested listeners by path prefix.
//
// Event correlation and listener logic execute synchronously on the watcher's
// single goroutine, so a slow listener stalls subsequent delivery — an
// accepted property of the design, not mitigated here. One listener's panic
// is recovered and logged; delivery continues to subsequent listeners.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger Logger

	mu            sync.RWMutex
	registrations []watchRegistration
	roots         []string
	tracked       map[string]struct{}

	state    atomic.Int32 // WatcherState
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher in the Idle state. The OS watch primitive is
// allocated immediately so registration errors surface before Start.
func NewWatcher(logger any) (*Watcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewWatcherInternalError("failed to create filesystem watcher", err)
	}

	return &Watcher{
		fs:      inner,
		logger:  NewLogger(logger),
		tracked: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (w *Watcher) State() WatcherState {
	return WatcherState(w.state.Load())
}

// Watch registers a root directory recursively (the root plus all of its
// subdirectories) and associates the given listeners with the root prefix.
// An invalid or inaccessible root is surfaced synchronously.
func (w *Watcher) Watch(root string, listeners ...WatchListener) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return NewWatchRootError(root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return NewWatchRootError(root, err)
	}
	if !info.IsDir() {
		return NewWatchRootError(root, errors.New("watch root is not a directory"))
	}

	if err := w.registerTree(abs, true); err != nil {
		return NewWatchRootError(root, err)
	}

	w.mu.Lock()
	w.roots = append(w.roots, abs)
	w.mu.Unlock()

	if len(listeners) > 0 {
		w.AddEventListener(abs, listeners...)
	}

	w.logger.Info("Watching directory tree", "root", abs)
	return nil
}

// AddEventListener associates listeners with a path prefix. The prefix does
// not have to be a watched root itself: a listener on /a/b receives events
// from a tree watched at /a. Registration order is preserved across calls.
func (w *Watcher) AddEventListener(pathPrefix string, listeners ...WatchListener) {
	abs, err := filepath.Abs(pathPrefix)
	if err != nil {
		abs = pathPrefix
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.registrations = append(w.registrations, watchRegistration{
		root:      abs,
		listeners: listeners,
	})
}

// Start transitions Idle → Running and launches the event goroutine.
func (w *Watcher) Start() error {
	if !w.state.CompareAndSwap(int32(WatcherIdle), int32(WatcherRunning)) {
		return NewWatcherStateError("watcher is not idle, cannot start from state " + w.State().String())
	}

	go w.run()
	return nil
}

// Stop transitions Running → Stopping and waits for the goroutine to exit.
// The stop flag is observed before the next blocking wait: an event already
// pulled from the queue is still delivered, so shutdown is not instantaneous.
func (w *Watcher) Stop() error {
	state := w.State()
	if state == WatcherIdle {
		// never started; close the primitive directly
		w.state.Store(int32(WatcherStopped))
		w.stopOnce.Do(func() { _ = w.fs.Close() })
		return nil
	}
	if state == WatcherStopped {
		return nil
	}

	w.state.CompareAndSwap(int32(WatcherRunning), int32(WatcherStopping))
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
	return nil
}

// run is the single event loop. A panic anywhere in the loop is recovered
// and logged before the cleanup defer fires, so the watcher shuts down as
// Stopped instead of crashing the host process.
func (w *Watcher) run() {
	defer func() {
		_ = w.fs.Close()
		w.state.Store(int32(WatcherStopped))
		close(w.doneCh)
		w.logger.Info("Watcher stopped")
	}()
	defer withStackRecover(w.logger)()

	for {
		// stop flag checked before every blocking wait
		if w.State() == WatcherStopping {
			return
		}

		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.handleRawEvent(event) {
				return
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.handleWatchError(err)
		}
	}
}

// handleRawEvent maps, fans out and keeps recursion current. Returns false
// when the watcher should terminate (no tracked directories remain).
func (w *Watcher) handleRawEvent(raw fsnotify.Event) bool {
	kind, ok := mapEventKind(raw.Op)
	if !ok {
		return true // chmod and friends carry no content change
	}

	path := filepath.Clean(raw.Name)

	event := WatchEvent{
		Kind: kind,
		Path: path,
		Time: time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		event.IsFile = info.Mode().IsRegular()
		event.IsDir = info.IsDir()
	}

	w.logger.Debug("Watch event", "kind", kind.String(), "path", path)
	w.fanOut(event)

	switch kind {
	case EventCreate:
		// register newly created directories (and their subtrees) on the fly
		if event.IsDir {
			if err := w.registerTree(path, false); err != nil {
				w.logger.Warn("Unable to register events for new directory",
					"path", path,
					"error", err)
			}
		}

	case EventDelete:
		if !w.dropIfTracked(path) {
			w.logger.Warn("All watched directories became inaccessible, terminating watcher")
			return false
		}
	}

	return true
}

// handleWatchError processes the primitive's error channel. Overflow means
// events were lost; the recovery strategy is a re-walk of the tracked trees
// so directories created during the gap are picked up again.
func (w *Watcher) handleWatchError(err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.logger.Warn("Watch event queue overflowed, re-walking tracked trees")
		w.rescan()
		return
	}
	w.logger.Error("Watcher runtime error", "error", err)
}

// fanOut delivers the event to every registration whose root is a
// path-prefix of the event's path, in registration order. Listener panics
// are isolated per listener.
func (w *Watcher) fanOut(event WatchEvent) {
	w.mu.RLock()
	regs := make([]watchRegistration, len(w.registrations))
	copy(regs, w.registrations)
	w.mu.RUnlock()

	for _, reg := range regs {
		if !isPathPrefix(reg.root, event.Path) {
			continue
		}
		for _, listener := range reg.listeners {
			safeNotify(w.logger, listener, event)
		}
	}
}

// registerTree walks a directory tree registering every directory with the
// watch primitive. strict propagates walk errors to the caller; non-strict
// registration (on-the-fly discovery) tolerates races with concurrent
// deletion.
func (w *Watcher) registerTree(root string, strict bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if strict {
				return err
			}
			w.logger.Debug("Skipping unreadable path during tree walk", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.addDir(path); addErr != nil {
			if strict {
				return addErr
			}
			w.logger.Debug("Skipping unwatchable directory", "path", path, "error", addErr)
		}
		return nil
	})
}

// addDir registers a single directory, skipping duplicates.
func (w *Watcher) addDir(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.tracked[path]; ok {
		return nil
	}
	if err := w.fs.Add(path); err != nil {
		return err
	}
	w.tracked[path] = struct{}{}
	return nil
}

// dropIfTracked removes a deleted directory from the tracked set. Returns
// false when the last tracked directory disappeared.
func (w *Watcher) dropIfTracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.tracked[path]; !ok {
		return true // not a tracked directory, nothing to do
	}

	delete(w.tracked, path)
	w.logger.Warn("Watched directory became inaccessible, dropped", "path", path)
	return len(w.tracked) > 0
}

// rescan re-walks every watch root to repair recursion after an overflow.
func (w *Watcher) rescan() {
	w.mu.RLock()
	roots := make([]string, len(w.roots))
	copy(roots, w.roots)
	w.mu.RUnlock()

	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := w.registerTree(root, false); err != nil {
			w.logger.Warn("Rescan failed for root", "root", root, "error", err)
		}
	}
}

// TrackedDirectories returns the directories currently registered with the
// watch primitive.
func (w *Watcher) TrackedDirectories() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.tracked))
	for dir := range w.tracked {
		dirs = append(dirs, dir)
	}
	return dirs
}

// mapEventKind translates fsnotify ops onto the agent's vocabulary. Renames
// surface as deletes of the old path; chmod-only events are dropped.
func mapEventKind(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Write):
		return EventModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return EventDelete, true
	default:
		return 0, false
	}
}

// isPathPrefix reports whether root is a whole-component path prefix of path.
// /a/b covers /a/b and /a/b/c.txt but never /a/bc.
func isPathPrefix(root, path string) bool {
	if root == path {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}
