// Package watch turns raw fsnotify events into workspace-relative file
// notifications filtered by the configured watch globs and exclusion
// patterns.
package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/events"
)

// Op is the kind of filesystem change observed.
type Op int

const (
	OpCreated Op = iota
	OpChanged
	OpRemoved
)

func (op Op) String() string {
	switch op {
	case OpCreated:
		return "created"
	case OpChanged:
		return "changed"
	case OpRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one observed change to a file under the workspace root.
type Event struct {
	Path string
	Op   Op
}

// muteWindow is how long events for a path stay suppressed after Mute.
// Long enough to cover the notification latency of an engine write, short
// enough that a real user edit right after a revert still gets seen.
const muteWindow = 2 * time.Second

// Watcher watches the workspace tree recursively and publishes filtered
// events to subscribers. New directories are picked up as they appear.
type Watcher struct {
	root   string
	logger *zap.Logger
	subs   events.Emitter[Event]

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	done    chan struct{}
	globs   []string
	exclude []string
	muted   map[string]time.Time
	dirs    map[string]struct{}
	closed  bool

	wg sync.WaitGroup
}

// New starts watching the tree rooted at root. globs filters the files
// whose events are published (empty means all files); exclude holds
// path-substring patterns pruned from both watching and publishing.
func New(root string, globs, exclude []string, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		root:    root,
		logger:  logger,
		globs:   append([]string(nil), globs...),
		exclude: append([]string(nil), exclude...),
		muted:   make(map[string]time.Time),
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.startLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// Subscribe registers fn for filtered events. The returned function
// removes the registration. Callbacks run on the watcher goroutine.
func (w *Watcher) Subscribe(fn func(Event)) func() {
	return w.subs.Subscribe(fn)
}

// Mute suppresses events for path for a short window. The engine mutes a
// path around its own writes so a revert is not re-captured as an edit.
func (w *Watcher) Mute(path string) {
	w.mu.Lock()
	w.muted[path] = time.Now().Add(muteWindow)
	w.mu.Unlock()
}

// Rewatch swaps in a new filter configuration and re-subscribes the
// directory tree under it.
func (w *Watcher) Rewatch(globs, exclude []string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("watcher is closed")
	}
	fsw, done := w.fsw, w.done
	w.fsw = nil
	w.mu.Unlock()

	if fsw != nil {
		close(done)
		fsw.Close()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.globs = append([]string(nil), globs...)
	w.exclude = append([]string(nil), exclude...)
	return w.startLocked()
}

// Close stops the watcher permanently.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	fsw, done := w.fsw, w.done
	w.fsw = nil
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	close(done)
	err := fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) startLocked() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}

	w.dirs = make(map[string]struct{})
	dirs := 0
	walkErr := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(w.root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && excludedPath(rel, w.exclude) {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("watching directory", zap.String("dir", rel), zap.Error(err))
			return nil
		}
		if rel != "." {
			w.dirs[rel] = struct{}{}
		}
		dirs++
		return nil
	})
	if walkErr != nil {
		fsw.Close()
		return fmt.Errorf("walking workspace tree: %w", walkErr)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(fsw, w.done)

	w.logger.Info("filesystem watcher started",
		zap.Int("directories", dirs),
		zap.Strings("globs", w.globs))
	return nil
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("filesystem watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return
	}

	// A created directory extends the watch; directories themselves are
	// not published.
	if ev.Op.Has(fsnotify.Create) {
		if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
			w.mu.Lock()
			if w.fsw != nil && !excludedPath(rel, w.exclude) {
				if aerr := w.fsw.Add(ev.Name); aerr != nil {
					w.logger.Warn("watching new directory", zap.String("dir", rel), zap.Error(aerr))
				} else {
					w.dirs[rel] = struct{}{}
				}
			}
			w.mu.Unlock()
			return
		}
	}

	var op Op
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreated
	case ev.Op.Has(fsnotify.Write):
		op = OpChanged
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		op = OpRemoved
	default:
		return
	}

	w.mu.Lock()
	if _, isDir := w.dirs[rel]; isDir {
		// Watched directories never publish as files; a removed one
		// just leaves the set.
		if op == OpRemoved {
			delete(w.dirs, rel)
		}
		w.mu.Unlock()
		return
	}
	globs := w.globs
	exclude := w.exclude
	until, muted := w.muted[rel]
	if muted && time.Now().After(until) {
		delete(w.muted, rel)
		muted = false
	}
	w.mu.Unlock()

	if excludedPath(rel, exclude) || !matchesAny(rel, globs) {
		return
	}
	if muted {
		w.logger.Debug("suppressed event for muted path",
			zap.String("path", rel),
			zap.Stringer("op", op))
		return
	}

	w.subs.Emit(Event{Path: rel, Op: op})
}
