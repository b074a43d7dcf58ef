// Package tracker implements the change observer. While active it listens
// to editor document notifications and filesystem events and decides when
// the baseline store should capture state, keeping a bounded cache of
// pre-edit content so the original text of a file is still recoverable
// after the edit has hit disk.
package tracker

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/watch"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/workspace"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
	"github.com/Fintehhe/Pending-Changes-Reviewer/shared/utils"
)

// Store is the capture surface of the baseline store.
type Store interface {
	Capture(path, original string)
	CaptureNewFile(path string)
	CaptureDeletion(path, fallback string)
	Has(path string) bool
}

// FS is the read surface of the workspace.
type FS interface {
	ReadFile(path string) (string, bool, error)
}

// FileEvents is the filesystem notification source.
type FileEvents interface {
	Subscribe(fn func(watch.Event)) func()
}

// Deps wires the tracker to its collaborators.
type Deps struct {
	Store   Store
	FS      FS
	Buffers *workspace.Buffers
	Bus     *workspace.Bus
	Files   FileEvents
	Logger  *zap.Logger
}

// Options tune the tracker.
type Options struct {
	// CacheMaxEntries bounds the pre-edit content cache. Zero selects
	// the default.
	CacheMaxEntries int
	// Exclusions holds path-substring patterns that are never tracked.
	Exclusions []string
}

const defaultCacheMaxEntries = 512

type cacheEntry struct {
	text string
	sum  string
}

func newCacheEntry(text string) cacheEntry {
	return cacheEntry{text: text, sum: utils.ContentSum([]byte(text))}
}

// Tracker observes one workspace. Notifications may arrive from several
// goroutines; the tracker serializes them internally.
type Tracker struct {
	store   Store
	fs      FS
	buffers *workspace.Buffers
	bus     *workspace.Bus
	files   FileEvents
	logger  *zap.Logger

	mu      sync.Mutex
	active  bool
	cache   *lru.Cache[string, cacheEntry]
	exclude []string
	unsubs  []func()
}

// New builds an inactive tracker.
func New(deps Deps, opts Options) (*Tracker, error) {
	size := opts.CacheMaxEntries
	if size <= 0 {
		size = defaultCacheMaxEntries
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating content cache: %w", err)
	}
	return &Tracker{
		store:   deps.Store,
		fs:      deps.FS,
		buffers: deps.Buffers,
		bus:     deps.Bus,
		files:   deps.Files,
		logger:  deps.Logger,
		cache:   cache,
		exclude: append([]string(nil), opts.Exclusions...),
	}, nil
}

// Start begins observing. Starting an active tracker is a no-op. The
// content cache is seeded from documents already open in editors, so edits
// made before their first save can still be recovered from live text.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return
	}
	t.active = true

	seeded := 0
	for path, text := range t.buffers.All() {
		if t.excludedLocked(path) {
			continue
		}
		t.cache.Add(path, newCacheEntry(text))
		seeded++
	}

	t.unsubs = []func(){
		t.bus.Opened.Subscribe(t.handleOpened),
		t.bus.WillSave.Subscribe(t.handleWillSave),
		t.bus.Saved.Subscribe(t.handleSaved),
		t.files.Subscribe(t.handleFileEvent),
	}
	t.mu.Unlock()

	t.logger.Info("tracking started", zap.Int("seeded_documents", seeded))
}

// Stop ends observing and drops the content cache. Captured baselines stay
// in the store. Stopping an inactive tracker is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	unsubs := t.unsubs
	t.unsubs = nil
	t.cache.Purge()
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	t.logger.Info("tracking stopped")
}

// Active reports whether the tracker is observing.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// CacheLen reports the number of cached pre-edit texts.
func (t *Tracker) CacheLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

// SetExclusions replaces the exclusion patterns. Already cached entries
// for newly excluded paths age out through normal use.
func (t *Tracker) SetExclusions(patterns []string) {
	t.mu.Lock()
	t.exclude = append([]string(nil), patterns...)
	t.mu.Unlock()
}

// UpdateFileCache rebases the cached content for path so the next capture
// measures against content the user has already reviewed. The review
// service calls this after an accept.
func (t *Tracker) UpdateFileCache(path, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.excludedLocked(path) {
		return
	}
	t.cache.Add(path, newCacheEntry(text))
}

func (t *Tracker) excludedLocked(path string) bool {
	for _, p := range t.exclude {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func (t *Tracker) handleOpened(ev shared.DocumentEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.excludedLocked(ev.Path) {
		return
	}
	t.cache.Add(ev.Path, newCacheEntry(ev.Text))
}

// handleWillSave captures the pre-save content the first time a dirty
// document is about to hit disk. Without a cached text the on-disk bytes
// still hold the pre-save state and serve as the baseline.
func (t *Tracker) handleWillSave(ev shared.DocumentEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.excludedLocked(ev.Path) {
		return
	}
	if t.store.Has(ev.Path) {
		return
	}

	var before, beforeSum string
	if entry, cached := t.cache.Get(ev.Path); cached {
		before, beforeSum = entry.text, entry.sum
	} else {
		onDisk, exists, err := t.fs.ReadFile(ev.Path)
		if err != nil {
			t.logger.Warn("reading pre-save content",
				zap.String("path", ev.Path),
				zap.Error(err))
			return
		}
		if !exists {
			// Brand new document; the filesystem create
			// notification will register it.
			return
		}
		before = onDisk
		beforeSum = utils.ContentSum([]byte(onDisk))
	}

	if beforeSum == utils.ContentSum([]byte(ev.Text)) {
		// No drift yet. Keep the text so a later save has something
		// to diff against.
		t.cache.Add(ev.Path, cacheEntry{text: before, sum: beforeSum})
		return
	}

	t.store.Capture(ev.Path, before)
	t.cache.Remove(ev.Path)
}

// handleSaved refreshes the cache after a save when no baseline exists, so
// the next edit is measured from the committed state. Once a baseline
// exists the cache entry would only shadow it and is left alone.
func (t *Tracker) handleSaved(ev shared.DocumentEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.excludedLocked(ev.Path) {
		return
	}
	if t.store.Has(ev.Path) {
		return
	}
	t.cache.Add(ev.Path, newCacheEntry(ev.Text))
}

func (t *Tracker) handleFileEvent(ev watch.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || t.excludedLocked(ev.Path) {
		return
	}

	switch ev.Op {
	case watch.OpCreated:
		t.store.CaptureNewFile(ev.Path)

	case watch.OpChanged:
		if t.store.Has(ev.Path) {
			return
		}
		if entry, ok := t.cache.Get(ev.Path); ok {
			t.store.Capture(ev.Path, entry.text)
			t.cache.Remove(ev.Path)
			return
		}
		// First sighting. Remember the post-change content so the
		// next change has something to diff against.
		current, exists, err := t.fs.ReadFile(ev.Path)
		if err != nil {
			t.logger.Warn("reading changed file",
				zap.String("path", ev.Path),
				zap.Error(err))
			return
		}
		if !exists {
			return
		}
		t.cache.Add(ev.Path, newCacheEntry(current))

	case watch.OpRemoved:
		fallback := ""
		if entry, ok := t.cache.Get(ev.Path); ok {
			fallback = entry.text
		}
		t.store.CaptureDeletion(ev.Path, fallback)
		t.cache.Remove(ev.Path)
	}
}
