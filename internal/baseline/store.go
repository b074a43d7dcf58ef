// Package baseline owns the review state of the workspace: one baseline
// per tracked file holding its pre-edit content, plus records of deleted
// files held for possible restore. The pending change set is never stored;
// it is derived fresh from disk on every listing.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/diff"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/events"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
	"github.com/Fintehhe/Pending-Changes-Reviewer/shared/utils"
)

// ErrNotTracked is returned when an operation names a file that has
// neither a baseline nor a deleted record.
var ErrNotTracked = errors.New("file is not tracked")

// FS is the slice of the workspace the store needs. Paths are
// workspace-relative.
type FS interface {
	ReadFile(path string) (string, bool, error)
	WriteFile(path string, content string) error
	DeleteFile(path string) error
}

// Baseline remembers the original content of one tracked file.
type Baseline struct {
	Path       string
	CapturedAt time.Time
	IsNewFile  bool
	content    blob
}

// DeletedRecord remembers the content needed to restore a deleted file.
type DeletedRecord struct {
	Path       string
	CapturedAt time.Time
	content    blob
}

// Options tune the store.
type Options struct {
	// CompressMinBytes is the size from which baseline content is kept
	// zstd-compressed in memory. Zero selects the default.
	CompressMinBytes int
}

const defaultCompressMinBytes = 4096

// Store holds all review state. It is safe for concurrent use; mutating
// operations re-check state under the lock, so racing capture
// notifications keep the earliest baseline.
type Store struct {
	mu      sync.RWMutex
	tracked map[string]*Baseline
	deleted map[string]*DeletedRecord

	fs      FS
	comp    *compressor
	logger  *zap.Logger
	changed events.Emitter[struct{}]
}

// NewStore returns an empty store operating on fs.
func NewStore(fs FS, logger *zap.Logger, opts Options) (*Store, error) {
	minSize := opts.CompressMinBytes
	if minSize <= 0 {
		minSize = defaultCompressMinBytes
	}
	comp, err := newCompressor(minSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		tracked: make(map[string]*Baseline),
		deleted: make(map[string]*DeletedRecord),
		fs:      fs,
		comp:    comp,
		logger:  logger,
	}, nil
}

// OnChange registers fn to run after every mutation of review state. The
// returned function removes the registration. Callbacks run on the
// mutating goroutine and must not call back into the store synchronously.
func (s *Store) OnChange(fn func()) func() {
	return s.changed.Subscribe(func(struct{}) { fn() })
}

func (s *Store) notify() {
	s.changed.Emit(struct{}{})
}

// Capture records original as the baseline for path. The first capture
// wins; capturing an already tracked file is a no-op. Capturing a file
// that has a deleted record revives the record into an active baseline, so
// a recreated file keeps diffing against its pre-delete content.
func (s *Store) Capture(path, original string) {
	s.mu.Lock()
	mutated := s.captureLocked(path, original, false)
	s.mu.Unlock()
	if mutated {
		s.notify()
	}
}

// CaptureNewFile records that path did not exist when tracking saw it
// first. New-file baselines always surface as created entries and revert
// by deleting the file.
func (s *Store) CaptureNewFile(path string) {
	s.mu.Lock()
	mutated := s.captureLocked(path, "", true)
	s.mu.Unlock()
	if mutated {
		s.notify()
	}
}

func (s *Store) captureLocked(path, original string, isNew bool) bool {
	if rec, ok := s.deleted[path]; ok {
		delete(s.deleted, path)
		s.tracked[path] = &Baseline{Path: path, CapturedAt: rec.CapturedAt, content: rec.content}
		s.logger.Debug("revived deleted record into baseline", zap.String("path", path))
		return true
	}
	if _, ok := s.tracked[path]; ok {
		return false
	}

	b := &Baseline{Path: path, CapturedAt: time.Now(), IsNewFile: isNew}
	if !isNew {
		b.content = s.comp.pack(original)
	}
	s.tracked[path] = b
	s.logger.Debug("captured baseline",
		zap.String("path", path),
		zap.Bool("new_file", isNew))
	return true
}

// CaptureDeletion moves path into a deleted record. An active baseline's
// original is preferred as the restore content; without one, fallback is
// used. A repeated deletion arriving with nothing to offer keeps the
// existing record's content instead of erasing it.
func (s *Store) CaptureDeletion(path, fallback string) {
	s.mu.Lock()
	var content blob
	switch {
	case s.tracked[path] != nil:
		content = s.tracked[path].content
		delete(s.tracked, path)
	case fallback != "":
		content = s.comp.pack(fallback)
	default:
		if rec, ok := s.deleted[path]; ok {
			content = rec.content
		}
	}
	s.deleted[path] = &DeletedRecord{Path: path, CapturedAt: time.Now(), content: content}
	s.mu.Unlock()

	s.logger.Debug("captured deletion", zap.String("path", path))
	s.notify()
}

// Has reports whether an active baseline exists for path.
func (s *Store) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tracked[path]
	return ok
}

// Contains reports whether path has a baseline or a deleted record.
func (s *Store) Contains(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tracked[path]; ok {
		return true
	}
	_, ok := s.deleted[path]
	return ok
}

// Len returns the number of active baselines and deleted records.
func (s *Store) Len() (tracked, deleted int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracked), len(s.deleted)
}

// ListChanges derives the pending change set from the live state of the
// workspace. Every call re-reads each tracked file and classifies it
// fresh; files whose content matches their baseline are omitted.
// Unreadable files are logged and skipped so one bad path cannot poison
// the listing. Order is unspecified.
func (s *Store) ListChanges(ctx context.Context) ([]shared.ChangeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]shared.ChangeEntry, 0, len(s.tracked)+len(s.deleted))
	for path, b := range s.tracked {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		default:
		}
		if entry, ok := s.entryLocked(path, b); ok {
			entries = append(entries, entry)
		}
	}
	for path, rec := range s.deleted {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		default:
		}
		if entry, ok := s.deletedEntryLocked(path, rec); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Entry derives the pending change entry for a single path. ok is false
// when the file is untracked or currently identical to its baseline.
func (s *Store) Entry(path string) (shared.ChangeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, tracked := s.tracked[path]; tracked {
		return s.entryLocked(path, b)
	}
	if rec, ok := s.deleted[path]; ok {
		return s.deletedEntryLocked(path, rec)
	}
	return shared.ChangeEntry{}, false
}

func (s *Store) entryLocked(path string, b *Baseline) (shared.ChangeEntry, bool) {
	current, exists, err := s.fs.ReadFile(path)
	if err != nil {
		s.logger.Warn("skipping unreadable tracked file",
			zap.String("path", path),
			zap.Error(err))
		return shared.ChangeEntry{}, false
	}
	original, err := s.comp.unpack(b.content)
	if err != nil {
		s.logger.Error("skipping baseline with unreadable content",
			zap.String("path", path),
			zap.Error(err))
		return shared.ChangeEntry{}, false
	}

	switch {
	case !exists && !b.IsNewFile:
		return newEntry(path, shared.ChangeDeleted, original, "", b.CapturedAt), true
	case b.IsNewFile:
		return newEntry(path, shared.ChangeCreated, original, current, b.CapturedAt), true
	case current != original:
		return newEntry(path, shared.ChangeModified, original, current, b.CapturedAt), true
	default:
		return shared.ChangeEntry{}, false
	}
}

func (s *Store) deletedEntryLocked(path string, rec *DeletedRecord) (shared.ChangeEntry, bool) {
	original, err := s.comp.unpack(rec.content)
	if err != nil {
		s.logger.Error("skipping deleted record with unreadable content",
			zap.String("path", path),
			zap.Error(err))
		return shared.ChangeEntry{}, false
	}
	return newEntry(path, shared.ChangeDeleted, original, "", rec.CapturedAt), true
}

func newEntry(path string, kind shared.ChangeKind, original, current string, capturedAt time.Time) shared.ChangeEntry {
	stats := diff.Count(original, current)
	return shared.ChangeEntry{
		Path:       path,
		Kind:       kind,
		Additions:  stats.Additions,
		Deletions:  stats.Deletions,
		Original:   original,
		Current:    current,
		OldSum:     utils.ContentSum([]byte(original)),
		NewSum:     utils.ContentSum([]byte(current)),
		CapturedAt: capturedAt,
	}
}

// Accept makes the current on-disk state the new reference for path and
// returns the content it measured, so callers can rebase edit caches onto
// it. The baseline is dropped; for a deleted record the pending deletion
// is simply forgotten. Accept never touches the file itself.
func (s *Store) Accept(path string) (string, error) {
	s.mu.Lock()
	content, mutated, err := s.acceptLocked(path)
	s.mu.Unlock()
	if mutated {
		s.notify()
	}
	return content, err
}

func (s *Store) acceptLocked(path string) (string, bool, error) {
	if _, ok := s.deleted[path]; ok {
		delete(s.deleted, path)
		s.logger.Info("accepted deletion", zap.String("path", path))
		return "", true, nil
	}
	if _, ok := s.tracked[path]; !ok {
		return "", false, ErrNotTracked
	}

	current, _, err := s.fs.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("reading %s to accept: %w", path, err)
	}
	delete(s.tracked, path)
	s.logger.Info("accepted changes", zap.String("path", path))
	return current, true, nil
}

// Revert puts path back to its baseline state on disk and stops tracking
// it: deleted records are restored as files, new files are removed, and
// modified files are rewritten. When the disk operation fails the state is
// kept so the operation can be retried.
func (s *Store) Revert(path string) bool {
	s.mu.Lock()
	ok := s.revertLocked(path)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

func (s *Store) revertLocked(path string) bool {
	if rec, ok := s.deleted[path]; ok {
		content, err := s.comp.unpack(rec.content)
		if err != nil {
			s.logger.Error("reading deleted record content",
				zap.String("path", path),
				zap.Error(err))
			return false
		}
		if err := s.fs.WriteFile(path, content); err != nil {
			s.logger.Error("restoring deleted file",
				zap.String("path", path),
				zap.Error(err))
			return false
		}
		delete(s.deleted, path)
		s.logger.Info("restored deleted file", zap.String("path", path))
		return true
	}

	b, ok := s.tracked[path]
	if !ok {
		return false
	}

	if b.IsNewFile {
		if err := s.fs.DeleteFile(path); err != nil {
			s.logger.Error("removing created file",
				zap.String("path", path),
				zap.Error(err))
			return false
		}
		delete(s.tracked, path)
		s.logger.Info("reverted created file", zap.String("path", path))
		return true
	}

	original, err := s.comp.unpack(b.content)
	if err != nil {
		s.logger.Error("reading baseline content",
			zap.String("path", path),
			zap.Error(err))
		return false
	}
	if err := s.fs.WriteFile(path, original); err != nil {
		s.logger.Error("rewriting original content",
			zap.String("path", path),
			zap.Error(err))
		return false
	}
	delete(s.tracked, path)
	s.logger.Info("reverted changes", zap.String("path", path))
	return true
}

// Remove forgets path entirely, baseline or deleted record, without
// touching the file on disk.
func (s *Store) Remove(path string) {
	s.mu.Lock()
	_, hadBaseline := s.tracked[path]
	_, hadRecord := s.deleted[path]
	delete(s.tracked, path)
	delete(s.deleted, path)
	s.mu.Unlock()

	if hadBaseline || hadRecord {
		s.logger.Info("untracked file", zap.String("path", path))
		s.notify()
	}
}

// Clear forgets all review state without touching any file.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.tracked) + len(s.deleted)
	s.tracked = make(map[string]*Baseline)
	s.deleted = make(map[string]*DeletedRecord)
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("cleared review state", zap.Int("entries", n))
		s.notify()
	}
}
