// Package review exposes the engine's user-facing operations: listing
// pending changes, accepting or reverting them one by one or in bulk, and
// the operation history.
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/baseline"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/diff"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/journal"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/tracker"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/workspace"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

// ErrNoPending is returned when a tracked file currently has no pending
// change to operate on.
var ErrNoPending = errors.New("no pending changes")

// ErrRevertFailed reports a revert whose disk operation failed; the review
// state is kept so the operation can be retried.
var ErrRevertFailed = errors.New("revert failed")

// Muter suppresses watcher notifications for a path while the engine
// itself writes to it, so reverts are not re-captured as user edits.
type Muter interface {
	Mute(path string)
}

// Deps wires the service.
type Deps struct {
	Store   *baseline.Store
	Tracker *tracker.Tracker
	Journal *journal.Journal // optional
	WS      *workspace.Workspace
	Buffers *workspace.Buffers
	Muter   Muter // optional
	Logger  *zap.Logger
}

// Service coordinates the engine's operations. Incoming paths may be
// absolute or workspace-relative; they are normalized before use.
type Service struct {
	store   *baseline.Store
	tracker *tracker.Tracker
	journal *journal.Journal
	ws      *workspace.Workspace
	buffers *workspace.Buffers
	muter   Muter
	engine  *diff.Engine
	logger  *zap.Logger
}

// NewService builds a service.
func NewService(deps Deps) *Service {
	return &Service{
		store:   deps.Store,
		tracker: deps.Tracker,
		journal: deps.Journal,
		ws:      deps.WS,
		buffers: deps.Buffers,
		muter:   deps.Muter,
		engine:  diff.NewEngine(3),
		logger:  deps.Logger,
	}
}

// Changes lists the pending change set sorted by path.
func (s *Service) Changes(ctx context.Context) ([]shared.ChangeEntry, error) {
	entries, err := s.store.ListChanges(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Entry returns the pending change for one file.
func (s *Service) Entry(path string) (shared.ChangeEntry, error) {
	rel, err := s.ws.Rel(path)
	if err != nil {
		return shared.ChangeEntry{}, err
	}
	entry, ok := s.store.Entry(rel)
	if !ok {
		if s.store.Contains(rel) {
			return shared.ChangeEntry{}, ErrNoPending
		}
		return shared.ChangeEntry{}, baseline.ErrNotTracked
	}
	return entry, nil
}

// Diff renders the pending change for one file as unified diff text.
func (s *Service) Diff(path string) (string, error) {
	entry, err := s.Entry(path)
	if err != nil {
		return "", err
	}

	var oldLabel, newLabel string
	switch entry.Kind {
	case shared.ChangeCreated:
		oldLabel, newLabel = "/dev/null", "b/"+entry.Path
	case shared.ChangeDeleted:
		oldLabel, newLabel = "a/"+entry.Path, "/dev/null"
	default:
		oldLabel, newLabel = "a/"+entry.Path, "b/"+entry.Path
	}

	res := s.engine.Compare(entry.Original, entry.Current)
	return fmt.Sprintf("--- %s\n+++ %s\n%s", oldLabel, newLabel, res.Format()), nil
}

// Accept makes the current state of path the new reference and rebases the
// observer's content cache onto it, so the next edit diffs against what
// was just reviewed. The file on disk is untouched.
func (s *Service) Accept(path string) error {
	rel, err := s.ws.Rel(path)
	if err != nil {
		return err
	}

	entry, _ := s.store.Entry(rel)
	content, err := s.store.Accept(rel)
	if err != nil {
		return err
	}

	// An accepted deletion leaves nothing to measure future edits
	// against, so the cache must not learn an empty "content".
	if entry.Kind != shared.ChangeDeleted {
		s.tracker.UpdateFileCache(rel, content)
	}
	s.record(journal.OpAccept, rel, entry)
	return nil
}

// Revert puts path back to its baseline state on disk and drops its review
// state. The watcher is muted for the path so the engine's own write does
// not register as a new edit.
func (s *Service) Revert(path string) error {
	rel, err := s.ws.Rel(path)
	if err != nil {
		return err
	}
	if !s.store.Contains(rel) {
		return baseline.ErrNotTracked
	}

	entry, _ := s.store.Entry(rel)
	if s.muter != nil {
		s.muter.Mute(rel)
	}
	if !s.store.Revert(rel) {
		return fmt.Errorf("%w: %s", ErrRevertFailed, rel)
	}

	s.record(journal.OpRevert, rel, entry)
	return nil
}

// AcceptAll accepts every pending change, continuing past individual
// failures. The outcome slice parallels the pending set at call time.
func (s *Service) AcceptAll(ctx context.Context) ([]shared.Outcome, error) {
	entries, err := s.Changes(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make([]shared.Outcome, 0, len(entries))
	for _, entry := range entries {
		outcome := shared.Outcome{Path: entry.Path, OK: true}
		if err := s.Accept(entry.Path); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// RevertAll reverts every pending change, continuing past individual
// failures.
func (s *Service) RevertAll(ctx context.Context) ([]shared.Outcome, error) {
	entries, err := s.Changes(ctx)
	if err != nil {
		return nil, err
	}
	outcomes := make([]shared.Outcome, 0, len(entries))
	for _, entry := range entries {
		outcome := shared.Outcome{Path: entry.Path, OK: true}
		if err := s.Revert(entry.Path); err != nil {
			outcome.OK = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Untrack drops review state for path without touching the file.
func (s *Service) Untrack(path string) error {
	rel, err := s.ws.Rel(path)
	if err != nil {
		return err
	}
	if !s.store.Contains(rel) {
		return baseline.ErrNotTracked
	}

	entry, _ := s.store.Entry(rel)
	s.store.Remove(rel)
	s.record(journal.OpUntrack, rel, entry)
	return nil
}

// Clear drops all review state without touching any file.
func (s *Service) Clear() {
	s.store.Clear()
	s.record(journal.OpClear, "", shared.ChangeEntry{})
}

// History returns recent operations, newest first. Without a journal the
// history is empty.
func (s *Service) History(limit int) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.List(limit)
}

// State snapshots the observer's status.
func (s *Service) State() shared.TrackingState {
	tracked, deleted := s.store.Len()
	return shared.TrackingState{
		Active:      s.tracker.Active(),
		Tracked:     tracked,
		Deleted:     deleted,
		CacheSize:   s.tracker.CacheLen(),
		OpenBuffers: s.buffers.Len(),
	}
}

// StartTracking activates the observer.
func (s *Service) StartTracking() {
	s.tracker.Start()
}

// StopTracking deactivates the observer, keeping captured baselines.
func (s *Service) StopTracking() {
	s.tracker.Stop()
}

// OnChange registers fn for review-state change notifications. The
// returned function removes the registration.
func (s *Service) OnChange(fn func()) func() {
	return s.store.OnChange(fn)
}

func (s *Service) record(op journal.Op, path string, entry shared.ChangeEntry) {
	if s.journal == nil {
		return
	}
	err := s.journal.Record(journal.Entry{
		Op:        op,
		Path:      path,
		Kind:      entry.Kind,
		Additions: entry.Additions,
		Deletions: entry.Deletions,
		OldSum:    entry.OldSum,
		NewSum:    entry.NewSum,
	})
	if err != nil {
		s.logger.Warn("journaling operation",
			zap.String("op", string(op)),
			zap.Error(err))
	}
}
