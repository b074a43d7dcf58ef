package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/baseline"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/events"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/journal"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/tracker"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/watch"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/workspace"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

type muteRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (m *muteRecorder) Mute(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
}

func (m *muteRecorder) muted(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.paths {
		if p == path {
			return true
		}
	}
	return false
}

type flakyFS struct {
	*workspace.Workspace
	mu         sync.Mutex
	failWrites map[string]bool
}

func (f *flakyFS) setFailWrite(path string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites[path] = fail
}

func (f *flakyFS) WriteFile(path, content string) error {
	f.mu.Lock()
	fail := f.failWrites[path]
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Workspace.WriteFile(path, content)
}

type fixture struct {
	svc     *Service
	ws      *workspace.Workspace
	fs      *flakyFS
	store   *baseline.Store
	buffers *workspace.Buffers
	bus     *workspace.Bus
	files   *events.Emitter[watch.Event]
	muter   *muteRecorder
}

func newFixture(t *testing.T, opts tracker.Options) *fixture {
	t.Helper()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	fs := &flakyFS{Workspace: ws, failWrites: make(map[string]bool)}

	store, err := baseline.NewStore(fs, zap.NewNop(), baseline.Options{})
	require.NoError(t, err)

	buffers := workspace.NewBuffers()
	bus := workspace.NewBus()
	files := &events.Emitter[watch.Event]{}

	tr, err := tracker.New(tracker.Deps{
		Store:   store,
		FS:      ws,
		Buffers: buffers,
		Bus:     bus,
		Files:   files,
		Logger:  zap.NewNop(),
	}, opts)
	require.NoError(t, err)

	j, err := journal.OpenInMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	muter := &muteRecorder{}
	svc := NewService(Deps{
		Store:   store,
		Tracker: tr,
		Journal: j,
		WS:      ws,
		Buffers: buffers,
		Muter:   muter,
		Logger:  zap.NewNop(),
	})

	return &fixture{
		svc:     svc,
		ws:      ws,
		fs:      fs,
		store:   store,
		buffers: buffers,
		bus:     bus,
		files:   files,
		muter:   muter,
	}
}

func (f *fixture) changes(t *testing.T) []shared.ChangeEntry {
	t.Helper()
	entries, err := f.svc.Changes(context.Background())
	require.NoError(t, err)
	return entries
}

func TestModifyAcceptModifyAgain(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("f.txt", "one\n"))
	f.svc.StartTracking()

	// Edit session: open, dirty save.
	f.bus.Opened.Emit(shared.DocumentEvent{Path: "f.txt", Text: "one\n"})
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "f.txt", Text: "two\n"})
	require.NoError(t, f.ws.WriteFile("f.txt", "two\n"))
	f.bus.Saved.Emit(shared.DocumentEvent{Path: "f.txt", Text: "two\n"})

	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, shared.ChangeModified, changes[0].Kind)
	assert.Equal(t, "one\n", changes[0].Original)
	assert.Equal(t, "two\n", changes[0].Current)
	assert.Equal(t, 1, changes[0].Additions)
	assert.Equal(t, 1, changes[0].Deletions)

	require.NoError(t, f.svc.Accept("f.txt"))
	assert.Empty(t, f.changes(t))

	// The next edit measures from the accepted content, not the first
	// baseline.
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "f.txt", Text: "three\n"})
	require.NoError(t, f.ws.WriteFile("f.txt", "three\n"))

	changes = f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, "two\n", changes[0].Original)
	assert.Equal(t, "three\n", changes[0].Current)
}

func TestCreateThenRevert(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	f.svc.StartTracking()

	require.NoError(t, f.ws.WriteFile("new.txt", "hello\n"))
	f.files.Emit(watch.Event{Path: "new.txt", Op: watch.OpCreated})

	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, shared.ChangeCreated, changes[0].Kind)
	assert.Equal(t, 1, changes[0].Additions)

	require.NoError(t, f.svc.Revert("new.txt"))
	assert.True(t, f.muter.muted("new.txt"))

	_, exists, err := f.ws.ReadFile("new.txt")
	require.NoError(t, err)
	assert.False(t, exists, "reverting a created file removes it")
	assert.Empty(t, f.changes(t))
}

func TestDeleteThenRevert(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("d.txt", "x\n"))
	f.svc.StartTracking()

	f.bus.Opened.Emit(shared.DocumentEvent{Path: "d.txt", Text: "x\n"})
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "d.txt", Text: "y\n"})
	require.NoError(t, f.ws.WriteFile("d.txt", "y\n"))

	// The file disappears mid-review; the baseline's original must win
	// over anything cached.
	require.NoError(t, f.ws.DeleteFile("d.txt"))
	f.files.Emit(watch.Event{Path: "d.txt", Op: watch.OpRemoved})

	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, shared.ChangeDeleted, changes[0].Kind)
	assert.Equal(t, "x\n", changes[0].Original)
	assert.Equal(t, 1, changes[0].Deletions)

	require.NoError(t, f.svc.Revert("d.txt"))

	content, exists, err := f.ws.ReadFile("d.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "x\n", content)
	assert.Empty(t, f.changes(t))
}

func TestAcceptDeletionForgetsFile(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("d.txt", "x\n"))
	f.svc.StartTracking()

	f.bus.Opened.Emit(shared.DocumentEvent{Path: "d.txt", Text: "x\n"})
	require.NoError(t, f.ws.DeleteFile("d.txt"))
	f.files.Emit(watch.Event{Path: "d.txt", Op: watch.OpRemoved})

	require.NoError(t, f.svc.Accept("d.txt"))
	assert.Empty(t, f.changes(t))

	_, exists, err := f.ws.ReadFile("d.txt")
	require.NoError(t, err)
	assert.False(t, exists, "accepting a deletion leaves the file deleted")
}

func TestRevertAllContinuesPastFailures(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("a.txt", "a1\n"))
	require.NoError(t, f.ws.WriteFile("b.txt", "b1\n"))
	f.svc.StartTracking()

	f.bus.Opened.Emit(shared.DocumentEvent{Path: "a.txt", Text: "a1\n"})
	f.bus.Opened.Emit(shared.DocumentEvent{Path: "b.txt", Text: "b1\n"})
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "a.txt", Text: "a2\n"})
	require.NoError(t, f.ws.WriteFile("a.txt", "a2\n"))
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "b.txt", Text: "b2\n"})
	require.NoError(t, f.ws.WriteFile("b.txt", "b2\n"))

	f.fs.setFailWrite("a.txt", true)

	outcomes, err := f.svc.RevertAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a.txt", outcomes[0].Path)
	assert.False(t, outcomes[0].OK)
	assert.Contains(t, outcomes[0].Error, "revert failed")
	assert.Equal(t, "b.txt", outcomes[1].Path)
	assert.True(t, outcomes[1].OK)

	aContent, _, err := f.ws.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a2\n", aContent, "failed revert leaves the file alone")
	bContent, _, err := f.ws.ReadFile("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b1\n", bContent)

	changes := f.changes(t)
	require.Len(t, changes, 1)
	assert.Equal(t, "a.txt", changes[0].Path)
}

func TestAcceptAll(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("a.txt", "a1\n"))
	f.svc.StartTracking()

	f.bus.Opened.Emit(shared.DocumentEvent{Path: "a.txt", Text: "a1\n"})
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "a.txt", Text: "a2\n"})
	require.NoError(t, f.ws.WriteFile("a.txt", "a2\n"))

	require.NoError(t, f.ws.WriteFile("b.txt", "b1\n"))
	f.files.Emit(watch.Event{Path: "b.txt", Op: watch.OpCreated})

	outcomes, err := f.svc.AcceptAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.OK, o.Path)
	}
	assert.Empty(t, f.changes(t))
}

func TestExcludedPathsNeverTracked(t *testing.T) {
	f := newFixture(t, tracker.Options{Exclusions: []string{"logs"}})
	f.svc.StartTracking()

	f.bus.Opened.Emit(shared.DocumentEvent{Path: "logs/app.log", Text: "l1\n"})
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "logs/app.log", Text: "l2\n"})
	f.files.Emit(watch.Event{Path: "logs/new.log", Op: watch.OpCreated})
	f.files.Emit(watch.Event{Path: "logs/old.log", Op: watch.OpRemoved})

	assert.Empty(t, f.changes(t))
}

func TestUntrackKeepsDisk(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("u.txt", "v1\n"))
	f.svc.StartTracking()

	f.bus.Opened.Emit(shared.DocumentEvent{Path: "u.txt", Text: "v1\n"})
	f.bus.WillSave.Emit(shared.DocumentEvent{Path: "u.txt", Text: "v2\n"})
	require.NoError(t, f.ws.WriteFile("u.txt", "v2\n"))

	require.NoError(t, f.svc.Untrack("u.txt"))
	assert.Empty(t, f.changes(t))

	content, _, err := f.ws.ReadFile("u.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2\n", content)

	assert.ErrorIs(t, f.svc.Untrack("u.txt"), baseline.ErrNotTracked)
}

func TestAcceptUntracked(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	assert.ErrorIs(t, f.svc.Accept("ghost.txt"), baseline.ErrNotTracked)
}

func TestEntryErrors(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("same.txt", "s\n"))
	f.store.Capture("same.txt", "s\n")

	_, err := f.svc.Entry("same.txt")
	assert.ErrorIs(t, err, ErrNoPending)

	_, err = f.svc.Entry("unknown.txt")
	assert.ErrorIs(t, err, baseline.ErrNotTracked)
}

func TestDiffRendering(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("f.txt", "two\n"))
	f.store.Capture("f.txt", "one\n")

	text, err := f.svc.Diff("f.txt")
	require.NoError(t, err)
	assert.Contains(t, text, "--- a/f.txt")
	assert.Contains(t, text, "+++ b/f.txt")
	assert.Contains(t, text, "-one")
	assert.Contains(t, text, "+two")

	require.NoError(t, f.ws.WriteFile("n.txt", "fresh\n"))
	f.store.CaptureNewFile("n.txt")

	text, err = f.svc.Diff("n.txt")
	require.NoError(t, err)
	assert.Contains(t, text, "--- /dev/null")
	assert.Contains(t, text, "+fresh")
}

func TestHistoryRecordsOperations(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	require.NoError(t, f.ws.WriteFile("a.txt", "a2\n"))
	f.store.Capture("a.txt", "a1\n")
	require.NoError(t, f.svc.Accept("a.txt"))

	require.NoError(t, f.ws.WriteFile("b.txt", "b\n"))
	f.store.CaptureNewFile("b.txt")
	require.NoError(t, f.svc.Revert("b.txt"))

	entries, err := f.svc.History(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, journal.OpRevert, entries[0].Op)
	assert.Equal(t, "b.txt", entries[0].Path)
	assert.Equal(t, shared.ChangeCreated, entries[0].Kind)
	assert.Equal(t, journal.OpAccept, entries[1].Op)
	assert.Equal(t, "a.txt", entries[1].Path)
	assert.Equal(t, shared.ChangeModified, entries[1].Kind)
	assert.Equal(t, 1, entries[1].Additions)
}

func TestState(t *testing.T) {
	f := newFixture(t, tracker.Options{})
	assert.False(t, f.svc.State().Active)

	f.buffers.Set("open.txt", "text")
	f.svc.StartTracking()
	f.store.CaptureNewFile("n.txt")
	f.store.CaptureDeletion("gone.txt", "g\n")

	state := f.svc.State()
	assert.True(t, state.Active)
	assert.Equal(t, 1, state.Tracked)
	assert.Equal(t, 1, state.Deleted)
	assert.Equal(t, 1, state.OpenBuffers)
	assert.Equal(t, 1, state.CacheSize, "open buffer seeded into the cache")

	f.svc.StopTracking()
	state = f.svc.State()
	assert.False(t, state.Active)
	assert.Equal(t, 0, state.CacheSize)
	assert.Equal(t, 1, state.Tracked, "baselines survive a tracking stop")
}
