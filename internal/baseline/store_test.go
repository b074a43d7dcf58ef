package baseline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/workspace"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

func newTestStore(t *testing.T) (*Store, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	store, err := NewStore(ws, zap.NewNop(), Options{})
	require.NoError(t, err)
	return store, ws
}

func mustList(t *testing.T, store *Store) []shared.ChangeEntry {
	t.Helper()
	entries, err := store.ListChanges(context.Background())
	require.NoError(t, err)
	return entries
}

func TestCaptureFirstWins(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("a.txt", "one\n"))

	store.Capture("a.txt", "one\n")
	store.Capture("a.txt", "bogus\n")

	require.NoError(t, ws.WriteFile("a.txt", "two\n"))

	entry, ok := store.Entry("a.txt")
	require.True(t, ok)
	assert.Equal(t, shared.ChangeModified, entry.Kind)
	assert.Equal(t, "one\n", entry.Original)
	assert.Equal(t, "two\n", entry.Current)
}

func TestListChangesOmitsUnchanged(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("same.txt", "stable\n"))
	store.Capture("same.txt", "stable\n")

	assert.Empty(t, mustList(t, store))

	tracked, deleted := store.Len()
	assert.Equal(t, 1, tracked)
	assert.Equal(t, 0, deleted)
}

func TestListChangesModifiedCounts(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("f.txt", "a\nc\n"))
	store.Capture("f.txt", "a\nb\n")

	entries := mustList(t, store)
	require.Len(t, entries, 1)
	assert.Equal(t, shared.ChangeModified, entries[0].Kind)
	assert.Equal(t, 1, entries[0].Additions)
	assert.Equal(t, 1, entries[0].Deletions)
	assert.NotEqual(t, entries[0].OldSum, entries[0].NewSum)
}

func TestNewFileAlwaysYieldsCreated(t *testing.T) {
	store, ws := newTestStore(t)
	store.CaptureNewFile("fresh.txt")
	require.NoError(t, ws.WriteFile("fresh.txt", "x\ny\n"))

	entry, ok := store.Entry("fresh.txt")
	require.True(t, ok)
	assert.Equal(t, shared.ChangeCreated, entry.Kind)
	assert.Equal(t, 2, entry.Additions)
	assert.Equal(t, 0, entry.Deletions)

	// Even an empty new file stays visible until reviewed.
	require.NoError(t, ws.WriteFile("fresh.txt", ""))
	entry, ok = store.Entry("fresh.txt")
	require.True(t, ok)
	assert.Equal(t, shared.ChangeCreated, entry.Kind)
	assert.Equal(t, 0, entry.Additions)
}

func TestMissingTrackedFileListsAsDeleted(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("gone.txt", "a\nb\nc\n"))
	store.Capture("gone.txt", "a\nb\nc\n")
	require.NoError(t, ws.DeleteFile("gone.txt"))

	entries := mustList(t, store)
	require.Len(t, entries, 1)
	assert.Equal(t, shared.ChangeDeleted, entries[0].Kind)
	assert.Equal(t, 0, entries[0].Additions)
	assert.Equal(t, 3, entries[0].Deletions)
	assert.Equal(t, "a\nb\nc\n", entries[0].Original)
}

func TestCaptureDeletionPrefersBaseline(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("d.txt", "x\n"))
	store.Capture("d.txt", "x\n")

	require.NoError(t, ws.DeleteFile("d.txt"))
	store.CaptureDeletion("d.txt", "stale fallback\n")

	tracked, deleted := store.Len()
	assert.Equal(t, 0, tracked)
	assert.Equal(t, 1, deleted)

	entry, ok := store.Entry("d.txt")
	require.True(t, ok)
	assert.Equal(t, shared.ChangeDeleted, entry.Kind)
	assert.Equal(t, "x\n", entry.Original)
}

func TestCaptureDeletionFallback(t *testing.T) {
	store, _ := newTestStore(t)
	store.CaptureDeletion("d.txt", "cached\n")

	entry, ok := store.Entry("d.txt")
	require.True(t, ok)
	assert.Equal(t, "cached\n", entry.Original)
	assert.Equal(t, 1, entry.Deletions)
}

func TestRepeatedDeletionKeepsRecordContent(t *testing.T) {
	store, _ := newTestStore(t)
	store.CaptureDeletion("d.txt", "real content\n")
	store.CaptureDeletion("d.txt", "")

	entry, ok := store.Entry("d.txt")
	require.True(t, ok)
	assert.Equal(t, "real content\n", entry.Original)
}

func TestRecaptureRevivesDeletedRecord(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("r.txt", "original\n"))
	store.Capture("r.txt", "original\n")

	require.NoError(t, ws.DeleteFile("r.txt"))
	store.CaptureDeletion("r.txt", "")

	// The file reappears and tracking sees it as new; the old record
	// must win so the diff still runs against pre-delete content.
	require.NoError(t, ws.WriteFile("r.txt", "recreated\n"))
	store.CaptureNewFile("r.txt")

	entry, ok := store.Entry("r.txt")
	require.True(t, ok)
	assert.Equal(t, shared.ChangeModified, entry.Kind)
	assert.Equal(t, "original\n", entry.Original)
	assert.Equal(t, "recreated\n", entry.Current)
}

func TestAcceptReturnsContentAndDrops(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("a.txt", "edited\n"))
	store.Capture("a.txt", "orig\n")

	content, err := store.Accept("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "edited\n", content)
	assert.False(t, store.Contains("a.txt"))

	// The file itself is untouched.
	onDisk, exists, err := ws.ReadFile("a.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "edited\n", onDisk)

	_, err = store.Accept("a.txt")
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestAcceptDeletion(t *testing.T) {
	store, _ := newTestStore(t)
	store.CaptureDeletion("gone.txt", "bye\n")

	content, err := store.Accept("gone.txt")
	require.NoError(t, err)
	assert.Empty(t, content)
	assert.False(t, store.Contains("gone.txt"))
}

func TestRevertModified(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("m.txt", "changed\n"))
	store.Capture("m.txt", "pristine\n")

	assert.True(t, store.Revert("m.txt"))

	onDisk, _, err := ws.ReadFile("m.txt")
	require.NoError(t, err)
	assert.Equal(t, "pristine\n", onDisk)
	assert.False(t, store.Contains("m.txt"))
}

func TestRevertCreatedDeletesFile(t *testing.T) {
	store, ws := newTestStore(t)
	store.CaptureNewFile("n.txt")
	require.NoError(t, ws.WriteFile("n.txt", "temp\n"))

	assert.True(t, store.Revert("n.txt"))

	_, exists, err := ws.ReadFile("n.txt")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, store.Contains("n.txt"))
}

func TestRevertDeletedRestoresFile(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("d.txt", "keep me\n"))
	store.Capture("d.txt", "keep me\n")
	require.NoError(t, ws.DeleteFile("d.txt"))
	store.CaptureDeletion("d.txt", "")

	assert.True(t, store.Revert("d.txt"))

	onDisk, exists, err := ws.ReadFile("d.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "keep me\n", onDisk)
	assert.False(t, store.Contains("d.txt"))
}

func TestRevertUntracked(t *testing.T) {
	store, _ := newTestStore(t)
	assert.False(t, store.Revert("nope.txt"))
}

type failingFS struct {
	*workspace.Workspace
	failWrites bool
}

func (f *failingFS) WriteFile(path, content string) error {
	if f.failWrites {
		return errors.New("disk full")
	}
	return f.Workspace.WriteFile(path, content)
}

func TestRevertFailureKeepsState(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	fs := &failingFS{Workspace: ws}
	store, err := NewStore(fs, zap.NewNop(), Options{})
	require.NoError(t, err)

	require.NoError(t, ws.WriteFile("f.txt", "changed\n"))
	store.Capture("f.txt", "orig\n")

	fs.failWrites = true
	assert.False(t, store.Revert("f.txt"))
	assert.True(t, store.Contains("f.txt"), "failed revert must keep the baseline")

	fs.failWrites = false
	assert.True(t, store.Revert("f.txt"))
	assert.False(t, store.Contains("f.txt"))
}

func TestRemove(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("u.txt", "edited\n"))
	store.Capture("u.txt", "orig\n")

	store.Remove("u.txt")

	assert.False(t, store.Contains("u.txt"))
	onDisk, _, err := ws.ReadFile("u.txt")
	require.NoError(t, err)
	assert.Equal(t, "edited\n", onDisk, "untracking must not touch the file")

	// Removing an unknown path is a no-op.
	store.Remove("missing.txt")
}

func TestClear(t *testing.T) {
	store, ws := newTestStore(t)
	require.NoError(t, ws.WriteFile("a.txt", "a2\n"))
	store.Capture("a.txt", "a1\n")
	store.CaptureNewFile("b.txt")
	store.CaptureDeletion("c.txt", "c\n")

	store.Clear()

	tracked, deleted := store.Len()
	assert.Equal(t, 0, tracked)
	assert.Equal(t, 0, deleted)
	assert.Empty(t, mustList(t, store))
}

func TestOnChangeNotifications(t *testing.T) {
	store, ws := newTestStore(t)
	var fired int
	unsub := store.OnChange(func() { fired++ })

	require.NoError(t, ws.WriteFile("a.txt", "v1\n"))
	store.Capture("a.txt", "v1\n")
	assert.Equal(t, 1, fired)

	// A losing capture does not notify.
	store.Capture("a.txt", "v1\n")
	assert.Equal(t, 1, fired)

	_, err := store.Accept("a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, fired)

	unsub()
	store.CaptureNewFile("b.txt")
	assert.Equal(t, 2, fired)
}

func TestEntryUntracked(t *testing.T) {
	store, _ := newTestStore(t)
	_, ok := store.Entry("nothing.txt")
	assert.False(t, ok)
}
