// Shared types for the change-tracking engine and its consumers.
package shared

import (
	"time"
)

// ChangeKind classifies how a tracked file currently differs from its
// baseline.
type ChangeKind string

const (
	ChangeModified ChangeKind = "modified"
	ChangeCreated  ChangeKind = "created"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeEntry describes one tracked file's drift from its baseline. Entries
// are derived fresh on every listing and never stored; unchanged files do
// not produce an entry at all.
type ChangeEntry struct {
	Path       string     `json:"path"`
	Kind       ChangeKind `json:"kind"`
	Additions  int        `json:"additions"`
	Deletions  int        `json:"deletions"`
	Original   string     `json:"original,omitempty"`
	Current    string     `json:"current,omitempty"`
	OldSum     string     `json:"old_sum,omitempty"`
	NewSum     string     `json:"new_sum,omitempty"`
	CapturedAt time.Time  `json:"captured_at"`
}

// DocumentEvent carries an editor document notification: the file the event
// concerns and the document's live text at the time it fired.
type DocumentEvent struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// Outcome reports the result of one file operation within a batch.
type Outcome struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TrackingState reports whether the observer is live and how much it holds.
type TrackingState struct {
	Active      bool `json:"active"`
	Tracked     int  `json:"tracked"`
	Deleted     int  `json:"deleted"`
	CacheSize   int  `json:"cache_size"`
	OpenBuffers int  `json:"open_buffers"`
}
