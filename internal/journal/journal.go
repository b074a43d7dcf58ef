// Package journal records review operations in a local badger database so
// the history of accepts and reverts survives daemon restarts. Only
// operation metadata is stored, never file content; review state itself is
// deliberately in-memory only.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

const (
	entryPrefix = "op:"
	timePrefix  = "op_time:"
)

// Op is the kind of recorded operation.
type Op string

const (
	OpAccept  Op = "accept"
	OpRevert  Op = "revert"
	OpUntrack Op = "untrack"
	OpClear   Op = "clear"
)

// Entry is one recorded operation. The change fields carry what was known
// about the file at the moment the operation ran.
type Entry struct {
	ID        string            `json:"id"`
	Op        Op                `json:"op"`
	Path      string            `json:"path,omitempty"`
	Kind      shared.ChangeKind `json:"kind,omitempty"`
	Additions int               `json:"additions"`
	Deletions int               `json:"deletions"`
	OldSum    string            `json:"old_sum,omitempty"`
	NewSum    string            `json:"new_sum,omitempty"`
	At        time.Time         `json:"at"`
}

// Journal is an append-only operation log.
type Journal struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open creates or opens the journal database at dir.
func Open(dir string, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// OpenInMemory opens a journal that vanishes on close.
func OpenInMemory(logger *zap.Logger) (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory journal: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends an entry, filling in its id and timestamp when unset.
func (j *Journal) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(entryPrefix+e.ID), data); err != nil {
			return err
		}
		// Zero-padded so lexical key order is chronological order.
		timeKey := fmt.Sprintf("%s%020d:%s", timePrefix, e.At.UnixNano(), e.ID)
		return txn.Set([]byte(timeKey), []byte(e.ID))
	})
	if err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}

	j.logger.Debug("journaled operation",
		zap.String("op", string(e.Op)),
		zap.String("path", e.Path))
	return nil
}

// List returns the most recent entries, newest first. A limit of zero or
// less returns everything.
func (j *Journal) List(limit int) ([]Entry, error) {
	var entries []Entry
	prefix := []byte(timePrefix)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []string
		// Reverse iteration must start just past the last candidate.
		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			if err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); err != nil {
				return err
			}
		}

		for _, id := range ids {
			item, err := txn.Get([]byte(entryPrefix + id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			if err := item.Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}

// Len counts the recorded entries.
func (j *Journal) Len() (int, error) {
	count := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting journal entries: %w", err)
	}
	return count, nil
}
