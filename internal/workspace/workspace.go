// Package workspace provides root-locked access to the files of the
// directory under review, plus the registry of documents currently open in
// connected editors. Every path crossing the package boundary is a
// slash-separated path relative to the workspace root, which keeps the rest
// of the engine independent of where the workspace actually lives.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is a single directory tree the engine operates on. Operations
// never follow paths outside the root.
type Workspace struct {
	root string
}

// New resolves root to an absolute path and verifies it is a directory.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("checking workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	return &Workspace{root: abs}, nil
}

// Root returns the absolute root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Rel normalizes path, absolute or relative, into the workspace-relative
// slash form used as a tracking key. Paths escaping the root are rejected.
func (w *Workspace) Rel(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.root, filepath.FromSlash(path))
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", fmt.Errorf("normalizing path %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside the workspace", path)
	}
	return rel, nil
}

// Abs converts a workspace-relative path back to an absolute one.
func (w *Workspace) Abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// ReadFile returns the file's text and whether it exists on disk. A missing
// file is (content "", exists false, err nil); any other failure is an
// error.
func (w *Workspace) ReadFile(rel string) (string, bool, error) {
	data, err := os.ReadFile(w.Abs(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading %s: %w", rel, err)
	}
	return string(data), true, nil
}

// WriteFile writes content to the file, creating parent directories as
// needed.
func (w *Workspace) WriteFile(rel string, content string) error {
	abs := w.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// DeleteFile removes the file. Deleting a file that does not exist is not
// an error.
func (w *Workspace) DeleteFile(rel string) error {
	if err := os.Remove(w.Abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", rel, err)
	}
	return nil
}
