// Package local lays replay files out on the local filesystem.
package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ReplayDir is the directory created under the output root.
	ReplayDir = "demofiles"
	// ReplayExt is the extension given to every replay archive.
	ReplayExt = ".rar"
)

// ErrInvalidID rejects ids that would escape the replay directory.
var ErrInvalidID = errors.New("invalid path component")

// ReplayStore writes replay files to <root>/demofiles/<event_id>/<demo_id>.rar.
// Files appear under their final name only once fully written.
type ReplayStore struct {
	baseDir string
}

// New prepares <root>/demofiles. An empty root means the working directory.
func New(root string) (*ReplayStore, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	baseDir := filepath.Join(root, ReplayDir)

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create replay directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat replay directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("replay path %s is not a directory", baseDir)
	}
	return &ReplayStore{baseDir: baseDir}, nil
}

// BaseDir returns <root>/demofiles.
func (s *ReplayStore) BaseDir() string {
	return s.baseDir
}

// Path returns the final location of a replay without touching the disk.
func (s *ReplayStore) Path(eventID, demoID string) (string, error) {
	if err := checkComponent(eventID); err != nil {
		return "", fmt.Errorf("event id: %w", err)
	}
	if err := checkComponent(demoID); err != nil {
		return "", fmt.Errorf("demo id: %w", err)
	}
	fullPath := filepath.Join(s.baseDir, eventID, demoID+ReplayExt)

	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %w", ErrInvalidID)
	}
	return fullPath, nil
}

// EnsureEventDir creates <root>/demofiles/<event_id> and returns its path.
func (s *ReplayStore) EnsureEventDir(eventID string) (string, error) {
	if err := checkComponent(eventID); err != nil {
		return "", fmt.Errorf("event id: %w", err)
	}
	dir := filepath.Join(s.baseDir, eventID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create event directory: %w", err)
	}
	return dir, nil
}

// Create opens a temp file next to the final replay location. The event
// directory is created on demand.
func (s *ReplayStore) Create(eventID, demoID string) (*PendingFile, error) {
	final, err := s.Path(eventID, demoID)
	if err != nil {
		return nil, err
	}
	dir, err := s.EnsureEventDir(eventID)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+demoID+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &PendingFile{File: f, final: final}, nil
}

// PendingFile is a replay being written. Exactly one of Commit or Abort
// should be called.
type PendingFile struct {
	*os.File
	final string
	done  bool
}

// FinalPath is where Commit moves the file.
func (p *PendingFile) FinalPath() string {
	return p.final
}

// Commit flushes the temp file and renames it over the final path.
func (p *PendingFile) Commit() error {
	if p.done {
		return errors.New("pending file already finished")
	}
	p.done = true
	if err := p.Sync(); err != nil {
		_ = p.Close()
		_ = os.Remove(p.Name())
		return fmt.Errorf("sync %s: %w", p.Name(), err)
	}
	if err := p.Close(); err != nil {
		_ = os.Remove(p.Name())
		return fmt.Errorf("close %s: %w", p.Name(), err)
	}
	if err := os.Rename(p.Name(), p.final); err != nil {
		_ = os.Remove(p.Name())
		return fmt.Errorf("rename to %s: %w", p.final, err)
	}
	return nil
}

// Abort closes and removes the temp file. It is a no-op after Commit.
func (p *PendingFile) Abort() {
	if p.done {
		return
	}
	p.done = true
	_ = p.Close()
	_ = os.Remove(p.Name())
}

func checkComponent(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return fmt.Errorf("empty: %w", ErrInvalidID)
	case s == "." || s == "..":
		return fmt.Errorf("%q: %w", s, ErrInvalidID)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("%q contains a separator: %w", s, ErrInvalidID)
	}
	return nil
}
