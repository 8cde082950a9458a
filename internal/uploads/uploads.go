// Package uploads manages transient per-request upload files.
//
// Every incoming document is persisted under a unique name for the duration
// of its request and removed when handling ends; a mtime-based sweep clears
// anything a crashed or interrupted request left behind.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600

	// uploadExt is the extension given to stored uploads.
	uploadExt = ".pdf"
)

// Store persists uploads beneath a single directory.
type Store struct {
	dir string
}

// New creates an upload store rooted at dir, creating the directory if
// needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("upload dir is empty")
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory uploads are stored under.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes src to a freshly named file and returns its path. Unique
// names keep concurrent requests from ever colliding.
func (s *Store) Save(src io.Reader) (string, error) {
	path := filepath.Join(s.dir, uuid.NewString()+uploadExt)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// Remove deletes a stored upload. A file that is already gone is not an
// error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep removes uploads whose modification time is older than maxAge,
// returning how many were removed. Races with concurrent deletions are
// ignored.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
