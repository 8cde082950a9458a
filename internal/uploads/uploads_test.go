package uploads

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Dir() != dir {
		t.Fatalf("Dir() = %q, want %q", s.Dir(), dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %s to be a directory", dir)
	}
}

func TestNewEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
}

func TestStoreSave(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("%PDF-1.4 upload body")
	path, err := s.Save(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if filepath.Dir(path) != s.Dir() {
		t.Fatalf("Save() path = %q, want file under %q", path, s.Dir())
	}
	if filepath.Ext(path) != ".pdf" {
		t.Fatalf("Save() path = %q, want .pdf extension", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("stored content = %q, want %q", got, content)
	}
}

func TestStoreSaveUniqueNames(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	seen := make(map[string]bool)
	for range 20 {
		path, err := s.Save(strings.NewReader("same content"))
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if seen[path] {
			t.Fatalf("Save() reused path %q", path)
		}
		seen[path] = true
	}
}

func TestStoreRemove(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	path, err := s.Save(strings.NewReader("to be removed"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be gone: %v", path, err)
	}

	// A second removal of the same path is not an error.
	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove() of missing file error = %v", err)
	}
}

func TestStoreSweep(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stalePath, err := s.Save(strings.NewReader("abandoned"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	freshPath, err := s.Save(strings.NewReader("in flight"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	removed, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("Sweep() removed = %d, want 1", removed)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale upload to be swept: %v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("fresh upload should survive the sweep: %v", err)
	}
}

func TestStoreSweepSkipsSubdirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sub := filepath.Join(dir, "keep")
	if err := os.Mkdir(sub, 0o700); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(sub, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	removed, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 0 {
		t.Fatalf("Sweep() removed = %d, want 0", removed)
	}
	if _, err := os.Stat(sub); err != nil {
		t.Fatalf("subdirectory should survive the sweep: %v", err)
	}
}
