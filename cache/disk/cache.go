// Package disk provides a disk-backed result cache implementation.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
)

const (
	defaultDirPerm = 0o700

	entryExt      = ".json"
	compressedExt = ".json.zst"
)

// Cache implements cache.Cache, plus the cache.Expirer and cache.Pruner
// maintenance interfaces, using the local filesystem.
//
// Entries live flat under the cache directory as <digest>.json, or
// <digest>.json.zst when compression is enabled. Get reads both layouts, so
// compression can be toggled between runs without orphaning entries.
type Cache struct {
	dir      string
	dirPerm  os.FileMode
	compress bool
	maxBytes int64
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// Option configures a disk cache.
type Option func(*Cache)

// WithDirPerm sets the permissions used when creating the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithCompression stores new entries zstd-compressed.
func WithCompression() Option {
	return func(c *Cache) {
		c.compress = true
	}
}

// WithMaxBytes bounds the cache's total size; [Cache.Prune] removes the
// oldest entries once the bound is exceeded. Zero or negative means
// unbounded, the default.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a disk-backed result cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:     dir,
		dirPerm: defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}

	// The decoder is always needed: entries written while compression was
	// enabled must stay readable after it is turned off.
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c.dec = dec

	if c.compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		c.enc = enc
	}
	return c, nil
}

// Get retrieves the entry for a content digest.
func (c *Cache) Get(dgst digest.Digest) ([]byte, bool) {
	base, err := c.entryBase(dgst)
	if err != nil {
		return nil, false
	}
	if data, err := os.ReadFile(base + entryExt); err == nil {
		return data, true
	}
	raw, err := os.ReadFile(base + compressedExt)
	if err != nil {
		return nil, false
	}
	data, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		// An undecodable entry reads as a miss; the next Put rewrites it.
		return nil, false
	}
	return data, true
}

// Put stores the entry for a content digest, replacing any existing entry.
// The write is atomic: a temp file is renamed into place, so a concurrent
// Get sees either the old entry or the new one, never a partial write.
func (c *Cache) Put(dgst digest.Digest, entry []byte) error {
	base, err := c.entryBase(dgst)
	if err != nil {
		return err
	}
	path, stale := base+entryExt, base+compressedExt
	if c.compress {
		path, stale = base+compressedExt, base+entryExt
		entry = c.enc.EncodeAll(entry, nil)
	}

	tmp, err := os.CreateTemp(c.dir, "entry-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(entry); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			// Another writer won the rename race; identical content, so
			// their entry is as good as ours.
			_ = os.Remove(tmpPath)
			return nil
		}
		_ = os.Remove(tmpPath)
		return err
	}

	// Drop the other layout's entry so a toggle of the compression option
	// never leaves a stale copy shadowing this write.
	_ = os.Remove(stale)
	return nil
}

// EvictOlderThan removes entries whose modification time is older than
// maxAge, returning how many were removed. Races with concurrent deletions
// are ignored.
func (c *Cache) EvictOlderThan(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(c.dir)
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
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (c *Cache) entryBase(dgst digest.Digest) (string, error) {
	if err := dgst.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest: %w", err)
	}
	return filepath.Join(c.dir, dgst.Encoded()), nil
}
