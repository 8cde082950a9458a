package disk

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

type entryInfo struct {
	name string
	size int64
	mod  time.Time
}

// Prune removes the oldest entries until the cache fits its configured size
// bound, returning the bytes freed. A cache without a bound never removes
// anything. Entries that vanish mid-prune are skipped.
func (c *Cache) Prune() (int64, error) {
	if c.maxBytes <= 0 {
		return 0, nil
	}

	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}

	entries := make([]entryInfo, 0, len(dirents))
	var total int64
	for _, dirent := range dirents {
		if dirent.IsDir() {
			continue
		}
		info, err := dirent.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		entries = append(entries, entryInfo{
			name: dirent.Name(),
			size: info.Size(),
			mod:  info.ModTime(),
		})
	}
	if total <= c.maxBytes {
		return 0, nil
	}

	// Oldest first, with the name as a tiebreak so the order is stable.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].mod.Equal(entries[j].mod) {
			return entries[i].name < entries[j].name
		}
		return entries[i].mod.Before(entries[j].mod)
	})

	var freed int64
	for _, entry := range entries {
		if total-freed <= c.maxBytes {
			break
		}
		if err := os.Remove(filepath.Join(c.dir, entry.name)); err != nil {
			continue
		}
		freed += entry.size
	}
	return freed, nil
}
