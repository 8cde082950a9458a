// Package cache provides content-addressed storage for extraction results.
//
// Results are keyed by the digest of the source document's bytes, so cache
// correctness is independent of filenames and upload order: identical
// documents share one entry, and an entry never needs invalidation because
// its key changes whenever its source content does.
package cache

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Cache stores serialized extraction results keyed by content digest.
//
// Values are opaque JSON encodings of completed results. An absent key is
// not an error. Put is an idempotent overwrite; last write wins.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves the entry for a content digest.
	// Returns nil, false if no entry exists.
	Get(dgst digest.Digest) ([]byte, bool)

	// Put stores the entry for a content digest.
	Put(dgst digest.Digest, entry []byte) error
}

// Expirer is implemented by caches that support time-based eviction.
//
// Eviction is best-effort and safe to run concurrently with Get and Put;
// entries that vanish mid-sweep are not errors.
type Expirer interface {
	// EvictOlderThan removes entries whose age exceeds maxAge, returning
	// how many were removed.
	EvictOlderThan(maxAge time.Duration) (int, error)
}

// Pruner is implemented by caches that enforce a total size bound.
//
// Pruning is best-effort under the same concurrency rules as Expirer.
type Pruner interface {
	// Prune removes the oldest entries until the store fits its configured
	// bound, returning the bytes freed. A store without a bound frees
	// nothing.
	Prune() (int64, error)
}
