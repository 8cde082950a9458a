package marker

import (
	"fmt"
	"os"

	"github.com/opencontainers/go-digest"
)

// hashFile computes the canonical content digest of a file, streaming the
// bytes through the hash so memory use stays bounded regardless of size.
// The digest is the sole cache key: identical bytes always map to the same
// entry no matter the filename or upload order.
func hashFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	dgst, err := digest.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return dgst, nil
}

// shortDigest truncates an encoded digest for log output.
func shortDigest(dgst digest.Digest) string {
	encoded := dgst.Encoded()
	return encoded[:min(16, len(encoded))]
}
