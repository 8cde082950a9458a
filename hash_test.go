package marker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFileDeterministic(t *testing.T) {
	t.Parallel()

	content := []byte("%PDF-1.4 the same bytes")
	dir := t.TempDir()

	first := filepath.Join(dir, "a.pdf")
	second := filepath.Join(dir, "b.pdf")
	require.NoError(t, os.WriteFile(first, content, 0o644))
	require.NoError(t, os.WriteFile(second, content, 0o644))

	d1, err := hashFile(first)
	require.NoError(t, err)
	d2, err := hashFile(second)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "identical bytes share a digest regardless of filename")
	assert.Equal(t, digest.FromBytes(content), d1)
	assert.Len(t, d1.Encoded(), 64)
}

func TestHashFileDistinctContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vectors := map[string][]byte{
		"a.pdf": []byte("%PDF-1.4 report one"),
		"b.pdf": []byte("%PDF-1.4 report two"),
		"c.pdf": []byte("%PDF-1.4 report one "), // trailing byte matters
	}

	seen := make(map[digest.Digest]string)
	for name, content := range vectors {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, content, 0o644))

		dgst, err := hashFile(path)
		require.NoError(t, err)

		if prev, ok := seen[dgst]; ok {
			t.Fatalf("digest collision between %s and %s", prev, name)
		}
		seen[dgst] = name
	}
}

func TestHashFileMissing(t *testing.T) {
	t.Parallel()

	_, err := hashFile(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
}

func TestShortDigest(t *testing.T) {
	t.Parallel()

	dgst := digest.FromBytes([]byte("content"))
	short := shortDigest(dgst)

	assert.Len(t, short, 16)
	assert.True(t, len(dgst.Encoded()) > len(short))
	assert.Equal(t, dgst.Encoded()[:16], short)
}
