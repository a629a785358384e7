package exclude

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesPatternTopLevel(t *testing.T) {
	assert.True(t, MatchesPattern("drop.tmp", []string{"*.tmp"}))
	assert.False(t, MatchesPattern("keep.txt", []string{"*.tmp"}))
}

func TestMatchesPatternNestedRotation(t *testing.T) {
	// A pattern with no slash should still match a deeply nested file,
	// via the trailing-suffix rotations.
	assert.True(t, MatchesPattern("/a/b/node_modules", []string{"node_modules"}))
	assert.True(t, MatchesPattern("/a/b/c.tmp", []string{"*.tmp"}))
}

func TestMatchesPatternNoPatterns(t *testing.T) {
	assert.False(t, MatchesPattern("/a/b/c", nil))
}

func TestHasCacheDirTagMissing(t *testing.T) {
	dir := t.TempDir()
	ok, err := HasCacheDirTag(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasCacheDirTagSignaturePresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CACHEDIR.TAG"),
		[]byte(cacheDirSignature+"\nmore text after the signature\n"), 0o644))

	ok, err := HasCacheDirTag(dir)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasCacheDirTagTooShort(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CACHEDIR.TAG"),
		[]byte("Signature: 8a477f"), 0o644))

	ok, err := HasCacheDirTag(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasCacheDirTagWrongSignature(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CACHEDIR.TAG"),
		[]byte("Signature: 0000000000000000000000000000000000000000"), 0o644))

	ok, err := HasCacheDirTag(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}
