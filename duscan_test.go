package duscan

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rclone/duscan/config"
	"github.com/rclone/duscan/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRootBuildsTreeInMemory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 20), 0o644))

	root, err := ScanRoot(dir, config.Config{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), root.Size)
	assert.Equal(t, filepath.Base(dir), root.Name)
}

func TestScanRootStreamsDumpWithoutTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 5), 0o644))

	var buf bytes.Buffer
	root, err := ScanRoot(dir, config.Config{}, &buf, nil)
	require.NoError(t, err)
	assert.Nil(t, root)
	assert.Contains(t, buf.String(), `"name"`)
}

func TestScanExportImportRoundTripsSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 123), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 7), 0o644))

	var buf bytes.Buffer
	_, err := ScanRoot(dir, config.Config{}, &buf, nil)
	require.NoError(t, err)

	tmp, err := os.CreateTemp(t.TempDir(), "dump-*.json")
	require.NoError(t, err)
	_, err = tmp.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	imported, err := ImportDump(tmp.Name(), nil, config.Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(130), imported.Size)
}

func TestRefreshSubtreePicksUpAddedAndRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gone"), make([]byte, 50), 0o644))

	root, err := ScanRoot(dir, config.Config{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), root.Size)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new"), make([]byte, 5), 0o644))

	require.NoError(t, RefreshSubtree(dir, []*entry.Entry{root}, config.Config{}, nil))
	assert.Equal(t, uint64(15), root.Size)
	assert.Nil(t, findChild(root, "gone"))
	require.NotNil(t, findChild(root, "new"))
}

func TestRefreshSubtreeIdempotentOnUnchangedHardlinkedTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), make([]byte, 100), 0o644))
	require.NoError(t, os.Link(filepath.Join(dir, "x"), filepath.Join(dir, "y")))

	root, err := ScanRoot(dir, config.Config{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(100), root.Size)

	require.NoError(t, RefreshSubtree(dir, []*entry.Entry{root}, config.Config{}, nil))
	assert.Equal(t, uint64(100), root.Size, "an unchanged hardlinked tree must refresh to the same size")

	require.NoError(t, RefreshSubtree(dir, []*entry.Entry{root}, config.Config{}, nil))
	assert.Equal(t, uint64(100), root.Size, "a second no-op refresh must not drift further")
}

func findChild(e *entry.Entry, name string) *entry.Entry {
	for _, c := range e.Children() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
