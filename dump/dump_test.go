package dump

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rclone/duscan/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample() *entry.Entry {
	root := entry.NewRoot("r")
	f := entry.NewFile("f", 10, 1)
	entry.AddChild(root, f)
	entry.AddStats(f, f.Size, f.Blocks)
	return root
}

func TestRoundTripSimpleTree(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Begin(Metadata{ProgName: "duscan", ProgVer: "test", Timestamp: time.Unix(0, 0)}))

	root := buildSample()
	require.NoError(t, w.EnterDir(root, -1, false))
	require.NoError(t, w.WriteChild(root.Sub, root.DevID, false))
	require.NoError(t, w.LeaveDir())
	require.NoError(t, w.Finish())

	got, err := ParseDocument(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, entry.KindRoot, got.Kind)
	assert.Equal(t, "r", got.Name)
	assert.Equal(t, uint64(10), got.Size)
	assert.Equal(t, uint64(1), got.Blocks)
	require.Len(t, got.Children(), 1)
	assert.Equal(t, "f", got.Children()[0].Name)
}

func TestImportRecomputesDirAggregateFromChildren(t *testing.T) {
	doc := `[1,2,{},[{"name":"r"},{"name":"f","asize":10,"dsize":512}]]`
	root, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "r", root.Name)
	assert.Equal(t, uint64(10), root.Size)
	assert.Equal(t, uint64(1), root.Blocks)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, "f", root.Children()[0].Name)
}

func TestImportRejectsDuplicateName(t *testing.T) {
	doc := `[1,2,{},[{"name":"r","name":"r2"}]]`
	_, err := ParseDocument(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestImportRequiresNameKey(t *testing.T) {
	doc := `[1,2,{},[{"asize":10}]]`
	_, err := ParseDocument(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestImportUnknownExcludedValueDefaultsToPattern(t *testing.T) {
	doc := `[1,2,{},[{"name":"r"},{"name":"x","excluded":"something-new"}]]`
	root, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, entry.ExcludedPattern, root.Children()[0].Excluded)
}

func TestImportFrmlnkTreatedAsPattern(t *testing.T) {
	doc := `[1,2,{},[{"name":"r"},{"name":"x","excluded":"frmlnk"}]]`
	root, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, entry.ExcludedPattern, root.Children()[0].Excluded)
}

func TestImportIgnoresUnknownKeys(t *testing.T) {
	doc := `[1,2,{"extra":{"nested":[1,2,3]}},[{"name":"r","futurefield":true},{"name":"f","asize":1,"dsize":512,"somekey":"somevalue"}]]`
	root, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "r", root.Name)
}

func TestImportNonUTF8PathSurvivesRoundTrip(t *testing.T) {
	weird := "bad-\x90\xff-name"
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Begin(Metadata{ProgName: "duscan", ProgVer: "test"}))
	root := entry.NewRoot("r")
	child := entry.NewFile(weird, 5, 1)
	entry.AddChild(root, child)
	entry.AddStats(child, child.Size, child.Blocks)
	require.NoError(t, w.EnterDir(root, -1, false))
	require.NoError(t, w.WriteChild(child, root.DevID, false))
	require.NoError(t, w.LeaveDir())
	require.NoError(t, w.Finish())

	got, err := ParseDocument(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got.Children(), 1)
	assert.Equal(t, weird, got.Children()[0].Name)
}

func TestImportDistributesHardlinkContributionProportionally(t *testing.T) {
	// Two subdirectories, each with one link to the same (dev_id, ino),
	// nlink 2, size 100, dsize 4096 (8 blocks). Each occurrence should
	// contribute 50/4 to its own parent, and 100/8 to the root.
	doc := `[1,2,{},[{"name":"r"},` +
		`[{"name":"a"},{"name":"h","asize":100,"dsize":4096,"ino":77,"hlnkc":true,"nlink":2}],` +
		`[{"name":"b"},{"name":"h","asize":100,"dsize":4096,"ino":77,"hlnkc":true,"nlink":2}]` +
		`]]`
	root, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, root.Children(), 2)
	for _, d := range root.Children() {
		assert.Equal(t, uint64(50), d.Size, "dir %s", d.Name)
		assert.Equal(t, uint64(4), d.Blocks, "dir %s", d.Name)
	}
	assert.Equal(t, uint64(100), root.Size)
	assert.Equal(t, uint64(8), root.Blocks)
}

func TestConvertToDumpStreamsWithoutError(t *testing.T) {
	in := `[1,2,{},[{"name":"r"},{"name":"f","asize":10,"dsize":512}]]`
	var out bytes.Buffer
	w := NewWriter(&out)
	err := ConvertToDump(strings.NewReader(in), w, Metadata{ProgName: "duscan", ProgVer: "test"}, false)
	require.NoError(t, err)

	reparsed, err := ParseDocument(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "r", reparsed.Name)
	assert.Equal(t, uint64(10), reparsed.Size)
}

func TestImportReadErrorPropagatesSubErr(t *testing.T) {
	doc := `[1,2,{},[{"name":"r"},{"name":"f","read_error":true}]]`
	root, err := ParseDocument(strings.NewReader(doc))
	require.NoError(t, err)
	assert.True(t, root.SubErr)
	require.Len(t, root.Children(), 1)
	assert.True(t, root.Children()[0].Err)
}
