package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddStatsPropagatesThroughAncestors(t *testing.T) {
	root := NewRoot("")
	sub := NewDir("b")
	AddChild(root, sub)

	AddStats(sub, 500, 8)
	assert.EqualValues(t, 500, sub.Size)
	assert.EqualValues(t, 8, sub.Blocks)
	assert.EqualValues(t, 500, root.Size)
	assert.EqualValues(t, 8, root.Blocks)
}

func TestDelStatsUndoesAddStats(t *testing.T) {
	root := NewRoot("")
	sub := NewDir("b")
	AddChild(root, sub)

	AddStats(sub, 500, 8)
	DelStats(sub, 500, 8)
	assert.Zero(t, sub.Size)
	assert.Zero(t, root.Size)
}

func TestDelStatsSaturatesAtZero(t *testing.T) {
	d := NewDir("d")
	AddStats(d, 10, 1)
	DelStats(d, 100, 100)
	assert.Zero(t, d.Size)
	assert.Zero(t, d.Blocks)
}

func TestUnlinkFromHeadAndMiddle(t *testing.T) {
	dir := NewDir("d")
	a, b, c := NewFile("a", 0, 0), NewFile("b", 0, 0), NewFile("c", 0, 0)
	AddChild(dir, a) // sub: a
	AddChild(dir, b) // sub: b -> a
	AddChild(dir, c) // sub: c -> b -> a
	require.Equal(t, int64(3), dir.Items)

	Unlink(dir, b)
	names := namesOf(dir)
	assert.Equal(t, []string{"c", "a"}, names)
	assert.EqualValues(t, 2, dir.Items)

	Unlink(dir, c)
	names = namesOf(dir)
	assert.Equal(t, []string{"a"}, names)
}

func namesOf(dir *Entry) []string {
	var out []string
	for _, c := range dir.Children() {
		out = append(out, c.Name)
	}
	return out
}

func TestSetErrPropagatesSubErrAndStopsAtExisting(t *testing.T) {
	root := NewRoot("")
	mid := NewDir("mid")
	leaf := NewDir("leaf")
	AddChild(root, mid)
	AddChild(mid, leaf)

	SetErr(leaf)
	assert.True(t, leaf.Err)
	assert.True(t, mid.SubErr)
	assert.True(t, root.SubErr)

	// A second, independent failure under mid must not re-walk past mid,
	// but mid and root stay marked.
	other := NewDir("other")
	AddChild(mid, other)
	SetErr(other)
	assert.True(t, other.Err)
	assert.True(t, mid.SubErr)
}

func TestDelStatsRecUnlinksAndSubtractsFromAncestors(t *testing.T) {
	root := NewRoot("")
	sub := NewDir("b")
	AddChild(root, sub)
	AddStats(sub, 500, 8)

	file := NewFile("c", 500, 8)
	AddChild(sub, file)

	DelStatsRec(sub)
	assert.Nil(t, root.Sub)
	assert.Zero(t, root.Size)
	assert.Zero(t, root.Blocks)
}

func TestDeviceRegistryInterning(t *testing.T) {
	reg := NewDeviceRegistry()
	id1 := reg.ID(42)
	id2 := reg.ID(43)
	id1Again := reg.ID(42)

	assert.Equal(t, id1, id1Again)
	assert.NotEqual(t, id1, id2)

	dev, ok := reg.Dev(id1)
	require.True(t, ok)
	assert.EqualValues(t, 42, dev)

	_, ok = reg.Dev(99)
	assert.False(t, ok)
}

func TestLinkTableDistributesContributionProportionally(t *testing.T) {
	// Two hardlinked entries x and y, same inode, nlink==2, size==100,
	// blocks==8, living under two different parent directories. Expect
	// each parent to receive exactly half, summing to one whole copy.
	root := NewRoot("")
	dirX := NewDir("dirx")
	dirY := NewDir("diry")
	AddChild(root, dirX)
	AddChild(root, dirY)

	x := NewLink("x", 100, 8, 7, 2)
	y := NewLink("y", 100, 8, 7, 2)
	AddChild(dirX, x)
	AddChild(dirY, y)

	lt := NewLinkTable()
	lt.Observe(0, x)
	lt.Observe(0, y)
	lt.Finalize()

	assert.EqualValues(t, 50, dirX.Size)
	assert.EqualValues(t, 50, dirY.Size)
	assert.EqualValues(t, 100, root.Size)
	assert.EqualValues(t, 4, dirX.Blocks)
	assert.EqualValues(t, 8, root.Blocks)
}

func TestKindIsDir(t *testing.T) {
	assert.True(t, KindDir.IsDir())
	assert.True(t, KindRoot.IsDir())
	assert.False(t, KindFile.IsDir())
	assert.False(t, KindLink.IsDir())
}
