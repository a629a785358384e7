package pathbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPop(t *testing.T) {
	b := New("/home/user")
	assert.Equal(t, "/home/user", b.String())

	b.Push("docs")
	assert.Equal(t, "/home/user/docs", b.String())

	b.Push("a.txt")
	assert.Equal(t, "/home/user/docs/a.txt", b.String())

	b.Pop()
	assert.Equal(t, "/home/user/docs", b.String())

	b.Pop()
	assert.Equal(t, "/home/user", b.String())
}

func TestRootSlashDoesNotDouble(t *testing.T) {
	b := New("/")
	b.Push("etc")
	assert.Equal(t, "/etc", b.String())
}

func TestEmptyRoot(t *testing.T) {
	b := New("")
	b.Push("a")
	b.Push("b")
	assert.Equal(t, "a/b", b.String())
}

func TestPopPastRootPanics(t *testing.T) {
	b := New("/root")
	assert.Panics(t, func() { b.Pop() })
}

func TestDepth(t *testing.T) {
	b := New("/root")
	assert.Equal(t, 0, b.Depth())
	b.Push("a")
	b.Push("b")
	assert.Equal(t, 2, b.Depth())
	b.Pop()
	assert.Equal(t, 1, b.Depth())
}
