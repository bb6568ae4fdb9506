package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kfs-vfs/driver"
)

func TestRefCountIncDec(t *testing.T) {
	n := newNode("x", TypeFile)
	require.EqualValues(t, 0, n.refs())

	n.incRef()
	n.incRef()
	require.EqualValues(t, 2, n.refs())

	require.EqualValues(t, 1, n.decRef())
	require.EqualValues(t, 0, n.decRef())
}

func TestDestroyableRequiresZeroRefsAndNoChildren(t *testing.T) {
	dir := newNode("d", TypeDir)
	require.True(t, dir.destroyable())

	dir.incRef()
	require.False(t, dir.destroyable())

	dir.decRef()
	require.True(t, dir.destroyable())

	child := newNode("c", TypeFile)

	dir.branchLock.Lock()
	addChild(dir, child, "c")
	dir.branchLock.Unlock()

	require.False(t, dir.destroyable())
}

func TestReleaseDropsLinkPinAndResource(t *testing.T) {
	target := newNode("target", TypeFile)
	target.incRef() // the pin a Link holds

	link := newNode("link", TypeLink)
	link.link = target
	link.resource = &driver.Resource{}

	link.release()

	require.EqualValues(t, 0, target.refs())
	require.Nil(t, link.link)
	require.Nil(t, link.resource)
	require.Empty(t, link.name)
}

func TestNewRootIsPinnedAndIsDir(t *testing.T) {
	root := newRoot()
	require.EqualValues(t, 1, root.refs())
	require.True(t, root.isDir())
	require.Equal(t, TypeRoot, root.typ)
}
