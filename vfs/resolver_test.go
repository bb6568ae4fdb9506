package vfs

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kfs-vfs/driver"
)

// fixedMaterializer materializes plain, resourceless directories/files for
// any missing component, as if everything lived in-memory with no mount.
func fixedMaterializer(mode fs.FileMode, typ Type) MaterializeFunc {
	return func(v *VFS, parent *Node, component, remaining string) (*Node, error) {
		n := newNode(component, typ)
		n.stat.Mode = mode

		addChild(parent, n, component)

		return n, nil
	}
}

func TestTraverseMaterializesMissingComponents(t *testing.T) {
	vfsys := New()

	end, leftover, err := vfsys.traverse("/a/b/c", vfsys.root, 0, Caller{}, fixedMaterializer(fs.ModeDir|0o755, TypeDir))
	require.NoError(t, err)
	require.Empty(t, leftover)
	require.Equal(t, "c", end.name)

	require.NotNil(t, findChild(vfsys.root, "a"))
}

func TestTraverseFindsExistingChild(t *testing.T) {
	vfsys := New()

	_, _, err := vfsys.traverse("/x/y", vfsys.root, 0, Caller{}, fixedMaterializer(fs.ModeDir|0o755, TypeDir))
	require.NoError(t, err)

	end, leftover, err := vfsys.traverse("/x/y", vfsys.root, 0, Caller{}, nil)
	require.NoError(t, err)
	require.Empty(t, leftover)
	require.Equal(t, "y", end.name)
}

func TestTraverseNotFoundWithoutMaterializer(t *testing.T) {
	vfsys := New()

	end, leftover, err := vfsys.traverse("/nope", vfsys.root, 0, Caller{}, nil)
	require.Error(t, err)
	require.Nil(t, end)
	require.Equal(t, "/nope", leftover)
}

func TestTraverseDotDotAscendsToParent(t *testing.T) {
	vfsys := New()

	_, _, err := vfsys.traverse("/a/b", vfsys.root, 0, Caller{}, fixedMaterializer(fs.ModeDir|0o755, TypeDir))
	require.NoError(t, err)

	end, _, err := vfsys.traverse("/a/b/../b", vfsys.root, 0, Caller{}, nil)
	require.NoError(t, err)
	require.Equal(t, "b", end.name)
}

func TestTraverseDeniesLookupWithoutPermission(t *testing.T) {
	vfsys := New()

	_, _, err := vfsys.traverse("/locked/inside", vfsys.root, 0, Caller{}, fixedMaterializer(fs.ModeDir|0o700, TypeDir))
	require.NoError(t, err)

	_, _, err = vfsys.traverse("/locked/inside", vfsys.root, 0, Caller{Uid: 42}, nil)
	require.Error(t, err)

	var verr *Error

	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindPermissionDenied, verr.Kind)
}

// symlinkCycleMaterializer materializes a Link node for any missing
// component, backed by a stringDriver whose body is always target; a
// target naming the link itself forms an unbreakable cycle.
func symlinkCycleMaterializer(vfsys *VFS, target string) MaterializeFunc {
	return func(v *VFS, parent *Node, component, remaining string) (*Node, error) {
		n := newNode(component, TypeLink)
		n.stat.Mode = fs.ModeSymlink | 0o777

		addChild(parent, n, component)

		res := &driver.Resource{Driver: &stringDriver{body: target}, Group: driver.GroupBuffer}
		n.resource = res

		return n, nil
	}
}

// stringDriver is a minimal read-only driver.Driver that always returns a
// fixed body, used to back symlink nodes in tests without pulling in the
// memdriver package.
type stringDriver struct {
	body string
}

func (d *stringDriver) Stat(res *driver.Resource, path string, out *driver.Stat) error { return nil }
func (d *stringDriver) Locate(res *driver.Resource, path string) (any, error)           { return path, nil }
func (d *stringDriver) Create(res *driver.Resource, path string, mode, typ fs.FileMode) error {
	return nil
}
func (d *stringDriver) Remove(res *driver.Resource, path string) error          { return nil }
func (d *stringDriver) Rename(res *driver.Resource, oldPath, newPath string) error { return nil }
func (d *stringDriver) Read(h driver.Handle, buf []byte) (int, error) {
	n := copy(buf, d.body)

	return n, nil
}
func (d *stringDriver) Write(h driver.Handle, buf []byte) (int, error) { return len(buf), nil }
func (d *stringDriver) Seek(h driver.Handle, offset int64, whence int) (int64, error) {
	return 0, &driver.ErrUnsupported{Op: "seek"}
}
func (d *stringDriver) Close(h driver.Handle) error { return nil }

func TestResolveLinkCycleHitsHopBound(t *testing.T) {
	vfsys := New()

	loop := newNode("loop", TypeDir)
	loop.stat.Mode = fs.ModeDir | 0o755

	vfsys.root.branchLock.Lock()
	addChild(vfsys.root, loop, "loop")
	vfsys.root.branchLock.Unlock()

	link := newNode("self", TypeLink)
	link.stat.Mode = fs.ModeSymlink | 0o777
	link.stat.Size = int64(len("self"))
	link.resource = &driver.Resource{Driver: &stringDriver{body: "self"}, Group: driver.GroupBuffer}

	loop.branchLock.Lock()
	addChild(loop, link, "self")
	loop.branchLock.Unlock()

	_, _, err := vfsys.traverse("/loop/self", vfsys.root, ResolveLinks, Caller{}, nil)
	require.Error(t, err)

	var verr *Error

	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindTooManyLinks, verr.Kind)
}
