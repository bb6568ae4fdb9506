package vfs_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kfs-vfs/driver/memdriver"
	"github.com/arctan-os/kfs-vfs/vfs"
)

func TestSeekSetCurrentEnd(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	f, err := ctx.Open("/f", os.O_WRONLY|os.O_CREATE, 0o644, caller)
	require.NoError(t, err)

	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = ctx.Open("/f", os.O_RDONLY, 0, caller)
	require.NoError(t, err)

	defer f.Close()

	pos, err := f.Seek(3, io.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 3, pos)

	pos, err = f.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	require.EqualValues(t, 5, pos)

	pos, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.EqualValues(t, 10, pos)

	buf := make([]byte, 4)
	f.Seek(3, io.SeekStart)

	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "3456", string(buf[:n]))
}

func TestOpenAppendStartsAtEnd(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	f, err := ctx.Open("/f", os.O_WRONLY|os.O_CREATE, 0o644, caller)
	require.NoError(t, err)

	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = ctx.Open("/f", os.O_WRONLY|os.O_APPEND, 0, caller)
	require.NoError(t, err)

	defer f.Close()

	require.EqualValues(t, 3, f.Offset())

	_, err = f.Write([]byte("def"))
	require.NoError(t, err)

	f2, err := ctx.Open("/f", os.O_RDONLY, 0, caller)
	require.NoError(t, err)

	defer f2.Close()

	buf := make([]byte, 16)
	n, err := f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(buf[:n]))
}

func TestOpenDirectoryForWriteFails(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/d", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))

	_, err := ctx.Open("/d", os.O_WRONLY, 0, caller)
	require.Error(t, err)
}

func TestOpenMissingWithoutCreateFails(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	_, err := ctx.Open("/nope", os.O_RDONLY, 0, caller)
	require.Error(t, err)
}

func TestCloseReleasesNodeToCache(t *testing.T) {
	mem := memdriver.New()
	ctx := vfs.New(vfs.WithCacheSize(4))
	caller := vfs.Caller{Uid: 0, Gid: 0}

	require.NoError(t, ctx.Mount("/", mem.Resource(), caller))
	require.NoError(t, ctx.Create("/f", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	f, err := ctx.Open("/f", os.O_RDONLY, 0, caller)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// The node is still reachable by name; Close only makes it eligible
	// for eviction, it does not detach it immediately.
	st, err := ctx.Stat("/f", caller)
	require.NoError(t, err)
	require.False(t, st.Mode.IsDir())
}
