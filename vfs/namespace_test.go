package vfs_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"

	"github.com/arctan-os/kfs-vfs/driver/memdriver"
	"github.com/arctan-os/kfs-vfs/vfs"
)

func newMountedVFS(t *testing.T) (*vfs.VFS, vfs.Caller) {
	t.Helper()

	mem := memdriver.New()
	ctx := vfs.New()
	caller := vfs.Caller{Uid: 0, Gid: 0}

	require.NoError(t, ctx.Mount("/", mem.Resource(), caller))

	return ctx, caller
}

func TestCreateStatRoundTrip(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/etc", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))
	require.NoError(t, ctx.Create("/etc/hostname", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	st, err := ctx.Stat("/etc/hostname", caller)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), st.Mode.Perm())
}

func TestOpenWriteReadRoundTrip(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	f, err := ctx.Open("/greeting", os.O_WRONLY|os.O_CREATE, 0o644, caller)
	require.NoError(t, err)

	n, err := f.Write([]byte("hello kernel"))
	require.NoError(t, err)
	require.Equal(t, len("hello kernel"), n)
	require.NoError(t, f.Close())

	f, err = ctx.Open("/greeting", os.O_RDONLY, 0, caller)
	require.NoError(t, err)

	defer f.Close()

	buf := make([]byte, 64)
	n, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello kernel", string(buf[:n]))
}

func TestRemoveNonEmptyDirWithoutRecurseFails(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/d", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))
	require.NoError(t, ctx.Create("/d/f", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	err := ctx.Remove("/d", false, caller)
	require.Error(t, err)

	err = ctx.Remove("/d", true, caller)
	require.NoError(t, err)

	_, err = ctx.Stat("/d", caller)
	require.Error(t, err)
}

func TestRemoveMissingPathIsNotFound(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	err := ctx.Remove("/nope", false, caller)
	require.Error(t, err)
}

func TestLinkCreatesResolvableSymlink(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/dir", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))
	require.NoError(t, ctx.Create("/dir/real", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))
	require.NoError(t, ctx.Link("/dir/real", "/dir/alias", 0o777, caller))

	st, err := ctx.Stat("/dir/alias", caller)
	require.NoError(t, err)
	require.False(t, st.Mode&os.ModeSymlink != 0, "stat should resolve through the link to the target's own mode")
}

func TestRenameMovesNode(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/src", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))
	require.NoError(t, ctx.Create("/src/f", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))
	require.NoError(t, ctx.Create("/dst", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))

	require.NoError(t, ctx.Rename("/src/f", "/dst/f", caller))

	_, err := ctx.Stat("/src/f", caller)
	require.Error(t, err)

	_, err = ctx.Stat("/dst/f", caller)
	require.NoError(t, err)
}

func TestRenameToExistingNameFails(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/a", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))
	require.NoError(t, ctx.Create("/b", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	err := ctx.Rename("/a", "/b", caller)
	require.Error(t, err)
}

func TestListReturnsSortedEntries(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/zz", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))
	require.NoError(t, ctx.Create("/aa", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	entries, err := ctx.List("/", 1, caller)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)
	require.Equal(t, "aa", entries[0].Name)
}

// TestConcurrentCreateDedupesMaterialization fires many goroutines at the
// same missing O_CREAT path and checks that exactly one of them actually
// materializes the node: the rest observe it as a sibling created by
// branchLock's mutual exclusion inside traverseHops, not as a second child
// of the same name.
func TestConcurrentCreateDedupesMaterialization(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	const goroutines = 32

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)

	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()

			// fastrand.Uint32n is safe for concurrent use; the jitter just
			// scrambles arrival order at the parent's branchLock.
			jitter := fastrand.Uint32n(200)
			time.Sleep(time.Duration(jitter) * time.Microsecond)

			f, err := ctx.Open("/contended", os.O_RDWR|os.O_CREATE, 0o644, caller)
			if err != nil {
				return
			}

			defer f.Close()

			mu.Lock()
			opened++
			mu.Unlock()
		}()
	}

	wg.Wait()

	require.Equal(t, goroutines, opened, "every concurrent O_CREAT should succeed against the same materialized node")

	entries, err := ctx.List("/", 1, caller)
	require.NoError(t, err)

	count := 0
	for _, e := range entries {
		if e.Name == "contended" {
			count++
		}
	}

	require.Equal(t, 1, count, "exactly one child named contended must exist, no duplicate materialization")
}

func TestMountUnmountRoundTrip(t *testing.T) {
	ctx, caller := newMountedVFS(t)

	require.NoError(t, ctx.Create("/scratch", &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller))
	require.NoError(t, ctx.Create("/scratch/keepme", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	inner := memdriver.New()
	require.NoError(t, ctx.Mount("/scratch", inner.Resource(), caller))

	_, err := ctx.Stat("/scratch/keepme", caller)
	require.Error(t, err, "keepme belongs to the pre-mount snapshot, invisible while mounted")

	require.NoError(t, ctx.Create("/scratch/onmount", &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller))

	require.NoError(t, ctx.Unmount("/scratch", caller))

	_, err = ctx.Stat("/scratch/keepme", caller)
	require.NoError(t, err, "unmount restores the pre-mount directory")

	_, err = ctx.Stat("/scratch/onmount", caller)
	require.Error(t, err, "the inner mount's own contents are gone once unmounted")
}
