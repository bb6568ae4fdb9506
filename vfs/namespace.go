//
//  Copyright 2020 The AVFS authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//  	http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package vfs

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"

	"github.com/arctan-os/kfs-vfs/driver"
)

// Mount transmutes the existing directory at mountpoint into a Mount node
// bound to resource. The directory's current children are moved onto a
// snapshot kept for Unmount; the mount node keeps its place in the tree
// (same parent, same name) so the mountpoint path is unaffected.
func (vfsys *VFS) Mount(mountpoint string, resource *driver.Resource, caller Caller) error {
	vfsys.mountsMu.Lock()
	defer vfsys.mountsMu.Unlock()

	node, leftover, err := vfsys.traverse(mountpoint, vfsys.root, 0, caller, vfsys.loadMaterializer())
	if err != nil {
		return err
	}

	defer node.decRef()

	if leftover != "" {
		return newErr("mount", mountpoint, KindNotFound, nil)
	}

	if node.typ != TypeDir && node.typ != TypeRoot {
		return newErr("mount", mountpoint, KindInvalidArgument, nil)
	}

	node.branchLock.Lock()
	defer node.branchLock.Unlock()

	node.propertyLock.Lock()
	defer node.propertyLock.Unlock()

	snapshot := duplicate(node)
	snapshot.children = node.children

	for c := snapshot.children; c != nil; c = c.next {
		c.parent = snapshot
	}

	vfsys.setMountSnapshot(node, snapshot)

	node.children = nil
	node.typ = TypeMount
	node.resource = resource
	node.mount = node
	node.incRef() // pinned while the mount is live.

	vfsys.log.WithField("path", mountpoint).Info("vfs: mounted resource")

	return nil
}

// Unmount reverses Mount: it requires the mountpoint to name a live,
// unbusy Mount node, releases the mount's resource, and restores the
// pre-mount directory snapshot in place.
func (vfsys *VFS) Unmount(mountpoint string, caller Caller) error {
	vfsys.mountsMu.Lock()
	defer vfsys.mountsMu.Unlock()

	node, leftover, err := vfsys.traverse(mountpoint, vfsys.root, 0, caller, vfsys.loadMaterializer())
	if err != nil {
		return err
	}

	defer node.decRef()

	if leftover != "" || node.typ != TypeMount {
		return newErr("unmount", mountpoint, KindInvalidArgument, nil)
	}

	// refs() == 2 is the baseline here: 1 for the mount pin set by Mount,
	// 1 for this call's own resolving traverse (released by the deferred
	// decRef above). Anything beyond that is another live borrower.
	if node.refs() > 2 {
		return newErr("unmount", mountpoint, KindBusy, nil)
	}

	snapshot, ok := vfsys.getMountSnapshot(node)
	if !ok {
		return newErr("unmount", mountpoint, KindInvalidArgument, nil)
	}

	node.branchLock.Lock()
	defer node.branchLock.Unlock()

	node.propertyLock.Lock()
	defer node.propertyLock.Unlock()

	if node.resource != nil {
		node.resource.Release()
	}

	node.typ = snapshot.typ
	node.resource = snapshot.resource
	node.stat = snapshot.stat
	node.children = snapshot.children

	if node.parent != nil {
		node.mount = node.parent.mount
	} else {
		node.mount = nil
	}

	for c := node.children; c != nil; c = c.next {
		c.parent = node
		c.mount = node.mount
	}

	vfsys.deleteMountSnapshot(node)
	node.decRef() // release the mount pin; destroyable() governs the rest.

	vfsys.log.WithField("path", mountpoint).Info("vfs: unmounted resource")

	return nil
}

// Stat resolves path, following symlinks transparently, and returns the
// terminal node's cached metadata. Stat follows symlinks to the target
// rather than reporting the link's own metadata (see DESIGN.md).
func (vfsys *VFS) Stat(path string, caller Caller) (driver.Stat, error) {
	node, leftover, err := vfsys.traverse(path, vfsys.root, ResolveLinks, caller, vfsys.loadMaterializer())
	if err != nil {
		return driver.Stat{}, err
	}

	defer node.decRef()

	if leftover != "" {
		return driver.Stat{}, newErr("stat", path, KindNotFound, nil)
	}

	node.propertyLock.Lock()
	defer node.propertyLock.Unlock()

	if res, ok := node.mountPathDriver(); ok && node.resource != nil {
		pathFromMount := ""
		if node.typ != TypeMount {
			pathFromMount = pathGetAbs(node, node.enclosingMount())
		}

		_ = res.Driver.Stat(res, pathFromMount, &node.stat)
	}

	return node.stat, nil
}

// Create materializes path according to info, creating on the backing
// filesystem when the mount's driver supports it.
func (vfsys *VFS) Create(path string, info *CreateInfo, caller Caller) error {
	node, leftover, err := vfsys.traverse(path, vfsys.root, 0, caller, vfsys.createMaterializer(info))
	if err != nil {
		return err
	}

	defer node.decRef()

	if leftover != "" {
		return newErr("create", path, KindNotFound, nil)
	}

	return nil
}

// Remove deletes the node at path. A non-recursive Remove on a non-empty
// directory fails with KindNotEmpty. The recursive form walks children
// post-order, refusing (KindBusy) if any reached node is still referenced.
func (vfsys *VFS) Remove(path string, recurse bool, caller Caller) error {
	node, leftover, err := vfsys.traverse(path, vfsys.root, 0, caller, vfsys.loadMaterializer())
	if err != nil {
		return err
	}

	if leftover != "" {
		node.decRef()

		return newErr("remove", path, KindNotFound, nil)
	}

	node.decRef() // the resolver's borrow; removeNode re-checks ref_count itself.

	if node.typ == TypeDir && node.children != nil && !recurse {
		return newErr("remove", path, KindNotEmpty, nil)
	}

	if recurse {
		return vfsys.removeRecursive(node)
	}

	return vfsys.removeNode(node)
}

// removeNode reclaims a node once its ref_count is zero and, for a
// directory, its children are empty. On success it calls the driver's
// Remove and detaches the node from the graph.
func (vfsys *VFS) removeNode(node *Node) error {
	parent := node.parent
	if parent == nil {
		return newErr("remove", node.name, KindInvalidArgument, nil)
	}

	parent.branchLock.Lock()
	defer parent.branchLock.Unlock()

	if !node.destroyable() {
		return newErr("remove", node.name, KindBusy, nil)
	}

	if res, ok := node.mountPathDriver(); ok && node.resource != nil {
		p := pathGetAbs(node, node.enclosingMount())
		if err := res.Driver.Remove(res, p); err != nil {
			return newErr("remove", node.name, KindDriverError, err)
		}
	}

	detach(node)
	node.release()

	return nil
}

func (vfsys *VFS) removeRecursive(node *Node) error {
	node.branchLock.Lock()
	children := make([]*Node, 0)

	for c := node.children; c != nil; c = c.next {
		children = append(children, c)
	}

	node.branchLock.Unlock()

	for _, c := range children {
		if err := vfsys.removeRecursive(c); err != nil {
			return err
		}
	}

	return vfsys.removeNode(node)
}

// Link creates linkpath as a symbolic link to target: it resolves target,
// materializes linkpath as a Link node, writes the relative path between
// them as the link's body, and pins one refcount on target for as long as
// the link exists.
func (vfsys *VFS) Link(target, linkpath string, mode os.FileMode, caller Caller) error {
	targetNode, leftover, err := vfsys.traverse(target, vfsys.root, ResolveLinks, caller, vfsys.loadMaterializer())
	if err != nil {
		return err
	}

	if leftover != "" {
		targetNode.decRef()

		return newErr("link", target, KindNotFound, nil)
	}

	info := &CreateInfo{Mode: mode | os.ModeSymlink, Type: TypeLink}

	linkNode, leftover, err := vfsys.traverse(linkpath, vfsys.root, 0, caller, vfsys.createMaterializer(info))
	if err != nil {
		targetNode.decRef()

		return err
	}

	defer linkNode.decRef()

	if leftover != "" {
		targetNode.decRef()

		return newErr("link", linkpath, KindNotFound, nil)
	}

	relPath := pathGetRel(linkNode, targetNode)

	if linkNode.resource != nil {
		f := &File{node: linkNode, vfsys: vfsys, resource: linkNode.resource.Reference()}
		_, werr := f.resource.Driver.Write(f, []byte(relPath))
		f.resource.Release()

		if werr != nil {
			targetNode.decRef()

			return newErr("link", linkpath, KindDriverError, werr)
		}
	}

	linkNode.propertyLock.Lock()
	linkNode.link = targetNode
	linkNode.stat.Size = int64(len(relPath))
	linkNode.propertyLock.Unlock()
	// targetNode's resolver reference is intentionally not released: it is
	// now the refcount the Link holds on its target.

	vfsys.log.WithFields(map[string]any{"target": target, "link": linkpath}).Debug("vfs: created symlink")

	return nil
}

// Rename moves the node at from to to, reparenting it in the graph and
// calling the mount's driver Rename when both ends share a mount. Renaming
// across mounts is reported as KindCrossDevice and leaves the graph
// unchanged; physical copy across mounts is not implemented.
func (vfsys *VFS) Rename(from, to string, caller Caller) error {
	fromNode, leftover, err := vfsys.traverse(from, vfsys.root, 0, caller, vfsys.loadMaterializer())
	if err != nil {
		return err
	}

	if leftover != "" {
		fromNode.decRef()

		return newErr("rename", from, KindNotFound, nil)
	}

	toParent, toLeftover, err := vfsys.traverse(to, vfsys.root, IgnoreLastComponent, caller, vfsys.createMaterializer(&CreateInfo{Type: TypeDir, Mode: 0o755}))
	if err != nil {
		fromNode.decRef()

		return err
	}

	defer toParent.decRef()

	leaf := splitComponents(toLeftover)
	if len(leaf) != 1 {
		fromNode.decRef()

		return newErr("rename", to, KindInvalidArgument, nil)
	}

	newName := leaf[0]

	oldParent := fromNode.parent
	if oldParent == nil {
		fromNode.decRef()

		return newErr("rename", from, KindInvalidArgument, nil)
	}

	first, second := lockOrder(oldParent, toParent)
	first.branchLock.Lock()

	if second != first {
		second.branchLock.Lock()
	}

	if findChild(toParent, newName) != nil {
		if second != first {
			second.branchLock.Unlock()
		}

		first.branchLock.Unlock()
		fromNode.decRef()

		return newErr("rename", to, KindAlreadyExists, nil)
	}

	fromMount := fromNode.enclosingMount()
	toMount := toParent.enclosingMount()

	if fromMount != toMount && fromMount != nil && toMount != nil {
		if second != first {
			second.branchLock.Unlock()
		}

		first.branchLock.Unlock()
		fromNode.decRef()

		return newErr("rename", to, KindCrossDevice, nil)
	}

	// oldPath must be captured against fromNode's location before detach
	// re-parents it; computing it afterward would read the new location and
	// the driver would rename the new key onto itself.
	oldPath := pathGetAbs(fromNode, fromMount)

	detach(fromNode)
	addChild(toParent, fromNode, newName)

	newPath := pathGetAbs(fromNode, toMount)

	if second != first {
		second.branchLock.Unlock()
	}

	first.branchLock.Unlock()

	fromNode.decRef()

	if fromMount != toMount {
		return nil // one side is unmounted: a pure in-memory move.
	}

	if fromMount == nil {
		return nil
	}

	res := fromMount.resource

	if err := res.Driver.Rename(res, oldPath, newPath); err != nil {
		return newErr("rename", to, KindDriverError, err)
	}

	return nil
}

// lockOrder returns a and b (or b and a) ordered by address so rename
// always acquires two branch_locks in a single global order.
func lockOrder(a, b *Node) (*Node, *Node) {
	pa := reflect.ValueOf(a).Pointer()
	pb := reflect.ValueOf(b).Pointer()

	if pa <= pb {
		return a, b
	}

	return b, a
}

// ListEntry is one line of a List result.
type ListEntry struct {
	Name string
	Type Type
	Size int64
	Mode os.FileMode
}

// List resolves path and returns up to depth levels of its children,
// sorted by name. Symlink entries are listed with Type TypeLink; their
// targets are not resolved or reported.
func (vfsys *VFS) List(path string, depth int, caller Caller) ([]ListEntry, error) {
	node, leftover, err := vfsys.traverse(path, vfsys.root, 0, caller, vfsys.loadMaterializer())
	if err != nil {
		return nil, err
	}

	defer node.decRef()

	if leftover != "" {
		return nil, newErr("list", path, KindNotFound, nil)
	}

	return vfsys.listChildren(node, depth), nil
}

func (vfsys *VFS) listChildren(node *Node, depth int) []ListEntry {
	node.branchLock.Lock()

	names := make([]*Node, 0)
	for c := node.children; c != nil; c = c.next {
		names = append(names, c)
	}

	node.branchLock.Unlock()

	sort.Slice(names, func(i, j int) bool { return names[i].name < names[j].name })

	entries := make([]ListEntry, 0, len(names))

	for _, c := range names {
		entries = append(entries, ListEntry{Name: c.name, Type: c.typ, Size: c.stat.Size, Mode: c.stat.Mode})

		if depth > 1 && c.typ == TypeDir {
			entries = append(entries, vfsys.listChildren(c, depth-1)...)
		}
	}

	return entries
}

// Fprint writes a List result to w, one entry per line, in the style of
// the kernel's debug listing.
func Fprint(w io.Writer, entries []ListEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\n", e.Type, e.Name, e.Size)
	}
}

// CheckPerms is the public entry point for the permission predicate
// checkPerms (perm.go).
func CheckPerms(stat *driver.Stat, requested PermMode, caller Caller) error {
	return checkPerms(stat, requested, caller)
}
