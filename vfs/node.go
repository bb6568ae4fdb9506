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
	"sync"
	"sync/atomic"

	"github.com/arctan-os/kfs-vfs/driver"
)

// Type is the kind of object a Node represents in the name graph.
type Type int

const (
	TypeNull Type = iota
	TypeFile
	TypeDir
	TypeMount
	TypeRoot
	TypeLink
	TypeBuffer
	TypeFIFO
	TypeDev
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeMount:
		return "mount"
	case TypeRoot:
		return "root"
	case TypeLink:
		return "link"
	case TypeBuffer:
		return "buffer"
	case TypeFIFO:
		return "fifo"
	case TypeDev:
		return "dev"
	default:
		return "null"
	}
}

// Node is one vertex of the VFS name graph. Only parent/children/next/prev
// own structure; mount and link are weak cross-references maintained
// alongside explicit refcount contributions.
//
// branchLock serializes structural mutation of this node's children list
// (and of the name/next/prev/parent fields of this node as a child of its
// parent). propertyLock serializes mutation of typ/stat/resource/link. The
// lock hierarchy requires branchLock of a parent before any child's, and
// allows propertyLock to be taken while holding this node's own branchLock,
// but never another node's propertyLock.
type Node struct {
	name     string
	typ      Type
	stat     driver.Stat
	resource *driver.Resource
	mount    *Node // weak: nearest enclosing Mount node, or nil
	link     *Node // weak: resolved symlink target, pins one refcount

	parent   *Node
	children *Node // head of the sibling list
	next     *Node
	prev     *Node

	refCount int64

	branchLock   sync.Mutex
	propertyLock sync.Mutex
}

// newNode allocates a detached node. Callers must attach it with addChild()
// before it is reachable from any traversal.
func newNode(name string, typ Type) *Node {
	return &Node{name: name, typ: typ}
}

// newRoot allocates the pinned root node of a fresh VFS context.
func newRoot() *Node {
	n := newNode("", TypeRoot)
	n.stat.Mode = 0o755
	n.refCount = 1 // root's ref_count never reaches zero.

	return n
}

// incRef increments the node's borrow count.
func (n *Node) incRef() {
	atomic.AddInt64(&n.refCount, 1)
}

// decRef decrements the node's borrow count and returns the value after
// decrementing.
func (n *Node) decRef() int64 {
	return atomic.AddInt64(&n.refCount, -1)
}

// refs reads the current borrow count.
func (n *Node) refs() int64 {
	return atomic.LoadInt64(&n.refCount)
}

// isDir reports whether the node may hold children.
func (n *Node) isDir() bool {
	return n.typ == TypeDir || n.typ == TypeRoot || n.typ == TypeMount
}

// enclosingMount returns the nearest ancestor of Type Mount, honoring the
// cached mount pointer rather than walking parents.
func (n *Node) enclosingMount() *Node {
	return n.mount
}

// mountPathDriver returns the resource whose driver should service paths
// below n, and ok=false if n has no enclosing mount (KindNoMount territory).
func (n *Node) mountPathDriver() (*driver.Resource, bool) {
	m := n.enclosingMount()
	if m == nil {
		return nil, false
	}

	return m.resource, true
}

// release tears down a node's own state once it has been detached from
// the graph: drops the resource binding, decrements the pin a Link holds
// on its target, and clears the name and body. It does not touch
// siblings; callers detach first.
func (n *Node) release() {
	if n.typ == TypeLink && n.link != nil {
		n.link.decRef()
		n.link = nil
	}

	if n.resource != nil {
		n.resource.Release()
		n.resource = nil
	}

	n.name = ""
	n.children = nil
}

// destroyable reports whether remove_node may reclaim n: no live
// borrowers and, for a directory, no children.
func (n *Node) destroyable() bool {
	if n.refs() > 0 {
		return false
	}

	if n.typ == TypeDir && n.children != nil {
		return false
	}

	return true
}
