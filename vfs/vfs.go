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

// Package vfs implements the in-kernel virtual file system: a node graph
// that unifies file objects drawn from one or more mounted backing
// resources behind a single namespace, with lazy materialization,
// reference-counted lifetime, and lock-coupled path traversal.
//
// The graph, resolver, handle layer and namespace operations are the
// engineering this package exists to provide; backing filesystem drivers,
// resource lifecycle, and synchronization primitives beyond the package's
// own node locks are external collaborators reached through the driver
// package.
package vfs

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// VFS is a single, independently instantiable VFS context: its own root
// node and node cache. Global mutable state (the root, the cache) lives
// here rather than at package scope so tests can construct independent
// contexts side by side.
type VFS struct {
	root  *Node
	cache *nodeCache
	log   *logrus.Logger

	// mountsMu serializes mount/unmount against each other; it is not on
	// the branchLock/propertyLock hierarchy and is never held across a
	// traversal. mounts maps a live Mount node to the pre-mount directory
	// snapshot Unmount restores.
	mountsMu sync.Mutex
	mounts   map[*Node]*Node
}

func (vfsys *VFS) setMountSnapshot(n, snapshot *Node) {
	if vfsys.mounts == nil {
		vfsys.mounts = make(map[*Node]*Node)
	}

	vfsys.mounts[n] = snapshot
}

func (vfsys *VFS) getMountSnapshot(n *Node) (*Node, bool) {
	s, ok := vfsys.mounts[n]

	return s, ok
}

func (vfsys *VFS) deleteMountSnapshot(n *Node) {
	delete(vfsys.mounts, n)
}

// Option configures a VFS at construction time.
type Option func(*VFS)

// WithCacheSize overrides the node cache's slot count.
func WithCacheSize(n int) Option {
	return func(v *VFS) {
		v.cache = newNodeCache(n, v.evictCachedNode)
	}
}

// WithLogger overrides the logrus logger used for mount/unmount events and
// for debug tracing of open, symlink creation and symlink resolution.
func WithLogger(l *logrus.Logger) Option {
	return func(v *VFS) {
		v.log = l
	}
}

// New initializes a fresh VFS context with a pinned root directory,
// matching the kernel's init_vfs entry point.
func New(opts ...Option) *VFS {
	v := &VFS{
		root: newRoot(),
		log:  logrus.StandardLogger(),
	}

	v.cache = newNodeCache(defaultCacheSize, v.evictCachedNode)

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Root returns the VFS's root node. Exposed for callers (tests, drivers)
// that need the root node itself; the public operations are path-based and
// always start from the root.
func (vfsys *VFS) Root() *Node {
	return vfsys.root
}

// evictCachedNode is the node cache's eviction callback: detach and free.
// It re-checks ref_count because a node can be borrowed again (and so
// un-evictable) between being offered and being evicted.
func (vfsys *VFS) evictCachedNode(n *Node) {
	if n.refs() > 0 {
		return
	}

	parent := n.parent
	parent.branchLock.Lock()
	detach(n)
	parent.branchLock.Unlock()

	n.release()
}
