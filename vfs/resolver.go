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
	"github.com/sirupsen/logrus"
)

// slCountMax bounds symlink-resolution hops before traverse reports
// KindTooManyLinks, matching the kernel's cycle-detection budget.
const slCountMax = 40

// TraverseFlags is the resolver's bitfield input.
type TraverseFlags int

const (
	// ResolveLinks makes traverse follow a terminal symlink transparently
	// to its target, instead of returning the link node itself.
	ResolveLinks TraverseFlags = 1 << iota

	// IgnoreLastComponent stops the walk one component short, returning
	// the parent of the named path and leaving the last component in the
	// leftover suffix. Rename uses this to reach the destination's parent
	// directory.
	IgnoreLastComponent
)

// MaterializeFunc is invoked by traverse when a path component is not
// present as a child in the graph. It runs with the current node's
// branchLock held, so a materialized child becomes visible to the calling
// traversal (and any other traversal that acquires the same lock)
// atomically. It returns the new child, or an error if the component
// genuinely does not exist or cannot be created.
type MaterializeFunc func(vfsys *VFS, parent *Node, component string, remaining string) (*Node, error)

// traverse walks path against the graph starting at start, consulting
// materialize for any component missing from the children list, resolving
// a terminal symlink when ResolveLinks is set, and checking requested
// lookup permission on every node entered along the way. It returns an
// owning reference to the terminal node (ref_count incremented by 1 across
// the return) and the leftover, unresolved suffix of path. When a
// component cannot be resolved, end is nil and leftover holds the tail of
// path starting at that component.
func (vfsys *VFS) traverse(
	path string,
	start *Node,
	flags TraverseFlags,
	caller Caller,
	materialize MaterializeFunc,
) (end *Node, leftover string, err error) {
	return vfsys.traverseHops(path, start, flags, caller, materialize, 0)
}

func (vfsys *VFS) traverseHops(
	path string,
	start *Node,
	flags TraverseFlags,
	caller Caller,
	materialize MaterializeFunc,
	hops int,
) (end *Node, leftover string, err error) {
	node := start
	node.incRef()

	components := splitComponents(path)

	for i, comp := range components {
		isLast := i == len(components)-1

		if flags&IgnoreLastComponent != 0 && isLast {
			return node, "/" + comp, nil
		}

		switch comp {
		case ".":
			continue
		case "..":
			if node.parent != nil {
				prev := node
				node = node.parent
				node.incRef()
				prev.decRef()
			}

			continue
		}

		if !node.isDir() {
			node.decRef()

			return nil, "/" + joinTail(components[i:]), newErr("traverse", path, KindNotFound, errNotADir)
		}

		node.branchLock.Lock()

		next := findChild(node, comp)

		var materializeErr error

		if next == nil && materialize != nil {
			remaining := "/" + joinTail(components[i:])
			next, materializeErr = materialize(vfsys, node, comp, remaining)
		}

		node.branchLock.Unlock()

		if next == nil {
			node.decRef()

			if materializeErr != nil {
				return nil, "/" + joinTail(components[i:]), materializeErr
			}

			return nil, "/" + joinTail(components[i:]), newErr("traverse", path, KindNotFound, errNotFound)
		}

		next.propertyLock.Lock()
		permErr := checkPerms(&next.stat, PermLookup, caller)
		next.propertyLock.Unlock()

		if permErr != nil {
			node.decRef()

			return nil, "/" + joinTail(components[i:]), newErr("traverse", path, KindPermissionDenied, permErr)
		}

		next.incRef()
		vfsys.cache.evict(next) // reclaim from the close cache if it was sitting there.
		node.decRef()
		node = next
	}

	if flags&ResolveLinks == 0 || node.typ != TypeLink {
		return node, "", nil
	}

	return vfsys.resolveLink(path, node, caller, materialize, hops)
}

// resolveLink follows node (a TypeLink) to its target, transparently and
// bounded by slCountMax hops. It is split from traverse because a link's
// body names a fresh path that must be walked from the link's parent, not
// appended to the path already consumed.
func (vfsys *VFS) resolveLink(origPath string, node *Node, caller Caller, materialize MaterializeFunc, hops int) (*Node, string, error) {
	node.propertyLock.Lock()
	resolved := node.link
	node.propertyLock.Unlock()

	if resolved != nil {
		resolved.incRef()
		node.decRef()

		return resolved, "", nil
	}

	if hops >= slCountMax {
		node.decRef()

		return nil, "", newErr("traverse", origPath, KindTooManyLinks, errTooManyLinks)
	}

	linkBody, rerr := vfsys.readLinkBody(node)
	if rerr != nil {
		node.decRef()

		return nil, "", rerr
	}

	parent := node.parent
	parent.incRef()

	target, _, terr := vfsys.traverseHops(linkBody, parent, ResolveLinks, caller, materialize, hops+1)
	parent.decRef()

	if terr != nil {
		node.decRef()

		return nil, "", terr
	}

	node.propertyLock.Lock()
	node.link = target
	node.propertyLock.Unlock()
	target.incRef() // a resolved link pins one refcount on its target.

	vfsys.log.WithFields(logrus.Fields{"link": node.name, "target": target.name}).Debug("vfs: resolved symlink")

	node.decRef()

	return target, "", nil
}

func joinTail(parts []string) string {
	out := ""

	for i, p := range parts {
		if i > 0 {
			out += "/"
		}

		out += p
	}

	return out
}
