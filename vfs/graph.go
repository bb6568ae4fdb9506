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

import "strings"

// addChild links child under parent as the head of the sibling list, under
// parent's branchLock. The caller must already hold that lock (the
// resolver takes it once per component and materializes through it so
// publication is atomic to other traversers).
func addChild(parent, child *Node, name string) {
	child.name = name
	child.parent = parent
	child.mount = parent.mount
	if parent.typ == TypeMount {
		child.mount = parent
	}

	next := parent.children
	child.next = next
	child.prev = nil

	if next != nil {
		next.prev = child
	}

	parent.children = child
}

// findChild searches node's sibling list for a name match. Comparison is
// equal over max(len(name), len(sibling)) so that "ab" never matches a
// sibling whose name is "a".
func findChild(node *Node, name string) *Node {
	for c := node.children; c != nil; c = c.next {
		if sameComponent(name, c.name) {
			return c
		}
	}

	return nil
}

func sameComponent(a, b string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	return padTo(a, n) == padTo(b, n)
}

// padTo is the Go equivalent of strncmp's implicit NUL-padding: comparing
// up to n bytes of two strings that may be shorter than n never matches
// unless both strings are also equal in length.
func padTo(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}

	return s
}

// detach splices node out of its parent's sibling list. It does not touch
// node's own fields beyond clearing parent/next/prev, so a caller that
// wants to reuse node (e.g. rename) can immediately reattach it elsewhere.
// The caller must hold node.parent.branchLock.
func detach(node *Node) {
	parent := node.parent
	if parent == nil {
		return
	}

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		parent.children = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	}

	node.parent = nil
	node.next = nil
	node.prev = nil
}

// duplicate makes a shallow copy of node's identity and resource binding,
// without graph links. mount uses this to snapshot the pre-mount directory
// so unmount can restore it verbatim.
func duplicate(node *Node) *Node {
	dup := &Node{
		name:     node.name,
		typ:      node.typ,
		stat:     node.stat,
		resource: node.resource,
	}

	return dup
}

// pathGetAbs concatenates names from node up to root (or to the structural
// root if root is nil) with '/' separators.
func pathGetAbs(node, root *Node) string {
	var parts []string

	for n := node; n != nil && n != root; n = n.parent {
		if n.name != "" {
			parts = append(parts, n.name)
		}
	}

	if len(parts) == 0 {
		return "/"
	}

	reverse(parts)

	return "/" + strings.Join(parts, "/")
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// pathGetRel expresses the shortest path from `from` to `to` as a sequence
// of ".." ascents followed by the descent names into `to`. It is grounded
// on a common-ancestor walk since both nodes live in the same tree.
func pathGetRel(from, to *Node) string {
	fromAncestors := ancestorSet(from)

	descent := []string{}

	cur := to
	for cur != nil {
		if _, ok := fromAncestors[cur]; ok {
			break
		}

		if cur.name != "" {
			descent = append([]string{cur.name}, descent...)
		}

		cur = cur.parent
	}

	common := cur

	ascents := 0
	for n := from.parent; n != nil && n != common; n = n.parent {
		ascents++
	}

	parts := make([]string, 0, ascents+len(descent))
	for i := 0; i < ascents; i++ {
		parts = append(parts, "..")
	}

	parts = append(parts, descent...)

	if len(parts) == 0 {
		return "."
	}

	return strings.Join(parts, "/")
}

func ancestorSet(n *Node) map[*Node]struct{} {
	set := make(map[*Node]struct{})

	for cur := n; cur != nil; cur = cur.parent {
		set[cur] = struct{}{}
	}

	return set
}
