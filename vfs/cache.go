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
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize is the number of recently closed leaf nodes the node
// cache keeps around for soft reuse.
const defaultCacheSize = 1024

// nodeCache is a bounded ring of recently closed nodes: evicting the
// previous occupant of a slot detaches and frees it, giving O(1) amortized
// reuse of recently loaded metadata. Pinned nodes (mounts, root, anything
// with ref_count > 0) are never offered.
//
// golang-lru's Cache already implements the fixed-capacity-with-eviction
// ring this component needs; onEvict plugs the detach-and-free behavior
// into its eviction callback.
type nodeCache struct {
	lru *lru.Cache[*Node, struct{}]
}

func newNodeCache(size int, onEvict func(n *Node)) *nodeCache {
	if size <= 0 {
		size = defaultCacheSize
	}

	c, _ := lru.NewWithEvict[*Node, struct{}](size, func(n *Node, _ struct{}) {
		if onEvict != nil {
			onEvict(n)
		}
	})

	return &nodeCache{lru: c}
}

// offer makes a closed leaf node eligible for eviction. Callers must have
// already verified the node is unpinned (ref_count == 0, not root, not a
// mount).
func (nc *nodeCache) offer(n *Node) {
	nc.lru.Add(n, struct{}{})
}

// evict drops n's slot, if any, used when a cached-but-still-attached node
// is found again by the resolver. The underlying LRU invokes the same
// eviction callback as capacity-driven eviction, but by this point the
// caller has already taken a fresh reference, so the callback's own
// ref_count check turns it into a no-op.
func (nc *nodeCache) evict(n *Node) {
	nc.lru.Remove(n)
}

func (nc *nodeCache) len() int {
	return nc.lru.Len()
}
