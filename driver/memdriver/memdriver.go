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

// Package memdriver is a plain in-memory backing store implementing the
// driver.Driver contract: every path below its mount point lives as a byte
// slice in a flat map, guarded by one mutex. It is meant for mounting a
// scratch subtree, for symlink bodies, and for tests that would otherwise
// need a real disk or network backend.
package memdriver

import (
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/arctan-os/kfs-vfs/driver"
)

type entry struct {
	mode fs.FileMode
	data []byte
}

// FS is one mountable in-memory filesystem instance.
type FS struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty in-memory filesystem with just a root directory.
func New() *FS {
	return &FS{
		entries: map[string]*entry{
			"": {mode: fs.ModeDir | 0o755},
		},
	}
}

// Resource wraps fsys in a driver.Resource ready to pass to vfs.VFS.Mount.
func (fsys *FS) Resource() *driver.Resource {
	return &driver.Resource{Driver: fsys, Group: driver.GroupBuffer, Arg: ""}
}

func normalize(pathFromMount string) string {
	return strings.Trim(pathFromMount, "/")
}

func (fsys *FS) Stat(res *driver.Resource, pathFromMount string, out *driver.Stat) error {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	e, ok := fsys.entries[normalize(pathFromMount)]
	if !ok {
		return fs.ErrNotExist
	}

	out.Mode = e.mode
	out.Size = int64(len(e.data))
	out.Nlink = 1

	return nil
}

func (fsys *FS) Locate(res *driver.Resource, pathFromMount string) (any, error) {
	key := normalize(pathFromMount)

	fsys.mu.RLock()
	_, ok := fsys.entries[key]
	fsys.mu.RUnlock()

	if !ok {
		return nil, fs.ErrNotExist
	}

	return key, nil
}

func (fsys *FS) Create(res *driver.Resource, pathFromMount string, mode fs.FileMode, typ fs.FileMode) error {
	key := normalize(pathFromMount)

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if _, exists := fsys.entries[key]; exists {
		return fs.ErrExist
	}

	fsys.entries[key] = &entry{mode: mode.Perm() | typ}

	return nil
}

func (fsys *FS) Remove(res *driver.Resource, pathFromMount string) error {
	key := normalize(pathFromMount)

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if _, ok := fsys.entries[key]; !ok {
		return fs.ErrNotExist
	}

	delete(fsys.entries, key)

	return nil
}

func (fsys *FS) Rename(res *driver.Resource, oldPath, newPath string) error {
	oldKey := normalize(oldPath)
	newKey := normalize(newPath)

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	prefix := oldKey + "/"

	moved := make(map[string]*entry)

	for k, e := range fsys.entries {
		if k == oldKey {
			moved[newKey] = e

			continue
		}

		if strings.HasPrefix(k, prefix) {
			moved[newKey+"/"+strings.TrimPrefix(k, prefix)] = e

			continue
		}
	}

	if len(moved) == 0 {
		return fs.ErrNotExist
	}

	for k := range fsys.entries {
		if k == oldKey || strings.HasPrefix(k, prefix) {
			delete(fsys.entries, k)
		}
	}

	for k, e := range moved {
		fsys.entries[k] = e
	}

	return nil
}

func (fsys *FS) Read(h driver.Handle, buf []byte) (int, error) {
	_, e, err := fsys.lookup(h)
	if err != nil {
		return 0, err
	}

	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	start := h.Offset()
	if start >= int64(len(e.data)) {
		return 0, io.EOF
	}

	n := copy(buf, e.data[start:])

	return n, nil
}

func (fsys *FS) Write(h driver.Handle, buf []byte) (int, error) {
	key, e, err := fsys.lookup(h)
	if err != nil {
		return 0, err
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	start := h.Offset()
	need := start + int64(len(buf))

	if need > int64(len(e.data)) {
		grown := make([]byte, need)
		copy(grown, e.data)
		e.data = grown
	}

	copy(e.data[start:], buf)
	fsys.entries[key] = e

	return len(buf), nil
}

// Seek is unimplemented: the handle layer falls back to its own
// offset-clamping logic against the node's cached size when a driver
// returns a non-nil error here.
func (fsys *FS) Seek(h driver.Handle, offset int64, whence int) (int64, error) {
	return 0, &driver.ErrUnsupported{Op: "seek"}
}

func (fsys *FS) Close(h driver.Handle) error {
	return nil
}

func (fsys *FS) lookup(h driver.Handle) (string, *entry, error) {
	res := h.Resource()
	if res == nil {
		return "", nil, fs.ErrInvalid
	}

	key, _ := res.Arg.(string)

	fsys.mu.RLock()
	e, ok := fsys.entries[key]
	fsys.mu.RUnlock()

	if !ok {
		return "", nil, fs.ErrNotExist
	}

	return key, e, nil
}

// Paths returns every path currently stored, sorted, for debugging and
// tests.
func (fsys *FS) Paths() []string {
	fsys.mu.RLock()
	defer fsys.mu.RUnlock()

	out := make([]string, 0, len(fsys.entries))
	for k := range fsys.entries {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
