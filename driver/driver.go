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

// Package driver defines the contract between the VFS core and the backing
// filesystems it mounts. The VFS never implements storage itself: every
// mount point is bound to a Resource, and every Resource is served by a
// Driver picked from a Group by node type.
package driver

import (
	"fmt"
	"io/fs"
)

// Group tags a family of drivers that share a backing technology. The VFS
// uses the group to pick file-vs-directory-vs-device handlers for a newly
// materialized node without knowing anything about the backing technology.
type Group int

const (
	GroupNone Group = iota
	GroupDev
	GroupFSFile
	GroupFSDir
	GroupFSLink
	GroupBuffer
)

func (g Group) String() string {
	switch g {
	case GroupDev:
		return "dev"
	case GroupFSFile:
		return "fs-file"
	case GroupFSDir:
		return "fs-dir"
	case GroupFSLink:
		return "fs-link"
	case GroupBuffer:
		return "buffer"
	default:
		return "none"
	}
}

// Stat is the cached metadata the VFS keeps on every node. It mirrors
// io/fs.FileMode semantics for the type bits packed into Mode.
type Stat struct {
	Mode  fs.FileMode
	Size  int64
	Uid   int
	Gid   int
	Nlink int
}

// Handle is the subset of an open file descriptor a driver needs to service
// Read, Write, Seek and Close. The VFS owns the Handle; drivers must not
// retain it beyond the call.
type Handle interface {
	Offset() int64
	SetOffset(int64)
	Resource() *Resource
}

// Driver is implemented by a backing filesystem. The VFS calls Stat and
// Locate during traversal, Create/Remove/Rename during namespace
// operations, and Read/Write/Seek/Close through open handles. Every method
// takes the path relative to the nearest enclosing mount.
type Driver interface {
	// Stat fills out for pathFromMount, or for the mount root if
	// pathFromMount is empty. Returns fs.ErrNotExist if absent.
	Stat(res *Resource, pathFromMount string, out *Stat) error

	// Locate resolves pathFromMount to a driver-private argument, cached by
	// the VFS as part of a node's Resource binding.
	Locate(res *Resource, pathFromMount string) (any, error)

	Create(res *Resource, pathFromMount string, mode fs.FileMode, typ fs.FileMode) error
	Remove(res *Resource, pathFromMount string) error
	Rename(res *Resource, oldPath, newPath string) error

	Read(h Handle, buf []byte) (int, error)
	Write(h Handle, buf []byte) (int, error)
	Seek(h Handle, offset int64, whence int) (int64, error)
	Close(h Handle) error
}

// Resource is a reference-counted binding of a Driver instance to some
// backing-store argument (device number, base path, bucket name, ...). It
// is shared, weakly, between a node and every handle opened against it.
// Lifecycle (init/uninit/reference) is owned by the driver package that
// constructs the Resource, not by the VFS.
type Resource struct {
	Driver Driver
	Group  Group
	Arg    any

	refs int32
}

// Reference increments the resource's reference count and returns the
// resource, mirroring the kernel's reference_resource contract.
func (r *Resource) Reference() *Resource {
	if r == nil {
		return nil
	}

	r.refs++

	return r
}

// Release decrements the reference count. Callers that own the last
// reference are responsible for uninitializing the resource; Release only
// reports whether this was the last one.
func (r *Resource) Release() bool {
	if r == nil {
		return true
	}

	r.refs--

	return r.refs <= 0
}

// IndexFor infers the driver group to bind a newly materialized node of
// typeBits to. mountGroup, the group the enclosing mount's driver was
// registered under, is accepted but not consulted: the result depends on
// typeBits alone.
func IndexFor(mountGroup Group, typeBits fs.FileMode) Group {
	switch {
	case typeBits&fs.ModeDir != 0:
		return GroupFSDir
	case typeBits&fs.ModeSymlink != 0:
		return GroupFSLink
	case typeBits&fs.ModeDevice != 0 || typeBits&fs.ModeCharDevice != 0:
		return GroupDev
	default:
		return GroupFSFile
	}
}

// ErrUnsupported is returned by drivers that implement only part of the
// contract (e.g. a read-only backing store rejecting Create).
type ErrUnsupported struct {
	Op string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("driver: %s not supported", e.Op)
}
