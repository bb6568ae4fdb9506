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
	"io/fs"

	"github.com/arctan-os/kfs-vfs/driver"
)

// CreateInfo carries the parameters of a create/mkdir/mknod call through
// to the create materialization callback, mirroring ARC_VFSNodeInfo.
// DriverGroup and DriverArg are carried but not consulted: the create
// materializer always infers the group from the stat's type bits and takes
// the driver argument from the driver's Locate.
type CreateInfo struct {
	Mode              fs.FileMode
	Type              Type
	DriverGroup       driver.Group
	DriverArg         any
	ResourceOverwrite *driver.Resource
}

// loadMaterializer builds the materializer used by read-only traversal
// (open without O_CREAT, stat, list, remove...): it stats the component
// against the nearest mount's driver and, if present, allocates and
// inserts a node for it. A component absent on the backing filesystem
// yields KindNotFound and no node.
func (vfsys *VFS) loadMaterializer() MaterializeFunc {
	return func(v *VFS, parent *Node, component, remaining string) (*Node, error) {
		res, ok := parent.mountPathDriver()
		if !ok {
			return nil, newErr("traverse", remaining, KindNoMount, nil)
		}

		pathFromMount := pathGetAbs(parent, parent.enclosingMount())
		if pathFromMount == "/" {
			pathFromMount = ""
		}

		childPath := pathFromMount + "/" + component

		var st driver.Stat

		if err := res.Driver.Stat(res, childPath, &st); err != nil {
			return nil, newErr("traverse", childPath, KindNotFound, err)
		}

		return vfsys.materializeFromStat(parent, component, res, childPath, st)
	}
}

// createMaterializer builds the materializer used by create/mkdir/link:
// same lookup-then-load as loadMaterializer, but on "absent" it calls the
// driver's Create before materializing the node. Intermediate (non-last)
// missing components become plain directories with no driver call unless
// they too are the final target of info.
func (vfsys *VFS) createMaterializer(info *CreateInfo) MaterializeFunc {
	return func(v *VFS, parent *Node, component, remaining string) (*Node, error) {
		isLast := len(splitComponents(remaining)) == 1

		res, hasMount := parent.mountPathDriver()

		pathFromMount := ""
		if hasMount {
			pathFromMount = pathGetAbs(parent, parent.enclosingMount())
			if pathFromMount == "/" {
				pathFromMount = ""
			}
		}

		childPath := pathFromMount + "/" + component

		if hasMount {
			var st driver.Stat
			if err := res.Driver.Stat(res, childPath, &st); err == nil {
				return vfsys.materializeFromStat(parent, component, res, childPath, st)
			}
		}

		if !isLast {
			return vfsys.materializeDir(parent, component, 0o755|fs.ModeDir)
		}

		mode := info.Mode
		typ := info.Type

		if info.ResourceOverwrite != nil {
			return vfsys.materializeNode(parent, component, typ, info.ResourceOverwrite, driver.Stat{Mode: mode})
		}

		if !hasMount {
			if typ == TypeDir {
				return vfsys.materializeDir(parent, component, mode)
			}

			return nil, newErr("create", childPath, KindNoMount, nil)
		}

		if err := res.Driver.Create(res, childPath, mode, typeBits(typ)); err != nil {
			return nil, newErr("create", childPath, KindDriverError, err)
		}

		var st driver.Stat
		if err := res.Driver.Stat(res, childPath, &st); err != nil {
			return nil, newErr("create", childPath, KindDriverError, err)
		}

		return vfsys.materializeFromStat(parent, component, res, childPath, st)
	}
}

// materializeFromStat allocates a node for a component that already exists
// on the backing filesystem, inferring its type and driver group from the
// stat's mode bits and the enclosing mount.
func (vfsys *VFS) materializeFromStat(parent *Node, component string, mountRes *driver.Resource, childPath string, st driver.Stat) (*Node, error) {
	typ := typeFromStatMode(st.Mode)
	group := driver.IndexFor(mountRes.Group, st.Mode)

	arg, err := mountRes.Driver.Locate(mountRes, childPath)
	if err != nil {
		arg = childPath
	}

	res := &driver.Resource{Driver: mountRes.Driver, Group: group, Arg: arg}

	return vfsys.materializeNode(parent, component, typ, res, st)
}

// materializeDir inserts a plain, resourceless directory node — used for
// intermediate path components and for in-memory (no-mount) directories.
func (vfsys *VFS) materializeDir(parent *Node, component string, mode fs.FileMode) (*Node, error) {
	return vfsys.materializeNode(parent, component, TypeDir, nil, driver.Stat{Mode: fs.ModeDir | mode.Perm()})
}

func (vfsys *VFS) materializeNode(parent *Node, component string, typ Type, res *driver.Resource, st driver.Stat) (*Node, error) {
	n := newNode(component, typ)
	n.stat = st
	n.resource = res

	addChild(parent, n, component)

	return n, nil
}

func typeFromStatMode(mode fs.FileMode) Type {
	switch {
	case mode&fs.ModeDir != 0:
		return TypeDir
	case mode&fs.ModeSymlink != 0:
		return TypeLink
	case mode&fs.ModeDevice != 0 || mode&fs.ModeCharDevice != 0:
		return TypeDev
	case mode&fs.ModeNamedPipe != 0:
		return TypeFIFO
	default:
		return TypeFile
	}
}

func typeBits(t Type) fs.FileMode {
	switch t {
	case TypeDir:
		return fs.ModeDir
	case TypeLink:
		return fs.ModeSymlink
	case TypeDev:
		return fs.ModeDevice
	case TypeFIFO:
		return fs.ModeNamedPipe
	default:
		return 0
	}
}
