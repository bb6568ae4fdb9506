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

import "github.com/arctan-os/kfs-vfs/driver"

// PermMode is a conventional rwx request/grant bitmask.
type PermMode int

const (
	PermExec PermMode = 1 << iota
	PermWrite
	PermRead
)

// PermLookup is the permission required to traverse through a directory.
const PermLookup = PermExec

// Caller identifies the uid/gid of the entity performing a VFS operation.
// uid 0 is always granted (checkPerms' uid=0 override).
type Caller struct {
	Uid int
	Gid int
}

// IsRoot reports whether the caller should bypass permission checks.
func (c Caller) IsRoot() bool {
	return c.Uid == 0
}

// checkPerms implements the conventional user/group/other bit comparison
// against a node's cached stat, with an override for uid=0. It is a pure
// predicate: it reads only its arguments and has no side effects.
func checkPerms(stat *driver.Stat, requested PermMode, caller Caller) error {
	if caller.IsRoot() {
		return nil
	}

	mode := PermMode(stat.Mode.Perm())

	switch {
	case stat.Uid == caller.Uid:
		mode >>= 6
	case stat.Gid == caller.Gid:
		mode >>= 3
	}

	mode &= PermRead | PermWrite | PermExec

	if mode&requested != requested {
		return errPermission
	}

	return nil
}
