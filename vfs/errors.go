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

import "errors"

// Kind classifies the errors the VFS core can surface, independent of the
// backing driver that may have triggered them.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidArgument
	KindNotFound
	KindAlreadyExists
	KindNotEmpty
	KindBusy
	KindPermissionDenied
	KindNoMount
	KindDriverError
	KindOutOfMemory
	KindTooManyLinks
	KindCrossDevice
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindNotEmpty:
		return "not empty"
	case KindBusy:
		return "busy"
	case KindPermissionDenied:
		return "permission denied"
	case KindNoMount:
		return "no mount"
	case KindDriverError:
		return "driver error"
	case KindOutOfMemory:
		return "out of memory"
	case KindTooManyLinks:
		return "too many links"
	case KindCrossDevice:
		return "cross device"
	default:
		return "no error"
	}
}

// Error is the error type returned by every public VFS operation. It wraps
// the driver error when Kind is KindDriverError so callers can still
// unwrap down to the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}

	msg += ": " + e.Kind.String()

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// newErr builds an *Error of the given Kind, optionally wrapping err.
func newErr(op, path string, kind Kind, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Sentinel errors used internally by the resolver and graph primitives
// before they are attributed to a path and operation by the caller.
var (
	errNotFound     = errors.New("component not found")
	errNotADir      = errors.New("not a directory")
	errTooManyLinks = errors.New("too many levels of symbolic links")
	errPermission   = errors.New("permission denied")
)
