// Copyright 2024 C4GHFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vfs

import (
	"errors"
	"fmt"
	"syscall"

	"c4ghfs/internal/common"
)

// VFS error codes mapped to syscall errors
var (
	ENOENT  = syscall.ENOENT  // No such file or directory
	ENOTDIR = syscall.ENOTDIR // Not a directory
	EBADF   = syscall.EBADF   // Bad file descriptor
	EINVAL  = syscall.EINVAL  // Invalid argument
	EIO     = syscall.EIO     // I/O error
	EACCES  = syscall.EACCES  // Permission denied
	ELOOP   = syscall.ELOOP   // Too many symbolic links (O_NOFOLLOW on a link)
)

// EntryError records a failed entry operation and the underlying name.
type EntryError struct {
	Op   string
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// resolutionError wraps an OS failure so it matches both ErrResolution and
// the original errno.
func resolutionError(op, name string, err error) error {
	return &EntryError{Op: op, Name: name, Err: fmt.Errorf("%w: %w", common.ErrResolution, err)}
}

// ToErrno maps an entry error to the errno a kernel binding should reply
// with. A nil error maps to 0.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, common.ErrResolution), errors.Is(err, common.ErrNotFound):
		return ENOENT
	case errors.Is(err, common.ErrEntryClosed), errors.Is(err, common.ErrInvalidHandle):
		return EBADF
	case errors.Is(err, common.ErrNotDir):
		return ENOTDIR
	case errors.Is(err, common.ErrInvalidPath):
		return EINVAL
	default:
		// header and size failures
		return EIO
	}
}
