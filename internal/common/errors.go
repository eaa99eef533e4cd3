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

package common

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotDir        = errors.New("not a directory")
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidHandle = errors.New("invalid handle")
)

// Entry-scoped errors. None of them is retried; the dispatch layer decides
// whether an entry is hidden, refused, or shown as plaintext.
var (
	// ErrNotContainerFormat means the magic bytes did not match. Callers
	// fall back to presenting the file unencrypted.
	ErrNotContainerFormat = errors.New("not a crypt4gh formatted file")

	ErrUnsupportedVersion = errors.New("unsupported crypt4gh version")
	ErrMalformedHeader    = errors.New("malformed crypt4gh header")
	ErrResolution         = errors.New("cannot resolve entry")
	ErrSizeComputation    = errors.New("invalid plaintext size")
	ErrEntryClosed        = errors.New("entry closed")
)
