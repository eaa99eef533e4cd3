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
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"

	"c4ghfs/internal/common"
	"c4ghfs/internal/crypt4gh"
)

// EntryState is the lifecycle state of an Entry
type EntryState int

const (
	// StateUnopened has no descriptor; Acquire will open one
	StateUnopened EntryState = iota
	// StateOpen holds a path-scoped descriptor
	StateOpen
	// StateClosed is terminal
	StateClosed
)

// String returns the string representation of the state
func (s EntryState) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EntryOptions configures entry construction
type EntryOptions struct {
	// Extension is the container suffix including the dot, e.g. ".c4gh".
	// Empty disables virtualization.
	Extension string
	// Hint is the mount-wide header length hint; nil disables sharing.
	Hint *HeaderSizeHint
	// HeaderLength seeds this entry's header length when already known.
	// The hint wins under the uniform policy.
	HeaderLength int64
	// NameEncoding is the host filename encoding; nil passes UTF-8 through.
	NameEncoding encoding.Encoding

	Framing      crypt4gh.Framing
	EntryTimeout time.Duration
	AttrTimeout  time.Duration
}

func (o EntryOptions) attrOptions() AttrOptions {
	return AttrOptions{Framing: o.Framing, EntryTimeout: o.EntryTimeout, AttrTimeout: o.AttrTimeout}
}

// Entry is one filesystem object as presented by the overlay. Attributes
// are computed once at construction and never change. The descriptor is
// opened lazily by Acquire and closed when the reference count drops to
// zero.
type Entry struct {
	parent         ParentDir
	underlyingName string
	displayName    string
	encrypted      bool
	nameEncoding   encoding.Encoding
	hint           *HeaderSizeHint
	attr           Attributes

	mu           sync.Mutex
	headerLength int64
	desc         Descriptor
	refs         int64
	closed       bool
}

// NewEntry builds the entry for name inside parent from its raw stat
// record. Encrypted regular files have their header length resolved here:
// from the hint, then opts.HeaderLength, then by parsing the header.
func NewEntry(parent ParentDir, name string, st RawStat, opts EntryOptions) (*Entry, error) {
	if parent == nil {
		return nil, &EntryError{Op: "construct", Name: name, Err: common.ErrResolution}
	}

	e := &Entry{
		parent:         parent,
		underlyingName: name,
		displayName:    name,
		encrypted:      common.HasExtension(name, opts.Extension),
		nameEncoding:   opts.NameEncoding,
		hint:           opts.Hint,
	}

	if v, ok := opts.Hint.Get(); ok {
		e.headerLength = v
	} else if opts.HeaderLength > 0 {
		e.headerLength = opts.HeaderLength
	}

	// Only regular files are virtualized; an encrypted-looking directory
	// keeps its name.
	if e.encrypted && st.IsRegular() {
		e.displayName = DisplayName(name, opts.Extension, true)
	}

	attr, err := BuildAttributes(st, e.encrypted, e.HeaderLength, opts.attrOptions())
	if err != nil {
		if _, ok := err.(*EntryError); ok {
			return nil, err
		}
		return nil, &EntryError{Op: "attributes", Name: name, Err: err}
	}
	e.attr = attr

	if log.IsLevelEnabled(log.TraceLevel) {
		log.Tracef("[VFS] NewEntry %s", e)
	}
	return e, nil
}

// Attr returns the presented attributes
func (e *Entry) Attr() Attributes {
	return e.attr
}

// DisplayName returns the name presented to the kernel
func (e *Entry) DisplayName() string {
	return e.displayName
}

// UnderlyingName returns the name in the parent directory
func (e *Entry) UnderlyingName() string {
	return e.underlyingName
}

// IsEncrypted reports whether the underlying name carries the container
// suffix
func (e *Entry) IsEncrypted() bool {
	return e.encrypted
}

// Parent returns the directory the entry was resolved in
func (e *Entry) Parent() ParentDir {
	return e.parent
}

// EncodedName returns the display name in the host filename encoding
func (e *Entry) EncodedName() ([]byte, error) {
	return EncodeName(e.displayName, e.nameEncoding)
}

// HeaderLength returns the container header length, parsing it on first
// use. The parse opens its own read handle and runs without the entry
// lock; only the final store is synchronized.
func (e *Entry) HeaderLength() (int64, error) {
	e.mu.Lock()
	hlen := e.headerLength
	e.mu.Unlock()
	if hlen > 0 {
		return hlen, nil
	}

	log.Debugf("[VFS] Getting header size for %s", e.underlyingName)
	r, err := e.parent.OpenRead(e.underlyingName)
	if err != nil {
		return 0, resolutionError("open", e.underlyingName, err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			log.Debugf("[VFS] Closing %s after header parse: %v", e.underlyingName, cerr)
		}
	}()

	hlen, err = crypt4gh.HeaderLength(r)
	if err != nil {
		return 0, &EntryError{Op: "parse header", Name: e.underlyingName, Err: err}
	}
	log.Debugf("[VFS] Found header size: %d", hlen)

	e.mu.Lock()
	if e.headerLength == 0 {
		e.headerLength = hlen
	}
	hlen = e.headerLength
	e.mu.Unlock()

	e.hint.noteParse(hlen)
	return hlen, nil
}

// Acquire returns the entry's path-scoped descriptor, opening it on first
// use. An open entry holds at least one reference.
func (e *Entry) Acquire() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acquireLocked()
}

func (e *Entry) acquireLocked() (int, error) {
	if e.closed {
		return -1, &EntryError{Op: "acquire", Name: e.underlyingName, Err: common.ErrEntryClosed}
	}
	if e.desc == nil {
		d, err := e.parent.OpenPath(e.underlyingName)
		if err != nil {
			return -1, resolutionError("acquire", e.underlyingName, err)
		}
		e.desc = d
		if e.refs < 1 {
			e.refs = 1
		}
		log.Tracef("[VFS] Opened %s fd=%d", e.underlyingName, d.Fd())
	}
	return int(e.desc.Fd()), nil
}

// AddReference records n more kernel lookups. Negative n and closed
// entries are ignored.
func (e *Entry) AddReference(n int64) {
	if n <= 0 {
		return
	}
	e.mu.Lock()
	if !e.closed {
		e.refs += n
	}
	e.mu.Unlock()
}

// Release drops n references; a negative n drops all of them. When the
// count reaches zero the descriptor, if any, is closed.
func (e *Entry) Release(n int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releaseLocked(n)
}

func (e *Entry) releaseLocked(n int64) error {
	if n < 0 {
		e.refs = 0
	} else {
		e.refs -= n
		if e.refs < 0 {
			e.refs = 0
		}
	}
	if e.refs > 0 || e.desc == nil {
		return nil
	}

	d := e.desc
	e.desc = nil
	log.Tracef("[VFS] Closing %s fd=%d", e.underlyingName, d.Fd())
	if err := d.Close(); err != nil {
		return &EntryError{Op: "close", Name: e.underlyingName, Err: err}
	}
	return nil
}

// Refs returns the current reference count
func (e *Entry) Refs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// State returns the lifecycle state
func (e *Entry) State() EntryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return StateClosed
	case e.desc != nil:
		return StateOpen
	default:
		return StateUnopened
	}
}

// Close releases every reference and makes the entry unusable. Calling
// Close twice is a no-op.
func (e *Entry) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	err := e.releaseLocked(-1)
	e.closed = true
	return err
}

func (e *Entry) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	fd := -1
	if e.desc != nil {
		fd = int(e.desc.Fd())
	}
	if e.encrypted {
		return fmt.Sprintf("<Entry %s refs=%d fd=%d ino=%d header=%d>",
			e.displayName, e.refs, fd, e.attr.Ino, e.headerLength)
	}
	return fmt.Sprintf("<Entry %s refs=%d fd=%d ino=%d>", e.displayName, e.refs, fd, e.attr.Ino)
}

// ===== ParentDir for directory entries =====

// withDescriptor runs fn on the entry's descriptor while holding the entry
// lock so the descriptor cannot be closed underneath it.
func (e *Entry) withDescriptor(fn func(fd int) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fd, err := e.acquireLocked()
	if err != nil {
		return err
	}
	return fn(fd)
}

func (e *Entry) Lstat(name string) (st RawStat, err error) {
	err = e.withDescriptor(func(fd int) error {
		st, err = lstatAt(fd, name)
		return err
	})
	return st, err
}

func (e *Entry) OpenPath(name string) (d Descriptor, err error) {
	err = e.withDescriptor(func(fd int) error {
		d, err = openPathAt(fd, name)
		return err
	})
	return d, err
}

func (e *Entry) OpenRead(name string) (r ReadHandle, err error) {
	err = e.withDescriptor(func(fd int) error {
		r, err = openReadAt(fd, name)
		return err
	})
	return r, err
}

func (e *Entry) ReadDirNames() (names []string, err error) {
	if e.attr.FileType() != FileTypeDirectory {
		return nil, &EntryError{Op: "readdir", Name: e.underlyingName, Err: common.ErrNotDir}
	}
	err = e.withDescriptor(func(fd int) error {
		names, err = readDirNamesAt(fd, e.underlyingName)
		return err
	})
	return names, err
}

var (
	_ DirLister = (*DirHandle)(nil)
	_ DirLister = (*Entry)(nil)
)
