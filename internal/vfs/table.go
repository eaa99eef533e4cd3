package vfs

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"c4ghfs/internal/cache"
	"c4ghfs/internal/common"
)

// RootIno is the inode number a kernel binding uses for the mount root
const RootIno uint64 = 1

// DefaultListWorkers bounds parallel entry construction in ReadDir
const DefaultListWorkers = 8

// ExcludeFunc reports whether a path relative to the root is hidden
type ExcludeFunc func(relPath string, isDir bool) bool

// TableOptions configures a Table
type TableOptions struct {
	Entry       EntryOptions
	Exclude     ExcludeFunc
	HeaderCache *cache.HeaderCache
	ListWorkers int
}

// DirEntry is one listing result
type DirEntry struct {
	Name string
	Attr Attributes
}

// node is a registered entry and its path relative to the root
type node struct {
	entry *Entry
	path  string
}

// Table maps kernel inode numbers to entries and applies the lookup and
// forget protocol on top of Entry's reference counting.
type Table struct {
	mu       sync.RWMutex
	root     *DirHandle
	rootAttr Attributes
	nodes    map[uint64]*node
	opts     TableOptions
	lookups  singleflight.Group
}

// OpenTable opens rootPath and returns an empty table rooted there.
func OpenTable(rootPath string, opts TableOptions) (*Table, error) {
	root, err := OpenDir(rootPath)
	if err != nil {
		return nil, err
	}
	st, err := root.Stat()
	if err != nil {
		root.Close()
		return nil, err
	}
	rootAttr, err := BuildAttributes(st, false, nil, opts.Entry.attrOptions())
	if err != nil {
		root.Close()
		return nil, err
	}
	rootAttr.Ino = RootIno

	if opts.ListWorkers <= 0 {
		opts.ListWorkers = DefaultListWorkers
	}
	log.Debugf("[VFS] Table opened at %s (extension=%q policy=%s)", rootPath, opts.Entry.Extension, opts.Entry.Hint.Policy())

	return &Table{
		root:     root,
		rootAttr: rootAttr,
		nodes:    make(map[uint64]*node),
		opts:     opts,
	}, nil
}

// recoverTablePanic recovers from panics in table operations and converts
// them to EIO so one bad entry cannot take down the process.
func recoverTablePanic(operation string, err *error) {
	if r := recover(); r != nil {
		log.Errorf("[VFS] PANIC RECOVERED in %s: %v\nStack:\n%s", operation, r, debug.Stack())
		if err != nil {
			*err = EIO
		}
	}
}

// Root returns the root directory handle
func (t *Table) Root() *DirHandle {
	return t.root
}

// Len returns the number of registered entries
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Entry returns the registered entry for ino
func (t *Table) Entry(ino uint64) (*Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[ino]
	if !ok {
		return nil, false
	}
	return n.entry, true
}

// dir returns the directory behind ino and its path relative to the root
func (t *Table) dir(ino uint64) (DirLister, string, error) {
	if ino == RootIno {
		return t.root, "", nil
	}
	t.mu.RLock()
	n, ok := t.nodes[ino]
	t.mu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("inode %d: %w", ino, common.ErrInvalidHandle)
	}
	if n.entry.Attr().FileType() != FileTypeDirectory {
		return nil, "", &EntryError{Op: "lookup", Name: n.path, Err: common.ErrNotDir}
	}
	return n.entry, n.path, nil
}

func (t *Table) excluded(relPath string, isDir bool) bool {
	return t.opts.Exclude != nil && t.opts.Exclude(relPath, isDir)
}

// candidates lists the underlying names that may present as name. The
// encrypted form is tried first.
func (t *Table) candidates(name string) []string {
	if ext := t.opts.Entry.Extension; ext != "" {
		return []string{name + ext, name}
	}
	return []string{name}
}

// Lookup resolves name inside the directory parent and records one kernel
// reference on the resulting entry.
func (t *Table) Lookup(parent uint64, name string) (e *Entry, err error) {
	defer recoverTablePanic("Lookup", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] Lookup %d/%q → %v (%v)", parent, name, err, time.Since(start)) }()
	}

	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return nil, &EntryError{Op: "lookup", Name: name, Err: common.ErrInvalidPath}
	}

	dir, dirPath, err := t.dir(parent)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%d/%s", parent, name)
	for {
		v, err, _ := t.lookups.Do(key, func() (any, error) {
			return t.resolve(dir, dirPath, name)
		})
		if err != nil {
			return nil, err
		}
		if e, ok := t.register(v.(*node)); ok {
			return e, nil
		}
		// the entry was forgotten while we resolved it
	}
}

// register stores a resolved node and records one reference. It fails if
// the node's entry was closed in the meantime.
func (t *Table) register(resolved *node) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ino := resolved.entry.Attr().Ino
	if existing, ok := t.nodes[ino]; ok {
		if existing.entry != resolved.entry {
			resolved.entry.Close()
		}
		resolved = existing
	} else if resolved.entry.State() == StateClosed {
		return nil, false
	} else {
		t.nodes[ino] = resolved
	}
	resolved.entry.AddReference(1)
	return resolved.entry, true
}

// resolve finds the entry presenting as name. Registered entries are
// reused; otherwise a new unregistered entry is constructed.
func (t *Table) resolve(dir DirLister, dirPath, name string) (*node, error) {
	for _, candidate := range t.candidates(name) {
		st, err := dir.Lstat(candidate)
		if err != nil {
			if errors.Is(err, unix.ENOENT) {
				continue
			}
			return nil, resolutionError("lookup", candidate, err)
		}

		relPath := common.JoinPath(dirPath, candidate)
		if t.excluded(relPath, st.IsDir()) {
			log.Debugf("[VFS] Lookup %s: excluded", relPath)
			continue
		}

		t.mu.RLock()
		existing, ok := t.nodes[st.Ino]
		t.mu.RUnlock()
		if ok && existing.entry.DisplayName() == name && existing.path == relPath {
			return existing, nil
		}

		e, err := t.newEntry(dir, candidate, relPath, st)
		if err != nil {
			return nil, err
		}
		if e.DisplayName() != name {
			// present under another name
			e.Close()
			continue
		}
		return &node{entry: e, path: relPath}, nil
	}
	return nil, resolutionError("lookup", common.JoinPath(dirPath, name), unix.ENOENT)
}

// newEntry constructs an entry, consulting the header cache and falling
// back to plaintext presentation for files that only look encrypted.
func (t *Table) newEntry(dir ParentDir, name, relPath string, st RawStat) (*Entry, error) {
	opts := t.opts.Entry
	virtualized := common.HasExtension(name, opts.Extension) && st.IsRegular()
	fp := cache.Fingerprint{Ino: st.Ino, Size: st.Size, MtimeNs: st.MtimeNs}

	if virtualized && t.opts.HeaderCache != nil {
		if hlen, ok := t.opts.HeaderCache.Get(relPath, fp); ok {
			opts.HeaderLength = hlen
		}
	}

	e, err := NewEntry(dir, name, st, opts)
	if errors.Is(err, common.ErrNotContainerFormat) {
		log.Debugf("[VFS] %s is not a crypt4gh file, presenting it as plaintext", relPath)
		opts.Extension = ""
		e, err = NewEntry(dir, name, st, opts)
	}
	if err != nil {
		return nil, err
	}

	if virtualized && e.IsEncrypted() && t.opts.HeaderCache != nil {
		if hlen, err := e.HeaderLength(); err == nil {
			t.opts.HeaderCache.Set(relPath, fp, hlen)
		}
	}
	return e, nil
}

// Forget drops n kernel references from ino. The entry is removed and
// closed when none remain.
func (t *Table) Forget(ino uint64, n int64) (err error) {
	defer recoverTablePanic("Forget", &err)
	if ino == RootIno {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	nd, ok := t.nodes[ino]
	if !ok {
		log.Debugf("[VFS] Forget: unknown inode %d", ino)
		return fmt.Errorf("inode %d: %w", ino, common.ErrInvalidHandle)
	}
	if err := nd.entry.Release(n); err != nil {
		log.Debugf("[VFS] Forget %s: %v", nd.path, err)
	}
	if nd.entry.Refs() > 0 {
		return nil
	}

	delete(t.nodes, ino)
	log.Tracef("[VFS] Forget %s: removed", nd.path)
	return nd.entry.Close()
}

// Getattr returns the attributes of a registered inode
func (t *Table) Getattr(ino uint64) (Attributes, error) {
	if ino == RootIno {
		return t.rootAttr, nil
	}
	e, ok := t.Entry(ino)
	if !ok {
		return Attributes{}, fmt.Errorf("inode %d: %w", ino, common.ErrInvalidHandle)
	}
	return e.Attr(), nil
}

// ReadDir lists the directory ino. Entries are built in parallel and are
// not registered; entries that fail to build are logged and omitted.
func (t *Table) ReadDir(ino uint64) (entries []DirEntry, err error) {
	defer recoverTablePanic("ReadDir", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] ReadDir %d → %d entries, %v (%v)", ino, len(entries), err, time.Since(start)) }()
	}

	dir, dirPath, err := t.dir(ino)
	if err != nil {
		return nil, err
	}
	names, err := dir.ReadDirNames()
	if err != nil {
		return nil, resolutionError("readdir", dirPath, err)
	}

	results := make([]*DirEntry, len(names))
	var g errgroup.Group
	g.SetLimit(t.opts.ListWorkers)
	for i, name := range names {
		g.Go(func() error {
			results[i] = t.listOne(dir, dirPath, name)
			return nil
		})
	}
	_ = g.Wait()

	entries = make([]DirEntry, 0, len(results))
	for _, r := range results {
		if r != nil {
			entries = append(entries, *r)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (t *Table) listOne(dir DirLister, dirPath, name string) *DirEntry {
	st, err := dir.Lstat(name)
	if err != nil {
		log.Debugf("[VFS] ReadDir: skipping %s: %v", name, err)
		return nil
	}
	relPath := common.JoinPath(dirPath, name)
	if t.excluded(relPath, st.IsDir()) {
		return nil
	}

	t.mu.RLock()
	existing, ok := t.nodes[st.Ino]
	t.mu.RUnlock()
	if ok && existing.path == relPath {
		return &DirEntry{Name: existing.entry.DisplayName(), Attr: existing.entry.Attr()}
	}

	e, err := t.newEntry(dir, name, relPath, st)
	if err != nil {
		log.Warnf("[VFS] ReadDir: omitting %s: %v", relPath, err)
		return nil
	}
	defer e.Close()
	return &DirEntry{Name: e.DisplayName(), Attr: e.Attr()}
}

// LookupPath resolves a slash-separated path from the root, taking one
// reference on every entry along the way.
func (t *Table) LookupPath(path string) (*Entry, error) {
	path = common.NormalizePath(path)
	if path == "" {
		return nil, &EntryError{Op: "lookup", Name: path, Err: common.ErrInvalidPath}
	}

	parent := RootIno
	var e *Entry
	for _, part := range common.SplitPath(path) {
		var err error
		e, err = t.Lookup(parent, part)
		if err != nil {
			return nil, err
		}
		parent = e.Attr().Ino
	}
	return e, nil
}

// InvalidateCache drops cached header lengths under relPath ("" for all)
func (t *Table) InvalidateCache(relPath string) {
	if t.opts.HeaderCache == nil {
		return
	}
	relPath = common.NormalizePath(relPath)
	t.opts.HeaderCache.InvalidatePath(relPath)
	t.opts.HeaderCache.InvalidatePrefix(relPath)
}

// Close closes every registered entry and the root handle, returning the
// number of entries dropped.
func (t *Table) Close() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := len(t.nodes)
	var errs []error
	for ino, n := range t.nodes {
		if err := n.entry.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(t.nodes, ino)
	}
	if err := t.root.Close(); err != nil {
		errs = append(errs, err)
	}
	return count, errors.Join(errs...)
}
