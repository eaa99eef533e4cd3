package vfs

import (
	"io"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// Descriptor is an open OS-level handle owned by exactly one entry.
// *os.File satisfies it.
type Descriptor interface {
	Fd() uintptr
	Close() error
}

// ReadHandle is a short-lived handle used to read a container header.
type ReadHandle interface {
	io.ReaderAt
	io.Closer
}

// ParentDir resolves names relative to an open directory. Entries never
// close their parent.
type ParentDir interface {
	Lstat(name string) (RawStat, error)
	OpenPath(name string) (Descriptor, error)
	OpenRead(name string) (ReadHandle, error)
}

// DirLister is a ParentDir that can also enumerate its children.
type DirLister interface {
	ParentDir
	ReadDirNames() ([]string, error)
}

// DirHandle is an open directory descriptor. It is the root of a Table and
// the ParentDir for top-level entries.
type DirHandle struct {
	fd   int
	path string
}

// OpenDir opens path as a directory handle.
func OpenDir(path string) (*DirHandle, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return &DirHandle{fd: fd, path: path}, nil
}

// Path returns the path the handle was opened with
func (d *DirHandle) Path() string {
	return d.path
}

// Fd returns the underlying descriptor
func (d *DirHandle) Fd() uintptr {
	return uintptr(d.fd)
}

// Close closes the directory descriptor. Calling Close twice is a no-op.
func (d *DirHandle) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// Stat returns the attributes of the directory itself
func (d *DirHandle) Stat() (RawStat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err != nil {
		return RawStat{}, &os.PathError{Op: "fstat", Path: d.path, Err: err}
	}
	return rawStatFromUnix(&st), nil
}

func (d *DirHandle) Lstat(name string) (RawStat, error) {
	return lstatAt(d.fd, name)
}

func (d *DirHandle) OpenPath(name string) (Descriptor, error) {
	return openPathAt(d.fd, name)
}

func (d *DirHandle) OpenRead(name string) (ReadHandle, error) {
	return openReadAt(d.fd, name)
}

func (d *DirHandle) ReadDirNames() ([]string, error) {
	return readDirNamesAt(d.fd, d.path)
}

// ===== *at helpers shared by DirHandle and directory entries =====

func lstatAt(dirfd int, name string) (RawStat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return RawStat{}, &os.PathError{Op: "fstatat", Path: name, Err: err}
	}
	return rawStatFromUnix(&st), nil
}

func openPathAt(dirfd int, name string) (Descriptor, error) {
	fd, err := unix.Openat(dirfd, name, pathOpenFlags, 0)
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: name, Err: err}
	}
	return os.NewFile(uintptr(fd), name), nil
}

func openReadAt(dirfd int, name string) (ReadHandle, error) {
	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: name, Err: err}
	}
	return os.NewFile(uintptr(fd), name), nil
}

// readDirNamesAt lists dirfd through a fresh descriptor so path-only
// descriptors can be listed too. Names are sorted.
func readDirNamesAt(dirfd int, label string) ([]string, error) {
	fd, err := unix.Openat(dirfd, ".", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "openat", Path: label, Err: err}
	}
	f := os.NewFile(uintptr(fd), label)
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
