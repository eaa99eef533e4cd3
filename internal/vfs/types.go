package vfs

import (
	"time"

	"golang.org/x/sys/unix"
)

// FileType represents the type of a filesystem entry
type FileType int

const (
	// FileTypeOther covers devices, fifos and sockets
	FileTypeOther FileType = iota
	// FileTypeRegularFile is a regular file
	FileTypeRegularFile
	// FileTypeDirectory is a directory
	FileTypeDirectory
	// FileTypeSymlink is a symbolic link
	FileTypeSymlink
)

// String returns the string representation of the file type
func (t FileType) String() string {
	switch t {
	case FileTypeRegularFile:
		return "file"
	case FileTypeDirectory:
		return "dir"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// fileTypeOf extracts the file type from st_mode
func fileTypeOf(mode uint32) FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return FileTypeRegularFile
	case unix.S_IFDIR:
		return FileTypeDirectory
	case unix.S_IFLNK:
		return FileTypeSymlink
	default:
		return FileTypeOther
	}
}

// RawStat is the platform-neutral subset of stat(2) the attribute
// translation needs. Timestamps keep nanosecond precision.
type RawStat struct {
	Ino     uint64
	Nlink   uint64
	Mode    uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	Size    int64
	AtimeNs int64
	MtimeNs int64
	CtimeNs int64
}

// FileType returns the type encoded in Mode
func (s RawStat) FileType() FileType {
	return fileTypeOf(s.Mode)
}

// IsRegular returns true for regular files
func (s RawStat) IsRegular() bool {
	return s.FileType() == FileTypeRegularFile
}

// IsDir returns true for directories
func (s RawStat) IsDir() bool {
	return s.FileType() == FileTypeDirectory
}

// timeFromUnixNano converts Unix nanoseconds to time.Time
func timeFromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns)
}
