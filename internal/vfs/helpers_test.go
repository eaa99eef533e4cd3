package vfs

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"c4ghfs/internal/crypt4gh"
)

// containerHeader returns a serialized header with the given packet sizes
func containerHeader(t *testing.T, packetSizes ...int) []byte {
	t.Helper()
	packets := make([][]byte, len(packetSizes))
	for i, n := range packetSizes {
		packets[i] = bytes.Repeat([]byte{byte(i + 1)}, n)
	}
	var buf bytes.Buffer
	_, err := crypt4gh.WriteHeader(&buf, packets)
	require.NoError(t, err)
	return buf.Bytes()
}

// regularStat returns a stat record for a regular file
func regularStat(ino uint64, size int64) RawStat {
	return RawStat{
		Ino:     ino,
		Nlink:   1,
		Mode:    unix.S_IFREG | 0o644,
		Uid:     1000,
		Gid:     1000,
		Size:    size,
		AtimeNs: 1700000000123456789,
		MtimeNs: 1700000001123456789,
		CtimeNs: 1700000002123456789,
	}
}

func dirStat(ino uint64) RawStat {
	st := regularStat(ino, 4096)
	st.Mode = unix.S_IFDIR | 0o755
	st.Nlink = 2
	return st
}

type fakeDescriptor struct {
	fd     uintptr
	closes *atomic.Int32
}

func (d *fakeDescriptor) Fd() uintptr { return d.fd }

func (d *fakeDescriptor) Close() error {
	d.closes.Add(1)
	return nil
}

type fakeReadHandle struct {
	*bytes.Reader
}

func (fakeReadHandle) Close() error { return nil }

// fakeParent serves file contents from memory and counts opens. Once
// failReadsAfter reads have been served, further OpenRead calls fail.
type fakeParent struct {
	mu             sync.Mutex
	files          map[string][]byte
	openPaths      int
	openReads      int
	failReadsAfter int
	failOpenPath   error
	nextFd         uintptr
	closes         atomic.Int32
}

func newFakeParent() *fakeParent {
	return &fakeParent{files: make(map[string][]byte), failReadsAfter: -1, nextFd: 100}
}

func (p *fakeParent) Lstat(name string) (RawStat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[name]
	if !ok {
		return RawStat{}, &os.PathError{Op: "fstatat", Path: name, Err: unix.ENOENT}
	}
	return regularStat(uint64(len(name)), int64(len(data))), nil
}

func (p *fakeParent) OpenPath(name string) (Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openPaths++
	if p.failOpenPath != nil {
		return nil, p.failOpenPath
	}
	p.nextFd++
	return &fakeDescriptor{fd: p.nextFd, closes: &p.closes}, nil
}

func (p *fakeParent) OpenRead(name string) (ReadHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failReadsAfter >= 0 && p.openReads >= p.failReadsAfter {
		return nil, &os.PathError{Op: "openat", Path: name, Err: errors.New("injected read failure")}
	}
	p.openReads++
	data, ok := p.files[name]
	if !ok {
		return nil, &os.PathError{Op: "openat", Path: name, Err: unix.ENOENT}
	}
	return fakeReadHandle{bytes.NewReader(data)}, nil
}

func (p *fakeParent) reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openReads
}
