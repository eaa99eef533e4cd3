package vfs

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"

	"c4ghfs/internal/cache"
	"c4ghfs/internal/common"
	"c4ghfs/internal/crypt4gh"
)

// writeContainer encrypts plain into dir/name and returns the file size
func writeContainer(t *testing.T, dir, name string, plain []byte, packetSizes ...int) int64 {
	t.Helper()

	key := make([]byte, chacha20poly1305.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	packets := make([][]byte, len(packetSizes))
	for i, n := range packetSizes {
		packets[i] = make([]byte, n)
	}

	var buf bytes.Buffer
	n, err := crypt4gh.Encrypt(&buf, bytes.NewReader(plain), key, packets)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
	return n
}

// fixtureTree lays out:
//
//	sample.bam.c4gh   1000 plaintext bytes, 232-byte header
//	notes.txt
//	fake.c4gh         plain text with the container suffix
//	runs/r1.vcf.c4gh  400000 plaintext bytes, 232-byte header
func fixtureTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeContainer(t, root, "sample.bam.c4gh", bytes.Repeat([]byte("A"), 1000), 104, 104)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fake.c4gh"), []byte("definitely not a container"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "runs"), 0o755))
	writeContainer(t, filepath.Join(root, "runs"), "r1.vcf.c4gh", bytes.Repeat([]byte("ACGT"), 100000), 104, 104)
	return root
}

func openTestTable(t *testing.T, root string, opts TableOptions) *Table {
	t.Helper()
	if opts.Entry.Extension == "" {
		opts.Entry.Extension = ".c4gh"
	}
	if opts.Entry.Hint == nil {
		// fake.c4gh has no header to share
		opts.Entry.Hint = NewHeaderSizeHint(PolicyHeterogeneous)
	}
	table, err := OpenTable(root, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = table.Close() })
	return table
}

func TestTableLookup(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{})

	e, err := table.Lookup(RootIno, "sample.bam")
	require.NoError(t, err)
	assert.Equal(t, "sample.bam.c4gh", e.UnderlyingName())
	assert.Equal(t, int64(1000), e.Attr().Size)
	assert.Equal(t, int64(1), e.Refs())
	assert.Equal(t, uint32(0), e.Attr().Perm()&0o077)

	again, err := table.Lookup(RootIno, "sample.bam")
	require.NoError(t, err)
	assert.Same(t, e, again)
	assert.Equal(t, int64(2), e.Refs())
	assert.Equal(t, 1, table.Len())

	attr, err := table.Getattr(e.Attr().Ino)
	require.NoError(t, err)
	assert.Equal(t, e.Attr(), attr)

	plain, err := table.Lookup(RootIno, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(6), plain.Attr().Size)
	assert.False(t, plain.IsEncrypted())
}

func TestTableLookupMisses(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{})

	tests := []struct {
		name string
		want error
	}{
		{"missing", common.ErrResolution},
		{"sample.bam.c4gh", common.ErrResolution},
		{"fake", common.ErrResolution},
		{"a/b", common.ErrInvalidPath},
		{"..", common.ErrInvalidPath},
	}
	for _, tt := range tests {
		_, err := table.Lookup(RootIno, tt.name)
		assert.ErrorIs(t, err, tt.want, tt.name)
	}

	_, err := table.Lookup(RootIno, "missing")
	assert.Equal(t, ENOENT, ToErrno(err))

	_, err = table.Lookup(999, "sample.bam")
	assert.ErrorIs(t, err, common.ErrInvalidHandle)
	assert.Equal(t, 0, table.Len())
}

func TestTableUniformHint(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for i := 0; i < 3; i++ {
		writeContainer(t, root, uuid.NewString()+".bam.c4gh", bytes.Repeat([]byte("G"), 700), 104, 104)
	}
	hint := NewHeaderSizeHint(PolicyUniform)
	table := openTestTable(t, root, TableOptions{Entry: EntryOptions{Extension: ".c4gh", Hint: hint}})

	entries, err := table.ReadDir(RootIno)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, de := range entries {
		assert.Equal(t, int64(700), de.Attr.Size)
		assert.True(t, strings.HasSuffix(de.Name, ".bam"))
	}
	v, ok := hint.Get()
	require.True(t, ok)
	assert.Equal(t, int64(232), v)
}

func TestTableNotContainerFallsBackToPlaintext(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{})

	e, err := table.Lookup(RootIno, "fake.c4gh")
	require.NoError(t, err)
	assert.False(t, e.IsEncrypted())
	assert.Equal(t, "fake.c4gh", e.DisplayName())
	assert.Equal(t, int64(len("definitely not a container")), e.Attr().Size)
}

func TestTableUnsupportedVersion(t *testing.T) {
	t.Parallel()

	root := fixtureTree(t)
	header := make([]byte, 0, 64)
	header = append(header, crypt4gh.Magic[:]...)
	header = append(header, 2, 0, 0, 0, 0, 0, 0, 0)
	header = append(header, bytes.Repeat([]byte{0}, 40)...)
	require.NoError(t, os.WriteFile(filepath.Join(root, "v2.bam.c4gh"), header, 0o644))

	table := openTestTable(t, root, TableOptions{})

	_, err := table.Lookup(RootIno, "v2.bam")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedVersion)
	assert.Equal(t, EIO, ToErrno(err))

	entries, err := table.ReadDir(RootIno)
	require.NoError(t, err)
	for _, de := range entries {
		assert.NotEqual(t, "v2.bam", de.Name, "broken containers are omitted from listings")
	}
}

func TestTableForget(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{})

	e, err := table.Lookup(RootIno, "sample.bam")
	require.NoError(t, err)
	_, err = table.Lookup(RootIno, "sample.bam")
	require.NoError(t, err)
	ino := e.Attr().Ino

	fd, err := e.Acquire()
	require.NoError(t, err)
	assert.True(t, fd >= 0)
	assert.Equal(t, StateOpen, e.State())

	require.NoError(t, table.Forget(ino, 1))
	assert.Equal(t, StateOpen, e.State())
	assert.Equal(t, 1, table.Len())

	require.NoError(t, table.Forget(ino, 1))
	assert.Equal(t, StateClosed, e.State())
	assert.Equal(t, 0, table.Len())

	_, err = table.Getattr(ino)
	assert.ErrorIs(t, err, common.ErrInvalidHandle)
	assert.ErrorIs(t, table.Forget(ino, 1), common.ErrInvalidHandle)
	assert.NoError(t, table.Forget(RootIno, 1))

	// A fresh lookup builds a new entry
	fresh, err := table.Lookup(RootIno, "sample.bam")
	require.NoError(t, err)
	assert.NotSame(t, e, fresh)
	assert.Equal(t, int64(1), fresh.Refs())
}

func TestTableReadDir(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{ListWorkers: 2})

	entries, err := table.ReadDir(RootIno)
	require.NoError(t, err)

	names := make([]string, len(entries))
	sizes := make(map[string]int64)
	for i, de := range entries {
		names[i] = de.Name
		sizes[de.Name] = de.Attr.Size
	}
	assert.Equal(t, []string{"fake.c4gh", "notes.txt", "runs", "sample.bam"}, names)
	assert.Equal(t, int64(1000), sizes["sample.bam"])
	assert.Equal(t, int64(6), sizes["notes.txt"])
	assert.Equal(t, 0, table.Len(), "listings do not register entries")

	root, err := table.Getattr(RootIno)
	require.NoError(t, err)
	assert.Equal(t, RootIno, root.Ino)
	assert.Equal(t, FileTypeDirectory, root.FileType())
}

func TestTableNestedDirectories(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{})

	runs, err := table.Lookup(RootIno, "runs")
	require.NoError(t, err)
	assert.Equal(t, FileTypeDirectory, runs.Attr().FileType())

	r1, err := table.Lookup(runs.Attr().Ino, "r1.vcf")
	require.NoError(t, err)
	assert.Equal(t, int64(400000), r1.Attr().Size)
	assert.Same(t, runs, r1.Parent())

	entries, err := table.ReadDir(runs.Attr().Ino)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1.vcf", entries[0].Name)

	byPath, err := table.LookupPath("/runs/r1.vcf")
	require.NoError(t, err)
	assert.Same(t, r1, byPath)

	_, err = table.Lookup(r1.Attr().Ino, "x")
	assert.ErrorIs(t, err, common.ErrNotDir)
	_, err = table.ReadDir(r1.Attr().Ino)
	assert.ErrorIs(t, err, common.ErrNotDir)
}

func TestTableExclude(t *testing.T) {
	t.Parallel()

	exclude := func(relPath string, isDir bool) bool {
		return isDir || strings.HasSuffix(relPath, ".txt")
	}
	table := openTestTable(t, fixtureTree(t), TableOptions{Exclude: exclude})

	entries, err := table.ReadDir(RootIno)
	require.NoError(t, err)
	var names []string
	for _, de := range entries {
		names = append(names, de.Name)
	}
	assert.Equal(t, []string{"fake.c4gh", "sample.bam"}, names)

	_, err = table.Lookup(RootIno, "notes.txt")
	assert.ErrorIs(t, err, common.ErrResolution)
	_, err = table.Lookup(RootIno, "runs")
	assert.ErrorIs(t, err, common.ErrResolution)
}

func TestTableHeaderCache(t *testing.T) {
	if cache.Disabled {
		t.Skip("caching disabled via C4GHFS_CACHE=0")
	}
	t.Parallel()

	root := t.TempDir()
	for i := 0; i < 4; i++ {
		writeContainer(t, root, uuid.NewString()+".bin.c4gh", bytes.Repeat([]byte{byte(i)}, 500), 104*(i+1))
	}

	headers := cache.NewHeaderCache(0, 0)
	table := openTestTable(t, root, TableOptions{
		Entry:       EntryOptions{Extension: ".c4gh", Hint: NewHeaderSizeHint(PolicyHeterogeneous)},
		HeaderCache: headers,
	})

	first, err := table.ReadDir(RootIno)
	require.NoError(t, err)
	require.Len(t, first, 4)
	for _, de := range first {
		assert.Equal(t, int64(500), de.Attr.Size, de.Name)
	}
	assert.Equal(t, 4, headers.Size())

	second, err := table.ReadDir(RootIno)
	require.NoError(t, err)
	require.Len(t, second, 4)
	for i := range second {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, first[i].Attr.Size, second[i].Attr.Size)
	}
	assert.Equal(t, uint64(4), headers.Stats().Hits)

	table.InvalidateCache("")
	assert.Equal(t, 0, headers.Size())
}

func TestTableConcurrentLookups(t *testing.T) {
	t.Parallel()

	table := openTestTable(t, fixtureTree(t), TableOptions{})

	const n = 32
	results := make([]*Entry, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := table.Lookup(RootIno, "sample.bam")
			if assert.NoError(t, err) {
				results[i] = e
			}
		}(i)
	}
	wg.Wait()

	for _, e := range results {
		assert.Same(t, results[0], e)
	}
	assert.Equal(t, int64(n), results[0].Refs())
	assert.Equal(t, 1, table.Len())
}

func TestTableSymlinkIsNotFollowed(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("path-only descriptors on symlinks need O_PATH")
	}
	t.Parallel()

	root := fixtureTree(t)
	require.NoError(t, os.Symlink("sample.bam.c4gh", filepath.Join(root, "alias")))

	table := openTestTable(t, root, TableOptions{})
	e, err := table.Lookup(RootIno, "alias")
	require.NoError(t, err)
	assert.Equal(t, FileTypeSymlink, e.Attr().FileType())
	assert.False(t, e.IsEncrypted())

	_, err = e.Acquire()
	require.NoError(t, err)
}

func TestTableClose(t *testing.T) {
	t.Parallel()

	table, err := OpenTable(fixtureTree(t), TableOptions{Entry: EntryOptions{Extension: ".c4gh"}})
	require.NoError(t, err)

	a, err := table.Lookup(RootIno, "sample.bam")
	require.NoError(t, err)
	_, err = a.Acquire()
	require.NoError(t, err)
	_, err = table.Lookup(RootIno, "notes.txt")
	require.NoError(t, err)

	count, err := table.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, StateClosed, a.State())
}

func TestOpenTableMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := OpenTable(filepath.Join(t.TempDir(), "nope"), TableOptions{})
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
