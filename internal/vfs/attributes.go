package vfs

import (
	"time"

	"golang.org/x/sys/unix"

	"c4ghfs/internal/common"
	"c4ghfs/internal/crypt4gh"
)

const (
	// DefaultEntryTimeout is how long a kernel may cache a name lookup
	DefaultEntryTimeout = 300 * time.Second
	// DefaultAttrTimeout is how long a kernel may cache attributes
	DefaultAttrTimeout = 300 * time.Second
	// BlockSize is the unit Blocks is reported in
	BlockSize = 512
)

// groupOtherMask clears every group and other permission bit.
const groupOtherMask = unix.S_IRWXG | unix.S_IRWXO

// Attributes is the metadata record handed to the kernel binding.
type Attributes struct {
	Ino        uint64
	Generation uint64
	Nlink      uint64
	Mode       uint32
	Uid        uint32
	Gid        uint32
	Rdev       uint64
	Size       int64
	Blksize    int64
	Blocks     int64

	AtimeNs int64
	MtimeNs int64
	CtimeNs int64

	EntryTimeout time.Duration
	AttrTimeout  time.Duration
}

func (a Attributes) Atime() time.Time { return timeFromUnixNano(a.AtimeNs) }
func (a Attributes) Mtime() time.Time { return timeFromUnixNano(a.MtimeNs) }
func (a Attributes) Ctime() time.Time { return timeFromUnixNano(a.CtimeNs) }

// FileType returns the type encoded in Mode
func (a Attributes) FileType() FileType {
	return fileTypeOf(a.Mode)
}

// Perm returns the permission bits of Mode
func (a Attributes) Perm() uint32 {
	return a.Mode & 0o7777
}

// HeaderLengthFunc yields the container header length of the entry being
// translated. It is only called for encrypted regular files.
type HeaderLengthFunc func() (int64, error)

// AttrOptions controls attribute translation
type AttrOptions struct {
	Framing      crypt4gh.Framing
	EntryTimeout time.Duration
	AttrTimeout  time.Duration
}

func (o AttrOptions) withDefaults() AttrOptions {
	if o.Framing == (crypt4gh.Framing{}) {
		o.Framing = crypt4gh.DefaultFraming
	}
	if o.EntryTimeout <= 0 {
		o.EntryTimeout = DefaultEntryTimeout
	}
	if o.AttrTimeout <= 0 {
		o.AttrTimeout = DefaultAttrTimeout
	}
	return o
}

// BuildAttributes translates a raw stat record into the presented
// attributes. Encrypted regular files report their plaintext size; all
// entries lose group and other permissions.
func BuildAttributes(st RawStat, encrypted bool, headerLength HeaderLengthFunc, opts AttrOptions) (Attributes, error) {
	opts = opts.withDefaults()

	attr := Attributes{
		Ino:          st.Ino,
		Generation:   0,
		Nlink:        st.Nlink,
		Mode:         st.Mode &^ groupOtherMask,
		Uid:          st.Uid,
		Gid:          st.Gid,
		Rdev:         st.Rdev,
		Size:         st.Size,
		Blksize:      BlockSize,
		AtimeNs:      st.AtimeNs,
		MtimeNs:      st.MtimeNs,
		CtimeNs:      st.CtimeNs,
		EntryTimeout: opts.EntryTimeout,
		AttrTimeout:  opts.AttrTimeout,
	}

	if encrypted && st.IsRegular() {
		hlen, err := headerLength()
		if err != nil {
			return Attributes{}, err
		}
		size, err := opts.Framing.PlaintextSize(st.Size, hlen)
		if err != nil {
			return Attributes{}, err
		}
		attr.Size = size
	}

	attr.Blocks = (attr.Size + attr.Blksize - 1) / attr.Blksize
	return attr, nil
}

// DisplayName returns the name presented for underlying. The suffix is
// stripped only from encrypted names.
func DisplayName(underlying, suffix string, encrypted bool) string {
	if !encrypted {
		return underlying
	}
	return common.TrimExtension(underlying, suffix)
}
