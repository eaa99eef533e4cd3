package crypt4gh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"c4ghfs/internal/common"
)

// countingReaderAt records every positional read
type countingReaderAt struct {
	r     io.ReaderAt
	reads int
	bytes int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	n, err := c.r.ReadAt(p, off)
	c.bytes += n
	return n, err
}

func preamble(magic []byte, version, count uint32) []byte {
	buf := make([]byte, PreambleSize)
	copy(buf, magic)
	binary.LittleEndian.PutUint32(buf[8:12], version)
	binary.LittleEndian.PutUint32(buf[12:16], count)
	return buf
}

func buildHeader(t *testing.T, packets ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := WriteHeader(&buf, packets)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestHeaderLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		packets [][]byte
	}{
		{"no_packets", nil},
		{"one_packet", [][]byte{bytes.Repeat([]byte{0xaa}, 104)}},
		{"two_recipients", [][]byte{make([]byte, 104), make([]byte, 104)}},
		{"empty_packet", [][]byte{{}}},
		{"uneven_packets", [][]byte{make([]byte, 1), make([]byte, 300), make([]byte, 17)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := buildHeader(t, tt.packets...)

			want := int64(PreambleSize)
			for _, p := range tt.packets {
				want += int64(len(p) + 4)
			}

			got, err := HeaderLength(bytes.NewReader(raw))
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.GreaterOrEqual(t, got, int64(PreambleSize))
		})
	}
}

func TestParseHeaderIgnoresPayload(t *testing.T) {
	t.Parallel()

	raw := buildHeader(t, make([]byte, 60), make([]byte, 12))
	withPayload := append(append([]byte{}, raw...), bytes.Repeat([]byte{0xff}, 4096)...)

	h, err := ParseHeader(bytes.NewReader(withPayload))
	require.NoError(t, err)
	assert.Equal(t, Version, h.Version)
	assert.Equal(t, uint32(2), h.PacketCount)
	assert.Equal(t, []uint32{64, 16}, h.PacketLengths)
	assert.Equal(t, int64(len(raw)), h.Length)
}

func TestParseHeaderWrongMagic(t *testing.T) {
	t.Parallel()

	r := &countingReaderAt{r: bytes.NewReader(preamble([]byte("crypt4gx"), Version, 3))}
	_, err := ParseHeader(r)
	require.ErrorIs(t, err, common.ErrNotContainerFormat)
	assert.Equal(t, 1, r.reads, "no reads past the preamble")
	assert.Equal(t, PreambleSize, r.bytes)
}

func TestParseHeaderUnsupportedVersion(t *testing.T) {
	t.Parallel()

	for _, version := range []uint32{0, 2, 0xffffffff} {
		r := &countingReaderAt{r: bytes.NewReader(preamble(Magic[:], version, 5))}
		_, err := ParseHeader(r)
		require.ErrorIs(t, err, common.ErrUnsupportedVersion, "version %d", version)
		assert.Equal(t, PreambleSize, r.bytes, "exactly the preamble is read")
		assert.Equal(t, 1, r.reads)
	}
}

func TestParseHeaderMalformed(t *testing.T) {
	t.Parallel()

	valid := buildHeader(t, make([]byte, 40))

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short_preamble", valid[:15]},
		{"missing_packet", preamble(Magic[:], Version, 1)},
		{"truncated_length", valid[:18]},
		{"count_exceeds_packets", append(preamble(Magic[:], Version, 2), valid[16:]...)},
		{"zero_length_packet", append(preamble(Magic[:], Version, 1), 0, 0, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseHeader(bytes.NewReader(tt.raw))
			require.ErrorIs(t, err, common.ErrMalformedHeader)
		})
	}
}

func TestParseHeaderLastPacketMayPointPastEOF(t *testing.T) {
	t.Parallel()

	// Packet bodies are never read, only their length prefixes.
	raw := append(preamble(Magic[:], Version, 1), 0, 1, 0, 0)
	got, err := HeaderLength(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(PreambleSize+256), got)
}

type failingReaderAt struct{ err error }

func (f failingReaderAt) ReadAt([]byte, int64) (int, error) { return 0, f.err }

func TestParseHeaderPropagatesIOError(t *testing.T) {
	t.Parallel()

	ioErr := errors.New("input/output error")
	_, err := ParseHeader(failingReaderAt{err: ioErr})
	require.ErrorIs(t, err, common.ErrMalformedHeader)
	assert.Contains(t, err.Error(), "input/output error")
}
