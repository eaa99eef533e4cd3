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

// Package crypt4gh knows just enough about the Crypt4GH container to
// present encrypted files with plaintext sizes: the header layout and the
// segment framing of the payload.
//
// Header layout:
//
//	offset  size  field
//	0       8     magic "crypt4gh"
//	8       4     version (LE uint32, only 1 is supported)
//	12      4     packet count (LE uint32)
//	16      ...   packets, each prefixed by a LE uint32 length that
//	              includes the 4 length bytes themselves
//
// Packet contents are opaque here.
package crypt4gh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"c4ghfs/internal/common"
)

const (
	// Version is the only container version understood
	Version = uint32(1)

	// PreambleSize covers magic, version and packet count
	PreambleSize = 16

	// packetLengthSize is the size of the length prefix of every packet
	packetLengthSize = 4
)

// Magic identifies a Crypt4GH container
var Magic = [8]byte{'c', 'r', 'y', 'p', 't', '4', 'g', 'h'}

// Header describes the leading block of a container
type Header struct {
	Version       uint32
	PacketCount   uint32
	PacketLengths []uint32 // as stored, length prefix included
	Length        int64    // total header size in bytes
}

// ParseHeader walks the header at the start of r. Only positional reads are
// used, so sharing r with other readers is safe.
//
// The magic and version are checked before anything past the first 16
// bytes is read.
func ParseHeader(r io.ReaderAt) (*Header, error) {
	var pre [PreambleSize]byte
	if err := readFullAt(r, pre[:], 0); err != nil {
		return nil, fmt.Errorf("%w: reading preamble: %v", common.ErrMalformedHeader, err)
	}

	if !bytes.Equal(pre[:8], Magic[:]) {
		return nil, common.ErrNotContainerFormat
	}

	version := binary.LittleEndian.Uint32(pre[8:12])
	if version != Version {
		return nil, fmt.Errorf("%w: %d", common.ErrUnsupportedVersion, version)
	}

	h := &Header{
		Version:     version,
		PacketCount: binary.LittleEndian.Uint32(pre[12:16]),
	}

	pos := int64(PreambleSize)
	var lbuf [packetLengthSize]byte
	for i := uint32(0); i < h.PacketCount; i++ {
		if err := readFullAt(r, lbuf[:], pos); err != nil {
			return nil, fmt.Errorf("%w: packet %d at offset %d: %v", common.ErrMalformedHeader, i, pos, err)
		}
		plen := binary.LittleEndian.Uint32(lbuf[:])
		if plen < packetLengthSize {
			return nil, fmt.Errorf("%w: packet %d at offset %d has length %d", common.ErrMalformedHeader, i, pos, plen)
		}
		h.PacketLengths = append(h.PacketLengths, plen)
		pos += int64(plen)
	}
	h.Length = pos

	return h, nil
}

// HeaderLength returns the size in bytes of the header at the start of r
func HeaderLength(r io.ReaderAt) (int64, error) {
	h, err := ParseHeader(r)
	if err != nil {
		return 0, err
	}
	return h.Length, nil
}

// readFullAt fills buf from offset off. A short read is an error even when
// the reader reports io.EOF alongside a partial buffer.
func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
