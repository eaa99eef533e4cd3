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

package crypt4gh

import (
	"fmt"

	"c4ghfs/internal/common"
)

// Payload framing. Every plaintext segment is sealed independently with
// ChaCha20-Poly1305 and stored as nonce || ciphertext || tag.
const (
	SegmentSize       = 64 * 1024
	NonceSize         = 12
	MACSize           = 16
	CipherDiff        = NonceSize + MACSize
	CipherSegmentSize = SegmentSize + CipherDiff
)

// Framing holds the segment sizes used to translate between physical and
// plaintext sizes
type Framing struct {
	SegmentSize       int64 // plaintext bytes per segment
	CipherSegmentSize int64 // stored bytes per full segment
}

// DefaultFraming is the framing written by every Crypt4GH v1 encoder
var DefaultFraming = Framing{
	SegmentSize:       SegmentSize,
	CipherSegmentSize: CipherSegmentSize,
}

// Overhead returns the per-segment overhead in bytes
func (f Framing) Overhead() int64 {
	return f.CipherSegmentSize - f.SegmentSize
}

// SegmentCount returns ceil(physicalSize / CipherSegmentSize).
//
// The numerator is the whole file, header included. Sizes already
// reported by existing mounts depend on this count.
func (f Framing) SegmentCount(physicalSize int64) int64 {
	if physicalSize <= 0 {
		return 0
	}
	n := physicalSize / f.CipherSegmentSize
	if physicalSize%f.CipherSegmentSize != 0 {
		n++
	}
	return n
}

// PlaintextSize returns the size a reader sees once the container with the
// given physical size and header length is decrypted. A negative result
// means the container is truncated or corrupt and is reported as an error.
func (f Framing) PlaintextSize(physicalSize, headerLength int64) (int64, error) {
	if f.CipherSegmentSize <= f.SegmentSize || f.SegmentSize <= 0 {
		return 0, fmt.Errorf("%w: bad framing %d/%d", common.ErrSizeComputation, f.SegmentSize, f.CipherSegmentSize)
	}
	if physicalSize < 0 || headerLength < 0 {
		return 0, fmt.Errorf("%w: physical=%d header=%d", common.ErrSizeComputation, physicalSize, headerLength)
	}

	size := physicalSize - headerLength - f.SegmentCount(physicalSize)*f.Overhead()
	if size < 0 {
		return 0, fmt.Errorf("%w: physical=%d header=%d gives %d", common.ErrSizeComputation, physicalSize, headerLength, size)
	}
	return size, nil
}

// CiphertextSize returns the physical size of a container holding
// plaintextSize bytes behind a header of headerLength bytes
func (f Framing) CiphertextSize(plaintextSize, headerLength int64) int64 {
	segments := plaintextSize / f.SegmentSize
	if plaintextSize%f.SegmentSize != 0 {
		segments++
	}
	return headerLength + plaintextSize + segments*f.Overhead()
}
