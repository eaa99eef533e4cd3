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
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/chacha20poly1305"
)

// WriteHeader writes a version 1 header carrying the given packets. Packets
// are written as-is behind their length prefix.
func WriteHeader(w io.Writer, packets [][]byte) (int64, error) {
	buf := new(bytes.Buffer)
	buf.Write(Magic[:])

	if err := binary.Write(buf, binary.LittleEndian, Version); err != nil {
		return 0, fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(packets))); err != nil {
		return 0, fmt.Errorf("failed to write packet count: %w", err)
	}

	for i, p := range packets {
		if uint64(len(p)) > math.MaxUint32-packetLengthSize {
			return 0, fmt.Errorf("packet %d too large: %d bytes", i, len(p))
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(p)+packetLengthSize)); err != nil {
			return 0, fmt.Errorf("failed to write packet %d length: %w", i, err)
		}
		buf.Write(p)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// SegmentWriter seals plaintext into ChaCha20-Poly1305 segments of
// SegmentSize bytes. Close must be called to flush the final segment.
type SegmentWriter struct {
	w       io.Writer
	aead    cipher.AEAD
	buf     []byte
	written int64
	closed  bool
}

// NewSegmentWriter returns a writer sealing segments with the 32-byte key
func NewSegmentWriter(w io.Writer, key []byte) (*SegmentWriter, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &SegmentWriter{
		w:    w,
		aead: aead,
		buf:  make([]byte, 0, SegmentSize),
	}, nil
}

// Write buffers p and emits every full segment
func (s *SegmentWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("segment writer closed")
	}
	total := 0
	for len(p) > 0 {
		n := min(SegmentSize-len(s.buf), len(p))
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		total += n
		if len(s.buf) == SegmentSize {
			if err := s.flush(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Close seals any buffered plaintext as the last segment
func (s *SegmentWriter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.buf) == 0 {
		return nil
	}
	return s.flush()
}

// Written returns the number of ciphertext bytes emitted so far
func (s *SegmentWriter) Written() int64 {
	return s.written
}

func (s *SegmentWriter) flush() error {
	nonce := make([]byte, NonceSize, NonceSize+len(s.buf)+MACSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, s.buf, nil)
	n, err := s.w.Write(sealed)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write segment: %w", err)
	}
	s.buf = s.buf[:0]
	return nil
}

// Encrypt writes a complete container: a header carrying packets followed
// by the segments of plaintext. It returns the container size.
func Encrypt(w io.Writer, plaintext io.Reader, key []byte, packets [][]byte) (int64, error) {
	hlen, err := WriteHeader(w, packets)
	if err != nil {
		return hlen, err
	}
	sw, err := NewSegmentWriter(w, key)
	if err != nil {
		return hlen, err
	}
	if _, err := io.Copy(sw, plaintext); err != nil {
		return hlen + sw.Written(), err
	}
	if err := sw.Close(); err != nil {
		return hlen + sw.Written(), err
	}
	return hlen + sw.Written(), nil
}
