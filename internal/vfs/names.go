package vfs

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// LookupNameEncoding resolves an IANA charset name for presented file
// names. UTF-8 (and the empty name) return nil, meaning names are passed
// through as raw bytes.
func LookupNameEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown name encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported name encoding %q", name)
	}
	return enc, nil
}

// EncodeName converts name to the host filename encoding.
func EncodeName(name string, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return []byte(name), nil
	}
	b, err := enc.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("encode name %q: %w", name, err)
	}
	return b, nil
}

// DecodeName converts a host-encoded filename back to a Go string.
func DecodeName(raw []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(raw), nil
	}
	b, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode name: %w", err)
	}
	return string(b), nil
}
