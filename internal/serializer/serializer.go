// Package serializer implements the engine's one canonical byte layout:
// fixed-width big-endian fields accumulated into a buffer and digested
// with SHA-512-half. Every hashed structure in this repo (ledger
// headers, account state, transaction ids, SHAMap nodes) goes through
// this package so that two independent encodings of the same value can
// never disagree on a single byte.
package serializer

import (
	"crypto/sha512"
	"encoding/binary"
)

// Hash256 is a 256-bit digest: the truncated half of a SHA-512 sum.
type Hash256 [32]byte

// IsZero reports whether h is the all-zero hash, the sentinel the
// ledger header uses for "no parent" and "empty map".
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// Buffer is an append-only byte accumulator with fixed-width
// big-endian writers. It never reallocates shorter than requested and
// never pads beyond the field width it was asked for.
type Buffer struct {
	b []byte
}

// New returns an empty Buffer pre-sized for n bytes of payload.
func New(n int) *Buffer {
	return &Buffer{b: make([]byte, 0, n)}
}

// Add32 appends a 32-bit big-endian field.
func (s *Buffer) Add32(v uint32) *Buffer {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	s.b = append(s.b, tmp[:]...)
	return s
}

// Add64 appends a 64-bit big-endian field.
func (s *Buffer) Add64(v uint64) *Buffer {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	s.b = append(s.b, tmp[:]...)
	return s
}

// Add256 appends a 256-bit field verbatim.
func (s *Buffer) Add256(v Hash256) *Buffer {
	s.b = append(s.b, v[:]...)
	return s
}

// AddRaw appends an arbitrary byte slice with no length prefix. Used
// only for trailing variable-length payloads (transaction signed
// bytes, SHAMap leaf values) that are never re-hashed without their
// enclosing fixed-width fields.
func (s *Buffer) AddRaw(b []byte) *Buffer {
	s.b = append(s.b, b...)
	return s
}

// Bytes returns the accumulated byte slice. Callers must not mutate it.
func (s *Buffer) Bytes() []byte {
	return s.b
}

// SHA512Half returns the first 32 bytes of SHA-512 over the bytes
// accumulated so far.
func (s *Buffer) SHA512Half() Hash256 {
	return Sha512Half(s.b)
}

// Sha512Half hashes b with SHA-512 and truncates to the leading 32
// bytes — the digest used throughout the ledger for headers, SHAMap
// nodes, and content-addressed transaction ids. (Account map keys are
// not hashed: they are the zero-extended account id.)
func Sha512Half(b []byte) Hash256 {
	sum := sha512.Sum512(b)
	var out Hash256
	copy(out[:], sum[:32])
	return out
}
