// Package record defines the table entry and its fixed-width binary encodings.
//
// Two encodings share one field order (nonce, hash, position, offset):
//
//	stream unit: [Nonce: 4 bytes] [Hash: 32 bytes]                                   = 36 bytes
//	table unit:  [Nonce: 4 bytes] [Hash: 32 bytes] [Position: 8 bytes] [Offset: 8 bytes] = 52 bytes
//
// Integers are little-endian. Stream units are what the forward phase appends to
// the intermediate files; table units carry the back-links through the sort and
// collation phases.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// NonceSize is the width of a nonce in bytes.
	NonceSize = 4
	// HashSize is the width of a matching-function digest in bytes.
	HashSize = 32
	// StreamSize is the encoded size of a record in an intermediate stream.
	StreamSize = NonceSize + HashSize
	// TableSize is the encoded size of a record in a sorted or collated table file.
	TableSize = StreamSize + 8 + 8

	// PrefixSize is the number of leading hash bytes compared during collation.
	PrefixSize = 8
)

// ErrShortBuffer is returned when a buffer cannot hold a full unit.
var ErrShortBuffer = errors.New("record: short buffer")

// Nonce identifies one generation unit of table 0.
type Nonce [NonceSize]byte

// Hash is a matching-function digest.
type Hash [HashSize]byte

// Record is a single table entry.
//
// Ordering and equality are defined by Hash alone. Two records with distinct
// nonces and the same hash compare equal.
type Record struct {
	Nonce    Nonce
	Hash     Hash
	Position uint64
	Offset   uint64
}

// NonceFromIndex encodes a global generation index as a nonce.
func NonceFromIndex(i uint32) Nonce {
	var n Nonce
	binary.LittleEndian.PutUint32(n[:], i)
	return n
}

// Index returns the generation index encoded in n.
func (n Nonce) Index() uint32 {
	return binary.LittleEndian.Uint32(n[:])
}

// Compare orders records by hash.
func Compare(a, b Record) int {
	return bytes.Compare(a.Hash[:], b.Hash[:])
}

// ComparePosition orders records by position.
func ComparePosition(a, b Record) int {
	switch {
	case a.Position < b.Position:
		return -1
	case a.Position > b.Position:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b carry the same hash.
func Equal(a, b Record) bool {
	return a.Hash == b.Hash
}

// PrefixEqual reports whether the first PrefixSize bytes of both hashes match.
func PrefixEqual(a, b Hash) bool {
	return bytes.Equal(a[:PrefixSize], b[:PrefixSize])
}

// PutStream encodes the stream unit of r into dst.
func (r *Record) PutStream(dst []byte) error {
	if len(dst) < StreamSize {
		return ErrShortBuffer
	}
	copy(dst[0:NonceSize], r.Nonce[:])
	copy(dst[NonceSize:StreamSize], r.Hash[:])
	return nil
}

// PutTable encodes the table unit of r into dst.
func (r *Record) PutTable(dst []byte) error {
	if len(dst) < TableSize {
		return ErrShortBuffer
	}
	_ = r.PutStream(dst)
	binary.LittleEndian.PutUint64(dst[StreamSize:], r.Position)
	binary.LittleEndian.PutUint64(dst[StreamSize+8:], r.Offset)
	return nil
}

// DecodeStream decodes a stream unit. Position and Offset are left zero.
func DecodeStream(src []byte) (Record, error) {
	var r Record
	if len(src) < StreamSize {
		return r, ErrShortBuffer
	}
	copy(r.Nonce[:], src[0:NonceSize])
	copy(r.Hash[:], src[NonceSize:StreamSize])
	return r, nil
}

// DecodeTable decodes a table unit.
func DecodeTable(src []byte) (Record, error) {
	if len(src) < TableSize {
		return Record{}, ErrShortBuffer
	}
	r, _ := DecodeStream(src)
	r.Position = binary.LittleEndian.Uint64(src[StreamSize:])
	r.Offset = binary.LittleEndian.Uint64(src[StreamSize+8:])
	return r, nil
}
