// Copyright 2026 The litetorrent Authors
// This file is part of the litetorrent library.
//
// The litetorrent library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The litetorrent library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the litetorrent library. If not, see <http://www.gnu.org/licenses/>.

// Package merkle provides the hash primitive and the two-level Merkle tree
// used to commit to, verify and serve the pieces of a shared file.
package merkle

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Size is the width in bytes of a Hash, the digest size of the base hash
// function (Keccak-256).
const Size = 32

// BaseHasherFunc constructs the base hash.Hash used for Hash.Concat and Sum.
type BaseHasherFunc func() hash.Hash

// DefaultHasher is the base hash used throughout the package. Keccak-256 is
// used rather than SHA-256 to match the rest of the stack's hashing choice.
var DefaultHasher BaseHasherFunc = sha3.NewLegacyKeccak256

var empty Hash

// Hash is an opaque, fixed-width digest. The zero value is the empty
// sentinel, distinct from any real digest produced by Sum or Concat.
type Hash [Size]byte

// IsEmpty reports whether h is the empty sentinel.
func (h Hash) IsEmpty() bool {
	return h == empty
}

// Equal reports whether h and other carry the same digest.
func (h Hash) Equal(other Hash) bool {
	return h == other
}

// Bytes returns a copy of the digest.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String renders the digest as a hex string.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// BytesToHash copies up to Size bytes of b into a new Hash. Shorter input is
// zero-padded; longer input is truncated, mirroring hash.Hash.Sum semantics
// when fed a digest of the expected size.
func BytesToHash(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}

// Sum hashes data under the base hash function. Used to derive a piece's
// leaf hash from its raw bytes.
func Sum(data []byte) Hash {
	h := DefaultHasher()
	h.Write(data)
	return BytesToHash(h.Sum(nil))
}

// Concat computes H(a||b). It never returns the empty sentinel for a real
// pair of operands, so emptiness never propagates silently through a
// concatenation: callers that feed it an empty operand by mistake get back
// a real (wrong) digest that fails the next root comparison, not a
// falsely-empty one that looks like "not yet verified".
func (a Hash) Concat(b Hash) Hash {
	h := DefaultHasher()
	h.Write(a[:])
	h.Write(b[:])
	return BytesToHash(h.Sum(nil))
}
