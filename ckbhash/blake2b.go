// Package ckbhash wraps the Blake2b-256 digest used throughout the chain's canonical
// serialization formats (script hashes, data hashes).
package ckbhash

import (
	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of a digest produced by Sum.
const Size = 32

// Sum returns the 32 byte Blake2b-256 digest of b.
//
// This is a wrapper for easy access to a chosen implementation, mirroring how the rest of
// this codebase wraps hash primitives rather than calling them inline.
func Sum(b []byte) [Size]byte {
	return blake2b.Sum256(b)
}

// SumBytes is Sum with a slice return, for callers that immediately need a []byte.
func SumBytes(b []byte) []byte {
	digest := Sum(b)
	return digest[:]
}
