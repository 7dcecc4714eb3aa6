// Package hash computes the structural hashes used to dedupe types,
// members, and rule keys across symbol files (spec.md §3, "32-bit
// structural hash" for Type; here widened to a 256-bit digest so two
// colliding 32-bit values can never be silently merged — TypeId.Hash32
// truncates it for the on-disk representation).
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Hash is a fixed-size structural digest. Two values with the same Hash
// are considered structurally equivalent (spec.md §3, §4.A "structural-hash
// collisions are impossible by construction").
type Hash [32]byte

// String renders the hash as hex, used as a cache-key suffix the way the
// teacher's gql package does (t.hash.String() + ".btsv").
func (h Hash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// Hash32 truncates to the 32-bit form spec.md §3 stores on Type.
func (h Hash) Hash32() uint32 {
	return binary.LittleEndian.Uint32(h[:4])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes hashes an arbitrary byte slice.
func Bytes(b []byte) Hash {
	return sha256.Sum256(b)
}

// String hashes a string without an intermediate allocation.
func String(s string) Hash {
	return sha256.Sum256([]byte(s))
}

// Uint64 hashes a fixed 64-bit integer, used for offsets, addresses, and
// bitfield widths when folding them into a structural hash.
func Uint64(v uint64) Hash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return Bytes(buf[:])
}

// Add combines h and other order-independently (h.Add(x) == x.Add(h)).
// Used to fold together a set of facts whose order must not matter, such
// as the member set of a struct when two translation units declare its
// fields in different orders.
func (h Hash) Add(other Hash) Hash {
	// Byte-wise addition mod 256 is commutative and associative, so a set
	// folds to the same value in any order; unlike XOR, adding a value to
	// itself does not cancel it to zero.
	var sum Hash
	for i := range sum {
		sum[i] = h[i] + other[i]
	}
	return sum
}

// Merge combines h and other order-dependently (Merge is used to extend a
// running hash with the next structural element, e.g. the next member of
// a struct in declaration order).
func (h Hash) Merge(other Hash) Hash {
	var buf [64]byte
	copy(buf[:32], h[:])
	copy(buf[32:], other[:])
	return sha256.Sum256(buf[:])
}
