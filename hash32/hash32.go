// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package hash32

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// This type is for any kind of 32-byte hash, such as a block hash,
// txid, or merkle root. Variables of this type are passed
// around and returned by value (treat like an integer).
type T [32]byte

// It is considered impossible for a hash value to be all zeros,
// so we use that to represent an unset or undefined hash value.
// It is also the previous-outpoint hash of a coinbase input.
var Nil = T{}

// FromSlice converts a slice to a hash32. If the slice is too long,
// the return is only the first 32 bytes; if the slice is too short,
// the remaining bytes in the return value are zeros. This should
// not happen in practice.
func FromSlice(arg []byte) T {
	var r T
	copy(r[:], arg)
	return r
}

// ToSlice converts a hash32 to a byte slice.
func ToSlice(arg T) []byte {
	return arg[:]
}

// Reverse the given hash, returning a new value;
// the input is unchanged.
func Reverse(arg T) T {
	r := T{}
	for i := 0; i < 32; i++ {
		r[i] = arg[32-1-i]
	}
	return r
}

func ReverseSlice(arg []byte) []byte {
	return ToSlice(Reverse(T(arg)))
}

// Sum256d returns the double-SHA-256 of the argument in internal
// (little-endian wire) byte order. Block hashes and txids are the
// byte-reversal of this value.
func Sum256d(arg []byte) T {
	digest := sha256.Sum256(arg)
	digest = sha256.Sum256(digest[:])
	return T(digest)
}

func Decode(s string) (T, error) {
	r := T{}
	hash, err := hex.DecodeString(s)
	if err != nil {
		return r, err
	}
	if len(hash) != 32 {
		return r, errors.New("DecodeHexHash: length is not 32 bytes")
	}
	return T(hash), nil
}

func Encode(arg T) string {
	return hex.EncodeToString(ToSlice(arg))
}
