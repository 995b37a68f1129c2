// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package parser deserializes Bitcoin blocks from raw blk file data.
package parser

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser/internal/bytestring"
)

// HeaderSize is the exact serialized size of a Bitcoin block header.
const HeaderSize = 80

// RawBlockHeader implements the 80-byte block header as defined by the
// Bitcoin wire protocol.
type RawBlockHeader struct {
	// The block version number indicates which set of block validation
	// rules to follow.
	Version int32

	// A SHA-256d hash in internal byte order of the previous block's
	// header. This ensures no previous block can be changed without also
	// changing this block's header.
	HashPrevBlock hash32.T

	// A SHA-256d hash in internal byte order. The merkle root is derived
	// from the hashes of all transactions included in this block, ensuring
	// that none of those transactions can be modified without modifying
	// the header.
	HashMerkleRoot hash32.T

	// The block time is a Unix epoch time (UTC) when the miner started
	// hashing the header (according to the miner).
	Time uint32

	// An encoded version of the target threshold this block's header hash
	// must be less than or equal to, in the nBits format.
	NBitsBytes [4]byte

	// An arbitrary field that miners change to modify the header hash in
	// order to produce a hash less than or equal to the target threshold.
	Nonce [4]byte
}

// BlockHeader extends RawBlockHeader by adding a cache for the block hash.
type BlockHeader struct {
	*RawBlockHeader
	cachedHash hash32.T
}

// NewBlockHeader return a pointer to a new block header instance.
func NewBlockHeader() *BlockHeader {
	return &BlockHeader{
		RawBlockHeader: new(RawBlockHeader),
	}
}

// MarshalBinary returns the block header in serialized form.
func (hdr *RawBlockHeader) MarshalBinary() ([]byte, error) {
	backing := make([]byte, 0, HeaderSize)
	buf := bytes.NewBuffer(backing)
	binary.Write(buf, binary.LittleEndian, hdr.Version)
	binary.Write(buf, binary.LittleEndian, hdr.HashPrevBlock)
	binary.Write(buf, binary.LittleEndian, hdr.HashMerkleRoot)
	binary.Write(buf, binary.LittleEndian, hdr.Time)
	binary.Write(buf, binary.LittleEndian, hdr.NBitsBytes)
	binary.Write(buf, binary.LittleEndian, hdr.Nonce)
	return buf.Bytes(), nil
}

// ParseFromSlice parses the block header struct from the provided byte slice,
// advancing over the bytes read. If successful it returns the rest of the
// slice, otherwise it returns the input slice unaltered along with an error.
func (hdr *BlockHeader) ParseFromSlice(in []byte) (rest []byte, err error) {
	s := bytestring.String(in)

	if !s.ReadInt32(&hdr.Version) {
		return in, errors.New("could not read header version")
	}

	var b32 []byte
	if !s.ReadBytes(&b32, 32) {
		return in, errors.New("could not read HashPrevBlock")
	}
	hdr.HashPrevBlock = hash32.FromSlice(b32)

	if !s.ReadBytes(&b32, 32) {
		return in, errors.New("could not read HashMerkleRoot")
	}
	hdr.HashMerkleRoot = hash32.FromSlice(b32)

	if !s.ReadUint32(&hdr.Time) {
		return in, errors.New("could not read timestamp")
	}

	var b4 []byte
	if !s.ReadBytes(&b4, 4) {
		return in, errors.New("could not read NBits bytes")
	}
	hdr.NBitsBytes = [4]byte(b4)

	if !s.ReadBytes(&b4, 4) {
		return in, errors.New("could not read Nonce bytes")
	}
	hdr.Nonce = [4]byte(b4)

	return []byte(s), nil
}

// GetDisplayHash returns the block hash in big-endian display order.
func (hdr *BlockHeader) GetDisplayHash() hash32.T {
	if hdr.cachedHash != hash32.Nil {
		return hdr.cachedHash
	}

	serializedHeader, err := hdr.MarshalBinary()
	if err != nil {
		return hash32.Nil
	}

	hdr.cachedHash = hash32.Reverse(hash32.Sum256d(serializedHeader))
	return hdr.cachedHash
}

func (hdr *BlockHeader) GetDisplayHashString() string {
	h := hdr.GetDisplayHash()
	return hex.EncodeToString(h[:])
}

// GetEncodableHash returns the block hash in little-endian wire order.
func (hdr *BlockHeader) GetEncodableHash() hash32.T {
	serializedHeader, err := hdr.MarshalBinary()
	if err != nil {
		return hash32.Nil
	}
	return hash32.Sum256d(serializedHeader)
}

// GetDisplayPrevHash returns the previous block hash in big-endian order.
func (hdr *BlockHeader) GetDisplayPrevHash() hash32.T {
	return hash32.Reverse(hdr.HashPrevBlock)
}
