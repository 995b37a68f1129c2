// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package parser deserializes Bitcoin blocks from raw blk file data.
package parser

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser/internal/bytestring"
)

// Block represents a full block: header plus all transactions.
type Block struct {
	hdr *BlockHeader
	vtx []*Transaction
}

// NewBlock constructs a block instance.
func NewBlock() *Block {
	return &Block{}
}

// Header returns the block's parsed header.
func (b *Block) Header() *BlockHeader {
	return b.hdr
}

// GetVersion returns a block's version number.
func (b *Block) GetVersion() int {
	return int(b.hdr.Version)
}

// GetTxCount returns the number of transactions in the block,
// including the coinbase transaction (minimum 1).
func (b *Block) GetTxCount() int {
	return len(b.vtx)
}

// Transactions returns the list of the block's transactions.
func (b *Block) Transactions() []*Transaction {
	return b.vtx
}

// Time returns the header timestamp (Unix seconds, UTC).
func (b *Block) Time() uint32 {
	return b.hdr.Time
}

// GetDisplayHash returns the block hash in big-endian display order.
func (b *Block) GetDisplayHash() hash32.T {
	return b.hdr.GetDisplayHash()
}

func (b *Block) GetDisplayHashString() string {
	h := b.GetDisplayHash()
	return hex.EncodeToString(h[:])
}

// GetEncodableHash returns the block hash in little-endian wire order.
func (b *Block) GetEncodableHash() hash32.T {
	return b.hdr.GetEncodableHash()
}

// GetDisplayPrevHash returns the block's previous hash in big-endian format.
func (b *Block) GetDisplayPrevHash() hash32.T {
	return b.hdr.GetDisplayPrevHash()
}

// ParseFromSlice deserializes a block (header, transaction count,
// transactions) from the given data and returns a slice to the remaining
// data. The caller should verify there is no remaining data if none is
// expected.
func (b *Block) ParseFromSlice(data []byte) (rest []byte, err error) {
	hdr := NewBlockHeader()
	data, err = hdr.ParseFromSlice(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing block header")
	}

	s := bytestring.String(data)
	var txCount uint64
	if !s.ReadCompactSize(&txCount) {
		return nil, errors.New("could not read tx_count")
	}
	if txCount == 0 {
		return nil, errors.New("block has no transactions")
	}
	data = []byte(s)

	vtx := make([]*Transaction, 0, txCount)
	var i uint64
	for i = 0; i < txCount && len(data) > 0; i++ {
		tx := NewTransaction()
		data, err = tx.ParseFromSlice(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing transaction %d", i)
		}
		vtx = append(vtx, tx)
	}
	if i < txCount {
		return nil, errors.New("parsing block transactions: not enough data")
	}
	b.hdr = hdr
	b.vtx = vtx
	return data, nil
}
