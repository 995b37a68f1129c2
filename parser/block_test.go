// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package parser

import (
	"encoding/hex"
	"testing"
)

// genesisBlockPayload assembles the genesis block the way it appears
// inside a blk file record: header, transaction count, transactions.
func genesisBlockPayload(t *testing.T) []byte {
	t.Helper()
	payload := genesisHeaderBytes(t)
	payload = append(payload, 0x01)
	tx, err := hex.DecodeString(genesisTxHex)
	if err != nil {
		t.Fatal(err)
	}
	return append(payload, tx...)
}

func TestBlockParser(t *testing.T) {
	block := NewBlock()
	rest, err := block.ParseFromSlice(genesisBlockPayload(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected %d remaining bytes", len(rest))
	}

	if block.GetVersion() != 1 {
		t.Errorf("version = %d, want 1", block.GetVersion())
	}
	if block.GetTxCount() != 1 {
		t.Fatalf("tx count = %d, want 1", block.GetTxCount())
	}
	if len(block.Transactions()) != block.GetTxCount() {
		t.Error("transaction count mismatch")
	}
	if block.Time() != 1231006505 {
		t.Errorf("time = %d", block.Time())
	}

	if got := block.GetDisplayHashString(); got != genesisHashHex {
		t.Errorf("block hash = %s, want %s", got, genesisHashHex)
	}

	// The genesis merkle root is its only transaction's txid.
	tx := block.Transactions()[0]
	txHash := tx.GetDisplayHash()
	if hex.EncodeToString(txHash[:]) != genesisTxidHex {
		t.Error("coinbase txid mismatch")
	}
	if !tx.IsCoinbase() {
		t.Error("first transaction not detected as coinbase")
	}
}

func TestBlockParserTruncated(t *testing.T) {
	payload := genesisBlockPayload(t)
	for _, n := range []int{0, 80, 81, 100, len(payload) - 1} {
		if _, err := NewBlock().ParseFromSlice(payload[:n]); err == nil {
			t.Errorf("parsing %d of %d bytes unexpectedly succeeded", n, len(payload))
		}
	}
}

func TestBlockParserDeclaredCountTooLarge(t *testing.T) {
	payload := genesisBlockPayload(t)
	payload[HeaderSize] = 0x02 // claim two transactions, provide one
	if _, err := NewBlock().ParseFromSlice(payload); err == nil {
		t.Error("overdeclared tx count unexpectedly accepted")
	}
}
