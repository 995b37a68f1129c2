// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package hash32

import (
	"encoding/hex"
	"testing"
)

func TestReverse(t *testing.T) {
	var h T
	for i := range h {
		h[i] = byte(i)
	}
	r := Reverse(h)
	for i := range r {
		if r[i] != byte(31-i) {
			t.Fatalf("Reverse() wrong at %d", i)
		}
	}
	if Reverse(r) != h {
		t.Fatal("double Reverse() is not the identity")
	}
	if h[0] != 0 {
		t.Fatal("Reverse() mutated its argument")
	}
}

func TestDecodeEncode(t *testing.T) {
	const s = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	h, err := Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if Encode(h) != s {
		t.Fatal("Encode(Decode()) is not the identity")
	}

	if _, err := Decode("abcd"); err == nil {
		t.Error("short hex unexpectedly decoded")
	}
	if _, err := Decode("zz"); err == nil {
		t.Error("invalid hex unexpectedly decoded")
	}
}

// Hashing the mainnet genesis header must yield the canonical block
// hash once byte-reversed into display order.
func TestSum256d(t *testing.T) {
	header, err := hex.DecodeString(
		"0100000000000000000000000000000000000000000000000000000000000000" +
			"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
			"4b1e5e4a29ab5f49ffff001d1dac2b7c")
	if err != nil {
		t.Fatal(err)
	}
	got := Encode(Reverse(Sum256d(header)))
	if got != "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f" {
		t.Fatalf("genesis hash = %s", got)
	}
}

func TestSliceRoundTrip(t *testing.T) {
	var h T
	h[0], h[31] = 0xAA, 0xBB
	if FromSlice(ToSlice(h)) != h {
		t.Fatal("FromSlice(ToSlice()) is not the identity")
	}
	if len(ToSlice(h)) != 32 {
		t.Fatal("ToSlice() wrong length")
	}
}
