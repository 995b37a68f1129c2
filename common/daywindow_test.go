// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package common

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"
)

// A synthetic chain producing one block exactly every 600 seconds from a
// UTC midnight origin, so UTC days hold exactly 144 blocks.
const (
	stubChainOrigin = 1709251200 // 2024-03-01 00:00:00 UTC
	stubChainCount  = 5000
)

func stubChainRequest(method string, params []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "getblockcount":
		return json.RawMessage(strconv.Itoa(stubChainCount)), nil
	case "getblockhash":
		height, err := strconv.Atoi(string(params[0]))
		if err != nil {
			return nil, err
		}
		return json.RawMessage(fmt.Sprintf(`"%064x"`, height)), nil
	case "getblockheader":
		var hash string
		if err := json.Unmarshal(params[0], &hash); err != nil {
			return nil, err
		}
		height, err := strconv.ParseInt(hash, 16, 64)
		if err != nil {
			return nil, err
		}
		reply := fmt.Sprintf(`{"hash":"%s","height":%d,"time":%d}`,
			hash, height, stubChainOrigin+height*600)
		return json.RawMessage(reply), nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func TestFindDayBlocks(t *testing.T) {
	RawRequest = stubChainRequest

	target := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	refs, err := FindDayBlocks(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}

	// Day 9 of the synthetic chain spans exactly heights 1296..1439.
	if len(refs) != 144 {
		t.Fatalf("got %d blocks, want 144", len(refs))
	}
	if refs[0].Height != 1296 {
		t.Errorf("first height = %d, want 1296", refs[0].Height)
	}
	if refs[len(refs)-1].Height != 1439 {
		t.Errorf("last height = %d, want 1439", refs[len(refs)-1].Height)
	}
	for i, ref := range refs {
		if ref.Time != stubChainOrigin+int64(ref.Height)*600 {
			t.Fatalf("ref %d has wrong time", i)
		}
		if i > 0 && ref.Height != refs[i-1].Height+1 {
			t.Fatal("window is not contiguous")
		}
		if !sameUTCDay(ref.Time, target) {
			t.Fatalf("height %d not on the target day", ref.Height)
		}
	}
}

func TestFindDayBlocksTooOld(t *testing.T) {
	RawRequest = stubChainRequest
	target := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := FindDayBlocks(context.Background(), target); err != ErrDateTooOld {
		t.Fatalf("err = %v, want ErrDateTooOld", err)
	}
}

func TestFindDayBlocksTooRecent(t *testing.T) {
	RawRequest = stubChainRequest

	// The consensus tip (height 4994) falls on 2024-04-04; that day and
	// anything after it must be rejected.
	tipDay := time.Unix(stubChainOrigin+4994*600, 0).UTC()
	target := time.Date(tipDay.Year(), tipDay.Month(), tipDay.Day(), 0, 0, 0, 0, time.UTC)
	if _, err := FindDayBlocks(context.Background(), target); err != ErrDateTooRecent {
		t.Fatalf("err = %v, want ErrDateTooRecent", err)
	}
}

func TestFindDayBlocksCancellation(t *testing.T) {
	RawRequest = stubChainRequest
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	target := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := FindDayBlocks(ctx, target); err == nil {
		t.Fatal("cancelled locate unexpectedly succeeded")
	}
}

func TestFindRecentBlocks(t *testing.T) {
	RawRequest = stubChainRequest

	refs, err := FindRecentBlocks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 145 {
		t.Fatalf("got %d blocks, want 145", len(refs))
	}
	// The window ends at the consensus tip, 6 below the raw chain tip.
	tip := stubChainCount - 6
	if refs[0].Height != tip-144 || refs[len(refs)-1].Height != tip {
		t.Errorf("window = [%d, %d], want [%d, %d]",
			refs[0].Height, refs[len(refs)-1].Height, tip-144, tip)
	}
}
