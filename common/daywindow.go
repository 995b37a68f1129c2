// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package common

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utxoracle/utxoracled/hash32"
)

const (
	// Average block production rate used for jump estimates only; the
	// walk itself is exact.
	blocksPerDay = 144

	secondsPerDay = 24 * 60 * 60

	// Blocks below the tip considered consensus-final.
	consensusDepth = 6
)

// Round-USD output density before this date is too thin for the stencil
// fit to be trustworthy.
var minSupportedDate = time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC)

var (
	// ErrDateTooRecent means the requested day is not yet fully
	// confirmed (needs 6 blocks past its last block).
	ErrDateTooRecent = errors.New("date is after the latest completed UTC day; try --recent-blocks for recent blocks")

	// ErrDateTooOld means the requested day predates 2023-12-15.
	ErrDateTooOld = errors.New("date is before 2023-12-15, the earliest supported day")
)

// BlockRef identifies one block of the target window.
type BlockRef struct {
	Height int
	Hash   hash32.T
	Time   int64
}

// blockTime fetches the timestamp and hash of the block at the given
// height.
func blockTime(height int) (int64, hash32.T, error) {
	hashHex, err := GetBlockHash(height)
	if err != nil {
		return 0, hash32.Nil, err
	}
	hash, err := hash32.Decode(hashHex)
	if err != nil {
		return 0, hash32.Nil, err
	}
	header, err := GetBlockHeader(hashHex)
	if err != nil {
		return 0, hash32.Nil, err
	}
	return header.Time, hash, nil
}

// sameUTCDay reports whether the Unix timestamp falls on the given UTC
// day (which must be a UTC midnight).
func sameUTCDay(ts int64, day time.Time) bool {
	t := time.Unix(ts, 0).UTC()
	return t.Year() == day.Year() && t.Month() == day.Month() && t.Day() == day.Day()
}

// jumpEstimate converts a seconds-ahead-of-target delta into a block
// count at the average production rate.
func jumpEstimate(ts, targetSec int64) int {
	return int(math.Round(blocksPerDay * float64(ts-targetSec) / secondsPerDay))
}

// FindDayBlocks returns the contiguous run of blocks whose header
// timestamps fall on the target UTC day. The target must be a UTC
// midnight. The search reads block headers through the RPC collaborator:
// a coarse guess from the tip timestamp is refined by exponential jumps
// until it oscillates around the day boundary, then stepped one block at
// a time to the exact first block of the day.
func FindDayBlocks(ctx context.Context, target time.Time) ([]BlockRef, error) {
	if target.Before(minSupportedDate) {
		return nil, ErrDateTooOld
	}

	count, err := GetBlockCount()
	if err != nil {
		return nil, err
	}
	tip := count - consensusDepth
	tipTime, _, err := blockTime(tip)
	if err != nil {
		return nil, err
	}

	// The target day must have ended before the consensus tip's own day
	// began, otherwise its last blocks may not be final yet.
	tipMidnight := time.Unix(tipTime, 0).UTC().Truncate(secondsPerDay * time.Second)
	if !target.Before(tipMidnight) {
		return nil, ErrDateTooRecent
	}
	targetSec := target.Unix()

	Log.WithFields(logrus.Fields{
		"target": target.Format("2006-01-02"),
		"tip":    tip,
	}).Info("locating first block of target day")

	// Coarse guess, then jump refinement. The jump oscillates once the
	// guess brackets the boundary; comparing against the jump from two
	// iterations ago detects the cycle.
	guess := tip - jumpEstimate(tipTime, targetSec)
	ts, _, err := blockTime(guess)
	if err != nil {
		return nil, err
	}
	jump := jumpEstimate(ts, targetSec)
	lastJump, lastLastJump := 0, 0
	for abs(jump) > consensusDepth && jump != lastLastJump {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastLastJump = lastJump
		lastJump = jump
		guess -= jump
		ts, _, err = blockTime(guess)
		if err != nil {
			return nil, err
		}
		jump = jumpEstimate(ts, targetSec)
	}

	// Single-block stepping to the exact boundary: leave guess at the
	// first block with time >= midnight of the target day.
	if ts >= targetSec {
		for ts >= targetSec {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			guess--
			ts, _, err = blockTime(guess)
			if err != nil {
				return nil, err
			}
		}
		guess++
		ts, _, err = blockTime(guess)
		if err != nil {
			return nil, err
		}
	} else {
		for ts < targetSec {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			guess++
			ts, _, err = blockTime(guess)
			if err != nil {
				return nil, err
			}
		}
	}

	// Forward walk collecting the whole day.
	var refs []BlockRef
	progress := NewProgress(blocksPerDay)
	height := guess
	for sameUTCDay(ts, target) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var hash hash32.T
		ts, hash, err = blockTime(height)
		if err != nil {
			return nil, err
		}
		if !sameUTCDay(ts, target) {
			break
		}
		refs = append(refs, BlockRef{Height: height, Hash: hash, Time: ts})
		progress.Step(len(refs))
		height++
	}
	progress.Finish()
	if len(refs) == 0 {
		return nil, errors.New("no blocks found on the target day")
	}

	Log.WithFields(logrus.Fields{
		"first":  refs[0].Height,
		"last":   refs[len(refs)-1].Height,
		"blocks": len(refs),
	}).Info("target day window located")
	return refs, nil
}

// FindRecentBlocks returns the blocks from tip-144 through the consensus
// tip (6 blocks below the raw chain tip), 145 blocks in all, without any
// date arithmetic.
func FindRecentBlocks(ctx context.Context) ([]BlockRef, error) {
	count, err := GetBlockCount()
	if err != nil {
		return nil, err
	}
	tip := count - consensusDepth
	start := tip - blocksPerDay

	refs := make([]BlockRef, 0, blocksPerDay+1)
	progress := NewProgress(blocksPerDay + 1)
	for height := start; height <= tip; height++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ts, hash, err := blockTime(height)
		if err != nil {
			return nil, err
		}
		refs = append(refs, BlockRef{Height: height, Hash: hash, Time: ts})
		progress.Step(len(refs))
	}
	progress.Finish()
	return refs, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
