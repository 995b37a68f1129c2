// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package oracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/utxoracle/utxoracled/blkfile"
	"github.com/utxoracle/utxoracled/common"
	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser"
)

// LocationCache persists resolved block locations between runs, so a
// window whose blocks were located once skips the file scan. Hashes are
// keyed in big-endian display order. Implementations may be nil-safe at
// the call site: a nil cache disables caching.
type LocationCache interface {
	GetLocation(hash string) (blkfile.Location, bool, error)
	StoreLocation(hash string, loc blkfile.Location) error
}

// Target selects the block window to price.
type Target struct {
	// Date is the UTC day to evaluate (must be a UTC midnight);
	// ignored when Recent is set.
	Date time.Time

	// Recent selects the blocks from 144 below the consensus tip through
	// the tip instead of a day.
	Recent bool
}

// PriceResult is the outcome of one inference run.
type PriceResult struct {
	Price       int     // central price, USD
	Deviation   float64 // relative dispersion of the price cluster
	Band        float64 // reporting band around the price
	StartHeight int
	EndHeight   int
	Date        string // "YYYY-MM-DD", or "" in recent mode
	Samples     int    // implied-price samples behind the estimate
}

// Window returns the result's window label: the UTC date in date mode,
// the height range in recent mode.
func (r *PriceResult) Window() string {
	if r.Date != "" {
		return r.Date
	}
	return fmt.Sprintf("%d-%d", r.StartHeight, r.EndHeight)
}

// InferPrice runs the full pipeline: locate the target window through
// the RPC collaborator, find those blocks in the blk files, parse them,
// accumulate the output histogram, fit the stencils, and refine the
// dominant price cluster. It honors ctx between blocks and RPC calls;
// on cancellation partial results are discarded.
//
// The returned PricePoint list backs downstream rendering.
func InferPrice(ctx context.Context, target Target, blocksDir string, cache LocationCache) (*PriceResult, []PricePoint, error) {
	sc := blkfile.NewScanner(blocksDir)
	if err := sc.CheckXorKey(); err != nil {
		return nil, nil, err
	}

	var refs []common.BlockRef
	var err error
	if target.Recent {
		fmt.Println("Finding the last 144 blocks")
		refs, err = common.FindRecentBlocks(ctx)
	} else {
		fmt.Println("Finding all blocks on " + target.Date.Format("Jan 02, 2006"))
		refs, err = common.FindDayBlocks(ctx, target.Date)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, errors.New("target window contains no blocks")
	}

	locations, err := locateBlocks(ctx, sc, refs, cache)
	if err != nil {
		return nil, nil, err
	}

	fmt.Println("Loading every transaction from every block")
	acc := NewAccumulator()
	progress := common.NewProgress(len(refs))
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		loc := locations[ref.Hash]
		payload, err := sc.ReadPayload(loc)
		if err != nil {
			return nil, nil, err
		}
		block := parser.NewBlock()
		rest, err := block.ParseFromSlice(payload)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parsing block %d", ref.Height)
		}
		if len(rest) != 0 {
			return nil, nil, errors.Errorf("block %d: %d trailing bytes", ref.Height, len(rest))
		}
		if block.GetDisplayHash() != ref.Hash {
			return nil, nil, errors.Errorf("block %d: hash mismatch on disk", ref.Height)
		}
		acc.Screen(block, ref.Height, ref.Time)
		common.BlocksParsed.Inc()
		progress.Step(i + 1)
	}
	progress.Finish()

	// The day's txid set is complete only now; the same-day reuse filter
	// runs as a second pass over the screened candidates.
	hist, samples := acc.Accumulate()
	common.Log.WithFields(logrus.Fields{
		"blocks":  len(refs),
		"samples": len(samples),
	}).Info("histogram accumulated")

	fmt.Println("Finding prices")
	if err := hist.Condition(); err != nil {
		return nil, nil, err
	}

	rough := Correlate(hist)
	common.Log.WithFields(logrus.Fields{
		"slide": rough.Slide,
		"price": rough.Price,
	}).Info("rough stencil fit")

	refined, err := Refine(samples, rough.Price)
	if err != nil {
		return nil, nil, err
	}

	result := &PriceResult{
		Price:       int(math.Round(refined.Price)),
		Deviation:   refined.Deviation,
		Band:        refined.Band,
		StartHeight: refs[0].Height,
		EndHeight:   refs[len(refs)-1].Height,
		Samples:     len(refined.Points),
	}
	if !target.Recent {
		result.Date = target.Date.Format("2006-01-02")
	}
	common.Log.WithFields(logrus.Fields{
		"window":  result.Window(),
		"price":   result.Price,
		"samples": result.Samples,
	}).Info("price inferred")
	return result, refined.Points, nil
}

// locateBlocks resolves every window block to its blk file location.
// Blocks already resolved by a previous run come out of the cache; only
// the misses are hunted in the blk files, starting the scan at a
// conservative estimate of how far back in the file sequence the window
// begins. Newly scanned locations go back into the cache.
func locateBlocks(ctx context.Context, sc *blkfile.Scanner, refs []common.BlockRef, cache LocationCache) (map[hash32.T]blkfile.Location, error) {
	locations := make(map[hash32.T]blkfile.Location, len(refs))
	targets := make(map[hash32.T]struct{}, len(refs))
	for _, ref := range refs {
		if cache != nil {
			loc, found, err := cache.GetLocation(hash32.Encode(ref.Hash))
			if err != nil {
				return nil, err
			}
			if found {
				locations[ref.Hash] = loc
				continue
			}
		}
		targets[ref.Hash] = struct{}{}
	}
	if len(targets) == 0 {
		common.Log.WithFields(logrus.Fields{
			"blocks": len(locations),
		}).Info("all block locations served from cache")
		return locations, nil
	}

	fmt.Println("Mapping block locations in raw block files")
	count, err := common.GetBlockCount()
	if err != nil {
		return nil, err
	}
	lastIndex, err := sc.LastFileIndex()
	if err != nil {
		return nil, err
	}
	if lastIndex < 0 {
		return nil, blkfile.ErrBlocksNotFound
	}

	start := blkfile.EstimateStartIndex(lastIndex, count-refs[0].Height)
	found, err := sc.FindBlocks(ctx, targets, start)
	if err != nil {
		return nil, err
	}
	for hash, loc := range found {
		locations[hash] = loc
		if cache != nil {
			if err := cache.StoreLocation(hash32.Encode(hash), loc); err != nil {
				common.Log.WithFields(logrus.Fields{
					"error": err,
				}).Warn("couldn't cache block location")
			}
		}
	}
	return locations, nil
}
