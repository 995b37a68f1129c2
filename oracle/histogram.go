// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package oracle infers a daily USD/BTC price from the statistical
// distribution of on-chain output amounts: round-USD payments leave
// recognizable spikes on a logarithmic histogram, and the horizontal
// position of those spikes identifies the exchange rate.
package oracle

import (
	"math"

	"github.com/utxoracle/utxoracled/common"
	"github.com/utxoracle/utxoracled/hash32"
	"github.com/utxoracle/utxoracled/parser"
)

const (
	// NumBins is the grid length: bin 0 holds zero, then 200 bins per
	// decade across the 12 decades from 1e-6 to 1e6 BTC.
	NumBins = 2401

	binsPerDecade = 200
	firstExponent = -6

	// AnchorBin is the index of 0.001 BTC, the geometric anchor tying a
	// stencil offset of zero to $100 = 0.001 BTC ($100,000/BTC).
	AnchorBin = 601
)

// Output amounts outside this open interval (in BTC) never participate.
const (
	minAmount = 1e-5
	maxAmount = 1e5
)

// Filter bounds for a transaction to look like a p2p payment.
const (
	maxFilterInputs = 5
	requiredOutputs = 2
	maxWitnessLoad  = 500
)

// NewGrid builds the logarithmic bin boundary table. Index 0 holds 0.0;
// index i>0 holds 10^(exp + b/200). An amount v lands in the largest
// index i with grid[i] <= v.
func NewGrid() []float64 {
	grid := make([]float64, 1, NumBins)
	grid[0] = 0.0
	for exp := firstExponent; exp < firstExponent+12; exp++ {
		for b := 0; b < binsPerDecade; b++ {
			grid = append(grid, math.Pow(10, float64(exp)+float64(b)/binsPerDecade))
		}
	}
	return grid
}

// Histogram pairs the immutable grid with mutable counts.
type Histogram struct {
	Grid   []float64
	Counts []float64
}

// NewHistogram returns a zeroed histogram over a fresh grid.
func NewHistogram() *Histogram {
	return &Histogram{
		Grid:   NewGrid(),
		Counts: make([]float64, NumBins),
	}
}

// binFor locates the bin of an in-range amount: a log10 starting guess,
// then a forward scan to absorb float rounding at decade edges.
func (h *Histogram) binFor(amount float64) int {
	k := int((math.Log10(amount)-firstExponent)*binsPerDecade) + 1
	if k < 1 {
		k = 1
	}
	for k < len(h.Grid) && h.Grid[k] <= amount {
		k++
	}
	return k - 1
}

// Add increments the bin containing the given in-range amount.
func (h *Histogram) Add(amount float64) {
	h.Counts[h.binFor(amount)]++
}

// Sample is one qualifying output retained for the cluster refiner.
type Sample struct {
	Amount float64 // BTC
	Height int
	Time   int64
}

// candidate is a transaction that passed every per-transaction filter
// except the same-day reuse check, which can only run once the full
// day's txid set is frozen.
type candidate struct {
	prevTxids []hash32.T
	amounts   []float64 // in-range output values, BTC
	height    int
	time      int64
}

// Accumulator feeds qualifying outputs into the histogram. It works in
// two passes: Screen gathers every transaction id of the window and the
// filter-passing candidates while blocks stream by; Accumulate then
// applies the frozen same-day set and fills the histogram. The two-pass
// form makes the reuse filter independent of block iteration order.
type Accumulator struct {
	hist       *Histogram
	dayTxids   map[hash32.T]struct{}
	candidates []candidate
	samples    []Sample
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		hist:     NewHistogram(),
		dayTxids: make(map[hash32.T]struct{}),
	}
}

// Screen records the txids of every transaction in the block and retains
// candidates that pass the static filters: not coinbase, at most 5
// inputs, exactly 2 outputs, no OP_RETURN output, and witness payload
// within bounds (both in total and per stack item).
func (a *Accumulator) Screen(block *parser.Block, height int, blockTime int64) {
	for _, tx := range block.Transactions() {
		a.dayTxids[tx.GetDisplayHash()] = struct{}{}
		common.TxsParsed.Inc()

		if tx.IsCoinbase() ||
			len(tx.Inputs()) > maxFilterInputs ||
			len(tx.Outputs()) != requiredOutputs ||
			tx.HasOpReturn() ||
			tx.WitnessBytes() > maxWitnessLoad ||
			tx.MaxWitnessItem() > maxWitnessLoad {
			continue
		}

		c := candidate{height: height, time: blockTime}
		for _, in := range tx.Inputs() {
			c.prevTxids = append(c.prevTxids, hash32.Reverse(in.PrevTxHash))
		}
		for _, out := range tx.Outputs() {
			amount := float64(out.Value) / 1e8
			if amount > minAmount && amount < maxAmount {
				c.amounts = append(c.amounts, amount)
			}
		}
		if len(c.amounts) > 0 {
			a.candidates = append(a.candidates, c)
		}
	}
}

// Accumulate applies the same-day reuse filter against the now-frozen
// txid set and bins the surviving outputs. It returns the histogram and
// the retained sample list; the accumulator must not be reused after.
func (a *Accumulator) Accumulate() (*Histogram, []Sample) {
	for _, c := range a.candidates {
		if a.spendsSameDay(c.prevTxids) {
			continue
		}
		for _, amount := range c.amounts {
			a.hist.Add(amount)
			a.samples = append(a.samples, Sample{Amount: amount, Height: c.height, Time: c.time})
			common.OutputsBinned.Inc()
		}
	}
	a.candidates = nil
	return a.hist, a.samples
}

func (a *Accumulator) spendsSameDay(prevTxids []hash32.T) bool {
	for _, txid := range prevTxids {
		if _, ok := a.dayTxids[txid]; ok {
			return true
		}
	}
	return false
}
