// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package oracle

import "errors"

// The conditioned region of the histogram: bins at or below lowCutoff
// (under 1k sats) and at or above highCutoff (100 BTC and up) carry no
// round-USD signal and are zeroed.
const (
	lowCutoff  = 200
	highCutoff = 1601
)

// Round-BTC amounts produce their own spikes, which would confound the
// round-USD fit. These bins are replaced by the mean of their immediate
// neighbors rather than zeroed: when the USD price is itself round, the
// two spike families co-align and the signal must survive.
var roundBTCBins = []int{
	201,  // 1k sats
	401,  // 10k
	461,  // 20k
	496,  // 30k
	540,  // 50k
	601,  // 100k
	661,  // 200k
	696,  // 300k
	740,  // 500k
	801,  // 0.01 btc
	861,  // 0.02
	896,  // 0.03
	940,  // 0.05
	1001, // 0.1
	1061, // 0.2
	1096, // 0.3
	1140, // 0.5
	1201, // 1 btc
}

// Normalized counts above this are clipped; chosen by historical testing.
const clipCeiling = 0.008

// ErrEmptyHistogram means no qualifying output landed in the usable
// range: there is not enough data to infer a price.
var ErrEmptyHistogram = errors.New("no qualifying outputs in the histogram range")

// Condition prepares the raw histogram for stencil correlation, in
// place: zero the outer ranges, smooth the round-BTC spikes, normalize
// the usable range to unit sum, and clip extremes.
func (h *Histogram) Condition() error {
	for n := 0; n <= lowCutoff; n++ {
		h.Counts[n] = 0
	}
	for n := highCutoff; n < len(h.Counts); n++ {
		h.Counts[n] = 0
	}

	for _, r := range roundBTCBins {
		h.Counts[r] = 0.5 * (h.Counts[r-1] + h.Counts[r+1])
	}

	var sum float64
	for n := lowCutoff + 1; n < highCutoff; n++ {
		sum += h.Counts[n]
	}
	if sum == 0 {
		return ErrEmptyHistogram
	}
	for n := lowCutoff + 1; n < highCutoff; n++ {
		h.Counts[n] /= sum
		if h.Counts[n] > clipCeiling {
			h.Counts[n] = clipCeiling
		}
	}
	return nil
}
