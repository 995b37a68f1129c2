// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package oracle

import (
	"math"
	"testing"
)

// plantSpikes writes the spike pattern into a fresh histogram at the
// given slide, so the correlator has an unambiguous best fit there.
func plantSpikes(slide int) *Histogram {
	h := NewHistogram()
	for i, v := range newSpikeStencil() {
		h.Counts[AnchorBin-401+slide+i] = 50 * v
	}
	return h
}

func TestCorrelateRecoversPlantedOffset(t *testing.T) {
	for _, slide := range []int{-50, 0, 30, 120} {
		h := plantSpikes(slide)
		fit := Correlate(h)
		if fit.Slide != slide {
			t.Errorf("planted slide %d, recovered %d", slide, fit.Slide)
			continue
		}

		// The interpolated price stays within 2% (about 1.7 bins) of the
		// planted bin's own price.
		planted := 100 / h.Grid[AnchorBin+slide]
		if math.Abs(float64(fit.Price)-planted)/planted > 0.02 {
			t.Errorf("slide %d: price = %d, planted bin price %.0f",
				slide, fit.Price, planted)
		}
	}
}

// The correlator is a pure function of the histogram.
func TestCorrelateDeterministic(t *testing.T) {
	h := plantSpikes(42)
	first := Correlate(h)
	for i := 0; i < 3; i++ {
		if got := Correlate(h); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}

// A slide of zero must price the anchor bin at $100,000/BTC.
func TestCorrelateAnchorCalibration(t *testing.T) {
	h := plantSpikes(0)
	fit := Correlate(h)
	if fit.Slide != 0 {
		t.Fatalf("slide = %d, want 0", fit.Slide)
	}
	if math.Abs(float64(fit.Price)-100000)/100000 > 0.02 {
		t.Errorf("price = %d, want about 100000", fit.Price)
	}
}
