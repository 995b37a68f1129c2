// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package oracle

import "math"

// Slide bounds: -141 reaches $500k, 200 reaches $10k. The smooth stencil
// only contributes below slide 150; beyond that the Gaussian shape sits
// over the wrong region of the distribution.
const (
	minSlide          = -141
	maxSlide          = 201
	smoothWeight      = 0.65
	smoothSlideCutoff = 150
)

// RoughFit is the stencil correlator's output.
type RoughFit struct {
	Slide int     // best-fit offset from the anchor bin
	Price int     // weighted rough USD/BTC estimate
	Score float64 // combined score at the best slide
}

// window returns the StencilLen-element histogram slice for slide s.
func (h *Histogram) window(s int) []float64 {
	lo := AnchorBin - 401 + s
	return h.Counts[lo : lo+StencilLen]
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Correlate slides the smooth and spike stencils across the conditioned
// histogram, scores every offset, and interpolates the best offset with
// its stronger neighbor to produce a rough USD price. The result is
// deterministic for a fixed histogram.
func Correlate(h *Histogram) RoughFit {
	smooth := newSmoothStencil()
	spike := newSpikeStencil()

	bestSlide := 0
	bestScore := 0.0
	totalScore := 0.0
	for s := minSlide; s < maxSlide; s++ {
		w := h.window(s)
		score := dot(w, spike)
		if s < smoothSlideCutoff {
			score += smoothWeight * dot(w, smooth)
		}
		if score > bestScore {
			bestScore = score
			bestSlide = s
		}
		totalScore += score
	}

	// Compare the two neighboring offsets on the spike stencil alone and
	// blend toward the stronger one, weighting each against the mean
	// score baseline.
	neighborUp := dot(h.window(bestSlide+1), spike)
	neighborDown := dot(h.window(bestSlide-1), spike)
	bestNeighbor, neighborScore := 1, neighborUp
	if neighborDown > neighborUp {
		bestNeighbor, neighborScore = -1, neighborDown
	}

	price1 := 100 / h.Grid[AnchorBin+bestSlide]
	price2 := 100 / h.Grid[AnchorBin+bestSlide+bestNeighbor]

	meanScore := totalScore / float64(maxSlide-minSlide)
	a1 := bestScore - meanScore
	a2 := math.Abs(neighborScore - meanScore)
	rough := int(math.Round((a1*price1 + a2*price2) / (a1 + a2)))

	return RoughFit{Slide: bestSlide, Price: rough, Score: bestScore}
}
