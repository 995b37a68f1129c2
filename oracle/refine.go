// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package oracle

import (
	"sort"

	"github.com/pkg/errors"
)

// Round USD amounts whose outputs are converted to implied prices.
var usdReferences = []float64{5, 10, 15, 20, 25, 30, 40, 50, 100, 150, 200, 300, 500, 1000}

const (
	// Capture band around each reference amount at the rough price.
	wideRange = 0.25

	// Re-centering window of the iterative cluster search.
	tightRange = 0.05

	// Window used for the final dispersion measurement.
	mediumRange = 0.10

	// Relative tolerance for the micro-round-sat exclusion.
	microTolerance = 0.0001
)

// PricePoint is one output's implied USD/BTC price.
type PricePoint struct {
	Price  float64
	Height int
	Time   int64
}

// microRoundAmounts enumerates the "round satoshi" BTC values excluded
// from the sample set: every 1e-5 step through the 1e-5..1e-3 decades,
// then every 1e-4, 1e-3, and 1e-2 step through the next three.
func microRoundAmounts() []float64 {
	var amounts []float64
	for k := 1; k < 10; k++ {
		amounts = append(amounts, float64(k)*1e-5)
	}
	for k := 10; k < 100; k++ {
		amounts = append(amounts, float64(k)*1e-5)
	}
	for k := 10; k < 100; k++ {
		amounts = append(amounts, float64(k)*1e-4)
	}
	for k := 10; k < 100; k++ {
		amounts = append(amounts, float64(k)*1e-3)
	}
	for k := 10; k < 100; k++ {
		amounts = append(amounts, float64(k)*1e-2)
	}
	return amounts
}

func isMicroRound(amount float64, rounds []float64) bool {
	for _, r := range rounds {
		if amount > r-microTolerance*r && amount < r+microTolerance*r {
			return true
		}
	}
	return false
}

// impliedPrices converts each sample within ±25% of a round-USD amount
// (at the rough price) into the price that would make it exactly round,
// skipping amounts that are themselves round satoshi values.
func impliedPrices(samples []Sample, roughPrice int) []PricePoint {
	rounds := microRoundAmounts()
	var points []PricePoint
	for _, s := range samples {
		for _, usd := range usdReferences {
			atRough := usd / float64(roughPrice)
			if s.Amount <= atRough-wideRange*atRough || s.Amount >= atRough+wideRange*atRough {
				continue
			}
			if isMicroRound(s.Amount, rounds) {
				continue
			}
			points = append(points, PricePoint{
				Price:  usd / s.Amount,
				Height: s.Height,
				Time:   s.Time,
			})
		}
	}
	return points
}

// centralOutput restricts prices to the open interval (lo, hi) and
// returns the member minimizing total absolute deviation to the others
// (the L1 medoid), along with the median absolute deviation around it
// and the restricted sample count. Prefix sums keep it linear after the
// sort.
func centralOutput(prices []float64, lo, hi float64) (best, mad float64, n int) {
	var window []float64
	for _, p := range prices {
		if lo < p && p < hi {
			window = append(window, p)
		}
	}
	n = len(window)
	if n == 0 {
		return 0, 0, 0
	}
	sort.Float64s(window)

	prefix := make([]float64, n)
	var total float64
	for i, p := range window {
		total += p
		prefix[i] = total
	}

	bestIdx := 0
	bestDist := 0.0
	for i, p := range window {
		var leftSum float64
		if i > 0 {
			leftSum = prefix[i-1]
		}
		rightSum := total - prefix[i]
		dist := (p*float64(i) - leftSum) + (rightSum - p*float64(n-i-1))
		if i == 0 || dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	best = window[bestIdx]

	deviations := make([]float64, n)
	for i, p := range window {
		d := p - best
		if d < 0 {
			d = -d
		}
		deviations[i] = d
	}
	sort.Float64s(deviations)
	if n%2 == 0 {
		mad = (deviations[n/2-1] + deviations[n/2]) / 2
	} else {
		mad = deviations[n/2]
	}
	return best, mad, n
}

// Refined is the cluster refiner's result.
type Refined struct {
	Price     float64 // fixed-point central price
	Deviation float64 // MAD over the ±10% window, relative to that window
	Band      float64 // reporting band, clamped to [0.05, 0.20]
	Points    []PricePoint
}

// Refine locates the center of the dominant cluster of implied prices:
// starting from the rough estimate, it repeatedly finds the central
// output within a ±5% window and re-centers the window on it, stopping
// at a fixed point. A seen-set guarantees termination even if the
// sequence cycles.
func Refine(samples []Sample, roughPrice int) (*Refined, error) {
	points := impliedPrices(samples, roughPrice)
	if len(points) == 0 {
		return nil, errors.Errorf("no implied-price samples near rough estimate %d", roughPrice)
	}
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}

	price, _, n := centralOutput(prices,
		float64(roughPrice)-tightRange*float64(roughPrice),
		float64(roughPrice)+tightRange*float64(roughPrice))
	if n == 0 {
		return nil, errors.Errorf("no implied-price samples within ±5%% of rough estimate %d", roughPrice)
	}

	seen := map[float64]struct{}{}
	for {
		if _, ok := seen[price]; ok {
			break
		}
		seen[price] = struct{}{}
		next, _, n := centralOutput(prices, price-tightRange*price, price+tightRange*price)
		if n == 0 || next == price {
			break
		}
		price = next
	}

	// Day-scale price movement can exceed the tight window, so measure
	// dispersion over a wider one and map it onto the reporting band.
	lo := price - mediumRange*price
	hi := price + mediumRange*price
	_, mad, _ := centralOutput(prices, lo, hi)
	deviation := mad / (hi - lo)

	band := 0.05 + (deviation-0.17)*(0.15-0.05)/(0.20-0.17)
	if band < 0.05 {
		band = 0.05
	}
	if band > 0.20 {
		band = 0.20
	}

	return &Refined{Price: price, Deviation: deviation, Band: band, Points: points}, nil
}
