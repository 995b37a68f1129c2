// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package oracle

import "math"

// StencilLen is the length of both price-finder stencils.
const StencilLen = 803

// Smooth stencil parameters: a Gaussian matching the general shape of a
// typical day's output distribution, with a slight linear tilt.
const (
	smoothMean       = 411
	smoothSigma      = 201
	smoothScale      = 0.00150
	smoothTiltPerBin = 5e-7
)

// newSmoothStencil builds the broad-alignment stencil.
//
//	                  *  *
//	               *        *
//	            *              *
//	         *                    *
//	      *                          *
//	   10k sats   0.01 btc   1 btc   10 btc
func newSmoothStencil() []float64 {
	st := make([]float64, StencilLen)
	for x := range st {
		exp := -math.Pow(float64(x)-smoothMean, 2) / (2 * smoothSigma * smoothSigma)
		st[x] = smoothScale*math.Exp(exp) + smoothTiltPerBin*float64(x)
	}
	return st
}

// newSpikeStencil builds the fine-alignment stencil: zero everywhere
// except at the bin offsets of popular round-USD amounts. The weights
// were calibrated by manually aligning round-USD spikes across every day
// of output distributions from 2020 through 2024 and averaging; they are
// load-bearing constants and must never be recomputed.
//
//	                    *
//	                *   *
//	           *    *   *         *
//	      *    *    *   *    *    *    *
//	  *   *    *    *   *    *    *    *    *
//	 $1  $10  $20  $50 $100 $500 $1k  $2k  $10k
func newSpikeStencil() []float64 {
	st := make([]float64, StencilLen)
	st[40] = 0.001300198324984352  // $1
	st[141] = 0.001676746949820743 // $5
	st[201] = 0.003468805546942046 // $10
	st[202] = 0.001991977522512513
	st[236] = 0.001905066647961839 // $15
	st[261] = 0.003341772718156079 // $20
	st[262] = 0.002588902624584287
	st[296] = 0.002577893841190244 // $30
	st[297] = 0.002733728814200412
	st[340] = 0.003076117748975647 // $50
	st[341] = 0.005613067550103145
	st[342] = 0.003088253178535568
	st[400] = 0.002918457489366139 // $100
	st[401] = 0.006174500465286022
	st[402] = 0.004417068070043504
	st[403] = 0.002628663628020371
	st[436] = 0.002858828161543839 // $150
	st[461] = 0.004097463611984264 // $200
	st[462] = 0.003345917406120509
	st[496] = 0.002521467726855856 // $300
	st[497] = 0.002784125730361008
	st[541] = 0.003792850444811335 // $500
	st[601] = 0.003688240815848247 // $1000
	st[602] = 0.002392400117402263
	st[636] = 0.001280993059008106 // $1500
	st[661] = 0.001654665137536031 // $2000
	st[662] = 0.001395501347054946
	st[741] = 0.001154279140906312 // $5000
	st[801] = 0.000832244504868709 // $10000
	return st
}
