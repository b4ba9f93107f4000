package strategies

import (
	"math"

	"github.com/rustyeddy/cryptotrader/market"
)

// ConfidenceModifier adjusts a signal after its strategy has decided on a
// direction. rsi is aligned with window.
type ConfidenceModifier interface {
	Adjust(window []market.Candle, rsi []float64, sig market.Signal) market.Signal
}

// Divergence compares price swings with RSI swings. The recent window is the
// last Lookback candles, the prior window the Prior candles before it.
//
// Bullish: the recent price low is below the prior price low while the recent
// RSI low is above the prior RSI low. Bearish is the mirror on highs. The
// price and RSI pivots of the recent window must sit within MaxPivotGap bars
// of each other.
type Divergence struct {
	Lookback    int
	Prior       int
	MaxPivotGap int
	Boost       float64
	Penalty     float64
}

func DivergenceDefaults() Divergence {
	return Divergence{
		Lookback:    20,
		Prior:       10,
		MaxPivotGap: 5,
		Boost:       1.2,
		Penalty:     0.8,
	}
}

func divergenceFromParams(p Params) Divergence {
	d := DivergenceDefaults()
	d.Lookback = p.Int("div_lookback", d.Lookback)
	d.Prior = p.Int("div_prior", d.Prior)
	d.MaxPivotGap = p.Int("div_gap", d.MaxPivotGap)
	d.Boost = p.Float("div_boost", d.Boost)
	d.Penalty = p.Float("div_penalty", d.Penalty)
	return d
}

// Span is the number of trailing candles with valid RSI Detect needs.
func (d Divergence) Span() int {
	return d.Lookback + d.Prior
}

// Detect returns Long for bullish divergence, Short for bearish, else Flat.
func (d Divergence) Detect(window []market.Candle, rsi []float64) market.Direction {
	n := len(window)
	if n < d.Span() || len(rsi) != n {
		return market.Flat
	}
	recent := n - d.Lookback
	prior := recent - d.Prior
	for i := prior; i < n; i++ {
		if math.IsNaN(rsi[i]) {
			return market.Flat
		}
	}

	low := func(i int) float64 { return window[i].Low }
	high := func(i int) float64 { return window[i].High }
	r := func(i int) float64 { return rsi[i] }

	priceLo, priceLoAt := minOver(low, recent, n)
	rsiLo, rsiLoAt := minOver(r, recent, n)
	oldPriceLo, _ := minOver(low, prior, recent)
	oldRSILo, _ := minOver(r, prior, recent)
	if abs(priceLoAt-rsiLoAt) <= d.MaxPivotGap && priceLo < oldPriceLo && rsiLo > oldRSILo {
		return market.Long
	}

	priceHi, priceHiAt := maxOver(high, recent, n)
	rsiHi, rsiHiAt := maxOver(r, recent, n)
	oldPriceHi, _ := maxOver(high, prior, recent)
	oldRSIHi, _ := maxOver(r, prior, recent)
	if abs(priceHiAt-rsiHiAt) <= d.MaxPivotGap && priceHi > oldPriceHi && rsiHi < oldRSIHi {
		return market.Short
	}
	return market.Flat
}

// Adjust boosts an agreeing signal and penalises an opposing one. Flat
// signals pass through untouched.
func (d Divergence) Adjust(window []market.Candle, rsi []float64, sig market.Signal) market.Signal {
	if sig.Direction == market.Flat {
		return sig
	}
	div := d.Detect(window, rsi)
	if sig.Meta == nil {
		sig.Meta = map[string]float64{}
	}
	switch div {
	case market.Flat:
		sig.Meta["divergence"] = 0
		return sig
	case sig.Direction:
		sig.Meta["divergence"] = 1
		sig.Confidence = clamp01(sig.Confidence * d.Boost)
	default:
		sig.Meta["divergence"] = -1
		sig.Confidence = clamp01(sig.Confidence * d.Penalty)
	}
	return sig
}

func minOver(f func(int) float64, from, to int) (float64, int) {
	best, at := math.Inf(1), -1
	for i := from; i < to; i++ {
		if v := f(i); v < best {
			best, at = v, i
		}
	}
	return best, at
}

func maxOver(f func(int) float64, from, to int) (float64, int) {
	best, at := math.Inf(-1), -1
	for i := from; i < to; i++ {
		if v := f(i); v > best {
			best, at = v, i
		}
	}
	return best, at
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
