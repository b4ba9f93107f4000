package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/cryptotrader/indicators"
	"github.com/rustyeddy/cryptotrader/market"
)

// MACrossover trades a single symbol using a fast/slow SMA crossover.
//   - long when fast crosses above slow on the latest candle
//   - short on the mirrored cross
//   - optional RSI gate: no longs above overbought, no shorts below oversold
type MACrossover struct {
	Fast       int
	Slow       int
	RSIPeriod  int
	RSIFilter  bool
	Overbought float64
	Oversold   float64
}

func MACrossoverDefaults() *MACrossover {
	return &MACrossover{
		Fast:       10,
		Slow:       20,
		RSIPeriod:  14,
		RSIFilter:  true,
		Overbought: 70,
		Oversold:   30,
	}
}

func NewMACrossover(p Params) (Strategy, error) {
	d := MACrossoverDefaults()
	s := &MACrossover{
		Fast:       p.Int("fast", d.Fast),
		Slow:       p.Int("slow", d.Slow),
		RSIPeriod:  p.Int("rsi_period", d.RSIPeriod),
		RSIFilter:  p.Bool("rsi_filter", d.RSIFilter),
		Overbought: p.Float("overbought", d.Overbought),
		Oversold:   p.Float("oversold", d.Oversold),
	}
	if s.Fast <= 0 || s.Slow <= 0 || s.RSIPeriod <= 0 {
		return nil, fmt.Errorf("periods must be positive: fast=%d slow=%d rsi=%d", s.Fast, s.Slow, s.RSIPeriod)
	}
	if s.Fast >= s.Slow {
		return nil, fmt.Errorf("fast period %d must be shorter than slow period %d", s.Fast, s.Slow)
	}
	if s.Oversold >= s.Overbought {
		return nil, fmt.Errorf("oversold %.1f must be below overbought %.1f", s.Oversold, s.Overbought)
	}
	return s, nil
}

func (s *MACrossover) Name() string { return "ma_crossover" }

// Warmup covers the previous-candle slow average and the RSI seed.
func (s *MACrossover) Warmup() int {
	return max(s.Slow, s.RSIPeriod+1) + 1
}

func (s *MACrossover) Evaluate(window []market.Candle) (market.Signal, error) {
	if err := checkWindow(s, window); err != nil {
		return market.Signal{}, err
	}

	last := window[len(window)-1]
	sig := market.FlatSignal(last)

	closes := indicators.Closes(window)
	fast := indicators.SMASeries(closes, s.Fast)
	slow := indicators.SMASeries(closes, s.Slow)
	rsi := indicators.Last(indicators.RSI(closes, s.RSIPeriod))

	fastNow, fastPrev := indicators.At(fast, 0), indicators.At(fast, 1)
	slowNow, slowPrev := indicators.At(slow, 0), indicators.At(slow, 1)

	sig.Meta = map[string]float64{
		"fast_ma": fastNow,
		"slow_ma": slowNow,
		"rsi":     rsi,
		"volume":  last.Volume,
	}

	crossUp := fastPrev <= slowPrev && fastNow > slowNow
	crossDown := fastPrev >= slowPrev && fastNow < slowNow

	switch {
	case crossUp:
		if s.RSIFilter && rsi > s.Overbought {
			sig.Reason = fmt.Sprintf("golden cross suppressed: rsi %.1f overbought", rsi)
			return sig, nil
		}
		sig.Direction = market.Long
		sig.Reason = "golden cross"
	case crossDown:
		if s.RSIFilter && rsi < s.Oversold {
			sig.Reason = fmt.Sprintf("death cross suppressed: rsi %.1f oversold", rsi)
			return sig, nil
		}
		sig.Direction = market.Short
		sig.Reason = "death cross"
	default:
		return sig, nil
	}

	sig.Confidence = s.confidence(window, closes, rsi, sig.Direction)
	return sig, nil
}

func (s *MACrossover) confidence(window []market.Candle, closes []float64, rsi float64, dir market.Direction) float64 {
	c := 0.6

	vols := indicators.Volumes(window)
	if vma := indicators.Last(indicators.SMASeries(vols, 20)); !math.IsNaN(vma) && indicators.Last(vols) > vma*1.2 {
		c += 0.1
	}

	if dir == market.Long && rsi > 30 && rsi < 50 {
		c += 0.1
	} else if dir == market.Short && rsi > 50 && rsi < 70 {
		c += 0.1
	}

	// momentum against the close four bars back
	if ref := indicators.At(closes, 4); !math.IsNaN(ref) && ref != 0 {
		change := (indicators.Last(closes) - ref) / ref
		if (dir == market.Long && change > 0) || (dir == market.Short && change < 0) {
			c += 0.1
		}
	}
	return clamp01(c)
}
