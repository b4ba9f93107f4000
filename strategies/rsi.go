package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/cryptotrader/indicators"
	"github.com/rustyeddy/cryptotrader/market"
)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// RSI trades threshold crossings of the relative strength index.
//
// Long when RSI crosses up through Oversold, short when it crosses down
// through Overbought. With no entry, an RSI at or beyond a threshold emits a
// flat signal asking to close the position on that side. Confidence is scored
// from RSI depth, MACD agreement, volume and price action, then passed
// through Modifier when set.
type RSI struct {
	Period     int
	Oversold   float64
	Overbought float64

	// BandFilter requires the close to sit within BandProximity of the
	// matching Bollinger band.
	BandFilter    bool
	BandPeriod    int
	BandK         float64
	BandProximity float64

	Modifier ConfidenceModifier
}

func NewRSI(p Params) (Strategy, error) {
	s := &RSI{
		Period:        p.Int("period", 14),
		Oversold:      p.Float("oversold", 30),
		Overbought:    p.Float("overbought", 70),
		BandFilter:    p.Bool("bb_filter", false),
		BandPeriod:    p.Int("bb_period", 20),
		BandK:         p.Float("bb_k", 2),
		BandProximity: p.Float("bb_proximity", 0.02),
	}
	if s.Period <= 0 || s.BandPeriod <= 0 {
		return nil, fmt.Errorf("periods must be positive: period=%d bb_period=%d", s.Period, s.BandPeriod)
	}
	if s.Oversold >= s.Overbought {
		return nil, fmt.Errorf("oversold %.1f must be below overbought %.1f", s.Oversold, s.Overbought)
	}
	if p.Bool("divergence", true) {
		d := divergenceFromParams(p)
		if d.Lookback <= 0 || d.Prior <= 0 {
			return nil, fmt.Errorf("divergence windows must be positive: lookback=%d prior=%d", d.Lookback, d.Prior)
		}
		s.Modifier = d
	}
	return s, nil
}

func (s *RSI) Name() string { return "rsi" }

func (s *RSI) Warmup() int {
	w := max(s.Period+2, s.BandPeriod, macdSlow+macdSignal-1)
	if d, ok := s.Modifier.(Divergence); ok {
		w = max(w, s.Period+1+d.Span())
	}
	return w
}

func (s *RSI) Evaluate(window []market.Candle) (market.Signal, error) {
	if err := checkWindow(s, window); err != nil {
		return market.Signal{}, err
	}

	last := window[len(window)-1]
	sig := market.FlatSignal(last)

	closes := indicators.Closes(window)
	rsi := indicators.RSI(closes, s.Period)
	macd := indicators.MACD(closes, macdFast, macdSlow, macdSignal)
	bands := indicators.Bollinger(closes, s.BandPeriod, s.BandK)

	now, prev := indicators.At(rsi, 0), indicators.At(rsi, 1)
	upper, lower := indicators.Last(bands.Upper), indicators.Last(bands.Lower)

	sig.Meta = map[string]float64{
		"rsi":         now,
		"macd":        indicators.Last(macd.MACD),
		"macd_signal": indicators.Last(macd.Signal),
		"bb_upper":    upper,
		"bb_lower":    lower,
		"volume":      last.Volume,
	}

	nearLower := !s.BandFilter || last.Close <= lower*(1+s.BandProximity)
	nearUpper := !s.BandFilter || last.Close >= upper*(1-s.BandProximity)

	switch {
	case prev <= s.Oversold && now > s.Oversold && nearLower:
		sig.Direction = market.Long
		sig.Reason = fmt.Sprintf("rsi crossed up through %.0f", s.Oversold)
	case prev >= s.Overbought && now < s.Overbought && nearUpper:
		sig.Direction = market.Short
		sig.Reason = fmt.Sprintf("rsi crossed down through %.0f", s.Overbought)
	case now >= s.Overbought:
		sig.Exit = market.ExitLong
		sig.Confidence = 0.8
		sig.Reason = fmt.Sprintf("rsi %.1f overbought", now)
		return sig, nil
	case now <= s.Oversold:
		sig.Exit = market.ExitShort
		sig.Confidence = 0.8
		sig.Reason = fmt.Sprintf("rsi %.1f oversold", now)
		return sig, nil
	default:
		return sig, nil
	}

	sig.Confidence = s.confidence(window, now, macd, sig.Direction)
	if s.Modifier != nil {
		sig = s.Modifier.Adjust(window, rsi, sig)
	}
	return sig, nil
}

func (s *RSI) confidence(window []market.Candle, rsi float64, macd indicators.MACDSeries, dir market.Direction) float64 {
	c := 0.5
	long := dir == market.Long

	switch {
	case long && rsi < 35, !long && rsi > 65:
		c += 0.2
	case long && rsi < 40, !long && rsi > 60:
		c += 0.1
	}

	m, ms := indicators.Last(macd.MACD), indicators.Last(macd.Signal)
	if (long && m > ms) || (!long && m < ms) {
		c += 0.15
	}

	vols := indicators.Volumes(window)
	if vma := indicators.Last(indicators.SMASeries(vols, 10)); !math.IsNaN(vma) && indicators.Last(vols) > vma*1.5 {
		c += 0.1
	}

	tail := window[max(0, len(window)-5):]
	px := window[len(window)-1].Close
	if long {
		lo := math.Inf(1)
		for _, k := range tail {
			lo = math.Min(lo, k.Low)
		}
		if px > lo*1.02 {
			c += 0.1
		}
	} else {
		hi := math.Inf(-1)
		for _, k := range tail {
			hi = math.Max(hi, k.High)
		}
		if px < hi*0.98 {
			c += 0.1
		}
	}
	return clamp01(c)
}
