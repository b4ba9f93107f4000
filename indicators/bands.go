package indicators

import "math"

// Bands holds Bollinger band series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger returns SMA(period) ± k population standard deviations.
func Bollinger(closes []float64, period int, k float64) Bands {
	b := Bands{
		Upper:  nanSeries(len(closes)),
		Middle: SMASeries(closes, period),
		Lower:  nanSeries(len(closes)),
	}
	for i := range closes {
		if i < period-1 || math.IsNaN(b.Middle[i]) {
			continue
		}
		sd := StdDev(closes[i-period+1 : i+1])
		b.Upper[i] = b.Middle[i] + k*sd
		b.Lower[i] = b.Middle[i] - k*sd
	}
	return b
}

// MACDSeries holds the MACD line, its signal line and the histogram.
type MACDSeries struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes EMA(fast) - EMA(slow) with an EMA(signal) of the difference.
// Standard parameters are 12, 26, 9.
func MACD(closes []float64, fast, slow, signal int) MACDSeries {
	f := EMASeries(closes, fast)
	s := EMASeries(closes, slow)

	line := nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(f[i]) && !math.IsNaN(s[i]) {
			line[i] = f[i] - s[i]
		}
	}
	sig := EMASeries(line, signal)

	hist := nanSeries(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDSeries{MACD: line, Signal: sig, Hist: hist}
}
