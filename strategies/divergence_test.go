package strategies

import (
	"testing"

	"github.com/rustyeddy/cryptotrader/market"
	"github.com/stretchr/testify/assert"
)

// swingWindow builds 30 candles (prior 0..9, recent 10..29) with flat
// highs/lows and a flat RSI of 50, then applies the overrides.
func swingWindow(lows, highs, rsis map[int]float64) ([]market.Candle, []float64) {
	window := candles(repeat(100, 30)...)
	rsi := repeat(50, 30)
	for i := range window {
		window[i].Low = 100
		window[i].High = 110
	}
	for i, v := range lows {
		window[i].Low = v
	}
	for i, v := range highs {
		window[i].High = v
	}
	for i, v := range rsis {
		rsi[i] = v
	}
	return window, rsi
}

func TestDivergenceDetect(t *testing.T) {
	t.Parallel()

	d := DivergenceDefaults()

	tests := []struct {
		name  string
		lows  map[int]float64
		highs map[int]float64
		rsis  map[int]float64
		want  market.Direction
	}{
		{
			name: "bullish",
			lows: map[int]float64{5: 90, 25: 89},
			rsis: map[int]float64{5: 20, 26: 25},
			want: market.Long,
		},
		{
			name:  "bearish",
			highs: map[int]float64{5: 120, 25: 121},
			rsis:  map[int]float64{5: 80, 24: 75},
			want:  market.Short,
		},
		{
			name: "pivots too far apart",
			lows: map[int]float64{5: 90, 25: 89},
			rsis: map[int]float64{5: 20, 12: 25},
			want: market.Flat,
		},
		{
			name: "rsi confirms price",
			lows: map[int]float64{5: 90, 25: 89},
			rsis: map[int]float64{5: 25, 26: 20},
			want: market.Flat,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			window, rsi := swingWindow(tt.lows, tt.highs, tt.rsis)
			assert.Equal(t, tt.want, d.Detect(window, rsi))
		})
	}
}

func TestDivergenceAdjust(t *testing.T) {
	t.Parallel()

	d := DivergenceDefaults()
	window, rsi := swingWindow(map[int]float64{5: 90, 25: 89}, nil, map[int]float64{5: 20, 26: 25})

	long := d.Adjust(window, rsi, market.Signal{Direction: market.Long, Confidence: 0.5})
	assert.InDelta(t, 0.6, long.Confidence, 1e-9)
	assert.Equal(t, 1.0, long.Meta["divergence"])

	short := d.Adjust(window, rsi, market.Signal{Direction: market.Short, Confidence: 0.5})
	assert.InDelta(t, 0.4, short.Confidence, 1e-9)
	assert.Equal(t, -1.0, short.Meta["divergence"])

	capped := d.Adjust(window, rsi, market.Signal{Direction: market.Long, Confidence: 0.95})
	assert.Equal(t, 1.0, capped.Confidence)

	flat := d.Adjust(window, rsi, market.Signal{Direction: market.Flat, Confidence: 0.3})
	assert.Equal(t, 0.3, flat.Confidence)
	assert.Nil(t, flat.Meta)
}

func TestDivergenceShortWindowIsFlat(t *testing.T) {
	t.Parallel()

	d := DivergenceDefaults()
	window, rsi := swingWindow(nil, nil, nil)
	assert.Equal(t, market.Flat, d.Detect(window[:10], rsi[:10]))
}
