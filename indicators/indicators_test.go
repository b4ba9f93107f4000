package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCandles(closes ...float64) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: market.H1,
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func TestMA(t *testing.T) {
	t.Parallel()

	candles := createTestCandles(100, 105, 110, 115, 112, 118, 120, 115, 110)

	ma, err := MA(candles, 5)
	require.NoError(t, err)
	// last 5: 112 118 120 115 110
	assert.InDelta(t, 115.0, ma, 0.001)

	_, err = MA(candles, 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInsufficientData))
	assert.ErrorContains(t, err, "need 20, got 9")

	_, err = MA(candles, 0)
	assert.Error(t, err)
}

func TestEMA(t *testing.T) {
	t.Parallel()

	candles := createTestCandles(1, 2, 3, 4, 5)
	ema, err := EMA(candles, 3)
	require.NoError(t, err)

	// seed = mean(1,2,3) = 2, k = 0.5 -> 3 -> 4
	assert.InDelta(t, 4.0, ema, 1e-9)
}

func TestSMASeriesWarmup(t *testing.T) {
	t.Parallel()

	s := SMASeries([]float64{1, 2, 3, 4}, 3)
	require.Len(t, s, 4)
	assert.True(t, math.IsNaN(s[0]))
	assert.True(t, math.IsNaN(s[1]))
	assert.InDelta(t, 2.0, s[2], 1e-9)
	assert.InDelta(t, 3.0, s[3], 1e-9)

	short := SMASeries([]float64{1}, 3)
	assert.True(t, math.IsNaN(short[0]))
}

func TestRSI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5, 6}, 100},
		{"all losses", []float64{6, 5, 4, 3, 2, 1}, 0},
		{"no movement", []float64{5, 5, 5, 5, 5, 5}, 50},
		{"balanced", []float64{10, 11, 10, 11, 10, 11}, 60},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := RSI(tt.closes, 5)
			assert.True(t, math.IsNaN(r[4]))
			assert.InDelta(t, tt.want, r[5], 1e-9)
		})
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	t.Parallel()

	// period 2: first avg gain 1, avg loss 0 -> 100
	// next change -2: gain (1*1+0)/2 = 0.5, loss (0+2)/2 = 1 -> rs 0.5
	r := RSI([]float64{1, 2, 3, 1}, 2)
	assert.InDelta(t, 100.0, r[2], 1e-9)
	assert.InDelta(t, 100-100/1.5, r[3], 1e-9)
}

func TestBollinger(t *testing.T) {
	t.Parallel()

	b := Bollinger([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	// population std of the classic sample is 2
	assert.InDelta(t, 5.0, Last(b.Middle), 1e-9)
	assert.InDelta(t, 9.0, Last(b.Upper), 1e-9)
	assert.InDelta(t, 1.0, Last(b.Lower), 1e-9)
	assert.True(t, math.IsNaN(b.Upper[6]))
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	t.Parallel()

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	m := MACD(closes, 12, 26, 9)

	assert.True(t, math.IsNaN(m.MACD[24]))
	assert.InDelta(t, 0.0, m.MACD[25], 1e-9)
	assert.True(t, math.IsNaN(m.Signal[32]))
	assert.InDelta(t, 0.0, m.Signal[33], 1e-9)
	assert.InDelta(t, 0.0, Last(m.Hist), 1e-9)
}

func TestMACDRisingSeriesIsPositive(t *testing.T) {
	t.Parallel()

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	m := MACD(closes, 12, 26, 9)
	assert.Greater(t, Last(m.MACD), 0.0)
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	candles := createTestCandles(1, 2, 3)
	assert.Equal(t, []float64{1, 2, 3}, Closes(candles))
	assert.Equal(t, []float64{2, 3, 4}, Highs(candles))
	assert.Equal(t, []float64{0, 1, 2}, Lows(candles))
	assert.Equal(t, []float64{10, 10, 10}, Volumes(candles))

	assert.Equal(t, 3.0, Last([]float64{1, 2, 3}))
	assert.Equal(t, 2.0, At([]float64{1, 2, 3}, 1))
	assert.True(t, math.IsNaN(At([]float64{1}, 3)))
	assert.True(t, math.IsNaN(Last(nil)))
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}
