package strategies

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candles(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: market.H1,
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    10,
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func ramp(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	assert.Equal(t, []string{"ma_crossover", "noop", "rsi"}, r.Names())

	s, err := r.New("MA-Crossover", nil)
	require.NoError(t, err)
	assert.Equal(t, "ma_crossover", s.Name())

	_, err = r.New("martingale", nil)
	assert.True(t, errors.Is(err, errs.ErrUnknownStrategy))

	_, err = r.New("ma_crossover", Params{"fast": 30, "slow": 20})
	assert.ErrorContains(t, err, "must be shorter")

	_, err = r.New("rsi", Params{"oversold": 80})
	assert.ErrorContains(t, err, "must be below")
}

func TestParams(t *testing.T) {
	t.Parallel()

	p := Params{"fast": 7, "flag": 0}
	assert.Equal(t, 7, p.Int("fast", 1))
	assert.Equal(t, 3, p.Int("slow", 3))
	assert.False(t, p.Bool("flag", true))
	assert.True(t, p.Bool("missing", true))
	assert.Equal(t, 0.5, p.Float("missing", 0.5))
}

func TestEvaluateShortWindow(t *testing.T) {
	t.Parallel()

	for _, name := range DefaultRegistry().Names() {
		s, err := DefaultRegistry().New(name, nil)
		require.NoError(t, err)

		window := candles(repeat(100, s.Warmup()-1)...)
		_, err = s.Evaluate(window)
		assert.True(t, errors.Is(err, errs.ErrInsufficientData), name)
	}
}

func TestNoopIsAlwaysFlat(t *testing.T) {
	t.Parallel()

	sig, err := Noop{}.Evaluate(candles(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, market.Flat, sig.Direction)
	assert.Equal(t, 3.0, sig.Price)
}
