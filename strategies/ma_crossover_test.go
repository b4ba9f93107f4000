package strategies

import (
	"testing"

	"github.com/rustyeddy/cryptotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evaluateAll slides the strategy over the series the way the backtest does
// and returns the non-flat signals keyed by candle index.
func evaluateAll(t *testing.T, s Strategy, series []market.Candle) map[int]market.Signal {
	t.Helper()
	out := map[int]market.Signal{}
	for i := s.Warmup() - 1; i < len(series); i++ {
		sig, err := s.Evaluate(series[:i+1])
		require.NoError(t, err)
		if sig.Direction != market.Flat {
			out[i] = sig
		}
	}
	return out
}

func TestMACrossoverSingleLongOnRiseThenFlat(t *testing.T) {
	t.Parallel()

	s, err := NewMACrossover(Params{"fast": 5, "slow": 20, "rsi_filter": 0})
	require.NoError(t, err)

	series := candles(concat(repeat(100, 30), ramp(101, 1, 10), repeat(110, 30))...)
	got := evaluateAll(t, s, series)

	require.Len(t, got, 1)
	sig, ok := got[30]
	require.True(t, ok, "expected the signal on the first rising candle")
	assert.Equal(t, market.Long, sig.Direction)
	assert.Equal(t, series[30].OpenTime, sig.GeneratedAt)
	assert.Equal(t, 101.0, sig.Price)
	// base 0.6 plus positive momentum
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)
	assert.InDelta(t, 100.2, sig.Meta["fast_ma"], 1e-9)
	assert.InDelta(t, 100.05, sig.Meta["slow_ma"], 1e-9)
}

func TestMACrossoverRSIFilterSuppressesOverboughtLong(t *testing.T) {
	t.Parallel()

	s, err := NewMACrossover(Params{"fast": 5, "slow": 20})
	require.NoError(t, err)

	series := candles(concat(repeat(100, 30), ramp(101, 1, 10))...)
	sig, err := s.Evaluate(series[:31])
	require.NoError(t, err)
	assert.Equal(t, market.Flat, sig.Direction)
	assert.Contains(t, sig.Reason, "suppressed")
}

func TestMACrossoverShortOnFall(t *testing.T) {
	t.Parallel()

	s, err := NewMACrossover(Params{"fast": 5, "slow": 20, "rsi_filter": 0})
	require.NoError(t, err)

	series := candles(concat(repeat(100, 30), ramp(99, -1, 10))...)
	got := evaluateAll(t, s, series)

	require.Len(t, got, 1)
	assert.Equal(t, market.Short, got[30].Direction)
}

func TestMACrossoverWarmup(t *testing.T) {
	t.Parallel()

	s, err := NewMACrossover(nil)
	require.NoError(t, err)
	assert.Equal(t, 21, s.Warmup())

	s, err = NewMACrossover(Params{"fast": 5, "slow": 10, "rsi_period": 14})
	require.NoError(t, err)
	assert.Equal(t, 16, s.Warmup())
}
