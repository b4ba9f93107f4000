package strategies

import (
	"testing"

	"github.com/rustyeddy/cryptotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSILongOnOversoldBounce(t *testing.T) {
	t.Parallel()

	s, err := NewRSI(Params{"divergence": 0})
	require.NoError(t, err)

	// flat, a steady slide to RSI 0, then one strong up candle
	closes := concat(repeat(100, 40), ramp(99, -1, 15), []float64{90})
	sig, err := s.Evaluate(candles(closes...))
	require.NoError(t, err)

	assert.Equal(t, market.Long, sig.Direction)
	assert.Greater(t, sig.Meta["rsi"], 30.0)
	assert.GreaterOrEqual(t, sig.Confidence, 0.5)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
}

func TestRSIShortOnOverboughtRollover(t *testing.T) {
	t.Parallel()

	s, err := NewRSI(Params{"divergence": 0})
	require.NoError(t, err)

	closes := concat(repeat(100, 40), ramp(101, 1, 15), []float64{110})
	sig, err := s.Evaluate(candles(closes...))
	require.NoError(t, err)

	assert.Equal(t, market.Short, sig.Direction)
	assert.Less(t, sig.Meta["rsi"], 70.0)
}

func TestRSIExitSignals(t *testing.T) {
	t.Parallel()

	s, err := NewRSI(nil)
	require.NoError(t, err)
	require.Equal(t, 45, s.Warmup())

	up, err := s.Evaluate(candles(ramp(100, 1, 60)...))
	require.NoError(t, err)
	assert.Equal(t, market.Flat, up.Direction)
	assert.Equal(t, market.ExitLong, up.Exit)

	down, err := s.Evaluate(candles(ramp(200, -1, 60)...))
	require.NoError(t, err)
	assert.Equal(t, market.Flat, down.Direction)
	assert.Equal(t, market.ExitShort, down.Exit)
}

func TestRSIBandFilter(t *testing.T) {
	t.Parallel()

	// one big rebound leaves the close far above the lower band
	s, err := NewRSI(Params{"divergence": 0, "bb_filter": 1, "bb_proximity": 0})
	require.NoError(t, err)

	closes := concat(repeat(100, 40), ramp(99, -1, 15), []float64{90})
	sig, err := s.Evaluate(candles(closes...))
	require.NoError(t, err)
	assert.Equal(t, market.Flat, sig.Direction)
}

func TestRSIIsDeterministic(t *testing.T) {
	t.Parallel()

	s, err := NewRSI(nil)
	require.NoError(t, err)

	closes := concat(repeat(100, 40), ramp(99, -1, 15), []float64{90})
	a, err := s.Evaluate(candles(closes...))
	require.NoError(t, err)
	b, err := s.Evaluate(candles(closes...))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
