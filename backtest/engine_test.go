package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/notify"
	"github.com/rustyeddy/cryptotrader/risk"
	"github.com/rustyeddy/cryptotrader/strategies"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, open, high, low, close float64) market.Candle {
	return market.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: market.H1,
		OpenTime:  t0.Add(time.Duration(i) * time.Hour),
		Open:      open, High: high, Low: low, Close: close,
		Volume: 100,
	}
}

// ramp opens bar i at 100+i and closes it half a point higher.
func ramp(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		o := 100 + float64(i)
		out[i] = candle(i, o, o+1.5, o-1, o+0.5)
	}
	return out
}

func wave(n int) []market.Candle {
	out := make([]market.Candle, n)
	prev := 100.0
	for i := range out {
		c := 100 + 10*math.Sin(float64(i)/8) + float64(i%3)*0.2
		out[i] = candle(i, prev, max(prev, c)+0.5, min(prev, c)-0.5, c)
		prev = c
	}
	return out
}

// script emits a fixed direction at chosen bars and records every window
// it is shown.
type script struct {
	warmup int
	at     map[time.Time]market.Direction
	seen   []time.Time
	sizes  []int
}

func (s *script) Name() string { return "script" }
func (s *script) Warmup() int  { return s.warmup }

func (s *script) Evaluate(w []market.Candle) (market.Signal, error) {
	last := w[len(w)-1]
	s.seen = append(s.seen, last.OpenTime)
	s.sizes = append(s.sizes, len(w))
	sig := market.FlatSignal(last)
	if d, ok := s.at[last.OpenTime]; ok {
		sig.Direction, sig.Confidence, sig.Reason = d, 1, "script"
	}
	return sig, nil
}

func wideRisk() risk.Config {
	rc := risk.DefaultConfig()
	rc.StopLossPct = 0.5
	rc.TakeProfitPct = 0.9
	rc.MinConfidence = 0
	return rc
}

func frictionless() Options {
	opts := DefaultOptions()
	opts.FeePct = 0
	opts.SlippagePct = 0
	opts.Window = 4
	return opts
}

func TestSignalsFillOnTheNextBar(t *testing.T) {
	t.Parallel()

	cs := ramp(16)
	s := &script{warmup: 3, at: map[time.Time]market.Direction{
		cs[5].OpenTime:  market.Long,
		cs[10].OpenTime: market.Short,
	}}
	r, err := New(s, wideRisk(), frictionless()).Run(context.Background(), cs)
	require.NoError(t, err)

	require.Len(t, r.Trades, 2)
	long, short := r.Trades[0], r.Trades[1]

	assert.Equal(t, "buy", long.Side)
	assert.Equal(t, cs[6].Open, long.EntryPrice)
	assert.Equal(t, cs[6].OpenTime, long.OpenedAt)
	assert.False(t, long.OpenedAt.Before(cs[5].CloseTime()))
	assert.Equal(t, cs[11].Open, long.ExitPrice)
	assert.Equal(t, "flip: script", long.Reason)

	assert.Equal(t, "sell", short.Side)
	assert.Equal(t, cs[11].Open, short.EntryPrice)
	assert.False(t, short.OpenedAt.Before(cs[10].CloseTime()))
	assert.Equal(t, cs[15].Close, short.ExitPrice)
	assert.Equal(t, endReason, short.Reason)

	// every window ends on the bar being replayed
	require.Len(t, s.seen, len(cs)-2)
	for k, at := range s.seen {
		assert.Equal(t, cs[k+2].OpenTime, at)
		assert.LessOrEqual(t, s.sizes[k], 4)
	}

	sum := 0.0
	for _, tr := range r.Trades {
		sum += tr.PnL
	}
	assert.InDelta(t, r.InitialBalance+sum, r.FinalBalance, 1e-6)
	assert.InDelta(t, r.FinalBalance, r.FinalEquity, 1e-9)
	assert.Nil(t, r.OpenPosition)
}

func TestStopLossClosesOnFirstBarThrough(t *testing.T) {
	t.Parallel()

	cs := []market.Candle{
		candle(0, 100, 101, 99, 100),
		candle(1, 100, 101, 99, 100),
		candle(2, 100, 101, 99, 100),
		candle(3, 100, 101, 98, 99),
		candle(4, 99, 100, 97, 98),
		candle(5, 97, 98, 94, 95.5),
		candle(6, 95, 96, 90, 91),
	}
	s := &script{warmup: 1, at: map[time.Time]market.Direction{cs[2].OpenTime: market.Long}}
	rc := wideRisk()
	rc.StopLossPct = 0.05

	r, err := New(s, rc, frictionless()).Run(context.Background(), cs)
	require.NoError(t, err)

	require.Len(t, r.Trades, 1)
	tr := r.Trades[0]
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.InDelta(t, 95.0, tr.ExitPrice, 1e-9)
	assert.Equal(t, "stop loss", tr.Reason)
	assert.Equal(t, cs[5].OpenTime, tr.ClosedAt)
	assert.InDelta(t, -50.0, tr.PnL, 1e-6)
	assert.InDelta(t, 9950.0, r.FinalBalance, 1e-6)
}

func TestRunIsDeterministic(t *testing.T) {
	t.Parallel()

	cs := wave(400)
	params := strategies.Params{"fast": 5, "slow": 20, "rsi_filter": 0}
	rc := risk.DefaultConfig()
	rc.MinConfidence = 0

	run := func() []byte {
		s, err := strategies.DefaultRegistry().New("ma_crossover", params)
		require.NoError(t, err)
		opts := DefaultOptions()
		opts.SlippagePct = 0.0005
		r, err := New(s, rc, opts).Run(context.Background(), cs)
		require.NoError(t, err)
		require.NotZero(t, r.TotalTrades)
		b, err := r.JSON()
		require.NoError(t, err)
		return b
	}
	assert.Equal(t, string(run()), string(run()))
}

func TestEquityIdentityWithFees(t *testing.T) {
	t.Parallel()

	s, err := strategies.DefaultRegistry().New("ma_crossover", strategies.Params{"fast": 5, "slow": 20, "rsi_filter": 0})
	require.NoError(t, err)
	rc := risk.DefaultConfig()
	rc.MinConfidence = 0

	rec := notify.NewRecorder(100000)
	opts := DefaultOptions()
	opts.SlippagePct = 0.001
	opts.Notifier = rec

	r, err := New(s, rc, opts).Run(context.Background(), wave(400))
	require.NoError(t, err)

	sum, fees := 0.0, 0.0
	for _, tr := range r.Trades {
		sum += tr.PnL
		fees += tr.Fees
	}
	assert.InDelta(t, r.InitialBalance+sum, r.FinalBalance, 1e-6)
	assert.InDelta(t, fees, r.Fees, 1e-9)
	assert.Positive(t, r.Fees)
	assert.Equal(t, r.TotalTrades, rec.Count(notify.PositionClosed))
	assert.LessOrEqual(t, r.WinningTrades+r.LosingTrades, r.TotalTrades)
	assert.Len(t, r.EquityCurve, 400)
}

func TestOpenPositionWithoutCloseAtEnd(t *testing.T) {
	t.Parallel()

	cs := ramp(8)
	s := &script{warmup: 1, at: map[time.Time]market.Direction{cs[2].OpenTime: market.Long}}
	opts := frictionless()
	opts.CloseAtEnd = false

	r, err := New(s, wideRisk(), opts).Run(context.Background(), cs)
	require.NoError(t, err)
	assert.Empty(t, r.Trades)
	require.NotNil(t, r.OpenPosition)
	assert.Equal(t, cs[3].Open, r.OpenPosition.EntryPrice)
	assert.Equal(t, r.InitialBalance, r.FinalBalance)
	assert.Greater(t, r.FinalEquity, r.FinalBalance)
}

func TestRejectionsAreCounted(t *testing.T) {
	t.Parallel()

	cs := ramp(6)
	s := &script{warmup: 1, at: map[time.Time]market.Direction{cs[1].OpenTime: market.Long}}
	opts := frictionless()
	opts.MinQty = 1000
	rec := notify.NewRecorder(0)
	opts.Notifier = rec

	r, err := New(s, wideRisk(), opts).Run(context.Background(), cs)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Rejections)
	assert.Equal(t, 1, rec.Count(notify.RiskRejection))
	assert.Zero(t, r.TotalTrades)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	s := &script{warmup: 1}
	_, err := New(s, wideRisk(), frictionless()).Run(context.Background(), nil)
	assert.True(t, errors.Is(err, errs.ErrNoData))

	cs := ramp(3)
	cs[2].OpenTime = cs[0].OpenTime
	_, err = New(s, wideRisk(), frictionless()).Run(context.Background(), cs)
	assert.ErrorContains(t, err, "out of order")

	_, err = New(nil, wideRisk(), frictionless()).Run(context.Background(), ramp(3))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(s, wideRisk(), frictionless()).Run(ctx, ramp(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompareStrategiesRunsIndependently(t *testing.T) {
	t.Parallel()

	cs := wave(300)
	rc := risk.DefaultConfig()
	rc.MinConfidence = 0
	reg := strategies.DefaultRegistry()
	params := strategies.Params{"fast": 5, "slow": 20, "rsi_filter": 0}

	mk := func(name string) *Engine {
		s, err := reg.New(name, params)
		require.NoError(t, err)
		return New(s, rc, DefaultOptions())
	}

	got := CompareStrategies(context.Background(), cs, mk("ma_crossover"), mk("noop"), mk("ma_crossover"))
	require.Len(t, got, 3)

	byName := map[string][]Report{}
	for _, c := range got {
		require.NoError(t, c.Err)
		byName[c.Strategy] = append(byName[c.Strategy], c.Report)
	}
	require.Len(t, byName["ma_crossover"], 2)
	a, _ := json.Marshal(byName["ma_crossover"][0])
	b, _ := json.Marshal(byName["ma_crossover"][1])
	assert.Equal(t, string(a), string(b))
	assert.Zero(t, byName["noop"][0].TotalTrades)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Report.SharpeRatio, got[i].Report.SharpeRatio)
	}
}
