package risk

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
)

var btc = market.LookupSymbol("BTCUSDT")

func account(equity, exposure float64) ledger.Account {
	return ledger.Account{Exchange: "binance", Balance: equity, Equity: equity, OpenExposure: exposure}
}

func signal(d market.Direction, price float64) market.Signal {
	return market.Signal{Symbol: "BTCUSDT", Direction: d, Confidence: 0.8, Price: price, Reason: "test"}
}

func TestSizeFromEquity(t *testing.T) {
	t.Parallel()

	d := Size(signal(market.Long, 50000), account(10000, 0), nil, DefaultConfig(), btc)
	require.True(t, d.Allowed())
	require.Len(t, d.Intents, 1)

	in := d.Intents[0]
	assert.Equal(t, "binance", in.Exchange)
	assert.Equal(t, market.Buy, in.Side)
	assert.InDelta(t, 0.02, in.Qty, 1e-12)
	assert.InDelta(t, 49000.0, in.StopLoss, 1e-9)
	assert.InDelta(t, 52000.0, in.TakeProfit, 1e-9)
	assert.False(t, in.ReduceOnly)
	assert.Equal(t, market.MarketOrder, in.Type())
	assert.InDelta(t, 20.0, d.PlannedRisk, 1e-9)
	assert.InDelta(t, 2.0, d.PlannedRR, 1e-9)
}

func TestSizeShortLevels(t *testing.T) {
	t.Parallel()

	d := Size(signal(market.Short, 100), account(10000, 0), nil, DefaultConfig(), market.SymbolInfo{Symbol: "BTCUSDT"})
	require.Len(t, d.Intents, 1)
	in := d.Intents[0]
	assert.Equal(t, market.Sell, in.Side)
	assert.InDelta(t, 10.0, in.Qty, 1e-9)
	assert.InDelta(t, 102.0, in.StopLoss, 1e-9)
	assert.InDelta(t, 96.0, in.TakeProfit, 1e-9)
}

func TestSizeFlipClosesFirst(t *testing.T) {
	t.Parallel()

	pos := &ledger.Position{Exchange: "binance", Symbol: "BTCUSDT", Side: market.Buy, Qty: 0.03, EntryPrice: 48000}
	cfg := DefaultConfig()
	cfg.MaxTotalExposure = 1500

	d := Size(signal(market.Short, 50000), account(10000, pos.Exposure()), pos, cfg, btc)
	require.True(t, d.Allowed())
	require.Len(t, d.Intents, 2)

	assert.True(t, d.Intents[0].ReduceOnly)
	assert.Equal(t, market.Sell, d.Intents[0].Side)
	assert.Equal(t, 0.03, d.Intents[0].Qty)

	assert.False(t, d.Intents[1].ReduceOnly)
	assert.Equal(t, market.Sell, d.Intents[1].Side)
	assert.InDelta(t, 0.02, d.Intents[1].Qty, 1e-12)
}

func TestSizeNoIntent(t *testing.T) {
	t.Parallel()

	long := &ledger.Position{Exchange: "binance", Symbol: "BTCUSDT", Side: market.Buy, Qty: 1, EntryPrice: 100}
	low := signal(market.Long, 100)
	low.Confidence = 0.3

	tests := []struct {
		name string
		sig  market.Signal
		pos  *ledger.Position
	}{
		{"flat without position", signal(market.Flat, 100), nil},
		{"flat with position", signal(market.Flat, 100), long},
		{"same direction", signal(market.Long, 100), long},
		{"low confidence", low, nil},
		{"exit for other side", market.Signal{Symbol: "BTCUSDT", Exit: market.ExitShort, Direction: market.Flat}, long},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Size(tt.sig, account(10000, 100), tt.pos, DefaultConfig(), btc)
			assert.Empty(t, d.Intents)
			assert.NoError(t, d.Rejection)
		})
	}
}

func TestSizeExitClosesPosition(t *testing.T) {
	t.Parallel()

	short := &ledger.Position{Exchange: "binance", Symbol: "BTCUSDT", Side: market.Sell, Qty: 0.5, EntryPrice: 100}
	sig := market.Signal{Symbol: "BTCUSDT", Direction: market.Flat, Exit: market.ExitShort, Reason: "rsi oversold"}

	d := Size(sig, account(10000, 50), short, DefaultConfig(), btc)
	require.Len(t, d.Intents, 1)
	assert.Equal(t, market.Buy, d.Intents[0].Side)
	assert.True(t, d.Intents[0].ReduceOnly)
	assert.Equal(t, 0.5, d.Intents[0].Qty)
	assert.Equal(t, "rsi oversold", d.Intents[0].Reason)
}

func TestSizeRejections(t *testing.T) {
	t.Parallel()

	capped := DefaultConfig()
	capped.MaxTotalExposure = 500

	tests := []struct {
		name string
		sig  market.Signal
		acct ledger.Account
		cfg  Config
		info market.SymbolInfo
		want error
	}{
		{"exposure", signal(market.Long, 50000), account(10000, 0), capped, btc, errs.ErrExposureExceeded},
		{"below min qty", signal(market.Long, 50000), account(100, 0), DefaultConfig(), btc, errs.ErrBelowMinimumSize},
		{"below min notional", signal(market.Long, 100), account(500, 0), DefaultConfig(),
			market.SymbolInfo{MinQty: 0.001, StepSize: 0.001, MinNotional: 100}, errs.ErrBelowMinimumSize},
		{"no price", signal(market.Long, 0), account(10000, 0), DefaultConfig(), btc, errs.ErrInvalidOrderParams},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Size(tt.sig, tt.acct, nil, tt.cfg, tt.info)
			require.Error(t, d.Rejection)
			assert.True(t, errors.Is(d.Rejection, tt.want))
			assert.True(t, errs.IsRejection(d.Rejection))
			assert.False(t, d.Allowed())
			assert.Empty(t, d.Intents)
			assert.NotEmpty(t, d.Violations)
		})
	}
}

func TestSizeAbsoluteCap(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxAbsoluteQty = 0.005
	d := Size(signal(market.Long, 50000), account(10000, 0), nil, cfg, market.SymbolInfo{StepSize: 0.001, MinQty: 0.001})
	require.Len(t, d.Intents, 1)
	assert.InDelta(t, 0.005, d.Intents[0].Qty, 1e-12)
}

func TestFloorStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		qty, step, want float64
	}{
		{0.3, 0.1, 0.3},
		{0.0299, 0.001, 0.029},
		{0.02, 0.001, 0.02},
		{1.23456, 0, 1.23456},
		{7, 5, 5},
	}
	for _, tt := range tests {
		tt := tt
		assert.InDelta(t, tt.want, FloorStep(tt.qty, tt.step), 1e-12, "%g/%g", tt.qty, tt.step)
	}
	assert.InDelta(t, 49000.0, RoundTick(49000.04, 0.1), 1e-9)
}

func TestValidateManual(t *testing.T) {
	t.Parallel()

	in := market.OrderIntent{Exchange: "binance", Symbol: "BTCUSDT", Side: market.Buy, Qty: 0.0005}
	_, err := ValidateManual(in, btc, 50000)
	assert.True(t, errors.Is(err, errs.ErrBelowMinimumSize))

	in.Qty = 0.0257
	got, err := ValidateManual(in, btc, 50000)
	require.NoError(t, err)
	assert.InDelta(t, 0.025, got.Qty, 1e-12)

	in.Side = "hold"
	_, err = ValidateManual(in, btc, 50000)
	assert.True(t, errors.Is(err, errs.ErrInvalidOrderParams))
}

func TestNonFiniteInputs(t *testing.T) {
	t.Parallel()

	inf, nan := math.Inf(1), math.NaN()
	assert.NotPanics(t, func() {
		assert.True(t, math.IsInf(FloorStep(inf, 0.001), 1))
		assert.True(t, math.IsNaN(FloorStep(nan, 0.001)))
		assert.True(t, math.IsInf(RoundTick(inf, 0.1), 1))
	})

	tests := []struct {
		name       string
		qty, price float64
		ref        float64
	}{
		{"inf qty", inf, 0, 50000},
		{"-inf qty", math.Inf(-1), 0, 50000},
		{"nan qty", nan, 0, 50000},
		{"inf price", 0.01, inf, inf},
		{"nan price", 0.01, nan, nan},
		{"nan reference", 0.01, 0, nan},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := market.OrderIntent{Exchange: "binance", Symbol: "BTCUSDT", Side: market.Buy, Qty: tt.qty, Price: tt.price}
			var err error
			assert.NotPanics(t, func() { _, err = ValidateManual(in, btc, tt.ref) })
			assert.ErrorIs(t, err, errs.ErrInvalidOrderParams)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxPositionPct = 0
	assert.ErrorContains(t, bad.Validate(), "max_position_pct")

	bad = DefaultConfig()
	bad.StopLossPct = 1
	assert.ErrorContains(t, bad.Validate(), "stop_loss_pct")
}
