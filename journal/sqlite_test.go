package journal

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cryptotrader/market"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	for _, table := range []string{"trades", "equity", "orders", "backtest_runs", "candles"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteTrades(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	open := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	win := TradeRecord{
		TradeID:    "T1",
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		Side:       "buy",
		Qty:        0.02,
		EntryPrice: 50000,
		ExitPrice:  52000,
		OpenTime:   open,
		CloseTime:  open.Add(time.Hour),
		RealizedPL: 38,
		Fees:       2,
		Reason:     "take profit",
	}
	loss := win
	loss.TradeID = "T2"
	loss.CloseTime = open.Add(2 * time.Hour)
	loss.RealizedPL = -19
	loss.Reason = "stop loss"

	require.NoError(t, j.RecordTrade(win))
	require.NoError(t, j.RecordTrade(loss))

	got, err := j.GetTrade("T1")
	require.NoError(t, err)
	assert.Equal(t, win.Symbol, got.Symbol)
	assert.InDelta(t, win.RealizedPL, got.RealizedPL, 1e-9)
	assert.True(t, got.OpenTime.Equal(open))

	_, err = j.GetTrade("nope")
	assert.ErrorContains(t, err, "not found")

	between, err := j.ListTradesClosedBetween(open, open.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, "T1", between[0].TradeID)

	all, err := j.ListTrades(10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "T1", all[0].TradeID)

	s := Summarize(all)
	assert.Equal(t, 2, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 2.0, s.ProfitFactor, 1e-9)
}

func TestSQLiteEquityAndOrders(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: now, Exchange: "sim", Balance: 10000, Equity: 10010, Exposure: 1000}))

	eq, err := j.ListEquityBetween(now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, eq, 1)
	assert.Equal(t, 10010.0, eq[0].Equity)

	o := OrderRecord{OrderID: "O1", Exchange: "sim", Symbol: "BTCUSDT", Side: "buy", Type: "market",
		Qty: 1, Status: "pending", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, j.RecordOrder(o))
	o.Status, o.FilledQty, o.AvgPrice = "filled", 1, 100
	require.NoError(t, j.RecordOrder(o))

	orders, err := j.ListOrders("")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "filled", orders[0].Status)
	assert.Equal(t, 100.0, orders[0].AvgPrice)

	pending, err := j.ListOrders("pending")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteBacktestRuns(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := BacktestRun{
		RunID:        "run-1",
		Created:      start.Add(48 * time.Hour),
		Strategy:     "ma_crossover",
		Symbol:       "BTCUSDT",
		Timeframe:    "1h",
		Start:        start,
		End:          start.Add(24 * time.Hour),
		Params:       `{"fast":10}`,
		Trades:       3,
		Wins:         3,
		StartBalance: 10000,
		EndBalance:   10300,
		NetPL:        300,
		ReturnPct:    3,
		WinRate:      1,
		ProfitFactor: math.Inf(1),
		Report:       []byte(`{}`),
	}
	require.NoError(t, j.RecordBacktest(ctx, run))

	got, err := j.GetBacktestRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.ProfitFactor, 1))
	assert.Equal(t, "ma_crossover", got.Strategy)

	runs, err := j.ListBacktestRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	org, err := j.ExportBacktestOrg(ctx, "run-1")
	require.NoError(t, err)
	assert.Contains(t, org, "* BACKTEST: ma_crossover BTCUSDT 1h")
	assert.Contains(t, org, ":PROFIT_FAC:  inf")
	assert.Contains(t, org, ":WIN_RATE:    100.00")

	_, err = j.GetBacktestRun(ctx, "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestSQLiteCandleCache(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	ctx := context.Background()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []market.Candle
	for i := 0; i < 3; i++ {
		candles = append(candles, market.Candle{
			Symbol: "ETHUSDT", Timeframe: market.H1, OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open: 1, High: 2, Low: 0.5, Close: float64(i), Volume: 3,
		})
	}
	require.NoError(t, j.SaveCandles(ctx, candles))
	// overlapping re-save replaces rather than duplicates
	candles[2].Close = 42
	require.NoError(t, j.SaveCandles(ctx, candles[1:]))

	got, err := j.LoadCandles(ctx, "ETHUSDT", market.H1, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 42.0, got[2].Close)
	assert.True(t, got[0].OpenTime.Equal(t0))

	none, err := j.LoadCandles(ctx, "ETHUSDT", market.M5, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
