package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp, ep := filepath.Join(dir, "trades.csv"), filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tp, ep)
	require.NoError(t, err)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(TradeRecord{
		TradeID: "T1", Exchange: "sim", Symbol: "BTCUSDT", Side: "sell", Qty: 0.5,
		EntryPrice: 100, ExitPrice: 90, OpenTime: at, CloseTime: at.Add(time.Hour),
		RealizedPL: 5, Reason: "take profit",
	}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: at, Exchange: "sim", Balance: 1, Equity: 2, Exposure: 3}))
	require.NoError(t, j.Close())

	trades := readAll(t, tp)
	require.Len(t, trades, 2)
	assert.Equal(t, "trade_id", trades[0][0])
	assert.Equal(t, []string{"T1", "sim", "BTCUSDT", "sell", "0.50000000"}, trades[1][:5])
	assert.Equal(t, "take profit", trades[1][11])

	equity := readAll(t, ep)
	require.Len(t, equity, 2)
	assert.Equal(t, "2024-01-01T00:00:00Z", equity[1][0])
	assert.Equal(t, "3.00000000", equity[1][4])
}

func TestNopJournal(t *testing.T) {
	t.Parallel()

	var j Journal = Nop{}
	assert.NoError(t, j.RecordTrade(TradeRecord{}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{}))
	_, ok := j.(OrderJournal)
	assert.True(t, ok)
	assert.NoError(t, j.Close())
}
