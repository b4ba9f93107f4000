package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cryptotrader/market"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := dayBounds(time.UTC, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "15/01/2024")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "trader version "+version+"\n", out)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.yaml")

	out, err := execute(t, "config", "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created default configuration: "+path)

	out, err = execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid: "+path)
	assert.Contains(t, out, "exchange: binance testnet=true symbols=[BTCUSDT ETHUSDT BNBUSDT]")
	assert.Contains(t, out, "leverage 1x")
}

func TestBacktestFromCSV(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trader.yaml")
	_, err := execute(t, "config", "init", "--output", cfgPath)
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var cs []market.Candle
	for i := 0; i < 48; i++ {
		px := 100 + float64(i)
		cs = append(cs, market.Candle{
			Symbol: "BTCUSDT", Timeframe: market.H1, OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 10,
		})
	}
	csvPath := filepath.Join(dir, "btc.csv")
	require.NoError(t, market.SaveCSV(csvPath, cs))

	out, err := execute(t, "backtest", "--config", cfgPath, "--strategy", "noop", "--csv", csvPath, "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "noop", report["strategy"])
	assert.Equal(t, "BTCUSDT", report["symbol"])
	assert.Equal(t, 0.0, report["total_trades"])
	assert.Equal(t, 10000.0, report["final_equity"])
}
