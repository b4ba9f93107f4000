package backtest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cryptotrader/exchange/exchangetest"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/journal"
	"github.com/rustyeddy/cryptotrader/market"
)

func hourly(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = candle(i, 100, 101, 99, 100)
	}
	return out
}

func TestLoaderChunksAndCaches(t *testing.T) {
	t.Parallel()

	f := exchangetest.New("fake")
	f.SetCandles("BTCUSDT", hourly(3000))
	db, err := journal.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l := &Loader{
		Conn:  f,
		Cache: db,
		Now:   func() time.Time { return t0.Add(3000*time.Hour + 30*time.Minute) },
	}
	ctx := context.Background()

	cs, err := l.Load(ctx, "BTCUSDT", market.H1, 100)
	require.NoError(t, err)
	require.Len(t, cs, 2400)
	assert.Equal(t, t0.Add(600*time.Hour), cs[0].OpenTime)
	assert.Equal(t, t0.Add(2999*time.Hour), cs[len(cs)-1].OpenTime)
	assert.Equal(t, 3, f.Calls("GetOHLCV"))

	again, err := l.Load(ctx, "BTCUSDT", market.H1, 100)
	require.NoError(t, err)
	assert.Len(t, again, 2400)
	assert.Equal(t, 3, f.Calls("GetOHLCV"))
}

func TestLoaderNoData(t *testing.T) {
	t.Parallel()

	l := &Loader{Conn: exchangetest.New("fake"), Now: func() time.Time { return t0 }}
	_, err := l.Load(context.Background(), "BTCUSDT", market.H1, 10)
	assert.True(t, errors.Is(err, errs.ErrNoData))

	_, err = (&Loader{}).Load(context.Background(), "BTCUSDT", market.H1, 10)
	assert.True(t, errors.Is(err, errs.ErrNoData))

	_, err = l.Load(context.Background(), "BTCUSDT", market.H1, 0)
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "btc.csv")
	require.NoError(t, market.SaveCSV(path, hourly(5)))

	cs, err := LoadCSV(path, "BTCUSDT", market.H1)
	require.NoError(t, err)
	assert.Len(t, cs, 5)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, market.SaveCSV(empty, nil))
	_, err = LoadCSV(empty, "BTCUSDT", market.H1)
	assert.True(t, errors.Is(err, errs.ErrNoData))
}
