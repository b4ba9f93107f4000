package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
)

const defaultChunk = 1000

// CandleCache stores downloaded history. *journal.SQLite implements it.
type CandleCache interface {
	SaveCandles(ctx context.Context, candles []market.Candle) error
	LoadCandles(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Candle, error)
}

// Loader fetches history for a backtest.
type Loader struct {
	Conn      exchange.Connector
	Cache     CandleCache
	ChunkSize int
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Load returns the closed candles of the last days days, oldest first. A
// cache holding the full range is used without touching the connector.
func (l *Loader) Load(ctx context.Context, symbol string, tf market.Timeframe, days int) ([]market.Candle, error) {
	if days <= 0 {
		return nil, fmt.Errorf("load %s: days must be > 0", symbol)
	}
	step := tf.Duration()
	if step <= 0 {
		return nil, fmt.Errorf("load %s: unknown timeframe %q", symbol, tf)
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	// the bar opening at end is still forming
	end := now().UTC().Truncate(step)
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	log := l.Logger.With().Str("symbol", symbol).Str("timeframe", string(tf)).Logger()

	if l.Cache != nil {
		cached, err := l.Cache.LoadCandles(ctx, symbol, tf, start, end)
		if err != nil {
			log.Warn().Err(err).Msg("candle cache read failed")
		} else if covers(cached, start, end, step) {
			log.Debug().Int("candles", len(cached)).Msg("using cached candles")
			return cached, nil
		}
	}
	if l.Conn == nil {
		return nil, fmt.Errorf("load %s: %w: no connector and no cached range", symbol, errs.ErrNoData)
	}

	chunk := l.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunk
	}
	var all []market.Candle
	for since := start; since.Before(end); {
		batch, err := l.Conn.GetOHLCV(ctx, symbol, tf, since, chunk)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", symbol, err)
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		next := batch[len(batch)-1].OpenTime.Add(step)
		if !next.After(since) || len(batch) < chunk {
			break
		}
		since = next
	}

	all = market.SortDedupe(all)
	out := all[:0]
	for _, c := range all {
		if !c.OpenTime.Before(start) && c.OpenTime.Before(end) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load %s %s: %w", symbol, tf, errs.ErrNoData)
	}
	log.Info().Int("candles", len(out)).Time("from", out[0].OpenTime).Msg("history downloaded")

	if l.Cache != nil {
		if err := l.Cache.SaveCandles(ctx, out); err != nil {
			log.Warn().Err(err).Msg("candle cache write failed")
		}
	}
	return out, nil
}

// covers allows a missing bar at either edge; exchanges often start a
// range one bar late.
func covers(cs []market.Candle, start, end time.Time, step time.Duration) bool {
	if len(cs) == 0 {
		return false
	}
	want := int(end.Sub(start) / step)
	return !cs[0].OpenTime.After(start.Add(step)) &&
		!cs[len(cs)-1].OpenTime.Before(end.Add(-2*step)) &&
		len(cs) >= want-2
}

// LoadCSV reads candles saved by data fetch.
func LoadCSV(path, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	cs, err := market.LoadCSV(path, symbol, tf)
	if err != nil {
		return nil, err
	}
	cs = market.SortDedupe(cs)
	if len(cs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, errs.ErrNoData)
	}
	return cs, nil
}
