package backtest

import (
	"context"
	"sort"
	"sync"

	"github.com/rustyeddy/cryptotrader/market"
)

// Comparison is one engine's outcome in CompareStrategies.
type Comparison struct {
	Strategy string
	Report   Report
	Err      error
}

// CompareStrategies runs every engine over the same candles in parallel.
// Each run builds its own ledger and router, so runs share nothing but the
// read-only candle slice. Results are ordered by Sharpe ratio, best first;
// failed runs sort last.
func CompareStrategies(ctx context.Context, candles []market.Candle, engines ...*Engine) []Comparison {
	out := make([]Comparison, len(engines))
	var wg sync.WaitGroup
	for i, e := range engines {
		i, e := i, e
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := Comparison{}
			if e.Strategy != nil {
				c.Strategy = e.Strategy.Name()
			}
			c.Report, c.Err = e.Run(ctx, candles)
			out[i] = c
		}()
	}
	wg.Wait()

	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Err == nil) != (out[j].Err == nil) {
			return out[i].Err == nil
		}
		return out[i].Report.SharpeRatio > out[j].Report.SharpeRatio
	})
	return out
}
