package strategies

import "github.com/rustyeddy/cryptotrader/market"

// Noop never trades. Useful for dry runs and pipeline tests.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Warmup() int { return 1 }

func (n Noop) Evaluate(window []market.Candle) (market.Signal, error) {
	if err := checkWindow(n, window); err != nil {
		return market.Signal{}, err
	}
	return market.FlatSignal(window[len(window)-1]), nil
}
