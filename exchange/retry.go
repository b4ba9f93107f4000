package exchange

import (
	"context"
	"time"

	"github.com/rustyeddy/cryptotrader/internal/retry"
	"github.com/rustyeddy/cryptotrader/market"
)

type retrying struct {
	Connector
	cfg retry.Config
}

// WithRetry retries transient failures of every call except CreateOrder.
// Orders are not idempotent on the wire; a timed out create is resolved by
// the ledger through cancel instead.
func WithRetry(c Connector, cfg retry.Config) Connector {
	return &retrying{Connector: c, cfg: cfg}
}

func (r *retrying) GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, since time.Time, limit int) ([]market.Candle, error) {
	return retry.Do(ctx, r.cfg, func(ctx context.Context) ([]market.Candle, error) {
		return r.Connector.GetOHLCV(ctx, symbol, tf, since, limit)
	})
}

func (r *retrying) GetBalance(ctx context.Context) (Balance, error) {
	return retry.Do(ctx, r.cfg, r.Connector.GetBalance)
}

func (r *retrying) GetPositions(ctx context.Context) ([]Position, error) {
	return retry.Do(ctx, r.cfg, r.Connector.GetPositions)
}

func (r *retrying) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	return retry.Do(ctx, r.cfg, func(ctx context.Context) ([]Order, error) {
		return r.Connector.GetOpenOrders(ctx, symbol)
	})
}

func (r *retrying) GetOrder(ctx context.Context, symbol, id string) (Order, error) {
	return retry.Do(ctx, r.cfg, func(ctx context.Context) (Order, error) {
		return r.Connector.GetOrder(ctx, symbol, id)
	})
}

func (r *retrying) CancelOrder(ctx context.Context, symbol, id string) error {
	return retry.Run(ctx, r.cfg, func(ctx context.Context) error {
		return r.Connector.CancelOrder(ctx, symbol, id)
	})
}

func (r *retrying) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return retry.Run(ctx, r.cfg, func(ctx context.Context) error {
		return r.Connector.SetLeverage(ctx, symbol, leverage)
	})
}

func (r *retrying) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return retry.Do(ctx, r.cfg, func(ctx context.Context) (float64, error) {
		return r.Connector.GetPrice(ctx, symbol)
	})
}

func (r *retrying) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	return retry.Do(ctx, r.cfg, func(ctx context.Context) (market.SymbolInfo, error) {
		return r.Connector.SymbolInfo(ctx, symbol)
	})
}

// StreamPrices passes through when the wrapped connector streams.
func (r *retrying) StreamPrices(ctx context.Context, symbols []string, fn func(Tick)) error {
	t, ok := r.Connector.(Ticker)
	if !ok {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.StreamPrices(ctx, symbols, fn)
}
