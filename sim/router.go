// Package sim is the backtest execution router. Orders queue until the next
// candle is advanced; orders carrying a trigger price fill immediately.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
)

// FillAt selects the price of the advancing candle queued market orders take.
type FillAt string

const (
	NextOpen  FillAt = "open"
	NextClose FillAt = "close"
)

func ParseFillAt(s string) (FillAt, error) {
	switch FillAt(s) {
	case "", NextOpen:
		return NextOpen, nil
	case NextClose:
		return NextClose, nil
	}
	return "", fmt.Errorf("fill_at: unknown value %q (want open or close)", s)
}

type Options struct {
	FeePct      float64
	SlippagePct float64
	FillAt      FillAt
	Logger      zerolog.Logger
}

type Router struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	handler ledger.FillHandler
	queue   []ledger.Order
}

func NewRouter(opts Options) *Router {
	if opts.FillAt == "" {
		opts.FillAt = NextOpen
	}
	return &Router{
		opts: opts,
		log:  opts.Logger.With().Str("component", "sim").Logger(),
	}
}

// Bind sets where fills are reported, normally the ledger the router is
// registered with.
func (r *Router) Bind(h ledger.FillHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *Router) Submit(ctx context.Context, o ledger.Order) (ledger.Ack, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Ack{}, err
	}
	ack := ledger.Ack{ExchangeID: "sim-" + o.ID}

	r.mu.Lock()
	h := r.handler
	if h == nil {
		r.mu.Unlock()
		return ledger.Ack{}, fmt.Errorf("sim submit: %w: no fill handler bound", errs.ErrInvalidOrderParams)
	}
	if o.TriggerPrice <= 0 {
		r.queue = append(r.queue, o)
		r.mu.Unlock()
		return ack, nil
	}
	r.mu.Unlock()

	if err := h.OnFill(r.fill(o, o.TriggerPrice, o.UpdatedAt)); err != nil {
		return ack, err
	}
	return ack, nil
}

func (r *Router) Cancel(ctx context.Context, o ledger.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, q := range r.queue {
		if q.ID == o.ID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("sim cancel %s: %w", o.ID, errs.ErrUnknownOrder)
}

// Pending is the number of queued orders.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Advance executes queued orders for the candle's symbol against it, in
// submission order. Limit orders that are not touched stay queued.
func (r *Router) Advance(c market.Candle) error {
	r.mu.Lock()
	h := r.handler
	var fills []ledger.Fill
	kept := r.queue[:0]
	for _, o := range r.queue {
		if o.Symbol != c.Symbol {
			kept = append(kept, o)
			continue
		}
		px, ok := r.execPrice(o, c)
		if !ok {
			kept = append(kept, o)
			continue
		}
		fills = append(fills, r.fill(o, px, c.OpenTime))
	}
	r.queue = kept
	r.mu.Unlock()

	var all []error
	for _, f := range fills {
		if err := h.OnFill(f); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

func (r *Router) execPrice(o ledger.Order, c market.Candle) (float64, bool) {
	if o.Price > 0 {
		if o.Side == market.Buy && c.Low <= o.Price {
			return min(c.Open, o.Price), true
		}
		if o.Side == market.Sell && c.High >= o.Price {
			return max(c.Open, o.Price), true
		}
		return 0, false
	}
	px := c.Open
	if r.opts.FillAt == NextClose {
		px = c.Close
	}
	// slippage is always adverse
	return px * (1 + o.Side.Sign()*r.opts.SlippagePct), true
}

func (r *Router) fill(o ledger.Order, px float64, at time.Time) ledger.Fill {
	f := ledger.Fill{
		OrderID:   o.ID,
		FilledQty: o.RequestedQty,
		Price:     px,
		Fee:       px * o.RequestedQty * r.opts.FeePct,
		Time:      at,
	}
	r.log.Debug().Str("order_id", o.ID).Str("symbol", o.Symbol).Float64("price", px).Msg("simulated fill")
	return f
}
