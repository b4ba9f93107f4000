package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/notify"
	"github.com/rustyeddy/cryptotrader/risk"
	"github.com/rustyeddy/cryptotrader/strategies"
)

type worker struct {
	lp       *Loop
	v        *venue
	symbol   string
	strategy strategies.Strategy
	log      zerolog.Logger

	// open time of the last candle a signal was acted on
	evaluated time.Time
}

func (w *worker) run(ctx context.Context) {
	name := w.v.conn.Name()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if w.lp.Disabled(name) {
			return
		}

		wait := w.lp.opts.Interval
		if err := w.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errs.IsFatal(err) {
				w.lp.disable(name, err)
				return
			}
			w.log.Warn().Err(err).Bool("transient", errs.IsTransient(err)).Dur("retry_in", w.lp.opts.ErrorBackoff).Msg("cycle failed")
			ev := notify.New(notify.Error, w.lp.opts.Now())
			ev.Exchange, ev.Symbol, ev.Reason = name, w.symbol, "cycle failed"
			w.lp.emit(ev.WithErr(err))
			wait = w.lp.opts.ErrorBackoff
		}
		timer.Reset(wait)
	}
}

func (w *worker) window() int {
	return max(w.lp.opts.Window, w.strategy.Warmup())
}

// cycle is one evaluation: refresh the balance, reconcile resting orders,
// check exits at the current price, then size and submit the signal.
func (w *worker) cycle(ctx context.Context) error {
	lp, conn := w.lp, w.v.conn
	name := conn.Name()

	bal, err := conn.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	lp.ledger.SetBalance(name, bal.Total)

	if err := w.v.broker.Reconcile(ctx, w.openOrders()); err != nil {
		if errs.IsFatal(err) {
			return err
		}
		w.log.Warn().Err(err).Msg("reconcile")
	}

	tf := lp.opts.Timeframe
	now := lp.opts.Now()
	n := w.window() + 1
	candles, err := conn.GetOHLCV(ctx, w.symbol, tf, now.Add(-time.Duration(n)*tf.Duration()), n)
	if err != nil {
		return fmt.Errorf("candles: %w", err)
	}
	candles = closedOnly(candles, now)

	price, err := conn.GetPrice(ctx, w.symbol)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	// submissions outlive the shutdown signal so none is abandoned mid-flight
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lp.opts.ShutdownTimeout)
	defer cancel()

	if o, err := lp.ledger.OnPriceTick(sctx, name, w.symbol, price); err != nil {
		if errs.IsFatal(err) {
			return err
		}
		w.log.Warn().Err(err).Msg("exit order failed")
	} else if o != nil {
		w.log.Info().Str("order_id", o.ID).Str("reason", o.Reason).Msg("exit triggered")
	}

	if lp.ledger.Paused(name, w.symbol) {
		w.log.Debug().Msg("sizing paused until balance refresh")
		return nil
	}
	if open := w.openOrders(); len(open) > 0 {
		w.log.Debug().Int("open_orders", len(open)).Msg("orders still working; skipping signal")
		return nil
	}

	var last time.Time
	if len(candles) > 0 {
		last = candles[len(candles)-1].OpenTime
	}
	if !w.evaluated.IsZero() && !last.After(w.evaluated) {
		w.log.Debug().Time("candle", last).Msg("no new closed candle")
		return nil
	}

	sig, err := w.strategy.Evaluate(candles)
	if errors.Is(err, errs.ErrInsufficientData) {
		w.log.Debug().Int("candles", len(candles)).Msg("waiting for more candles")
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	info, err := conn.SymbolInfo(ctx, w.symbol)
	if err != nil {
		return fmt.Errorf("symbol info: %w", err)
	}
	var pos *ledger.Position
	if p, ok := lp.ledger.Position(name, w.symbol); ok {
		pos = &p
	}
	d := risk.Size(sig, lp.ledger.Account(name), pos, lp.risk, info)
	if d.Rejection != nil {
		w.log.Info().Err(d.Rejection).Str("direction", string(sig.Direction)).Msg("signal rejected")
		ev := notify.New(notify.RiskRejection, lp.opts.Now())
		ev.Exchange, ev.Symbol, ev.Price, ev.Reason = name, w.symbol, sig.Price, sig.Reason
		lp.emit(ev.WithErr(d.Rejection))
	}

	for _, in := range d.Intents {
		if ctx.Err() != nil {
			return nil
		}
		o, err := lp.ledger.Submit(sctx, in)
		if err != nil {
			if errs.IsRejection(err) {
				w.log.Warn().Err(err).Stringer("intent", in).Msg("order rejected")
				continue
			}
			return fmt.Errorf("submit: %w", err)
		}
		w.log.Info().Str("order_id", o.ID).Str("status", string(o.Status)).Stringer("intent", in).Msg("order placed")
	}
	w.evaluated = last
	return nil
}

func (w *worker) openOrders() []ledger.Order {
	var out []ledger.Order
	for _, o := range w.lp.ledger.OpenOrders() {
		if o.Exchange == w.v.conn.Name() && o.Symbol == w.symbol {
			out = append(out, o)
		}
	}
	return out
}

// closedOnly drops the bar that is still forming at now.
func closedOnly(cs []market.Candle, now time.Time) []market.Candle {
	for len(cs) > 0 && cs[len(cs)-1].CloseTime().After(now) {
		cs = cs[:len(cs)-1]
	}
	return cs
}
