// Package live runs the trading pipeline against real exchanges: one worker
// per (exchange, symbol) pair sharing a single ledger.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/broker"
	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/internal/logging"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/notify"
	"github.com/rustyeddy/cryptotrader/risk"
	"github.com/rustyeddy/cryptotrader/strategies"
)

type Options struct {
	Interval        time.Duration
	ErrorBackoff    time.Duration
	ShutdownTimeout time.Duration
	Timeframe       market.Timeframe

	// Window is the number of closed candles fetched per cycle. It is raised
	// to the strategy warmup when shorter.
	Window int

	// Leverage is applied to every symbol at startup when > 0.
	Leverage     int
	StreamPrices bool

	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Interval:        60 * time.Second,
		ErrorBackoff:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Timeframe:       market.H1,
		Window:          100,
		Leverage:        1,
	}
}

// StrategyFactory builds one strategy instance per worker.
type StrategyFactory func() (strategies.Strategy, error)

type venue struct {
	conn    exchange.Connector
	broker  *broker.Live
	symbols []string
}

type Loop struct {
	opts     Options
	ledger   *ledger.Ledger
	risk     risk.Config
	strategy StrategyFactory
	notifier notify.Notifier
	log      zerolog.Logger

	venues []*venue

	mu       sync.Mutex
	disabled map[string]error
}

func New(opts Options, l *ledger.Ledger, rc risk.Config, sf StrategyFactory, n notify.Notifier, logger zerolog.Logger) *Loop {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if n == nil {
		n = notify.Nop
	}
	return &Loop{
		opts:     opts,
		ledger:   l,
		risk:     rc,
		strategy: sf,
		notifier: n,
		log:      logger.With().Str("component", "live").Logger(),
		disabled: make(map[string]error),
	}
}

// AddExchange registers a connector and the symbols traded on it. The
// connector's router is bound to the loop's ledger.
func (lp *Loop) AddExchange(conn exchange.Connector, symbols []string) *broker.Live {
	b := broker.NewLive(conn, lp.log)
	b.Bind(lp.ledger)
	lp.ledger.Register(conn.Name(), b)
	lp.venues = append(lp.venues, &venue{conn: conn, broker: b, symbols: symbols})
	return b
}

// Connector returns the connector registered under name.
func (lp *Loop) Connector(name string) (exchange.Connector, bool) {
	for _, v := range lp.venues {
		if v.conn.Name() == name {
			return v.conn, true
		}
	}
	return nil, false
}

// Exchanges lists the registered exchange names in registration order.
func (lp *Loop) Exchanges() []string {
	out := make([]string, 0, len(lp.venues))
	for _, v := range lp.venues {
		out = append(out, v.conn.Name())
	}
	return out
}

func (lp *Loop) Disabled(name string) bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.disabled[name] != nil
}

func (lp *Loop) disable(name string, err error) {
	lp.mu.Lock()
	first := lp.disabled[name] == nil
	if first {
		lp.disabled[name] = err
	}
	lp.mu.Unlock()
	if !first {
		return
	}
	lp.log.Error().Err(err).Str("exchange", name).Msg("exchange disabled")
	ev := notify.New(notify.Error, lp.opts.Now())
	ev.Exchange, ev.Reason = name, "exchange disabled"
	lp.emit(ev.WithErr(err))
}

func (lp *Loop) emit(ev notify.Event) {
	if err := lp.notifier.Notify(ev); err != nil {
		lp.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("notify")
	}
}

// Run prepares every exchange, starts the workers and blocks until ctx is
// done. On shutdown it waits for in-flight submissions, then cancels every
// non-terminal order. It fails only when no exchange could be started.
func (lp *Loop) Run(ctx context.Context) error {
	if len(lp.venues) == 0 {
		return fmt.Errorf("live: no exchanges configured")
	}
	if lp.strategy == nil {
		return fmt.Errorf("live: strategy factory is required")
	}

	var failed []error
	for _, v := range lp.venues {
		if err := lp.prepare(ctx, v); err != nil {
			if errs.IsFatal(err) {
				lp.disable(v.conn.Name(), err)
				failed = append(failed, err)
				continue
			}
			lp.log.Warn().Err(err).Str("exchange", v.conn.Name()).Msg("startup sync incomplete")
		}
	}
	if len(failed) == len(lp.venues) {
		return fmt.Errorf("live: no exchange available: %w", errors.Join(failed...))
	}

	var wg sync.WaitGroup
	for _, v := range lp.venues {
		v := v
		if lp.Disabled(v.conn.Name()) {
			continue
		}
		for _, sym := range v.symbols {
			s, err := lp.strategy()
			if err != nil {
				return fmt.Errorf("live: %w", err)
			}
			w := &worker{lp: lp, v: v, symbol: sym, strategy: s,
				log: logging.ForPair(lp.log, v.conn.Name(), sym).With().Str("strategy", s.Name()).Logger()}
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.run(ctx)
			}()
		}
		if t, ok := v.conn.(exchange.Ticker); ok && lp.opts.StreamPrices {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lp.stream(ctx, v, t)
			}()
		}
	}
	lp.log.Info().Strs("exchanges", lp.Exchanges()).Msg("live loop started")

	<-ctx.Done()
	lp.log.Info().Msg("shutting down")
	lp.drain(&wg)
	return nil
}

func (lp *Loop) prepare(ctx context.Context, v *venue) error {
	name := v.conn.Name()
	bal, err := v.conn.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	lp.ledger.SetBalance(name, bal.Total)

	positions, err := v.conn.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	for _, p := range positions {
		pos := ledger.Position{
			Exchange:   name,
			Symbol:     p.Symbol,
			Side:       p.Side,
			Qty:        p.Qty,
			EntryPrice: p.EntryPrice,
			MarkPrice:  p.MarkPrice,
		}
		tick := 0.0
		if info, err := v.conn.SymbolInfo(ctx, p.Symbol); err == nil {
			tick = info.TickSize
		}
		pos.StopLoss, pos.TakeProfit = risk.Levels(p.Side, p.EntryPrice, lp.risk, tick)
		if err := lp.ledger.Adopt(pos); err != nil {
			lp.log.Warn().Err(err).Str("exchange", name).Str("symbol", p.Symbol).Msg("position not adopted")
			continue
		}
		lp.log.Info().Str("exchange", name).Str("symbol", p.Symbol).
			Str("side", string(p.Side)).Float64("qty", p.Qty).Msg("adopted exchange position")
	}

	if lp.opts.Leverage > 0 {
		for _, sym := range v.symbols {
			if err := v.conn.SetLeverage(ctx, sym, lp.opts.Leverage); err != nil {
				return fmt.Errorf("leverage %s: %w", sym, err)
			}
		}
	}
	return nil
}

// stream feeds mark prices into the ledger's stop and target checks
// between polls.
func (lp *Loop) stream(ctx context.Context, v *venue, t exchange.Ticker) {
	name := v.conn.Name()
	err := t.StreamPrices(ctx, v.symbols, func(tk exchange.Tick) {
		if lp.Disabled(name) {
			return
		}
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lp.opts.ShutdownTimeout)
		defer cancel()
		if _, err := lp.ledger.OnPriceTick(tctx, name, tk.Symbol, tk.Price); err != nil {
			lp.log.Warn().Err(err).Str("exchange", name).Str("symbol", tk.Symbol).Msg("price tick exit failed")
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		lp.log.Error().Err(err).Str("exchange", name).Msg("price stream stopped")
	}
}

func (lp *Loop) drain(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(lp.opts.ShutdownTimeout):
		lp.log.Warn().Dur("timeout", lp.opts.ShutdownTimeout).Msg("workers still running at shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lp.opts.ShutdownTimeout)
	defer cancel()
	if err := lp.ledger.CancelAll(ctx); err != nil {
		lp.log.Warn().Err(err).Msg("some orders could not be cancelled and were marked expired")
	}
	lp.log.Info().Msg("shutdown complete")
}
