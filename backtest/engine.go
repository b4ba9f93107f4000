// Package backtest replays historical candles through the same strategy,
// risk and ledger code the live loop uses, with the simulated router in
// place of an exchange.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/internal/id"
	"github.com/rustyeddy/cryptotrader/journal"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/notify"
	"github.com/rustyeddy/cryptotrader/risk"
	"github.com/rustyeddy/cryptotrader/sim"
	"github.com/rustyeddy/cryptotrader/strategies"
)

const endReason = "end of backtest"

// Options controls one replay.
type Options struct {
	InitialBalance float64
	FeePct         float64
	SlippagePct    float64
	FillAt         sim.FillAt

	// CloseAtEnd closes any open position at the last close.
	CloseAtEnd bool

	// PeriodsPerYear annualises the Sharpe ratio. Zero derives it from the
	// candle timeframe.
	PeriodsPerYear float64
	RiskFreeRate   float64

	// Exchange names the simulated venue on orders. Defaults to "sim".
	Exchange string

	// MinQty and StepSize override the symbol's trading rules when set.
	MinQty   float64
	StepSize float64

	// Window caps the trailing window handed to the strategy. It is never
	// shorter than the strategy's warmup.
	Window int

	Logger   zerolog.Logger
	Notifier notify.Notifier
	Journal  journal.Journal
}

func DefaultOptions() Options {
	return Options{
		InitialBalance: 10000,
		FeePct:         0.001,
		FillAt:         sim.NextOpen,
		CloseAtEnd:     true,
		Exchange:       "sim",
		Window:         100,
	}
}

// Engine runs one strategy over one symbol.
type Engine struct {
	Strategy strategies.Strategy
	Risk     risk.Config
	Options  Options
}

func New(s strategies.Strategy, rc risk.Config, opts Options) *Engine {
	return &Engine{Strategy: s, Risk: rc, Options: opts}
}

func (e *Engine) symbolInfo(symbol string) market.SymbolInfo {
	info := market.LookupSymbol(symbol)
	if e.Options.MinQty > 0 {
		info.MinQty = e.Options.MinQty
	}
	if e.Options.StepSize > 0 {
		info.StepSize = e.Options.StepSize
	}
	return info
}

// Run replays candles in order. For each bar it fills orders queued on the
// previous bar, checks stops and targets against the bar's range, marks
// the position at the close, then evaluates the strategy on the window
// ending at this bar. Orders from that signal fill on the next bar at the
// earliest.
func (e *Engine) Run(ctx context.Context, candles []market.Candle) (Report, error) {
	if e.Strategy == nil {
		return Report{}, fmt.Errorf("backtest: strategy is required")
	}
	if len(candles) == 0 {
		return Report{}, fmt.Errorf("backtest: %w", errs.ErrNoData)
	}
	if e.Options.InitialBalance <= 0 {
		return Report{}, fmt.Errorf("backtest: initial balance must be > 0")
	}
	if err := e.Risk.Validate(); err != nil {
		return Report{}, fmt.Errorf("backtest: %w", err)
	}

	ex := e.Options.Exchange
	if ex == "" {
		ex = "sim"
	}
	symbol := candles[0].Symbol
	info := e.symbolInfo(symbol)
	log := e.Options.Logger.With().Str("strategy", e.Strategy.Name()).Str("symbol", symbol).Logger()
	notifier := e.Options.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}

	// the ledger clock follows the replay, never the wall clock
	var now time.Time
	router := sim.NewRouter(sim.Options{
		FeePct:      e.Options.FeePct,
		SlippagePct: e.Options.SlippagePct,
		FillAt:      e.Options.FillAt,
		Logger:      log,
	})
	l := ledger.New(ledger.Options{
		NewID:    id.NewSequence("bt").Next,
		Now:      func() time.Time { return now },
		Logger:   log,
		Notifier: notifier,
		Journal:  e.Options.Journal,
	})
	router.Bind(l)
	l.Register(ex, router)
	l.SetBalance(ex, e.Options.InitialBalance)

	warmup := e.Strategy.Warmup()
	window := max(e.Options.Window, warmup)
	curve := make([]EquityPoint, 0, len(candles))
	rejections := 0

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		if c.Symbol != symbol {
			return Report{}, fmt.Errorf("backtest: bar %d is %s, expected %s", i, c.Symbol, symbol)
		}
		if i > 0 && !c.OpenTime.After(candles[i-1].OpenTime) {
			return Report{}, fmt.Errorf("backtest: bar %d at %s is out of order", i, c.OpenTime.Format(time.RFC3339))
		}

		now = c.OpenTime
		if err := router.Advance(c); err != nil {
			return Report{}, fmt.Errorf("backtest: fill at %s: %w", now.Format(time.RFC3339), err)
		}
		if _, err := l.OnBar(ctx, ex, c); err != nil {
			if errs.IsFatal(err) {
				return Report{}, err
			}
			log.Warn().Err(err).Time("bar", c.OpenTime).Msg("exit order failed")
		}
		l.Mark(ex, symbol, c.Close)
		if err := l.CheckInvariants(); err != nil {
			return Report{}, err
		}

		acct := l.Account(ex)
		curve = append(curve, EquityPoint{Time: c.OpenTime, Balance: acct.Balance, Equity: acct.Equity})

		if i+1 < warmup {
			continue
		}
		sig, err := e.Strategy.Evaluate(candles[max(0, i+1-window) : i+1])
		if errors.Is(err, errs.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("backtest: evaluate at %s: %w", c.OpenTime.Format(time.RFC3339), err)
		}

		now = c.CloseTime()
		var pos *ledger.Position
		if p, ok := l.Position(ex, symbol); ok {
			pos = &p
		}
		d := risk.Size(sig, acct, pos, e.Risk, info)
		if d.Rejection != nil {
			rejections++
			ev := notify.New(notify.RiskRejection, now)
			ev.Exchange, ev.Symbol, ev.Price, ev.Reason = ex, symbol, sig.Price, sig.Reason
			if err := notifier.Notify(ev.WithErr(d.Rejection)); err != nil {
				log.Warn().Err(err).Msg("notify")
			}
		}
		for _, in := range d.Intents {
			if _, err := l.Submit(ctx, in); err != nil {
				if errs.IsFatal(err) {
					return Report{}, err
				}
				rejections++
				log.Debug().Err(err).Stringer("intent", in).Msg("intent refused")
			}
		}
	}

	last := candles[len(candles)-1]
	now = last.CloseTime()
	if e.Options.CloseAtEnd {
		if _, ok := l.Position(ex, symbol); ok {
			if _, err := l.Close(ctx, ex, symbol, last.Close, endReason); err != nil {
				return Report{}, fmt.Errorf("backtest: close at end: %w", err)
			}
		}
	}
	if err := l.CancelAll(ctx); err != nil {
		log.Warn().Err(err).Msg("pending orders left at end")
	}
	if err := l.CheckInvariants(); err != nil {
		return Report{}, err
	}

	acct := l.Account(ex)
	curve[len(curve)-1].Balance = acct.Balance
	curve[len(curve)-1].Equity = acct.Equity

	r := buildReport(e.Strategy.Name(), candles, l.ClosedPositions(), curve, e.Options, acct)
	r.Rejections = rejections
	if open, ok := l.Position(ex, symbol); ok {
		r.OpenPosition = &Trade{
			Side:       string(open.Side),
			Qty:        open.Qty,
			EntryPrice: open.EntryPrice,
			OpenedAt:   open.OpenedAt,
			PnL:        open.UnrealizedPnL,
			Fees:       open.Fees,
		}
	}
	log.Info().
		Int("trades", r.TotalTrades).
		Float64("final_balance", r.FinalBalance).
		Float64("return_pct", r.TotalReturnPct).
		Msg("backtest finished")
	return r, nil
}
