// Package ledger is the single writer of order, position and account state.
//
// Submissions are serialised per (exchange, symbol) pair; all state lives
// behind one mutex that is never held across router calls, so routers may
// report fills synchronously from inside Submit. Events and journal writes
// are delivered after the mutex is released.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/internal/id"
	"github.com/rustyeddy/cryptotrader/journal"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/notify"
)

const (
	qtyEps        = 1e-9
	cancelTimeout = 10 * time.Second
)

type key struct {
	exchange string
	symbol   string
}

type Options struct {
	NewID    func() string
	Now      func() time.Time
	Logger   zerolog.Logger
	Notifier notify.Notifier
	Journal  journal.Journal
}

type Ledger struct {
	opts Options
	log  zerolog.Logger

	pairMu sync.Mutex
	pairs  map[key]*sync.Mutex

	mu        sync.Mutex
	routers   map[string]Router
	accounts  map[string]*account
	orders    map[string]*Order
	seq       []string
	history   map[string][]OrderStatus
	positions map[key]*Position
	closed    []Position
	paused    map[key]bool
}

func New(opts Options) *Ledger {
	if opts.NewID == nil {
		opts.NewID = id.New
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	return &Ledger{
		opts:      opts,
		log:       opts.Logger.With().Str("component", "ledger").Logger(),
		pairs:     make(map[key]*sync.Mutex),
		routers:   make(map[string]Router),
		accounts:  make(map[string]*account),
		orders:    make(map[string]*Order),
		history:   make(map[string][]OrderStatus),
		positions: make(map[key]*Position),
		paused:    make(map[key]bool),
	}
}

// Register attaches the router for an exchange.
func (l *Ledger) Register(exchange string, r Router) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routers[exchange] = r
	l.accountLocked(exchange)
}

func (l *Ledger) pairLock(k key) *sync.Mutex {
	l.pairMu.Lock()
	defer l.pairMu.Unlock()
	m, ok := l.pairs[k]
	if !ok {
		m = &sync.Mutex{}
		l.pairs[k] = m
	}
	return m
}

func (l *Ledger) accountLocked(exchange string) *account {
	a, ok := l.accounts[exchange]
	if !ok {
		a = &account{Account: Account{Exchange: exchange}}
		l.accounts[exchange] = a
	}
	return a
}

func validate(in market.OrderIntent) error {
	switch {
	case in.Exchange == "":
		return fmt.Errorf("%w: exchange is required", errs.ErrInvalidOrderParams)
	case in.Symbol == "":
		return fmt.Errorf("%w: symbol is required", errs.ErrInvalidOrderParams)
	case in.Side != market.Buy && in.Side != market.Sell:
		return fmt.Errorf("%w: side %q", errs.ErrInvalidOrderParams, in.Side)
	case !(in.Qty > 0):
		return fmt.Errorf("%w: quantity %g must be positive", errs.ErrInvalidOrderParams, in.Qty)
	case in.Price < 0 || in.TriggerPrice < 0:
		return fmt.Errorf("%w: negative price", errs.ErrInvalidOrderParams)
	}
	return nil
}

// Submit records the intent as a pending order and forwards it to the
// exchange's router. Invalid intents are rejected before any record exists.
func (l *Ledger) Submit(ctx context.Context, in market.OrderIntent) (Order, error) {
	if err := validate(in); err != nil {
		return Order{}, err
	}
	pm := l.pairLock(key{in.Exchange, in.Symbol})
	pm.Lock()
	defer pm.Unlock()

	return l.submitPairLocked(ctx, in)
}

func (l *Ledger) submitPairLocked(ctx context.Context, in market.OrderIntent) (Order, error) {
	k := key{in.Exchange, in.Symbol}
	log := l.log.With().Str("exchange", in.Exchange).Str("symbol", in.Symbol).Logger()

	var b batch
	l.mu.Lock()
	router, ok := l.routers[in.Exchange]
	if !ok {
		l.mu.Unlock()
		return Order{}, fmt.Errorf("submit: %w %q", errs.ErrUnknownExchange, in.Exchange)
	}
	if err := l.checkPositionLocked(k, in); err != nil {
		ev := notify.New(notify.RiskRejection, l.opts.Now())
		ev.Exchange, ev.Symbol, ev.Side, ev.Qty, ev.Reason = in.Exchange, in.Symbol, string(in.Side), in.Qty, in.Reason
		b.events = append(b.events, ev.WithErr(err))
		l.mu.Unlock()
		l.flush(b)
		return Order{}, err
	}
	o := newOrder(l.opts.NewID(), in, l.opts.Now())
	l.orders[o.ID] = o
	l.seq = append(l.seq, o.ID)
	l.history[o.ID] = []OrderStatus{Pending}
	b.order(o)
	b.events = append(b.events, l.orderEvent(notify.OrderSubmitted, o))
	snapshot := *o
	l.mu.Unlock()
	l.flush(b)

	log.Debug().Str("order_id", o.ID).Stringer("intent", in).Msg("order submitted")
	ack, err := router.Submit(ctx, snapshot)

	if err == nil {
		l.mu.Lock()
		b = batch{}
		if ack.ExchangeID != "" {
			o.ExchangeID = ack.ExchangeID
		}
		var terr error
		if o.Status == Pending {
			terr = l.transitionLocked(o, Open, &b)
		}
		snapshot = *o
		l.mu.Unlock()
		l.flush(b)
		return snapshot, terr
	}

	if errs.IsRejection(err) || errors.Is(err, errs.ErrAuthentication) {
		l.mu.Lock()
		b = batch{}
		if !o.Status.Terminal() {
			o.Err = err.Error()
			_ = l.transitionLocked(o, Rejected, &b)
			ev := l.orderEvent(notify.Error, o)
			b.events = append(b.events, ev.WithErr(err))
		}
		if errors.Is(err, errs.ErrInsufficientFunds) {
			l.paused[k] = true
		}
		snapshot = *o
		l.mu.Unlock()
		l.flush(b)
		log.Warn().Err(err).Str("order_id", o.ID).Msg("order rejected")
		return snapshot, fmt.Errorf("submit %s: %w", o.ID, err)
	}

	// The exchange may or may not hold the order. Try to cancel it so it ends
	// in a known terminal state.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	cerr := router.Cancel(cctx, snapshot)
	cancel()

	l.mu.Lock()
	b = batch{}
	if !o.Status.Terminal() {
		o.Err = err.Error()
		to := Cancelled
		if cerr != nil {
			to = Expired
		}
		_ = l.transitionLocked(o, to, &b)
		ev := l.orderEvent(notify.Error, o)
		b.events = append(b.events, ev.WithErr(err))
	}
	snapshot = *o
	l.mu.Unlock()
	l.flush(b)
	log.Error().Err(err).AnErr("cancel_err", cerr).Str("order_id", o.ID).Str("status", string(snapshot.Status)).Msg("order submission failed")
	return snapshot, fmt.Errorf("submit %s: %w", o.ID, err)
}

// checkPositionLocked enforces one position per pair with no netting.
func (l *Ledger) checkPositionLocked(k key, in market.OrderIntent) error {
	pos := l.positions[k]
	var closing, opposingEntries float64
	for _, o := range l.nonTerminalLocked(k) {
		switch {
		case o.ReduceOnly:
			closing += o.Remaining()
		case pos == nil && o.Side != in.Side:
			opposingEntries += o.Remaining()
		}
	}

	if pos == nil {
		if in.ReduceOnly {
			return fmt.Errorf("%w: no open %s position to reduce", errs.ErrInvalidOrderParams, in.Symbol)
		}
		if opposingEntries > 0 {
			return fmt.Errorf("%w: %s has a pending opposite entry", errs.ErrInvalidOrderParams, in.Symbol)
		}
		return nil
	}

	if in.Side == pos.Side {
		if in.ReduceOnly {
			return fmt.Errorf("%w: reduce-only %s on a %s position", errs.ErrInvalidOrderParams, in.Side, pos.Side)
		}
		return nil
	}
	if in.ReduceOnly {
		if closing+in.Qty > pos.Qty+qtyEps {
			return fmt.Errorf("%w: close of %g exceeds open %g (%g already closing)",
				errs.ErrInvalidOrderParams, in.Qty, pos.Qty, closing)
		}
		return nil
	}
	if closing+qtyEps < pos.Qty {
		return fmt.Errorf("%w: %s position is open; close it before reversing", errs.ErrInvalidOrderParams, pos.Side)
	}
	return nil
}

func (l *Ledger) nonTerminalLocked(k key) []*Order {
	var out []*Order
	for _, oid := range l.seq {
		o := l.orders[oid]
		if o.Exchange == k.exchange && o.Symbol == k.symbol && !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out
}

func (l *Ledger) closeInFlightLocked(k key) bool {
	for _, o := range l.nonTerminalLocked(k) {
		if o.ReduceOnly {
			return true
		}
	}
	return false
}

// OnFill applies a cumulative fill report. Reports that do not advance the
// filled quantity are ignored.
func (l *Ledger) OnFill(f Fill) error {
	var b batch
	l.mu.Lock()
	err := l.fillLocked(f, &b)
	l.mu.Unlock()
	l.flush(b)
	return err
}

func (l *Ledger) fillLocked(f Fill, b *batch) error {
	o, ok := l.orders[f.OrderID]
	if !ok {
		return fmt.Errorf("fill %s: %w", f.OrderID, errs.ErrUnknownOrder)
	}
	if f.FilledQty <= o.FilledQty+qtyEps {
		return nil
	}
	if o.Status.Terminal() {
		l.log.Warn().Str("order_id", o.ID).Str("status", string(o.Status)).
			Float64("filled_qty", f.FilledQty).Msg("fill after terminal state ignored")
		return nil
	}
	if f.FilledQty > o.RequestedQty+qtyEps {
		return l.invariantLocked(errs.Invariant("fill", "order %s filled %g of %g", o.ID, f.FilledQty, o.RequestedQty), b)
	}

	o.FilledQty = f.FilledQty
	o.AvgPrice = f.Price
	o.Fee = f.Fee
	if !f.Time.IsZero() {
		o.UpdatedAt = f.Time
	}

	if o.Remaining() <= qtyEps {
		o.FilledQty = o.RequestedQty
		return l.transitionLocked(o, Filled, b)
	}
	if o.Status == PartiallyFilled {
		b.order(o)
		return nil
	}
	return l.transitionLocked(o, PartiallyFilled, b)
}

// transitionLocked moves an order forward. Leaving a terminal state or
// moving backwards is an invariant violation.
func (l *Ledger) transitionLocked(o *Order, to OrderStatus, b *batch) error {
	if o.Status == to {
		return nil
	}
	if o.Status.Terminal() || rank[to] < rank[o.Status] {
		return l.invariantLocked(errs.Invariant("transition", "order %s: %s -> %s", o.ID, o.Status, to), b)
	}
	o.Status = to
	if now := l.opts.Now(); now.After(o.UpdatedAt) {
		o.UpdatedAt = now
	}
	l.history[o.ID] = append(l.history[o.ID], to)
	b.order(o)

	if to.Terminal() && o.FilledQty > 0 {
		l.settleLocked(o, b)
	}
	if to == Filled {
		b.events = append(b.events, l.orderEvent(notify.OrderFilled, o))
	}
	return nil
}

func (l *Ledger) invariantLocked(err *errs.InvariantError, b *batch) error {
	l.log.Error().Str("event", "invariant_violation").Str("op", err.Op).Msg(err.Detail)
	b.events = append(b.events, notify.New(notify.Error, l.opts.Now()).WithErr(err))
	return err
}

// settleLocked applies an order's executed quantity to its position.
func (l *Ledger) settleLocked(o *Order, b *batch) {
	k := key{o.Exchange, o.Symbol}
	q, px, fee := o.FilledQty, o.AvgPrice, o.Fee
	acct := l.accountLocked(o.Exchange)
	pos := l.positions[k]

	switch {
	case pos == nil && o.ReduceOnly:
		l.log.Warn().Str("order_id", o.ID).Msg("reduce-only fill with no position")
		acct.Balance -= fee
		acct.booked -= fee

	case pos == nil:
		l.openLocked(k, o, q, px, fee)

	case pos.Side == o.Side:
		total := pos.Qty + q
		pos.EntryPrice = (pos.EntryPrice*pos.Qty + px*q) / total
		pos.Qty = total
		pos.Fees += fee
		pos.UnbookedFees += fee
		if o.StopLoss > 0 {
			pos.StopLoss = o.StopLoss
		}
		if o.TakeProfit > 0 {
			pos.TakeProfit = o.TakeProfit
		}
		pos.mark(px)

	default:
		closeQty := min(q, pos.Qty)
		l.reduceLocked(k, pos, closeQty, px, fee, o, b)
		if rem := q - closeQty; rem > qtyEps {
			if o.ReduceOnly {
				l.log.Warn().Str("order_id", o.ID).Float64("excess", rem).Msg("reduce-only fill exceeds position")
			} else {
				l.openLocked(k, o, rem, px, 0)
			}
		}
	}
	l.revalueLocked(o.Exchange)
}

func (l *Ledger) openLocked(k key, o *Order, q, px, fee float64) {
	pos := &Position{
		ID:           l.opts.NewID(),
		Exchange:     o.Exchange,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Qty:          q,
		EntryPrice:   px,
		StopLoss:     o.StopLoss,
		TakeProfit:   o.TakeProfit,
		OpenedAt:     o.UpdatedAt,
		Fees:         fee,
		UnbookedFees: fee,
	}
	pos.mark(px)
	l.positions[k] = pos
}

func (l *Ledger) reduceLocked(k key, pos *Position, q, px, fee float64, o *Order, b *batch) {
	acct := l.accountLocked(pos.Exchange)

	gross := (px - pos.EntryPrice) * q * pos.Side.Sign()
	pos.Fees += fee
	chunk := gross - pos.UnbookedFees - fee
	pos.UnbookedFees = 0

	pos.RealizedPnL += chunk
	acct.Balance += chunk
	acct.booked += chunk

	pos.Qty -= q
	pos.closedQty += q
	if pos.closedQty == q {
		pos.exitAvg = px
	} else {
		pos.exitAvg += (px - pos.exitAvg) * q / pos.closedQty
	}

	if pos.Qty > qtyEps {
		pos.mark(px)
		return
	}

	pos.Qty = 0
	pos.MarkPrice = px
	pos.UnrealizedPnL = 0
	pos.ClosedAt = o.UpdatedAt
	pos.ExitPrice = pos.exitAvg
	pos.CloseReason = o.Reason

	archived := *pos
	archived.Qty = pos.closedQty
	l.closed = append(l.closed, archived)
	delete(l.positions, k)

	ev := notify.New(notify.PositionClosed, l.opts.Now())
	ev.Exchange, ev.Symbol, ev.OrderID = pos.Exchange, pos.Symbol, o.ID
	ev.Side, ev.Qty, ev.Price = string(pos.Side), archived.Qty, archived.ExitPrice
	ev.PnL, ev.Reason = archived.RealizedPnL, archived.CloseReason
	b.events = append(b.events, ev)
	b.trades = append(b.trades, journal.TradeRecord{
		TradeID:    archived.ID,
		Exchange:   archived.Exchange,
		Symbol:     archived.Symbol,
		Side:       string(archived.Side),
		Qty:        archived.Qty,
		EntryPrice: archived.EntryPrice,
		ExitPrice:  archived.ExitPrice,
		OpenTime:   archived.OpenedAt,
		CloseTime:  archived.ClosedAt,
		RealizedPL: archived.RealizedPnL,
		Fees:       archived.Fees,
		Reason:     archived.CloseReason,
	})
	b.closedExchange = append(b.closedExchange, pos.Exchange)
}

func (l *Ledger) revalueLocked(exchange string) {
	acct := l.accountLocked(exchange)
	var exposure, unrealized float64
	for k, p := range l.positions {
		if k.exchange != exchange {
			continue
		}
		exposure += p.Exposure()
		unrealized += p.UnrealizedPnL
	}
	acct.OpenExposure = exposure
	acct.Equity = acct.Balance + unrealized
}

// Cancel cancels a non-terminal order through its router.
func (l *Ledger) Cancel(ctx context.Context, orderID string) (Order, error) {
	l.mu.Lock()
	o, ok := l.orders[orderID]
	if !ok {
		l.mu.Unlock()
		return Order{}, fmt.Errorf("cancel %s: %w", orderID, errs.ErrUnknownOrder)
	}
	if o.Status.Terminal() {
		snapshot := *o
		l.mu.Unlock()
		return snapshot, fmt.Errorf("cancel %s: %w: order is %s", orderID, errs.ErrInvalidOrderParams, snapshot.Status)
	}
	router := l.routers[o.Exchange]
	snapshot := *o
	l.mu.Unlock()

	if router == nil {
		return snapshot, fmt.Errorf("cancel %s: %w %q", orderID, errs.ErrUnknownExchange, snapshot.Exchange)
	}
	if err := router.Cancel(ctx, snapshot); err != nil {
		return snapshot, fmt.Errorf("cancel %s: %w", orderID, err)
	}

	var b batch
	l.mu.Lock()
	var err error
	if !o.Status.Terminal() {
		err = l.transitionLocked(o, Cancelled, &b)
	}
	snapshot = *o
	l.mu.Unlock()
	l.flush(b)
	return snapshot, err
}

// CancelAll drives every non-terminal order to a terminal state: cancelled
// when the router confirms, expired otherwise.
func (l *Ledger) CancelAll(ctx context.Context) error {
	l.mu.Lock()
	type item struct {
		o      *Order
		snap   Order
		router Router
	}
	var open []item
	for _, oid := range l.seq {
		o := l.orders[oid]
		if !o.Status.Terminal() {
			open = append(open, item{o: o, snap: *o, router: l.routers[o.Exchange]})
		}
	}
	l.mu.Unlock()

	var all []error
	for _, it := range open {
		var cerr error
		if it.router == nil {
			cerr = fmt.Errorf("%w %q", errs.ErrUnknownExchange, it.snap.Exchange)
		} else {
			cerr = it.router.Cancel(ctx, it.snap)
		}

		var b batch
		l.mu.Lock()
		if !it.o.Status.Terminal() {
			to := Cancelled
			if cerr != nil {
				to = Expired
				it.o.Err = cerr.Error()
				all = append(all, fmt.Errorf("cancel %s: %w", it.o.ID, cerr))
			}
			if err := l.transitionLocked(it.o, to, &b); err != nil {
				all = append(all, err)
			}
		}
		l.mu.Unlock()
		l.flush(b)
	}
	return errors.Join(all...)
}

// Resolve records a terminal state reported by the exchange, such as an
// order cancelled or expired outside the ledger. Fills must arrive first
// through OnFill.
func (l *Ledger) Resolve(orderID string, to OrderStatus, reason string) error {
	if to != Cancelled && to != Expired && to != Rejected {
		return fmt.Errorf("resolve %s: %w: cannot resolve to %s", orderID, errs.ErrInvalidOrderParams, to)
	}
	var b batch
	l.mu.Lock()
	o, ok := l.orders[orderID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("resolve %s: %w", orderID, errs.ErrUnknownOrder)
	}
	var err error
	if !o.Status.Terminal() {
		if reason != "" {
			o.Err = reason
		}
		err = l.transitionLocked(o, to, &b)
	}
	l.mu.Unlock()
	l.flush(b)
	return err
}

// Mark revalues the pair's position at price.
func (l *Ledger) Mark(exchange, symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.positions[key{exchange, symbol}]; p != nil {
		p.mark(price)
		l.revalueLocked(exchange)
	}
}

// SetBalance replaces the exchange balance, typically from a refresh, and
// lifts any insufficient funds pause on that exchange.
func (l *Ledger) SetBalance(exchange string, balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.accountLocked(exchange)
	acct.Balance = balance
	acct.base = balance
	acct.booked = 0
	for k := range l.paused {
		if k.exchange == exchange {
			delete(l.paused, k)
		}
	}
	l.revalueLocked(exchange)
}

// Paused reports whether sizing for the pair is suspended after an
// insufficient funds rejection.
func (l *Ledger) Paused(exchange, symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused[key{exchange, symbol}]
}

// Adopt takes over a position that already exists on the exchange.
func (l *Ledger) Adopt(p Position) error {
	if p.Exchange == "" || p.Symbol == "" || !(p.Qty > 0) || !(p.EntryPrice > 0) {
		return fmt.Errorf("adopt: %w: incomplete position %+v", errs.ErrInvalidOrderParams, p)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key{p.Exchange, p.Symbol}
	if _, ok := l.positions[k]; ok {
		return fmt.Errorf("adopt: %w: %s already has a position", errs.ErrInvalidOrderParams, p.Symbol)
	}
	if p.ID == "" {
		p.ID = l.opts.NewID()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = l.opts.Now()
	}
	mark := p.MarkPrice
	if mark <= 0 {
		mark = p.EntryPrice
	}
	p.mark(mark)
	l.positions[k] = &p
	l.revalueLocked(p.Exchange)
	return nil
}

// Close submits a reduce-only order for the whole position. exitPrice is the
// requested level; simulated routers fill at it, live routers at market.
func (l *Ledger) Close(ctx context.Context, exchange, symbol string, exitPrice float64, reason string) (Order, error) {
	k := key{exchange, symbol}
	pm := l.pairLock(k)
	pm.Lock()
	defer pm.Unlock()

	l.mu.Lock()
	pos := l.positions[k]
	if pos == nil {
		l.mu.Unlock()
		return Order{}, fmt.Errorf("close %s: %w: no open position", symbol, errs.ErrInvalidOrderParams)
	}
	in := closeIntent(pos, exitPrice, reason)
	l.mu.Unlock()

	return l.submitPairLocked(ctx, in)
}

func closeIntent(pos *Position, price float64, reason string) market.OrderIntent {
	return market.OrderIntent{
		Exchange:     pos.Exchange,
		Symbol:       pos.Symbol,
		Side:         pos.Side.Opposite(),
		Qty:          pos.Qty,
		ReduceOnly:   true,
		TriggerPrice: price,
		Reason:       reason,
	}
}

func (l *Ledger) orderEvent(typ notify.Type, o *Order) notify.Event {
	ev := notify.New(typ, l.opts.Now())
	ev.Exchange, ev.Symbol, ev.OrderID = o.Exchange, o.Symbol, o.ID
	ev.Side, ev.Qty, ev.Reason = string(o.Side), o.RequestedQty, o.Reason
	ev.Price = o.Price
	if o.FilledQty > 0 {
		ev.Qty, ev.Price = o.FilledQty, o.AvgPrice
	}
	return ev
}

// batch collects side effects produced under the lock.
type batch struct {
	events         []notify.Event
	trades         []journal.TradeRecord
	orders         []journal.OrderRecord
	closedExchange []string
}

func (b *batch) order(o *Order) {
	b.orders = append(b.orders, journal.OrderRecord{
		OrderID:   o.ID,
		Exchange:  o.Exchange,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Type:      string(o.Type),
		Qty:       o.RequestedQty,
		FilledQty: o.FilledQty,
		AvgPrice:  o.AvgPrice,
		Status:    string(o.Status),
		Reason:    o.Reason,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	})
}

func (l *Ledger) flush(b batch) {
	if oj, ok := l.opts.Journal.(journal.OrderJournal); ok {
		for _, r := range b.orders {
			if err := oj.RecordOrder(r); err != nil {
				l.log.Warn().Err(err).Str("order_id", r.OrderID).Msg("journal order")
			}
		}
	}
	for _, t := range b.trades {
		if err := l.opts.Journal.RecordTrade(t); err != nil {
			l.log.Warn().Err(err).Str("trade_id", t.TradeID).Msg("journal trade")
		}
	}
	for _, ex := range b.closedExchange {
		a := l.Account(ex)
		if err := l.opts.Journal.RecordEquity(journal.EquitySnapshot{
			Time:     l.opts.Now(),
			Exchange: ex,
			Balance:  a.Balance,
			Equity:   a.Equity,
			Exposure: a.OpenExposure,
		}); err != nil {
			l.log.Warn().Err(err).Msg("journal equity")
		}
	}
	for _, ev := range b.events {
		if err := l.opts.Notifier.Notify(ev); err != nil {
			l.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("notify")
		}
	}
}

// sortPositions orders by exchange then symbol.
func sortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Exchange != ps[j].Exchange {
			return ps[i].Exchange < ps[j].Exchange
		}
		return ps[i].Symbol < ps[j].Symbol
	})
}
