package ledger

import (
	"math"
	"sort"

	"github.com/rustyeddy/cryptotrader/internal/errs"
)

func (l *Ledger) Account(exchange string) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[exchange]; ok {
		return a.Account
	}
	return Account{Exchange: exchange}
}

func (l *Ledger) Accounts() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a.Account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

func (l *Ledger) Exchanges() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.routers))
	for name := range l.routers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) Position(exchange, symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.positions[key{exchange, symbol}]; p != nil {
		return *p, true
	}
	return Position{}, false
}

func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sortPositions(out)
	return out
}

// ClosedPositions returns archived positions in close order.
func (l *Ledger) ClosedPositions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, len(l.closed))
	copy(out, l.closed)
	return out
}

func (l *Ledger) Order(id string) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orders[id]; ok {
		return *o, true
	}
	return Order{}, false
}

// Orders returns every order in submission order.
func (l *Ledger) Orders() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Order, 0, len(l.seq))
	for _, oid := range l.seq {
		out = append(out, *l.orders[oid])
	}
	return out
}

func (l *Ledger) OpenOrders() []Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Order
	for _, oid := range l.seq {
		if o := l.orders[oid]; !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// History is the sequence of statuses an order has been through.
func (l *Ledger) History(id string) []OrderStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.history[id]
	out := make([]OrderStatus, len(h))
	copy(out, h)
	return out
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// CheckInvariants verifies exposure, equity and order histories. A violation
// is logged and returned as an errs.InvariantError.
func (l *Ledger) CheckInvariants() error {
	var b batch
	l.mu.Lock()
	err := l.checkLocked(&b)
	l.mu.Unlock()
	l.flush(b)
	return err
}

func (l *Ledger) checkLocked(b *batch) error {
	for ex, a := range l.accounts {
		var exposure, unrealized float64
		for k, p := range l.positions {
			if k.exchange != ex {
				continue
			}
			if !(p.Qty > 0) {
				return l.invariantLocked(errs.Invariant("position", "%s %s has quantity %g", ex, k.symbol, p.Qty), b)
			}
			exposure += p.Exposure()
			unrealized += p.UnrealizedPnL
		}
		if !near(a.OpenExposure, exposure) {
			return l.invariantLocked(errs.Invariant("exposure", "%s: account %g, positions %g", ex, a.OpenExposure, exposure), b)
		}
		if !near(a.Equity, a.Balance+unrealized) {
			return l.invariantLocked(errs.Invariant("equity", "%s: equity %g, balance %g + unrealized %g", ex, a.Equity, a.Balance, unrealized), b)
		}
		if !near(a.Balance, a.base+a.booked) {
			return l.invariantLocked(errs.Invariant("balance", "%s: balance %g, base %g + realized %g", ex, a.Balance, a.base, a.booked), b)
		}
	}

	for _, oid := range l.seq {
		o := l.orders[oid]
		if o.FilledQty > o.RequestedQty+qtyEps {
			return l.invariantLocked(errs.Invariant("order", "%s filled %g of %g", o.ID, o.FilledQty, o.RequestedQty), b)
		}
		h := l.history[oid]
		for i := 1; i < len(h); i++ {
			if h[i-1].Terminal() || rank[h[i]] <= rank[h[i-1]] {
				return l.invariantLocked(errs.Invariant("order", "%s history %v is not monotonic", o.ID, h), b)
			}
		}
	}
	return nil
}
