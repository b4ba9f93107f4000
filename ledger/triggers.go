package ledger

import (
	"context"

	"github.com/rustyeddy/cryptotrader/market"
)

// OnPriceTick marks the pair's position and, when its stop-loss or
// take-profit is breached, submits a reduce-only close through Submit.
// It returns the synthesized order, if any.
func (l *Ledger) OnPriceTick(ctx context.Context, exchange, symbol string, price float64) (*Order, error) {
	k := key{exchange, symbol}
	pm := l.pairLock(k)
	pm.Lock()
	defer pm.Unlock()

	l.mu.Lock()
	pos := l.positions[k]
	if pos == nil || price <= 0 {
		l.mu.Unlock()
		return nil, nil
	}
	pos.mark(price)
	l.revalueLocked(exchange)

	reason := ""
	switch {
	case pos.hitStopLoss(price):
		reason = "stop loss"
	case pos.hitTakeProfit(price):
		reason = "take profit"
	}
	if reason == "" || l.closeInFlightLocked(k) {
		l.mu.Unlock()
		return nil, nil
	}
	in := closeIntent(pos, price, reason)
	l.mu.Unlock()

	o, err := l.submitPairLocked(ctx, in)
	return &o, err
}

// OnBar is the candle form of OnPriceTick. The stop is checked before the
// target when both fall inside the bar's range. A bar that opens beyond the
// level exits at the open. Without a trigger the position is marked at the
// close.
func (l *Ledger) OnBar(ctx context.Context, exchange string, c market.Candle) (*Order, error) {
	k := key{exchange, c.Symbol}
	pm := l.pairLock(k)
	pm.Lock()
	defer pm.Unlock()

	l.mu.Lock()
	pos := l.positions[k]
	if pos == nil {
		l.mu.Unlock()
		return nil, nil
	}

	exit, reason := barExit(*pos, c)
	if reason == "" || l.closeInFlightLocked(k) {
		pos.mark(c.Close)
		l.revalueLocked(exchange)
		l.mu.Unlock()
		return nil, nil
	}
	in := closeIntent(pos, exit, reason)
	l.mu.Unlock()

	o, err := l.submitPairLocked(ctx, in)
	return &o, err
}

func barExit(p Position, c market.Candle) (float64, string) {
	long := p.Side == market.Buy

	if p.StopLoss > 0 {
		if long && c.Low <= p.StopLoss {
			return min(c.Open, p.StopLoss), "stop loss"
		}
		if !long && c.High >= p.StopLoss {
			return max(c.Open, p.StopLoss), "stop loss"
		}
	}
	if p.TakeProfit > 0 {
		if long && c.High >= p.TakeProfit {
			return max(c.Open, p.TakeProfit), "take profit"
		}
		if !long && c.Low <= p.TakeProfit {
			return min(c.Open, p.TakeProfit), "take profit"
		}
	}
	return 0, ""
}
