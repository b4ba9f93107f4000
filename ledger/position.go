package ledger

import (
	"time"

	"github.com/rustyeddy/cryptotrader/market"
)

// Position is a held quantity on one (exchange, symbol) pair.
type Position struct {
	ID         string
	Exchange   string
	Symbol     string
	Side       market.Side
	Qty        float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time

	MarkPrice     float64
	RealizedPnL   float64
	UnrealizedPnL float64

	// Fees paid on this position. UnbookedFees have not yet been charged
	// against the balance; they are taken out of the next realized chunk.
	Fees         float64
	UnbookedFees float64

	ClosedAt    time.Time
	ExitPrice   float64
	CloseReason string

	closedQty float64
	exitAvg   float64
}

func (p Position) Exposure() float64 {
	return p.Qty * p.EntryPrice
}

// PnLAt is the gross profit of the whole position at price.
func (p Position) PnLAt(price float64) float64 {
	return (price - p.EntryPrice) * p.Qty * p.Side.Sign()
}

func (p *Position) mark(price float64) {
	if price <= 0 {
		return
	}
	p.MarkPrice = price
	p.UnrealizedPnL = p.PnLAt(price) - p.UnbookedFees
}

func (p Position) hitStopLoss(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == market.Buy {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func (p Position) hitTakeProfit(price float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Side == market.Buy {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// Account is a per-exchange snapshot.
type Account struct {
	Exchange     string
	Balance      float64
	Equity       float64
	OpenExposure float64
}

type account struct {
	Account

	// base is the balance at the last SetBalance; booked is realized P&L since.
	base   float64
	booked float64
}
