package market

import "fmt"

type OrderType string

const (
	MarketOrder OrderType = "market"
	LimitOrder  OrderType = "limit"
)

// OrderIntent is a sized request to trade. It is never mutated after
// creation; a changed plan produces a new intent.
type OrderIntent struct {
	Exchange string
	Symbol   string
	Side     Side
	Qty      float64

	// Price is the limit price. Zero means a market order.
	Price float64

	StopLoss   float64
	TakeProfit float64

	// ReduceOnly marks closing orders. They may shrink a position but never
	// open or grow one.
	ReduceOnly bool

	// TriggerPrice is the level that fired a stop-loss or take-profit, or the
	// requested exit price of a manual close. Simulated routers fill at it.
	TriggerPrice float64

	Reason string
}

func (i OrderIntent) Type() OrderType {
	if i.Price > 0 {
		return LimitOrder
	}
	return MarketOrder
}

func (i OrderIntent) String() string {
	px := "market"
	if i.Price > 0 {
		px = fmt.Sprintf("@%g", i.Price)
	}
	ro := ""
	if i.ReduceOnly {
		ro = " reduce-only"
	}
	return fmt.Sprintf("%s %s %g %s %s%s", i.Exchange, i.Symbol, i.Qty, i.Side, px, ro)
}
