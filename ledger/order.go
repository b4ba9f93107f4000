package ledger

import (
	"context"
	"time"

	"github.com/rustyeddy/cryptotrader/market"
)

type OrderStatus string

const (
	Pending         OrderStatus = "pending"
	Open            OrderStatus = "open"
	PartiallyFilled OrderStatus = "partially_filled"
	Filled          OrderStatus = "filled"
	Cancelled       OrderStatus = "cancelled"
	Rejected        OrderStatus = "rejected"
	Expired         OrderStatus = "expired"
)

// rank orders the non-terminal progression. Terminal states share the top
// rank so none of them can be left.
var rank = map[OrderStatus]int{
	Pending:         0,
	Open:            1,
	PartiallyFilled: 2,
	Filled:          3,
	Cancelled:       3,
	Rejected:        3,
	Expired:         3,
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

// Order is the ledger's record of one submission. Values handed out by the
// ledger are copies.
type Order struct {
	ID         string
	ExchangeID string
	Exchange   string
	Symbol     string
	Side       market.Side
	Type       market.OrderType

	RequestedQty float64
	FilledQty    float64
	AvgPrice     float64
	Fee          float64

	Price        float64
	TriggerPrice float64
	StopLoss     float64
	TakeProfit   float64
	ReduceOnly   bool
	Reason       string

	Status    OrderStatus
	Err       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newOrder(id string, in market.OrderIntent, now time.Time) *Order {
	return &Order{
		ID:           id,
		Exchange:     in.Exchange,
		Symbol:       in.Symbol,
		Side:         in.Side,
		Type:         in.Type(),
		RequestedQty: in.Qty,
		Price:        in.Price,
		TriggerPrice: in.TriggerPrice,
		StopLoss:     in.StopLoss,
		TakeProfit:   in.TakeProfit,
		ReduceOnly:   in.ReduceOnly,
		Reason:       in.Reason,
		Status:       Pending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (o Order) Remaining() float64 {
	return o.RequestedQty - o.FilledQty
}

// Fill reports cumulative execution of an order. FilledQty, Price (average)
// and Fee cover everything filled so far, so replays are harmless.
type Fill struct {
	OrderID   string
	FilledQty float64
	Price     float64
	Fee       float64
	Time      time.Time
}

// Ack is a router's acknowledgement of a submission.
type Ack struct {
	ExchangeID string
}

// Router executes orders for one exchange. Submit may deliver fills through
// the ledger's OnFill before it returns.
type Router interface {
	Submit(ctx context.Context, o Order) (Ack, error)
	Cancel(ctx context.Context, o Order) error
}

// FillHandler receives fills from a router.
type FillHandler interface {
	OnFill(f Fill) error
}
