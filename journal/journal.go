// Package journal persists closed trades, equity snapshots, order
// transitions, backtest runs and cached candles.
package journal

import "time"

// TradeRecord is one closed position.
type TradeRecord struct {
	TradeID    string
	Exchange   string
	Symbol     string
	Side       string
	Qty        float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Fees       float64
	Reason     string
}

type EquitySnapshot struct {
	Time     time.Time
	Exchange string
	Balance  float64
	Equity   float64
	Exposure float64
}

// OrderRecord is the latest state of an order.
type OrderRecord struct {
	OrderID   string
	Exchange  string
	Symbol    string
	Side      string
	Type      string
	Qty       float64
	FilledQty float64
	AvgPrice  float64
	Status    string
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// OrderJournal is implemented by journals that also track orders.
type OrderJournal interface {
	RecordOrder(OrderRecord) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) RecordOrder(OrderRecord) error { return nil }
func (Nop) Close() error { return nil }
