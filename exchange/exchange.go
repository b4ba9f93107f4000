// Package exchange defines the connector contract each exchange integration
// implements, plus decorators shared by all of them.
package exchange

import (
	"context"
	"time"

	"github.com/rustyeddy/cryptotrader/market"
)

// Connector is one exchange account. Every method surfaces errors from the
// errs taxonomy, usually as an *errs.ExchangeError.
type Connector interface {
	Name() string
	GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, since time.Time, limit int) ([]market.Candle, error)
	GetBalance(ctx context.Context) (Balance, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetOrder(ctx context.Context, symbol, id string) (Order, error)
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, symbol, id string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetPrice(ctx context.Context, symbol string) (float64, error)
	SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error)
}

// Ticker is implemented by connectors that can push prices.
type Ticker interface {
	StreamPrices(ctx context.Context, symbols []string, fn func(Tick)) error
}

type Balance struct {
	Asset     string
	Total     float64
	Available float64
}

type Position struct {
	Symbol        string
	Side          market.Side
	Qty           float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
}

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

func (s OrderStatus) Done() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

type OrderRequest struct {
	Symbol        string
	Side          market.Side
	Type          market.OrderType
	Qty           float64
	Price         float64
	ReduceOnly    bool
	ClientOrderID string
}

type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          market.Side
	Type          market.OrderType
	Qty           float64
	Price         float64
	FilledQty     float64
	AvgPrice      float64
	Fee           float64
	Status        OrderStatus
	UpdatedAt     time.Time
}

type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}
