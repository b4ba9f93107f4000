// Package exchangetest provides an in-memory exchange.Connector for tests.
package exchangetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
)

// Fake is a scripted connector. Market orders fill at the symbol's price when
// FillOnCreate is set; limit orders rest until Fill is called.
type Fake struct {
	ExchangeName string
	FillOnCreate bool
	FeePct       float64

	mu        sync.Mutex
	candles   map[string][]market.Candle
	prices    map[string]float64
	info      map[string]market.SymbolInfo
	balance   exchange.Balance
	positions []exchange.Position
	orders    map[string]exchange.Order
	leverage  map[string]int
	failures  map[string][]error
	calls     map[string]int
	seq       int
}

func New(name string) *Fake {
	return &Fake{
		ExchangeName: name,
		FillOnCreate: true,
		candles:      make(map[string][]market.Candle),
		prices:       make(map[string]float64),
		info:         make(map[string]market.SymbolInfo),
		orders:       make(map[string]exchange.Order),
		leverage:     make(map[string]int),
		failures:     make(map[string][]error),
		calls:        make(map[string]int),
		balance:      exchange.Balance{Asset: "USDT"},
	}
}

func (f *Fake) SetCandles(symbol string, cs []market.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = cs
}

func (f *Fake) SetPrice(symbol string, p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = p
}

func (f *Fake) SetInfo(info market.SymbolInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info[info.Symbol] = info
}

func (f *Fake) SetBalance(total, available float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance.Total, f.balance.Available = total, available
}

func (f *Fake) SetPositions(ps ...exchange.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = ps
}

// Fail queues errors returned by the next calls to method, one per call.
func (f *Fake) Fail(method string, es ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], es...)
}

func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) Leverage(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leverage[symbol]
}

func (f *Fake) OrderByID(id string) (exchange.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	return o, ok
}

// Fill executes a resting order at price.
func (f *Fake) Fill(id string, qty, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.FilledQty, o.AvgPrice = qty, price
	o.Fee = qty * price * f.FeePct
	o.Status = exchange.StatusPartiallyFilled
	if qty >= o.Qty {
		o.Status = exchange.StatusFilled
	}
	f.orders[id] = o
}

func (f *Fake) enter(method string) error {
	f.calls[method]++
	if q := f.failures[method]; len(q) > 0 {
		f.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) Name() string { return f.ExchangeName }

func (f *Fake) GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, since time.Time, limit int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetOHLCV"); err != nil {
		return nil, err
	}
	var out []market.Candle
	for _, c := range f.candles[symbol] {
		if !since.IsZero() && c.OpenTime.Before(since) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) GetBalance(ctx context.Context) (exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetBalance"); err != nil {
		return exchange.Balance{}, err
	}
	return f.balance, nil
}

func (f *Fake) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetPositions"); err != nil {
		return nil, err
	}
	return append([]exchange.Position(nil), f.positions...), nil
}

func (f *Fake) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetOpenOrders"); err != nil {
		return nil, err
	}
	var out []exchange.Order
	for i := 1; i <= f.seq; i++ {
		o, ok := f.orders[strconv.Itoa(i)]
		if ok && !o.Status.Done() && (symbol == "" || o.Symbol == symbol) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *Fake) GetOrder(ctx context.Context, symbol, id string) (exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetOrder"); err != nil {
		return exchange.Order{}, err
	}
	o, ok := f.orders[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%s get order %s: %w", f.ExchangeName, id, errs.ErrUnknownOrder)
	}
	return o, nil
}

func (f *Fake) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateOrder"); err != nil {
		return exchange.Order{}, err
	}
	f.seq++
	o := exchange.Order{
		ID:            strconv.Itoa(f.seq),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Qty:           req.Qty,
		Price:         req.Price,
		Status:        exchange.StatusNew,
	}
	if f.FillOnCreate && req.Type == market.MarketOrder {
		px := f.prices[req.Symbol]
		o.FilledQty, o.AvgPrice, o.Status = req.Qty, px, exchange.StatusFilled
		o.Fee = req.Qty * px * f.FeePct
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *Fake) CancelOrder(ctx context.Context, symbol, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CancelOrder"); err != nil {
		return err
	}
	o, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("%s cancel %s: %w", f.ExchangeName, id, errs.ErrUnknownOrder)
	}
	o.Status = exchange.StatusCanceled
	f.orders[id] = o
	return nil
}

func (f *Fake) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetLeverage"); err != nil {
		return err
	}
	f.leverage[symbol] = leverage
	return nil
}

func (f *Fake) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetPrice"); err != nil {
		return 0, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s price %s: %w", f.ExchangeName, symbol, errs.ErrInvalidOrderParams)
	}
	return p, nil
}

func (f *Fake) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SymbolInfo"); err != nil {
		return market.SymbolInfo{}, err
	}
	if info, ok := f.info[symbol]; ok {
		return info, nil
	}
	return market.LookupSymbol(symbol), nil
}
