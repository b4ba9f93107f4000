// Package binance is the Binance USD-M futures connector.
package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/market"
)

const (
	Name = "binance"

	MainnetURL       = "https://fapi.binance.com"
	TestnetURL       = "https://testnet.binancefuture.com"
	MainnetStreamURL = "wss://fstream.binance.com"
	TestnetStreamURL = "wss://stream.binancefuture.com"

	quoteAsset = "USDT"
)

type Options struct {
	APIKey    string
	APISecret string
	Testnet   bool

	// BaseURL and StreamURL override the endpoints picked from Testnet.
	BaseURL    string
	StreamURL  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Connector struct {
	client    *futures.Client
	streamURL string
	log       zerolog.Logger

	mu   sync.Mutex
	info map[string]market.SymbolInfo
}

var _ exchange.Connector = (*Connector)(nil)
var _ exchange.Ticker = (*Connector)(nil)

func New(opts Options) *Connector {
	client := futures.NewClient(opts.APIKey, opts.APISecret)
	client.BaseURL = MainnetURL
	streamURL := MainnetStreamURL
	if opts.Testnet {
		client.BaseURL = TestnetURL
		streamURL = TestnetStreamURL
	}
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}
	if opts.StreamURL != "" {
		streamURL = opts.StreamURL
	}
	if opts.HTTPClient != nil {
		client.HTTPClient = opts.HTTPClient
	} else {
		client.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Connector{
		client:    client,
		streamURL: streamURL,
		log:       opts.Logger.With().Str("exchange", Name).Logger(),
	}
}

// Register adds the connector to r under Name.
func Register(r *exchange.Registry, logger zerolog.Logger) {
	r.Register(Name, func(c exchange.Credentials) (exchange.Connector, error) {
		if c.APIKey == "" || c.APISecret == "" {
			return nil, fmt.Errorf("%s: %w: api key and secret are required", Name, errs.ErrAuthentication)
		}
		return New(Options{APIKey: c.APIKey, APISecret: c.APISecret, Testnet: c.Testnet, Logger: logger}), nil
	})
}

func (c *Connector) Name() string { return Name }

func (c *Connector) GetOHLCV(ctx context.Context, symbol string, tf market.Timeframe, since time.Time, limit int) ([]market.Candle, error) {
	svc := c.client.NewKlinesService().Symbol(symbol).Interval(string(tf))
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	if !since.IsZero() {
		svc = svc.StartTime(since.UnixMilli())
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, classify("klines", err)
	}

	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, market.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		})
	}
	return out, nil
}

func (c *Connector) GetBalance(ctx context.Context) (exchange.Balance, error) {
	acct, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, classify("account", err)
	}
	for _, a := range acct.Assets {
		if a.Asset == quoteAsset {
			return exchange.Balance{
				Asset:     a.Asset,
				Total:     parseFloat(a.WalletBalance),
				Available: parseFloat(a.AvailableBalance),
			}, nil
		}
	}
	return exchange.Balance{Asset: quoteAsset}, nil
}

func (c *Connector) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	risks, err := c.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, classify("position risk", err)
	}
	var out []exchange.Position
	for _, r := range risks {
		amt := parseFloat(r.PositionAmt)
		if amt == 0 {
			continue
		}
		side := market.Buy
		if amt < 0 {
			side = market.Sell
		}
		out = append(out, exchange.Position{
			Symbol:        r.Symbol,
			Side:          side,
			Qty:           math.Abs(amt),
			EntryPrice:    parseFloat(r.EntryPrice),
			MarkPrice:     parseFloat(r.MarkPrice),
			UnrealizedPnL: parseFloat(r.UnRealizedProfit),
		})
	}
	return out, nil
}

func (c *Connector) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	svc := c.client.NewListOpenOrdersService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	orders, err := svc.Do(ctx)
	if err != nil {
		return nil, classify("open orders", err)
	}
	out := make([]exchange.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, fromOrder(o))
	}
	return out, nil
}

func (c *Connector) GetOrder(ctx context.Context, symbol, id string) (exchange.Order, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("%s get order: %w: id %q", Name, errs.ErrInvalidOrderParams, id)
	}
	o, err := c.client.NewGetOrderService().Symbol(symbol).OrderID(n).Do(ctx)
	if err != nil {
		return exchange.Order{}, classify("get order", err)
	}
	return fromOrder(o), nil
}

func (c *Connector) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	info, err := c.SymbolInfo(ctx, req.Symbol)
	if err != nil {
		return exchange.Order{}, err
	}

	svc := c.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(sideType(req.Side)).
		Quantity(formatStep(req.Qty, info.StepSize)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.Type == market.LimitOrder || req.Price > 0 {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatTick(req.Price, info.TickSize))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return exchange.Order{}, classify("create order", err)
	}
	c.log.Info().Str("symbol", req.Symbol).Int64("order_id", res.OrderID).
		Str("status", string(res.Status)).Msg("order created")

	return exchange.Order{
		ID:            strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          fromSide(res.Side),
		Type:          fromType(res.Type),
		Qty:           parseFloat(res.OrigQuantity),
		Price:         parseFloat(res.Price),
		FilledQty:     parseFloat(res.ExecutedQuantity),
		AvgPrice:      parseFloat(res.AvgPrice),
		Status:        exchange.OrderStatus(res.Status),
		UpdatedAt:     time.UnixMilli(res.UpdateTime).UTC(),
	}, nil
}

func (c *Connector) CancelOrder(ctx context.Context, symbol, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("%s cancel: %w: id %q", Name, errs.ErrInvalidOrderParams, id)
	}
	if _, err := c.client.NewCancelOrderService().Symbol(symbol).OrderID(n).Do(ctx); err != nil {
		return classify("cancel order", err)
	}
	return nil
}

func (c *Connector) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if _, err := c.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return classify("leverage", err)
	}
	return nil
}

func (c *Connector) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify("price", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("%s price: %w: no price for %s", Name, errs.ErrInvalidOrderParams, symbol)
}

// SymbolInfo returns the LOT_SIZE, PRICE_FILTER and MIN_NOTIONAL rules. The
// exchange info is fetched once and cached.
func (c *Connector) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	c.mu.Lock()
	cached := c.info
	c.mu.Unlock()
	if cached == nil {
		res, err := c.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return market.SymbolInfo{}, classify("exchange info", err)
		}
		cached = make(map[string]market.SymbolInfo, len(res.Symbols))
		for _, s := range res.Symbols {
			cached[s.Symbol] = symbolInfo(s.Symbol, s.BaseAsset, s.QuoteAsset, s.Filters)
		}
		c.mu.Lock()
		c.info = cached
		c.mu.Unlock()
	}
	info, ok := cached[symbol]
	if !ok {
		return market.SymbolInfo{}, fmt.Errorf("%s symbol info: %w: unknown symbol %s", Name, errs.ErrInvalidOrderParams, symbol)
	}
	return info, nil
}

func symbolInfo(symbol, base, quote string, filters []map[string]interface{}) market.SymbolInfo {
	info := market.SymbolInfo{Symbol: symbol, BaseAsset: base, QuoteAsset: quote}
	str := func(f map[string]interface{}, k string) float64 {
		s, _ := f[k].(string)
		return parseFloat(s)
	}
	for _, f := range filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			info.MinQty = str(f, "minQty")
			info.StepSize = str(f, "stepSize")
		case "PRICE_FILTER":
			info.TickSize = str(f, "tickSize")
		case "MIN_NOTIONAL":
			info.MinNotional = str(f, "notional")
		}
	}
	return info
}

func fromOrder(o *futures.Order) exchange.Order {
	return exchange.Order{
		ID:            strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          fromSide(o.Side),
		Type:          fromType(o.Type),
		Qty:           parseFloat(o.OrigQuantity),
		Price:         parseFloat(o.Price),
		FilledQty:     parseFloat(o.ExecutedQuantity),
		AvgPrice:      parseFloat(o.AvgPrice),
		Status:        exchange.OrderStatus(o.Status),
		UpdatedAt:     time.UnixMilli(o.UpdateTime).UTC(),
	}
}

func sideType(s market.Side) futures.SideType {
	if s == market.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func fromSide(s futures.SideType) market.Side {
	if s == futures.SideTypeSell {
		return market.Sell
	}
	return market.Buy
}

func fromType(t futures.OrderType) market.OrderType {
	if t == futures.OrderTypeLimit {
		return market.LimitOrder
	}
	return market.MarketOrder
}

// formatStep floors v to the step and prints it with the step's precision.
func formatStep(v, step float64) string {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d.String()
	}
	s := decimal.NewFromFloat(step)
	return d.Div(s).Round(8).Floor().Mul(s).StringFixed(places(s))
}

func formatTick(v, tick float64) string {
	d := decimal.NewFromFloat(v)
	if tick <= 0 {
		return d.String()
	}
	t := decimal.NewFromFloat(tick)
	return d.Div(t).Round(0).Mul(t).StringFixed(places(t))
}

func places(d decimal.Decimal) int32 {
	if e := d.Exponent(); e < 0 {
		return -e
	}
	return 0
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
