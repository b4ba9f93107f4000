// Package command executes operator commands against the running ledger.
// Chat adapters parse messages into a Command and render the Result; they
// never touch ledger state directly.
package command

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/risk"
)

type Command struct {
	Name string
	Args []string
	User string
}

// Parse splits "/buy BTCUSDT 0.01" into a command. A bot suffix such as
// "/price@mybot" is dropped.
func Parse(text, user string) (Command, bool) {
	f := strings.Fields(strings.TrimSpace(text))
	if len(f) == 0 {
		return Command{}, false
	}
	name := strings.TrimPrefix(f[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Args: f[1:], User: user}, true
}

type Result struct {
	Text string
	Err  error
}

func (r Result) String() string {
	if r.Err != nil {
		return "error: " + r.Err.Error()
	}
	return r.Text
}

// Request carries a command into Serve. Reply must be buffered or read.
type Request struct {
	Command Command
	Reply   chan<- Result
}

// Venues is the set of live exchanges; *live.Loop implements it.
type Venues interface {
	Exchanges() []string
	Connector(name string) (exchange.Connector, bool)
	Disabled(name string) bool
}

type Handler struct {
	ledger *ledger.Ledger
	venues Venues
	risk   risk.Config
	log    zerolog.Logger

	Now     func() time.Time
	started time.Time
}

func NewHandler(l *ledger.Ledger, v Venues, rc risk.Config, logger zerolog.Logger) *Handler {
	h := &Handler{
		ledger: l,
		venues: v,
		risk:   rc,
		log:    logger.With().Str("component", "command").Logger(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
	h.started = h.Now()
	return h
}

const helpText = `commands:
/balance                          account balances
/positions                        open positions
/orders                           working orders
/buy SYMBOL QTY [PRICE] [EXCH]    market or limit buy
/sell SYMBOL QTY [PRICE] [EXCH]   market or limit sell
/close SYMBOL [EXCH]              close a position at market
/cancel ORDER_ID                  cancel a working order
/price SYMBOL [EXCH]              last price
/leverage SYMBOL N [EXCH]         set leverage
/status                           uptime and exchange state
/help                             this message`

// Handle runs one command. Errors are returned in the Result so callers can
// render them.
func (h *Handler) Handle(ctx context.Context, c Command) Result {
	log := h.log.With().Str("cmd", c.Name).Strs("args", c.Args).Str("user", c.User).Logger()
	var (
		text string
		err  error
	)
	switch c.Name {
	case "start", "help":
		text = helpText
	case "balance":
		text = h.balance()
	case "positions":
		text = h.positions()
	case "orders":
		text = h.orders()
	case "buy":
		text, err = h.order(ctx, market.Buy, c.Args)
	case "sell":
		text, err = h.order(ctx, market.Sell, c.Args)
	case "close":
		text, err = h.close(ctx, c.Args)
	case "cancel":
		text, err = h.cancel(ctx, c.Args)
	case "price":
		text, err = h.price(ctx, c.Args)
	case "leverage":
		text, err = h.leverage(ctx, c.Args)
	case "status":
		text = h.status()
	default:
		err = fmt.Errorf("unknown command %q, try /help", c.Name)
	}
	if err != nil {
		log.Warn().Err(err).Msg("command failed")
		return Result{Err: err}
	}
	log.Info().Msg("command")
	return Result{Text: text}
}

// Serve handles requests one at a time until ctx is done or reqs closes.
func (h *Handler) Serve(ctx context.Context, reqs <-chan Request) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-reqs:
			if !ok {
				return nil
			}
			res := h.Handle(ctx, req.Command)
			if req.Reply == nil {
				continue
			}
			select {
			case req.Reply <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (h *Handler) balance() string {
	accts := h.ledger.Accounts()
	if len(accts) == 0 {
		return "no accounts"
	}
	var b strings.Builder
	for _, a := range accts {
		fmt.Fprintf(&b, "%s: balance %.2f equity %.2f exposure %.2f\n", a.Exchange, a.Balance, a.Equity, a.OpenExposure)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) positions() string {
	ps := h.ledger.Positions()
	if len(ps) == 0 {
		return "no open positions"
	}
	var b strings.Builder
	for _, p := range ps {
		fmt.Fprintf(&b, "%s %s %s %g @ %.2f mark %.2f pnl %+.2f sl %.2f tp %.2f\n",
			p.Exchange, p.Symbol, p.Side, p.Qty, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL, p.StopLoss, p.TakeProfit)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) orders() string {
	open := h.ledger.OpenOrders()
	if len(open) == 0 {
		return "no working orders"
	}
	var b strings.Builder
	for _, o := range open {
		px := "market"
		if o.Price > 0 {
			px = fmt.Sprintf("@ %.2f", o.Price)
		}
		fmt.Fprintf(&b, "%s %s %s %s %g/%g %s %s\n", o.ID, o.Exchange, o.Symbol, o.Side, o.FilledQty, o.RequestedQty, px, o.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) status() string {
	var b strings.Builder
	fmt.Fprintf(&b, "uptime %s\n", h.Now().Sub(h.started).Truncate(time.Second))
	if h.venues != nil {
		names := h.venues.Exchanges()
		sort.Strings(names)
		for _, n := range names {
			state := "running"
			if h.venues.Disabled(n) {
				state = "disabled"
			}
			fmt.Fprintf(&b, "%s: %s\n", n, state)
		}
	}
	fmt.Fprintf(&b, "positions %d, working orders %d", len(h.ledger.Positions()), len(h.ledger.OpenOrders()))
	return b.String()
}

// venue resolves an optional trailing exchange argument. With one exchange
// configured it may be omitted.
func (h *Handler) venue(name string) (exchange.Connector, error) {
	if h.venues == nil {
		return nil, fmt.Errorf("%w: no exchanges", errs.ErrUnknownExchange)
	}
	if name == "" {
		names := h.venues.Exchanges()
		if len(names) != 1 {
			return nil, fmt.Errorf("%w: name one of %s", errs.ErrUnknownExchange, strings.Join(names, ", "))
		}
		name = names[0]
	}
	conn, ok := h.venues.Connector(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", errs.ErrUnknownExchange, name)
	}
	if h.venues.Disabled(name) {
		return nil, fmt.Errorf("%s is disabled", name)
	}
	return conn, nil
}

func symbolArg(args []string, i int) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("%w: symbol required", errs.ErrInvalidOrderParams)
	}
	return strings.ToUpper(args[i]), nil
}

func floatArg(args []string, i int, what string) (float64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%w: %s required", errs.ErrInvalidOrderParams, what)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s %q", errs.ErrInvalidOrderParams, what, args[i])
	}
	return v, nil
}

func optArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// order places a manual entry. A third numeric argument is a limit price;
// otherwise it is taken as the exchange name.
func (h *Handler) order(ctx context.Context, side market.Side, args []string) (string, error) {
	sym, err := symbolArg(args, 0)
	if err != nil {
		return "", err
	}
	qty, err := floatArg(args, 1, "quantity")
	if err != nil {
		return "", err
	}
	var limit float64
	exName := optArg(args, 2)
	if _, perr := strconv.ParseFloat(exName, 64); perr == nil {
		if limit, err = floatArg(args, 2, "price"); err != nil {
			return "", err
		}
		exName = optArg(args, 3)
	}
	conn, err := h.venue(exName)
	if err != nil {
		return "", err
	}
	info, err := conn.SymbolInfo(ctx, sym)
	if err != nil {
		return "", err
	}
	ref := limit
	if ref == 0 {
		if ref, err = conn.GetPrice(ctx, sym); err != nil {
			return "", err
		}
	}

	in, err := risk.ValidateManual(market.OrderIntent{
		Exchange: conn.Name(),
		Symbol:   sym,
		Side:     side,
		Qty:      qty,
		Price:    limit,
		Reason:   "manual",
	}, info, ref)
	if err != nil {
		return "", err
	}
	in.StopLoss, in.TakeProfit = risk.Levels(side, ref, h.risk, info.TickSize)

	o, err := h.ledger.Submit(ctx, in)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s %s %s %g: %s", o.ID, o.Symbol, o.Side, o.RequestedQty, o.Status), nil
}

func (h *Handler) close(ctx context.Context, args []string) (string, error) {
	sym, err := symbolArg(args, 0)
	if err != nil {
		return "", err
	}
	conn, err := h.venue(optArg(args, 1))
	if err != nil {
		return "", err
	}
	px, err := conn.GetPrice(ctx, sym)
	if err != nil {
		return "", err
	}
	o, err := h.ledger.Close(ctx, conn.Name(), sym, px, "manual close")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("close %s %s: %s", o.ID, sym, o.Status), nil
}

func (h *Handler) cancel(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: order id required", errs.ErrInvalidOrderParams)
	}
	o, err := h.ledger.Cancel(ctx, args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("order %s: %s", o.ID, o.Status), nil
}

func (h *Handler) price(ctx context.Context, args []string) (string, error) {
	sym, err := symbolArg(args, 0)
	if err != nil {
		return "", err
	}
	conn, err := h.venue(optArg(args, 1))
	if err != nil {
		return "", err
	}
	px, err := conn.GetPrice(ctx, sym)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %.8g", conn.Name(), sym, px), nil
}

func (h *Handler) leverage(ctx context.Context, args []string) (string, error) {
	sym, err := symbolArg(args, 0)
	if err != nil {
		return "", err
	}
	lev, err := floatArg(args, 1, "leverage")
	if err != nil {
		return "", err
	}
	if lev < 1 || lev != float64(int(lev)) {
		return "", fmt.Errorf("%w: leverage must be a whole number >= 1", errs.ErrInvalidOrderParams)
	}
	conn, err := h.venue(optArg(args, 2))
	if err != nil {
		return "", err
	}
	if err := conn.SetLeverage(ctx, sym, int(lev)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s leverage %dx", conn.Name(), sym, int(lev)), nil
}
