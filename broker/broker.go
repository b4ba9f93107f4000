// Package broker routes ledger orders to a live exchange connector.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/ledger"
)

// Handler receives execution reports. *ledger.Ledger implements it.
type Handler interface {
	ledger.FillHandler
	Resolve(orderID string, to ledger.OrderStatus, reason string) error
}

// Live is the ledger.Router for one exchange.
type Live struct {
	conn exchange.Connector
	log  zerolog.Logger

	mu      sync.Mutex
	handler Handler
}

var _ ledger.Router = (*Live)(nil)

func NewLive(conn exchange.Connector, logger zerolog.Logger) *Live {
	return &Live{
		conn: conn,
		log:  logger.With().Str("component", "broker").Str("exchange", conn.Name()).Logger(),
	}
}

func (b *Live) Bind(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *Live) Connector() exchange.Connector { return b.conn }

// Submit sends the order with the ledger id as client order id. Closing
// orders go out reduce-only at market.
func (b *Live) Submit(ctx context.Context, o ledger.Order) (ledger.Ack, error) {
	h, err := b.bound()
	if err != nil {
		return ledger.Ack{}, err
	}
	res, err := b.conn.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:        o.Symbol,
		Side:          o.Side,
		Type:          o.Type,
		Qty:           o.RequestedQty,
		Price:         o.Price,
		ReduceOnly:    o.ReduceOnly,
		ClientOrderID: o.ID,
	})
	if err != nil {
		return ledger.Ack{}, err
	}
	if err := b.report(h, o.ID, res); err != nil {
		return ledger.Ack{ExchangeID: res.ID}, err
	}
	return ledger.Ack{ExchangeID: res.ID}, nil
}

// Cancel cancels the order on the exchange. An order that was never
// acknowledged is looked up by client order id; if it cannot be found the
// cancel fails so the ledger records it expired.
func (b *Live) Cancel(ctx context.Context, o ledger.Order) error {
	xid := o.ExchangeID
	if xid == "" {
		open, err := b.conn.GetOpenOrders(ctx, o.Symbol)
		if err != nil {
			return err
		}
		for _, x := range open {
			if x.ClientOrderID == o.ID {
				xid = x.ID
				break
			}
		}
		if xid == "" {
			return fmt.Errorf("cancel %s: %w on %s", o.ID, errs.ErrUnknownOrder, b.conn.Name())
		}
	}
	return b.conn.CancelOrder(ctx, o.Symbol, xid)
}

// Reconcile polls the exchange for every given non-terminal order and
// reports fills and outside cancels.
func (b *Live) Reconcile(ctx context.Context, orders []ledger.Order) error {
	h, err := b.bound()
	if err != nil {
		return err
	}
	var all []error
	for _, o := range orders {
		if o.Exchange != b.conn.Name() || o.Status.Terminal() || o.ExchangeID == "" {
			continue
		}
		res, err := b.conn.GetOrder(ctx, o.Symbol, o.ExchangeID)
		if err != nil {
			all = append(all, fmt.Errorf("reconcile %s: %w", o.ID, err))
			continue
		}
		if err := b.report(h, o.ID, res); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

func (b *Live) report(h Handler, id string, res exchange.Order) error {
	if res.FilledQty > 0 {
		err := h.OnFill(ledger.Fill{
			OrderID:   id,
			FilledQty: res.FilledQty,
			Price:     res.AvgPrice,
			Fee:       res.Fee,
			Time:      res.UpdatedAt,
		})
		if err != nil {
			return err
		}
	}

	var to ledger.OrderStatus
	switch res.Status {
	case exchange.StatusCanceled:
		to = ledger.Cancelled
	case exchange.StatusExpired:
		to = ledger.Expired
	case exchange.StatusRejected:
		to = ledger.Rejected
	default:
		return nil
	}
	b.log.Info().Str("order_id", id).Str("status", string(res.Status)).Msg("order closed by exchange")
	return h.Resolve(id, to, "exchange reported "+string(res.Status))
}

func (b *Live) bound() (Handler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler == nil {
		return nil, fmt.Errorf("broker %s: no handler bound", b.conn.Name())
	}
	return b.handler, nil
}
