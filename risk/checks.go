package risk

import (
	"fmt"

	"github.com/rustyeddy/cryptotrader/internal/errs"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of sizing one signal. Intents are submitted in
// order; a flip carries the close first. Rejection is set when the entry was
// refused, in which case any close intent still stands.
type Decision struct {
	Intents    []market.OrderIntent
	Rejection  error
	Violations []Violation

	PlannedRisk float64
	PlannedRR   float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
}

func (d *Decision) reject(code string, err error) Decision {
	d.add(code, err.Error())
	d.Rejection = err
	return *d
}

// Allowed reports whether the entry side of the decision survived.
func (d Decision) Allowed() bool { return d.Rejection == nil }

// Size converts a signal into order intents using the account and position
// snapshot taken before the signal candle closed. It never touches the ledger.
func Size(sig market.Signal, acct ledger.Account, pos *ledger.Position, cfg Config, info market.SymbolInfo) Decision {
	var d Decision
	reason := sig.Reason

	side, directional := sig.Direction.Side()
	if !directional {
		if pos != nil && exitMatches(sig.Exit, pos.Side) {
			d.Intents = append(d.Intents, closing(acct.Exchange, pos, reason))
		}
		return d
	}
	if sig.Confidence < cfg.MinConfidence {
		d.add("LOW_CONFIDENCE", fmt.Sprintf("confidence %.2f below %.2f", sig.Confidence, cfg.MinConfidence))
		return d
	}

	released := 0.0
	if pos != nil {
		if pos.Side == side {
			return d
		}
		d.Intents = append(d.Intents, closing(acct.Exchange, pos, "flip: "+reason))
		released = pos.Exposure()
	}

	price := sig.Price
	if !(price > 0) {
		return d.reject("NO_PRICE", fmt.Errorf("%w: signal price %g", errs.ErrInvalidOrderParams, price))
	}

	qty := cfg.MaxPositionPct * acct.Equity / price
	if cfg.MaxAbsoluteQty > 0 {
		qty = min(qty, cfg.MaxAbsoluteQty)
	}
	qty = FloorStep(qty, info.StepSize)

	exposure := acct.OpenExposure - released + qty*price
	if cfg.MaxTotalExposure > 0 && exposure > cfg.MaxTotalExposure {
		return d.reject("EXPOSURE", errs.NewRiskError(errs.ErrExposureExceeded, "max_total_exposure", exposure, cfg.MaxTotalExposure))
	}

	stop, target := Levels(side, price, cfg, info.TickSize)

	if err := checkMinimum(qty, price, info); err != nil {
		return d.reject("MIN_SIZE", err)
	}

	d.PlannedRisk = PlannedRisk(qty, price, stop)
	d.PlannedRR = RR(price, stop, target)
	d.Intents = append(d.Intents, market.OrderIntent{
		Exchange:   acct.Exchange,
		Symbol:     sig.Symbol,
		Side:       side,
		Qty:        qty,
		StopLoss:   stop,
		TakeProfit: target,
		Reason:     reason,
	})
	return d
}

func exitMatches(e market.Exit, held market.Side) bool {
	return (e == market.ExitLong && held == market.Buy) || (e == market.ExitShort && held == market.Sell)
}

func closing(exchange string, pos *ledger.Position, reason string) market.OrderIntent {
	ex := pos.Exchange
	if ex == "" {
		ex = exchange
	}
	return market.OrderIntent{
		Exchange:   ex,
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Qty:        pos.Qty,
		ReduceOnly: true,
		Reason:     reason,
	}
}

func checkMinimum(qty, price float64, info market.SymbolInfo) error {
	if !(qty > 0) || qty < info.MinQty {
		return errs.NewRiskError(errs.ErrBelowMinimumSize, "min_qty", qty, info.MinQty)
	}
	if info.MinNotional > 0 && price > 0 && qty*price < info.MinNotional {
		return errs.NewRiskError(errs.ErrBelowMinimumSize, "min_notional", qty*price, info.MinNotional)
	}
	return nil
}

// ValidateManual applies the exchange's size rules to an operator order.
// price is the limit price or, for market orders, the last traded price.
// The returned intent has its quantity floored to the step size.
func ValidateManual(in market.OrderIntent, info market.SymbolInfo, price float64) (market.OrderIntent, error) {
	if in.Side != market.Buy && in.Side != market.Sell {
		return in, fmt.Errorf("%w: side %q", errs.ErrInvalidOrderParams, in.Side)
	}
	if !finite(in.Qty) || !(in.Qty > 0) {
		return in, fmt.Errorf("%w: quantity must be positive", errs.ErrInvalidOrderParams)
	}
	if !finite(in.Price) || in.Price < 0 {
		return in, fmt.Errorf("%w: price must be a non-negative number", errs.ErrInvalidOrderParams)
	}
	if !finite(price) {
		return in, fmt.Errorf("%w: reference price %v", errs.ErrInvalidOrderParams, price)
	}
	qty := FloorStep(in.Qty, info.StepSize)
	if in.ReduceOnly {
		// closes may be smaller than the notional floor
		if !(qty > 0) || qty < info.MinQty {
			return in, errs.NewRiskError(errs.ErrBelowMinimumSize, "min_qty", in.Qty, info.MinQty)
		}
	} else if err := checkMinimum(qty, price, info); err != nil {
		return in, err
	}
	in.Qty = qty
	if in.Price > 0 {
		in.Price = RoundTick(in.Price, info.TickSize)
	}
	return in, nil
}
