package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/cryptotrader/market"
)

// FloorStep rounds qty down to a multiple of step. A non-positive step
// and a non-finite qty return qty unchanged.
func FloorStep(qty, step float64) float64 {
	if step <= 0 || qty <= 0 || !finite(qty) || !finite(step) {
		return qty
	}
	s := decimal.NewFromFloat(step)
	// Round the ratio first so 0.3/0.1 does not floor to 2.
	n := decimal.NewFromFloat(qty).Div(s).Round(8).Floor()
	return n.Mul(s).InexactFloat64()
}

// RoundTick rounds price to the nearest tick.
func RoundTick(price, tick float64) float64 {
	if tick <= 0 || price <= 0 || !finite(price) || !finite(tick) {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// Levels returns the stop-loss and take-profit for an entry at price.
func Levels(side market.Side, price float64, cfg Config, tick float64) (stop, target float64) {
	sign := side.Sign()
	if cfg.StopLossPct > 0 {
		stop = RoundTick(price*(1-sign*cfg.StopLossPct), tick)
	}
	if cfg.TakeProfitPct > 0 {
		target = RoundTick(price*(1+sign*cfg.TakeProfitPct), tick)
	}
	return stop, target
}

// PlannedRisk is the loss in quote currency if the stop is hit.
func PlannedRisk(qty, entry, stop float64) float64 {
	if stop <= 0 {
		return 0
	}
	return qty * math.Abs(entry-stop)
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 || takeProfit <= 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}
