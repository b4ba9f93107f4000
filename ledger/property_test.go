package ledger

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/rustyeddy/cryptotrader/market"
)

// replay drives a ledger through a random mix of entries, closes and price
// moves. Rejected submissions are expected and ignored.
func replay(t *testing.T, ops []int, prices []float64) *Ledger {
	l, r, _ := newTestLedger(t, true)
	r.feePct = 0.0004
	ctx := context.Background()

	for i, op := range ops {
		px := prices[i%len(prices)]
		r.setPrice(px)
		switch op {
		case 0:
			_, _ = l.Submit(ctx, buy(0.5))
		case 1:
			_, _ = l.Submit(ctx, sell(0.5))
		case 2:
			if p, ok := l.Position(ex, "BTCUSDT"); ok {
				in := market.OrderIntent{Exchange: ex, Symbol: "BTCUSDT", Side: p.Side.Opposite(), Qty: p.Qty / 2, ReduceOnly: true}
				_, _ = l.Submit(ctx, in)
			}
		case 3:
			_, _ = l.Close(ctx, ex, "BTCUSDT", px, "signal")
		default:
			l.Mark(ex, "BTCUSDT", px)
		}
	}
	return l
}

func TestPropertyLedgerInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	opsGen := gen.SliceOfN(40, gen.IntRange(0, 4))
	pricesGen := gen.SliceOfN(40, gen.Float64Range(50, 150))

	properties.Property("exposure, equity and histories stay consistent", prop.ForAll(
		func(ops []int, prices []float64) bool {
			l := replay(t, ops, prices)
			return l.CheckInvariants() == nil
		},
		opsGen, pricesGen,
	))

	properties.Property("at most one position per pair", prop.ForAll(
		func(ops []int, prices []float64) bool {
			return len(replay(t, ops, prices).Positions()) <= 1
		},
		opsGen, pricesGen,
	))

	properties.Property("balance moves only by realized P&L", prop.ForAll(
		func(ops []int, prices []float64) bool {
			l := replay(t, ops, prices)
			realized := 0.0
			for _, p := range l.ClosedPositions() {
				realized += p.RealizedPnL
			}
			for _, p := range l.Positions() {
				realized += p.RealizedPnL
			}
			return near(l.Account(ex).Balance, 10000+realized)
		},
		opsGen, pricesGen,
	))

	properties.Property("every order ends terminal", prop.ForAll(
		func(ops []int, prices []float64) bool {
			l := replay(t, ops, prices)
			for _, o := range l.Orders() {
				if !o.Status.Terminal() {
					return false
				}
			}
			return true
		},
		opsGen, pricesGen,
	))

	properties.TestingRun(t)
}
