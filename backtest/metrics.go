package backtest

import (
	"math"
	"time"
)

// EquityPoint is the account state after a bar closed.
type EquityPoint struct {
	Time    time.Time `json:"time"`
	Balance float64   `json:"balance"`
	Equity  float64   `json:"equity"`
}

// Drawdown is the largest peak-to-trough fall of the curve, measured from
// start (the initial balance) onwards. pct is relative to the peak it fell
// from, in percent.
func Drawdown(start float64, curve []EquityPoint) (abs, pct float64) {
	peak := start
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
			continue
		}
		dd := peak - p.Equity
		if dd > abs {
			abs = dd
		}
		if peak > 0 && dd/peak*100 > pct {
			pct = dd / peak * 100
		}
	}
	return abs, pct
}

// Returns is the per-bar simple return series, starting from the initial
// balance.
func Returns(start float64, curve []EquityPoint) []float64 {
	out := make([]float64, 0, len(curve))
	prev := start
	for _, p := range curve {
		if prev != 0 {
			out = append(out, (p.Equity-prev)/prev)
		}
		prev = p.Equity
	}
	return out
}

// Sharpe is the annualised mean excess return over its population standard
// deviation. riskFree is an annual rate. Fewer than two returns or a flat
// curve give 0.
func Sharpe(returns []float64, periodsPerYear, riskFree float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(variance / float64(len(returns)))
	if sd == 0 {
		return 0
	}
	return (mean - riskFree/periodsPerYear) / sd * math.Sqrt(periodsPerYear)
}

type tradeStats struct {
	total, wins, losses int
	grossWin, grossLoss float64
}

func summarize(trades []Trade) tradeStats {
	var s tradeStats
	for _, t := range trades {
		s.total++
		switch {
		case t.PnL > 0:
			s.wins++
			s.grossWin += t.PnL
		case t.PnL < 0:
			s.losses++
			s.grossLoss += -t.PnL
		}
	}
	return s
}

func (s tradeStats) winRate() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.wins) / float64(s.total) * 100
}

func (s tradeStats) avgWin() float64 {
	if s.wins == 0 {
		return 0
	}
	return s.grossWin / float64(s.wins)
}

// avgLoss is reported as a positive amount.
func (s tradeStats) avgLoss() float64 {
	if s.losses == 0 {
		return 0
	}
	return s.grossLoss / float64(s.losses)
}

// profitFactor is +Inf with winners and no losers, 0 without trades.
func (s tradeStats) profitFactor() float64 {
	if s.grossLoss == 0 {
		if s.grossWin > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return s.grossWin / s.grossLoss
}
