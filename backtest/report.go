package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/template"
	"time"

	"github.com/rustyeddy/cryptotrader/journal"
	"github.com/rustyeddy/cryptotrader/ledger"
	"github.com/rustyeddy/cryptotrader/market"
)

// Ratio is a float that encodes +Inf as the JSON string "inf".
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(r), 1) {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == `"inf"` {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Trade is one closed position.
type Trade struct {
	ID         string    `json:"id,omitempty"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	OpenedAt   time.Time `json:"entry_time"`
	ClosedAt   time.Time `json:"exit_time,omitempty"`
	PnL        float64   `json:"pnl"`
	Fees       float64   `json:"fees"`
	ReturnPct  float64   `json:"return_pct"`
	Reason     string    `json:"reason,omitempty"`
}

// Report is the result of one run. It holds nothing run-specific beyond
// its inputs, so identical runs serialise identically.
type Report struct {
	Strategy     string           `json:"strategy"`
	Symbol       string           `json:"symbol"`
	Timeframe    market.Timeframe `json:"timeframe"`
	Start        time.Time        `json:"start_date"`
	End          time.Time        `json:"end_date"`
	DurationDays int              `json:"duration_days"`

	InitialBalance float64 `json:"initial_balance"`
	FinalBalance   float64 `json:"final_balance"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	ProfitFactor   Ratio   `json:"profit_factor"`
	Fees           float64 `json:"fees"`
	Rejections     int     `json:"rejections"`

	Trades       []Trade       `json:"trades"`
	EquityCurve  []EquityPoint `json:"equity_curve"`
	OpenPosition *Trade        `json:"open_position,omitempty"`
}

func buildReport(strategy string, candles []market.Candle, closed []ledger.Position, curve []EquityPoint, opts Options, acct ledger.Account) Report {
	first, last := candles[0], candles[len(candles)-1]
	r := Report{
		Strategy:       strategy,
		Symbol:         first.Symbol,
		Timeframe:      first.Timeframe,
		Start:          first.OpenTime,
		End:            last.OpenTime,
		DurationDays:   int(last.OpenTime.Sub(first.OpenTime).Hours() / 24),
		InitialBalance: opts.InitialBalance,
		FinalBalance:   acct.Balance,
		FinalEquity:    acct.Equity,
		Trades:         make([]Trade, 0, len(closed)),
		EquityCurve:    curve,
	}
	for _, p := range closed {
		t := Trade{
			ID:         p.ID,
			Side:       string(p.Side),
			Qty:        p.Qty,
			EntryPrice: p.EntryPrice,
			ExitPrice:  p.ExitPrice,
			OpenedAt:   p.OpenedAt,
			ClosedAt:   p.ClosedAt,
			PnL:        p.RealizedPnL,
			Fees:       p.Fees,
			Reason:     p.CloseReason,
		}
		if n := p.Qty * p.EntryPrice; n > 0 {
			t.ReturnPct = p.RealizedPnL / n * 100
		}
		r.Fees += p.Fees
		r.Trades = append(r.Trades, t)
	}

	r.TotalReturn = r.FinalBalance - r.InitialBalance
	r.TotalReturnPct = r.TotalReturn / r.InitialBalance * 100
	r.MaxDrawdown, r.MaxDrawdownPct = Drawdown(r.InitialBalance, curve)

	ppy := opts.PeriodsPerYear
	if ppy <= 0 {
		ppy = first.Timeframe.PeriodsPerYear()
	}
	r.SharpeRatio = Sharpe(Returns(r.InitialBalance, curve), ppy, opts.RiskFreeRate)

	s := summarize(r.Trades)
	r.TotalTrades, r.WinningTrades, r.LosingTrades = s.total, s.wins, s.losses
	r.WinRate = s.winRate()
	r.AvgWin, r.AvgLoss = s.avgWin(), s.avgLoss()
	r.ProfitFactor = Ratio(s.profitFactor())
	return r
}

// JSON is the indented report used for downstream tooling.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// BacktestRun converts the report to a journal row. runID and created come
// from the caller since the report itself carries neither.
func (r Report) BacktestRun(runID string, created time.Time, params string) (journal.BacktestRun, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return journal.BacktestRun{}, err
	}
	return journal.BacktestRun{
		RunID:        runID,
		Created:      created,
		Strategy:     r.Strategy,
		Symbol:       r.Symbol,
		Timeframe:    string(r.Timeframe),
		Start:        r.Start,
		End:          r.End,
		Params:       params,
		Trades:       r.TotalTrades,
		Wins:         r.WinningTrades,
		Losses:       r.LosingTrades,
		StartBalance: r.InitialBalance,
		EndBalance:   r.FinalBalance,
		NetPL:        r.TotalReturn,
		ReturnPct:    r.TotalReturnPct,
		WinRate:      r.WinRate / 100,
		ProfitFactor: float64(r.ProfitFactor),
		MaxDDPct:     r.MaxDrawdownPct,
		Sharpe:       r.SharpeRatio,
		Report:       raw,
	}, nil
}

var reportFuncs = template.FuncMap{
	"pf": func(x Ratio) string {
		if math.IsInf(float64(x), 1) {
			return "inf"
		}
		return fmt.Sprintf("%.2f", float64(x))
	},
	"date": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}

var reportTemplate = template.Must(template.New("report").Funcs(reportFuncs).Parse(ReportTemplate))

// ReportTemplate is the plain text layout printed by the CLI.
const ReportTemplate = `==================================================
 Backtest Result: {{.Strategy}} {{.Symbol}} {{.Timeframe}}
==================================================
Period:          {{date .Start}} -> {{date .End}} ({{.DurationDays}} days)

Account Performance
--------------------------------------------------
Initial Balance: {{printf "%.2f" .InitialBalance}}
Final Balance:   {{printf "%.2f" .FinalBalance}}
Total Return:    {{printf "%.2f" .TotalReturn}} ({{printf "%.2f" .TotalReturnPct}}%)
Max Drawdown:    {{printf "%.2f" .MaxDrawdown}} ({{printf "%.2f" .MaxDrawdownPct}}%)
Sharpe Ratio:    {{printf "%.2f" .SharpeRatio}}
Fees:            {{printf "%.2f" .Fees}}

Trade Statistics
--------------------------------------------------
Trades:          {{.TotalTrades}}
Winning:         {{.WinningTrades}}
Losing:          {{.LosingTrades}}
Win Rate:        {{printf "%.2f" .WinRate}}%
Average Win:     {{printf "%.2f" .AvgWin}}
Average Loss:    {{printf "%.2f" .AvgLoss}}
Profit Factor:   {{pf .ProfitFactor}}
Rejections:      {{.Rejections}}
{{- if .Trades}}

Trades
--------------------------------------------------
{{- range .Trades}}
{{date .OpenedAt}}  {{printf "%-4s" .Side}} {{printf "%.6g" .Qty}} @ {{printf "%.2f" .EntryPrice}} -> {{printf "%.2f" .ExitPrice}}  {{printf "%+.2f" .PnL}}  {{.Reason}}
{{- end}}
{{- end}}
{{- with .OpenPosition}}

Open Position
--------------------------------------------------
{{.Side}} {{printf "%.6g" .Qty}} @ {{printf "%.2f" .EntryPrice}} unrealized {{printf "%+.2f" .PnL}}
{{- end}}
`

// WriteText renders the report with ReportTemplate.
func (r Report) WriteText(w io.Writer) error {
	return reportTemplate.Execute(w, r)
}

func (r Report) String() string {
	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		return err.Error()
	}
	return buf.String()
}
