package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/cryptotrader/market"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises writes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(trade_id, exchange, symbol, side, qty, entry_price, exit_price, open_time, close_time, realized_pl, fees, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Exchange, t.Symbol, t.Side, t.Qty, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL, t.Fees, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, exchange, balance, equity, exposure)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.Exchange, e.Balance, e.Equity, e.Exposure,
	)
	return err
}

// RecordOrder upserts the latest state of an order.
func (j *SQLite) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(order_id, exchange, symbol, side, type, qty, filled_qty, avg_price, status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			filled_qty = excluded.filled_qty,
			avg_price = excluded.avg_price,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		o.OrderID, o.Exchange, o.Symbol, o.Side, o.Type, o.Qty, o.FilledQty,
		o.AvgPrice, o.Status, o.Reason, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// profit factor is +Inf without losing trades; REAL columns store -1 for it
func encodePF(pf float64) float64 {
	if math.IsInf(pf, 1) {
		return -1
	}
	return pf
}

func decodePF(pf float64) float64 {
	if pf < 0 {
		return math.Inf(1)
	}
	return pf
}

func (j *SQLite) RecordBacktest(ctx context.Context, r BacktestRun) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, strategy, symbol, timeframe, start_time, end_time, params,
		 trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		 win_rate, profit_factor, max_dd_pct, sharpe, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Strategy, r.Symbol, r.Timeframe, r.Start, r.End, r.Params,
		r.Trades, r.Wins, r.Losses, r.StartBalance, r.EndBalance, r.NetPL, r.ReturnPct,
		r.WinRate, encodePF(r.ProfitFactor), r.MaxDDPct, r.Sharpe, string(r.Report),
	)
	if err != nil {
		return fmt.Errorf("record backtest %s: %w", r.RunID, err)
	}
	return nil
}

const backtestColumns = `run_id, created, strategy, symbol, timeframe, start_time, end_time, params,
	trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
	win_rate, profit_factor, max_dd_pct, sharpe, report`

func scanBacktest(row interface{ Scan(...any) error }) (BacktestRun, error) {
	var (
		r      BacktestRun
		report string
	)
	err := row.Scan(
		&r.RunID, &r.Created, &r.Strategy, &r.Symbol, &r.Timeframe, &r.Start, &r.End, &r.Params,
		&r.Trades, &r.Wins, &r.Losses, &r.StartBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct,
		&r.WinRate, &r.ProfitFactor, &r.MaxDDPct, &r.Sharpe, &report,
	)
	r.ProfitFactor = decodePF(r.ProfitFactor)
	r.Report = []byte(report)
	return r, err
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+backtestColumns+` FROM backtest_runs WHERE run_id = ?`, runID)
	r, err := scanBacktest(row)
	if err == sql.ErrNoRows {
		return BacktestRun{}, fmt.Errorf("backtest run %q not found", runID)
	}
	return r, err
}

// ListBacktestRuns returns runs newest first.
func (j *SQLite) ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `SELECT `+backtestColumns+` FROM backtest_runs ORDER BY created DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BacktestRun
	for rows.Next() {
		r, err := scanBacktest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportBacktestOrg loads a run and renders it as an org block.
func (j *SQLite) ExportBacktestOrg(ctx context.Context, runID string) (string, error) {
	r, err := j.GetBacktestRun(ctx, runID)
	if err != nil {
		return "", err
	}
	return r.Org()
}

// SaveCandles caches candles. Existing rows for the same open time are
// replaced.
func (j *SQLite) SaveCandles(ctx context.Context, candles []market.Candle) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles
		(symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.Symbol, string(c.Timeframe), c.OpenTime.UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save candle %s %s: %w", c.Symbol, c.OpenTime, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
