package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/cryptotrader/backtest"
	"github.com/rustyeddy/cryptotrader/config"
	"github.com/rustyeddy/cryptotrader/market"
	"github.com/rustyeddy/cryptotrader/sim"
	"github.com/rustyeddy/cryptotrader/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a strategy over historical candles",
	Long: `Run a deterministic backtest. Candles are downloaded from Binance and
cached, or read from a CSV file written by "trader data fetch".

Examples:
  trader backtest --strategy ma_crossover --symbol BTCUSDT --days 90
  trader backtest --strategy rsi --csv btc_1h.csv --json
  trader backtest --compare ma_crossover,rsi --symbol ETHUSDT --days 30`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btStrategy  string
	btSymbol    string
	btTimeframe string
	btDays      int
	btCSV       string
	btJSON      bool
	btBalance   float64
	btCompare   string
	btSave      bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVarP(&btStrategy, "strategy", "s", "", "strategy name (default from config)")
	f.StringVar(&btSymbol, "symbol", "BTCUSDT", "symbol to test")
	f.StringVarP(&btTimeframe, "timeframe", "t", "", "candle timeframe (default from config)")
	f.IntVarP(&btDays, "days", "d", 30, "days of history to download")
	f.StringVar(&btCSV, "csv", "", "read candles from a CSV file instead of the exchange")
	f.BoolVar(&btJSON, "json", false, "print the report as JSON")
	f.Float64Var(&btBalance, "balance", 0, "initial balance (default from config)")
	f.StringVar(&btCompare, "compare", "", "comma separated strategies to run side by side")
	f.BoolVar(&btSave, "save", false, "record the run in the SQLite journal")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	ctx := cmd.Context()

	tfName := btTimeframe
	if tfName == "" {
		tfName = cfg.Strategy.Timeframe
	}
	tf, err := market.ParseTimeframe(tfName)
	if err != nil {
		return err
	}
	symbol := strings.ToUpper(btSymbol)

	candles, err := loadCandles(ctx, cfg, log, symbol, tf)
	if err != nil {
		return err
	}

	opts, err := backtestOptions(cfg, log)
	if err != nil {
		return err
	}

	reg := strategies.DefaultRegistry()
	if btCompare != "" {
		return runCompare(ctx, cmd.OutOrStdout(), cfg, reg, opts, candles)
	}

	name := btStrategy
	if name == "" {
		name = cfg.Strategy.Name
	}
	s, err := reg.New(name, strategyParams(cfg, name))
	if err != nil {
		return err
	}
	report, err := backtest.New(s, cfg.Risk.Config, opts).Run(ctx, candles)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	if btSave {
		if err := saveRun(ctx, cfg, report, strategyParams(cfg, name)); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if btJSON {
		b, err := report.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}
	return report.WriteText(out)
}

func loadCandles(ctx context.Context, cfg *config.Config, log zerolog.Logger, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	if btCSV != "" {
		return backtest.LoadCSV(btCSV, symbol, tf)
	}
	loader := &backtest.Loader{Conn: historyConnector(cfg, log), Logger: log}
	if cfg.Backtest.CachePath != "" {
		cache, err := openSQLite(cfg.Backtest.CachePath)
		if err != nil {
			log.Warn().Err(err).Msg("candle cache unavailable")
		} else {
			defer cache.Close()
			loader.Cache = cache
		}
	}
	return loader.Load(ctx, symbol, tf, btDays)
}

func backtestOptions(cfg *config.Config, log zerolog.Logger) (backtest.Options, error) {
	b := cfg.Backtest
	fill, err := sim.ParseFillAt(b.FillAt)
	if err != nil {
		return backtest.Options{}, err
	}
	opts := backtest.DefaultOptions()
	opts.InitialBalance = b.InitialBalance
	if btBalance > 0 {
		opts.InitialBalance = btBalance
	}
	opts.FeePct = b.FeePct
	opts.SlippagePct = b.SlippagePct
	opts.FillAt = fill
	opts.CloseAtEnd = b.CloseAtEnd
	opts.PeriodsPerYear = b.PeriodsPerYear
	opts.RiskFreeRate = b.RiskFreeRate
	opts.Window = cfg.Strategy.Window
	opts.Logger = log
	return opts, nil
}

func runCompare(ctx context.Context, out io.Writer, cfg *config.Config, reg *strategies.Registry, opts backtest.Options, candles []market.Candle) error {
	var engines []*backtest.Engine
	for _, name := range strings.Split(btCompare, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, err := reg.New(name, strategyParams(cfg, name))
		if err != nil {
			return err
		}
		engines = append(engines, backtest.New(s, cfg.Risk.Config, opts))
	}

	results := backtest.CompareStrategies(ctx, candles, engines...)
	if btJSON {
		b, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(b))
		return err
	}

	fmt.Fprintf(out, "%-16s %10s %9s %8s %7s %8s\n", "strategy", "return %", "max dd %", "sharpe", "trades", "win %")
	for _, c := range results {
		if c.Err != nil {
			fmt.Fprintf(out, "%-16s error: %v\n", c.Strategy, c.Err)
			continue
		}
		r := c.Report
		fmt.Fprintf(out, "%-16s %10.2f %9.2f %8.2f %7d %8.2f\n",
			c.Strategy, r.TotalReturnPct, r.MaxDrawdownPct, r.SharpeRatio, r.TotalTrades, r.WinRate)
	}
	return nil
}

func saveRun(ctx context.Context, cfg *config.Config, r backtest.Report, params strategies.Params) error {
	if cfg.Journal.Type != "sqlite" {
		return fmt.Errorf("--save needs journal.type sqlite, have %q", cfg.Journal.Type)
	}
	db, err := openSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer db.Close()

	p, err := json.Marshal(params)
	if err != nil {
		return err
	}
	run, err := r.BacktestRun(uuid.NewString(), time.Now().UTC(), string(p))
	if err != nil {
		return err
	}
	return db.RecordBacktest(ctx, run)
}
