package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/cryptotrader/backtest"
	"github.com/rustyeddy/cryptotrader/market"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download historical market data",
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download candles to a CSV file",
	Long: `Download closed candles from Binance in chunks and write them as CSV
(timestamp,open,high,low,close,volume).

Example:
  trader data fetch --symbol BTCUSDT --timeframe 1h --days 180 --out btc_1h.csv`,
	Args: cobra.NoArgs,
	RunE: runDataFetch,
}

var (
	fetchSymbol    string
	fetchTimeframe string
	fetchDays      int
	fetchOut       string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd)

	f := dataFetchCmd.Flags()
	f.StringVar(&fetchSymbol, "symbol", "BTCUSDT", "symbol to download")
	f.StringVarP(&fetchTimeframe, "timeframe", "t", "1h", "candle timeframe")
	f.IntVarP(&fetchDays, "days", "d", 30, "days of history")
	f.StringVarP(&fetchOut, "out", "o", "", "output CSV path (default SYMBOL_TF.csv)")
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	tf, err := market.ParseTimeframe(fetchTimeframe)
	if err != nil {
		return err
	}
	symbol := strings.ToUpper(fetchSymbol)
	out := fetchOut
	if out == "" {
		out = fmt.Sprintf("%s_%s.csv", symbol, tf)
	}

	loader := &backtest.Loader{Conn: historyConnector(cfg, log), Logger: log}
	candles, err := loader.Load(cmd.Context(), symbol, tf, fetchDays)
	if err != nil {
		return err
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if err := market.SaveCSV(out, candles); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d candles (%s to %s) to %s\n", len(candles),
		candles[0].OpenTime.Format("2006-01-02 15:04"), candles[len(candles)-1].OpenTime.Format("2006-01-02 15:04"), out)
	return nil
}
