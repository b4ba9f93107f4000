package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Crypto futures trading bot and backtester",
	Long: `Trader turns strategy signals into sized, risk-checked orders.

It provides tools for:
  - Live trading on Binance USD-M futures with a Telegram control channel
  - Deterministic backtests over downloaded or CSV candles
  - Downloading historical candles
  - Querying the trade journal

Configuration is read from trader.yaml, a .env file and TRADER_* variables.`,
	SilenceUsage: true,
}

var (
	cfgFile string
	debug   bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./trader.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}
