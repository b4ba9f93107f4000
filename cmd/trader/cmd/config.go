package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/cryptotrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage the trader configuration.

Subcommands:
  init     - Write the default configuration
  validate - Load and check a configuration

Examples:
  trader config init --output trader.yaml
  trader config validate --config trader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var (
	configInitOutput string
	configLive       bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "trader.yaml", "output config file path")
	configValidateCmd.Flags().BoolVar(&configLive, "live", false, "also check live trading requirements")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "put API keys in .env (BINANCE_API_KEY, BINANCE_SECRET_KEY) and run:")
	fmt.Fprintf(out, "  trader live --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if configLive {
		if err := cfg.ValidateLive(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	src := cfgFile
	if src == "" {
		src = "defaults"
	}
	fmt.Fprintf(out, "configuration valid: %s\n", src)
	for _, ex := range cfg.Exchanges {
		fmt.Fprintf(out, "  exchange: %s testnet=%t symbols=%v\n", ex.Name, ex.Testnet, ex.Symbols)
	}
	fmt.Fprintf(out, "  strategy: %s %s %v\n", cfg.Strategy.Name, cfg.Strategy.Timeframe, cfg.Strategy.Params)
	fmt.Fprintf(out, "  risk: position %.1f%% stop %.1f%% target %.1f%% leverage %dx\n",
		cfg.Risk.MaxPositionPct*100, cfg.Risk.StopLossPct*100, cfg.Risk.TakeProfitPct*100, cfg.Risk.Leverage)
	fmt.Fprintf(out, "  journal: %s\n", cfg.Journal.Type)
	fmt.Fprintf(out, "  telegram: %t\n", cfg.Telegram.Enabled())
	return nil
}
