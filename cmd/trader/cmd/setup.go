package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cryptotrader/config"
	"github.com/rustyeddy/cryptotrader/exchange"
	"github.com/rustyeddy/cryptotrader/exchange/binance"
	"github.com/rustyeddy/cryptotrader/internal/logging"
	"github.com/rustyeddy/cryptotrader/journal"
	"github.com/rustyeddy/cryptotrader/strategies"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log).With().Str("app", "trader").Logger()
}

// openJournal returns the configured journal, or journal.Nop for "none".
func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if err := ensureDir(cfg.DBPath); err != nil {
			return nil, err
		}
		return journal.NewSQLite(cfg.DBPath)
	case "csv":
		if err := ensureDir(cfg.TradesFile); err != nil {
			return nil, err
		}
		if err := ensureDir(cfg.EquityFile); err != nil {
			return nil, err
		}
		return journal.NewCSV(cfg.TradesFile, cfg.EquityFile)
	}
	return journal.Nop{}, nil
}

func openSQLite(path string) (*journal.SQLite, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return journal.NewSQLite(path)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// strategyParams uses the configured params only for the configured
// strategy; any other name runs with its defaults.
func strategyParams(cfg *config.Config, name string) strategies.Params {
	if name == cfg.Strategy.Name {
		return strategies.Params(cfg.Strategy.Params)
	}
	return nil
}

func newExchangeRegistry(logger zerolog.Logger) *exchange.Registry {
	r := exchange.NewRegistry()
	binance.Register(r, logger)
	return r
}

// historyConnector serves public market data, so it needs no credentials.
func historyConnector(cfg *config.Config, logger zerolog.Logger) exchange.Connector {
	opts := binance.Options{Logger: logger}
	if ex, ok := cfg.Exchange(binance.Name); ok {
		opts.APIKey, opts.APISecret = ex.APIKey, ex.APISecret
	}
	return exchange.WithRetry(binance.New(opts), cfg.Retry)
}
